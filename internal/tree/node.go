// Package tree implements the document content model: a tree of prose nodes
// mixed with opaque, data-driven section nodes.
//
// Every node carries an in-memory identity (ID) assigned when it is created or
// parsed. Identities are not serialized; they let editing operations address
// nodes stably while positions (pre-order offsets) shift under mutation.
package tree

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// NodeType tags the variant of a Node.
type NodeType string

const (
	TypeDoc            NodeType = "doc"
	TypeParagraph      NodeType = "paragraph"
	TypeHeading        NodeType = "heading"
	TypeList           NodeType = "list"
	TypeListItem       NodeType = "list_item"
	TypeBlockquote     NodeType = "blockquote"
	TypeCodeBlock      NodeType = "code_block"
	TypeHardBreak      NodeType = "hard_break"
	TypeHorizontalRule NodeType = "horizontal_rule"
	TypeText           NodeType = "text"
	TypeSection        NodeType = "section"
)

// Attribute names carried by section nodes.
const (
	AttrComponentKey = "componentKey"
	AttrProps        = "props"
)

var knownTypes = map[NodeType]bool{
	TypeDoc:            true,
	TypeParagraph:      true,
	TypeHeading:        true,
	TypeList:           true,
	TypeListItem:       true,
	TypeBlockquote:     true,
	TypeCodeBlock:      true,
	TypeHardBreak:      true,
	TypeHorizontalRule: true,
	TypeText:           true,
	TypeSection:        true,
}

// IsKnownType reports whether t is one of the defined node variants.
func IsKnownType(t NodeType) bool {
	return knownTypes[t]
}

// ID is the opaque identity of a node within a process.
type ID string

// NewID returns a fresh node identity.
func NewID() ID {
	return ID(uuid.NewString())
}

// Mark is an inline annotation on a text node (bold, italic, code, link).
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Mark types produced by the markdown importer and understood by the renderer.
const (
	MarkBold   = "bold"
	MarkItalic = "italic"
	MarkCode   = "code"
	MarkLink   = "link"
	MarkStrike = "strike"
)

// Node is a unit of document content.
//
// Text nodes are leaves and carry Text and Marks. Every other variant is a
// container with ordered Content. Section nodes keep their component key and
// props in Attrs under AttrComponentKey and AttrProps.
type Node struct {
	ID      ID
	Type    NodeType
	Attrs   map[string]any
	Content []*Node
	Text    string
	Marks   []Mark
}

// New creates a container node of the given type.
func New(t NodeType, children ...*Node) *Node {
	return &Node{ID: NewID(), Type: t, Content: children}
}

// NewDoc creates a document root.
func NewDoc(children ...*Node) *Node {
	return New(TypeDoc, children...)
}

// NewText creates a text leaf.
func NewText(text string, marks ...Mark) *Node {
	return &Node{ID: NewID(), Type: TypeText, Text: text, Marks: marks}
}

// NewParagraph creates a paragraph holding a single text child.
func NewParagraph(text string) *Node {
	return New(TypeParagraph, NewText(text))
}

// NewHeading creates a heading of the given level.
func NewHeading(level int, text string) *Node {
	n := New(TypeHeading, NewText(text))
	n.SetAttr("level", float64(level))
	return n
}

// NewSection creates a section node bound to a component key. A nil props
// map normalizes to an empty mapping.
func NewSection(key string, props map[string]any, children ...*Node) *Node {
	n := New(TypeSection, children...)
	n.Attrs = map[string]any{
		AttrComponentKey: key,
		AttrProps:        NormalizeProps(props),
	}
	return n
}

// IsLeaf reports whether the node cannot carry children.
func (n *Node) IsLeaf() bool {
	return n.Type == TypeText || n.Type == TypeHardBreak || n.Type == TypeHorizontalRule
}

// IsSection reports whether the node is a section node.
func (n *Node) IsSection() bool {
	return n != nil && n.Type == TypeSection
}

// SetAttr sets a presentational attribute.
func (n *Node) SetAttr(name string, value any) {
	if n.Attrs == nil {
		n.Attrs = make(map[string]any)
	}
	n.Attrs[name] = NormalizeValue(value)
}

// Attr returns a presentational attribute.
func (n *Node) Attr(name string) (any, bool) {
	v, ok := n.Attrs[name]
	return v, ok
}

// StringAttr returns a string attribute or "".
func (n *Node) StringAttr(name string) string {
	s, _ := n.Attrs[name].(string)
	return s
}

// IntAttr returns a numeric attribute as int, or def when absent.
func (n *Node) IntAttr(name string, def int) int {
	switch v := n.Attrs[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
	}
	return def
}

// BoolAttr returns a boolean attribute.
func (n *Node) BoolAttr(name string) bool {
	b, _ := n.Attrs[name].(bool)
	return b
}

// ComponentKey returns the component key of a section node.
func (n *Node) ComponentKey() string {
	if !n.IsSection() {
		return ""
	}
	return n.StringAttr(AttrComponentKey)
}

// Props returns the props mapping of a section node. The returned map is the
// node's own storage; callers that intend to mutate it should copy it first.
func (n *Node) Props() map[string]any {
	if !n.IsSection() {
		return nil
	}
	p, _ := n.Attrs[AttrProps].(map[string]any)
	if p == nil {
		p = map[string]any{}
		n.SetAttr(AttrProps, p)
	}
	return p
}

// SetProps replaces the props mapping of a section node.
func (n *Node) SetProps(props map[string]any) {
	n.SetAttr(AttrProps, NormalizeProps(props))
}

// TextContent concatenates the text of all descendant text nodes.
func (n *Node) TextContent() string {
	if n.Type == TypeText {
		return n.Text
	}
	var out []byte
	for _, c := range n.Content {
		out = append(out, c.TextContent()...)
	}
	return string(out)
}

// String returns a short description used in logs and test failures.
func (n *Node) String() string {
	switch n.Type {
	case TypeText:
		return fmt.Sprintf("text(%q)", n.Text)
	case TypeSection:
		return fmt.Sprintf("section(%s)", n.ComponentKey())
	default:
		return fmt.Sprintf("%s[%d]", n.Type, len(n.Content))
	}
}

// NormalizeProps returns a JSON-normalized copy of props; nil becomes an
// empty map.
func NormalizeProps(props map[string]any) map[string]any {
	if props == nil {
		return map[string]any{}
	}
	out, _ := NormalizeValue(props).(map[string]any)
	if out == nil {
		return map[string]any{}
	}
	return out
}

// NormalizeValue converts v into the value space produced by decoding JSON:
// numbers become float64, maps become map[string]any and slices []any. The
// result never aliases v's maps or slices.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case nil, string, bool, float64:
		return val
	case int:
		return float64(val)
	case int8:
		return float64(val)
	case int16:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case uint8:
		return float64(val)
	case uint16:
		return float64(val)
	case uint32:
		return float64(val)
	case uint64:
		return float64(val)
	case float32:
		return float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return val.String()
		}
		return f
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = NormalizeValue(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = NormalizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = NormalizeValue(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = NormalizeValue(item)
		}
		return out
	default:
		// Fall back to a JSON round trip for structs and other types.
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		var out any
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Sprint(val)
		}
		return out
	}
}

// CopyProps returns a deep copy of a props mapping.
func CopyProps(props map[string]any) map[string]any {
	return NormalizeProps(props)
}
