package tree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// wireNode is the serialized form of a Node:
//
//	{"type":"section","attrs":{"componentKey":"hero","props":{}},"content":[...]}
type wireNode struct {
	Type    NodeType       `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []*wireNode    `json:"content,omitempty"`
	Text    *string        `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// ParseError describes a malformed serialized tree. Path locates the
// offending node as a dotted list of content indexes from the root.
type ParseError struct {
	Path    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return "tree: " + e.Message
	}
	return fmt.Sprintf("tree: at %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// maxDepth bounds nesting when parsing untrusted input.
const maxDepth = 256

// Parse decodes a serialized tree. Every node receives a fresh identity.
func Parse(data []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var w wireNode
	if err := dec.Decode(&w); err != nil {
		return nil, &ParseError{Message: "invalid JSON", Err: err}
	}
	return fromWire(&w, "root", 0)
}

// MustParse is like Parse but panics on error. It is intended for tests and
// static seed content.
func MustParse(data string) *Node {
	n, err := Parse([]byte(data))
	if err != nil {
		panic(err)
	}
	return n
}

func fromWire(w *wireNode, path string, depth int) (*Node, error) {
	if w == nil {
		return nil, &ParseError{Path: path, Message: "null node"}
	}
	if depth > maxDepth {
		return nil, &ParseError{Path: path, Message: "tree is nested too deeply"}
	}
	if !IsKnownType(w.Type) {
		return nil, &ParseError{Path: path, Message: fmt.Sprintf("unknown node type %q", w.Type)}
	}

	n := &Node{ID: NewID(), Type: w.Type}
	if len(w.Attrs) > 0 {
		n.Attrs = NormalizeProps(w.Attrs)
	}

	if w.Type == TypeText {
		if len(w.Content) > 0 {
			return nil, &ParseError{Path: path, Message: "text node cannot have content"}
		}
		if w.Text != nil {
			n.Text = *w.Text
		}
		n.Marks = normalizeMarks(w.Marks)
		return n, nil
	}
	if w.Text != nil && *w.Text != "" {
		return nil, &ParseError{Path: path, Message: fmt.Sprintf("%s node cannot carry text", w.Type)}
	}
	if len(w.Marks) > 0 {
		return nil, &ParseError{Path: path, Message: fmt.Sprintf("%s node cannot carry marks", w.Type)}
	}

	if w.Type == TypeSection {
		if err := normalizeSectionAttrs(n, path); err != nil {
			return nil, err
		}
	}

	if len(w.Content) > 0 {
		if n.IsLeaf() {
			return nil, &ParseError{Path: path, Message: fmt.Sprintf("%s node cannot have content", w.Type)}
		}
		n.Content = make([]*Node, 0, len(w.Content))
		for i, cw := range w.Content {
			child, err := fromWire(cw, path+"."+strconv.Itoa(i), depth+1)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, child)
		}
	}
	return n, nil
}

// normalizeSectionAttrs enforces the section attribute shape: a string
// componentKey and a props mapping that is never absent.
func normalizeSectionAttrs(n *Node, path string) error {
	if n.Attrs == nil {
		n.Attrs = map[string]any{}
	}
	key, ok := n.Attrs[AttrComponentKey].(string)
	if !ok || strings.TrimSpace(key) == "" {
		return &ParseError{Path: path, Message: "section requires a componentKey"}
	}
	switch p := n.Attrs[AttrProps].(type) {
	case nil:
		n.Attrs[AttrProps] = map[string]any{}
	case map[string]any:
		// already normalized
	default:
		return &ParseError{Path: path, Message: fmt.Sprintf("section props must be an object, got %T", p)}
	}
	return nil
}

func normalizeMarks(marks []Mark) []Mark {
	if len(marks) == 0 {
		return nil
	}
	out := make([]Mark, len(marks))
	for i, m := range marks {
		out[i] = Mark{Type: m.Type}
		if len(m.Attrs) > 0 {
			out[i].Attrs = NormalizeProps(m.Attrs)
		}
	}
	return out
}

// Serialize encodes a tree into its serialized JSON form.
func Serialize(n *Node) ([]byte, error) {
	if n == nil {
		return nil, &ParseError{Message: "cannot serialize a nil tree"}
	}
	w, err := toWire(n, "root", map[*Node]bool{})
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func toWire(n *Node, path string, seen map[*Node]bool) (*wireNode, error) {
	if n == nil {
		return nil, &ParseError{Path: path, Message: "nil child"}
	}
	if seen[n] {
		return nil, &ParseError{Path: path, Message: "node appears more than once (cycle or shared child)"}
	}
	seen[n] = true

	w := &wireNode{Type: n.Type, Marks: n.Marks}
	if len(n.Attrs) > 0 {
		w.Attrs = n.Attrs
	}
	if n.Type == TypeSection {
		attrs := make(map[string]any, len(n.Attrs)+1)
		for k, v := range n.Attrs {
			attrs[k] = v
		}
		if attrs[AttrProps] == nil {
			attrs[AttrProps] = map[string]any{}
		}
		w.Attrs = attrs
	}
	if n.Type == TypeText {
		text := n.Text
		w.Text = &text
	}
	for i, c := range n.Content {
		cw, err := toWire(c, path+"."+strconv.Itoa(i), seen)
		if err != nil {
			return nil, err
		}
		w.Content = append(w.Content, cw)
	}
	return w, nil
}

// MarshalJSON lets a Node be embedded directly in API payloads.
func (n *Node) MarshalJSON() ([]byte, error) {
	return Serialize(n)
}

// UnmarshalJSON decodes a serialized tree into n.
func (n *Node) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*n = *parsed
	return nil
}
