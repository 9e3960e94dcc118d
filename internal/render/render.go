// Package render turns a document tree into a render-tree, either as the
// editable surface shown to authors or as the read-only public view.
//
// Sections are resolved through one shared Resolver in both modes, so a
// section renders identically in the editor and in the published page. The
// editable mode only adds an overlay around each section.
package render

import (
	"strconv"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/livetemplate/blockpress/internal/element"
	"github.com/livetemplate/blockpress/internal/security"
	"github.com/livetemplate/blockpress/internal/tree"
)

// Mode selects editable or public output.
type Mode string

const (
	ModeEditable Mode = "editable"
	ModePublic   Mode = "public"
)

// ParseMode parses a mode name; the empty string means public.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeEditable:
		return ModeEditable, true
	case ModePublic, "":
		return ModePublic, true
	}
	return "", false
}

// UIState is the editor state the editable renderer reflects. It is owned by
// the editing session and never consulted in public mode.
type UIState struct {
	SelectedID tree.ID         `json:"selectedId,omitempty"`
	OpenPanel  string          `json:"openPanel,omitempty"`
	Panels     map[string]bool `json:"panels,omitempty"`
}

// Context parameterizes one render.
type Context struct {
	Mode    Mode
	UIState UIState
}

// Resolution records how one section was resolved.
type Resolution struct {
	NodeID       tree.ID        `json:"nodeId"`
	ComponentKey string         `json:"componentKey"`
	Props        map[string]any `json:"props"`
	Status       Status         `json:"status"`
	Message      string         `json:"message,omitempty"`
}

// Overlay actions offered on every section in editable mode. Their names
// match the editing session's actions.
var overlayActions = []struct{ action, label string }{
	{"edit", "Edit"},
	{"duplicate", "Duplicate"},
	{"delete", "Delete"},
	{"move-before", "Move up"},
	{"move-after", "Move down"},
}

// Renderer renders document trees.
type Renderer struct {
	resolver *Resolver

	policyOnce sync.Once
	sanitizer  *bluemonday.Policy
}

// New creates a renderer using resolver for sections.
func New(resolver *Resolver) *Renderer {
	return &Renderer{resolver: resolver}
}

// Resolver returns the section resolver.
func (r *Renderer) Resolver() *Resolver { return r.resolver }

// Render renders root and returns the render-tree together with one
// Resolution per section in document order. The tree is not modified.
func (r *Renderer) Render(root *tree.Node, ctx Context) (*element.Element, []Resolution) {
	if ctx.Mode == "" {
		ctx.Mode = ModePublic
	}
	w := &walker{r: r, ctx: ctx}
	if root == nil {
		return element.New("div", map[string]string{"class": "bp-document bp-empty"}), nil
	}
	return w.node(root), w.resolutions
}

type walker struct {
	r           *Renderer
	ctx         Context
	resolutions []Resolution
}

func (w *walker) children(n *tree.Node) []*element.Element {
	out := make([]*element.Element, 0, len(n.Content))
	for _, c := range n.Content {
		out = append(out, w.node(c))
	}
	return out
}

func (w *walker) node(n *tree.Node) *element.Element {
	switch n.Type {
	case tree.TypeDoc:
		return element.New("div", map[string]string{"class": "bp-document"}, w.children(n)...)
	case tree.TypeText:
		return textElement(n)
	case tree.TypeParagraph:
		return element.New("p", nil, w.children(n)...)
	case tree.TypeHeading:
		level := n.IntAttr("level", 1)
		if level < 1 {
			level = 1
		}
		if level > 6 {
			level = 6
		}
		return element.New("h"+strconv.Itoa(level), nil, w.children(n)...)
	case tree.TypeList:
		tag := "ul"
		if n.BoolAttr("ordered") {
			tag = "ol"
		}
		return element.New(tag, nil, w.children(n)...)
	case tree.TypeListItem:
		return element.New("li", nil, w.children(n)...)
	case tree.TypeBlockquote:
		return element.New("blockquote", nil, w.children(n)...)
	case tree.TypeCodeBlock:
		var attrs map[string]string
		if lang := n.StringAttr("language"); lang != "" {
			attrs = map[string]string{"class": "language-" + lang}
		}
		return element.New("pre", nil, element.New("code", attrs, element.Text(n.TextContent())))
	case tree.TypeHardBreak:
		return element.New("br", nil)
	case tree.TypeHorizontalRule:
		return element.New("hr", nil)
	case tree.TypeSection:
		return w.section(n)
	}
	return element.Fragment(w.children(n)...)
}

func textElement(n *tree.Node) *element.Element {
	el := element.Text(n.Text)
	for i := len(n.Marks) - 1; i >= 0; i-- {
		m := n.Marks[i]
		switch m.Type {
		case tree.MarkBold:
			el = element.New("strong", nil, el)
		case tree.MarkItalic:
			el = element.New("em", nil, el)
		case tree.MarkCode:
			el = element.New("code", nil, el)
		case tree.MarkStrike:
			el = element.New("s", nil, el)
		case tree.MarkLink:
			attrs := map[string]string{}
			if href, _ := m.Attrs["href"].(string); href != "" && security.ValidateLinkURL(href) == nil {
				attrs["href"] = href
			}
			el = element.New("a", attrs, el)
		}
	}
	return el
}

func (w *walker) section(n *tree.Node) *element.Element {
	key := n.ComponentKey()
	props := tree.CopyProps(n.Props())

	// Reserve the slot first so resolutions stay in pre-order when sections
	// nest.
	slot := len(w.resolutions)
	w.resolutions = append(w.resolutions, Resolution{NodeID: n.ID, ComponentKey: key, Props: props})

	input := tree.CopyProps(props)
	if len(n.Content) > 0 {
		input[ChildrenProp] = element.Fragment(w.children(n)...)
	}
	out := w.r.resolver.Resolve(key, input)
	w.resolutions[slot].Status = out.Status
	w.resolutions[slot].Message = out.Message

	if w.ctx.Mode != ModeEditable {
		return element.New("div", map[string]string{
			"class":          "bp-section",
			"data-component": key,
		}, out.Element)
	}
	return w.overlay(n, key, out)
}

func (w *walker) overlay(n *tree.Node, key string, out Outcome) *element.Element {
	id := string(n.ID)
	toolbar := element.New("div", map[string]string{"class": "bp-toolbar", "role": "toolbar"})
	for _, a := range overlayActions {
		toolbar.Append(element.New("button", map[string]string{
			"type":         "button",
			"class":        "bp-action bp-action-" + a.action,
			"data-action":  a.action,
			"data-node-id": id,
			"title":        a.label,
		}, element.Text(a.label)))
	}
	wrapper := element.New("div", map[string]string{
		"class":          "bp-section bp-editable",
		"data-component": key,
		"data-node-id":   id,
		"data-status":    string(out.Status),
	}, toolbar, out.Element)
	if w.ctx.UIState.SelectedID == n.ID {
		wrapper.AddClass("bp-selected")
		wrapper.SetAttr("aria-selected", "true")
	}
	return wrapper
}
