// Package element defines the render-tree: the displayable output produced by
// section components and by the document renderer.
package element

import (
	"sort"
	"strings"
)

// Kind distinguishes element nodes from text and fragments.
type Kind string

const (
	KindElement  Kind = "element"
	KindText     Kind = "text"
	KindFragment Kind = "fragment"
)

// Element is one node of a render-tree.
type Element struct {
	Kind     Kind              `json:"kind"`
	Tag      string            `json:"tag,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []*Element        `json:"children,omitempty"`
	Text     string            `json:"text,omitempty"`
}

// New creates an element node.
func New(tag string, attrs map[string]string, children ...*Element) *Element {
	return &Element{Kind: KindElement, Tag: tag, Attrs: attrs, Children: compact(children)}
}

// Text creates a text node.
func Text(s string) *Element {
	return &Element{Kind: KindText, Text: s}
}

// Fragment groups children without a wrapping element.
func Fragment(children ...*Element) *Element {
	return &Element{Kind: KindFragment, Children: compact(children)}
}

func compact(children []*Element) []*Element {
	if len(children) == 0 {
		return nil
	}
	out := children[:0:0]
	for _, c := range children {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Append adds children, skipping nils.
func (e *Element) Append(children ...*Element) *Element {
	for _, c := range children {
		if c != nil {
			e.Children = append(e.Children, c)
		}
	}
	return e
}

// SetAttr sets an attribute on an element node.
func (e *Element) SetAttr(name, value string) *Element {
	if e.Attrs == nil {
		e.Attrs = make(map[string]string)
	}
	e.Attrs[name] = value
	return e
}

// Attr returns an attribute value.
func (e *Element) Attr(name string) string {
	return e.Attrs[name]
}

// AddClass appends a class name to the element's class attribute.
func (e *Element) AddClass(class string) *Element {
	if cur := e.Attr("class"); cur != "" {
		return e.SetAttr("class", cur+" "+class)
	}
	return e.SetAttr("class", class)
}

// TextContent concatenates the text of all descendants.
func (e *Element) TextContent() string {
	if e == nil {
		return ""
	}
	if e.Kind == KindText {
		return e.Text
	}
	var b strings.Builder
	for _, c := range e.Children {
		b.WriteString(c.TextContent())
	}
	return b.String()
}

// Count returns the number of nodes in the render-tree.
func (e *Element) Count() int {
	if e == nil {
		return 0
	}
	n := 1
	for _, c := range e.Children {
		n += c.Count()
	}
	return n
}

// Find returns the first element, in pre-order, for which pred is true.
func (e *Element) Find(pred func(*Element) bool) *Element {
	if e == nil {
		return nil
	}
	if pred(e) {
		return e
	}
	for _, c := range e.Children {
		if found := c.Find(pred); found != nil {
			return found
		}
	}
	return nil
}

// FindAll returns all elements for which pred is true, in pre-order.
func (e *Element) FindAll(pred func(*Element) bool) []*Element {
	var out []*Element
	var walk func(*Element)
	walk = func(n *Element) {
		if n == nil {
			return
		}
		if pred(n) {
			out = append(out, n)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(e)
	return out
}

// HasClass reports whether the element's class attribute contains class.
func (e *Element) HasClass(class string) bool {
	for _, c := range strings.Fields(e.Attr("class")) {
		if c == class {
			return true
		}
	}
	return false
}

// SortedAttrNames returns attribute names in a stable order for output.
func (e *Element) SortedAttrNames() []string {
	names := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
