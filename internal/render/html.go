package render

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/livetemplate/blockpress/internal/element"
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// HTML serializes a render-tree. Attributes are written in name order so the
// output is stable.
func HTML(el *element.Element) (string, error) {
	var buf bytes.Buffer
	for _, n := range toHTML(el) {
		if err := html.Render(&buf, n); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

func toHTML(el *element.Element) []*html.Node {
	if el == nil {
		return nil
	}
	switch el.Kind {
	case element.KindText:
		return []*html.Node{{Type: html.TextNode, Data: el.Text}}
	case element.KindFragment:
		var out []*html.Node
		for _, c := range el.Children {
			out = append(out, toHTML(c)...)
		}
		return out
	}

	tag := strings.ToLower(el.Tag)
	n := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	for _, name := range el.SortedAttrNames() {
		n.Attr = append(n.Attr, html.Attribute{Key: name, Val: el.Attrs[name]})
	}
	if voidElements[tag] {
		return []*html.Node{n}
	}
	for _, c := range el.Children {
		for _, child := range toHTML(c) {
			n.AppendChild(child)
		}
	}
	return []*html.Node{n}
}

// PublicPolicy returns the sanitization policy applied to public output.
func PublicPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class", "role").Globally()
	p.AllowDataAttributes()
	p.AllowAttrs("cite").OnElements("blockquote", "q")
	p.AllowAttrs("loading", "width").OnElements("img")
	p.AllowStyles("color", "background-color", "text-align", "font-weight", "font-style",
		"text-decoration", "width", "max-width", "margin", "padding", "gap").Globally()
	return p
}

// PublicHTML serializes a public render-tree and sanitizes the result.
func (r *Renderer) PublicHTML(el *element.Element) (string, error) {
	out, err := HTML(el)
	if err != nil {
		return "", err
	}
	return r.policy().Sanitize(out), nil
}

func (r *Renderer) policy() *bluemonday.Policy {
	r.policyOnce.Do(func() { r.sanitizer = PublicPolicy() })
	return r.sanitizer
}
