package tree

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// Frontmatter is the optional YAML header of an imported markdown file.
type Frontmatter struct {
	Title string `yaml:"title"`
	Slug  string `yaml:"slug"`
}

// Imported is the result of converting markdown into a document tree.
type Imported struct {
	Frontmatter Frontmatter
	Title       string // frontmatter title, else the first heading's text
	Root        *Node
}

// FromMarkdown converts markdown prose into a doc tree.
//
// Fenced code blocks whose info string starts with "section" become section
// nodes; the second word is the component key and the block body is parsed
// as YAML props:
//
//	```section hero
//	title: Welcome
//	```
//
// GFM tables become "table" sections with headers and rows props.
func FromMarkdown(src []byte) (*Imported, error) {
	fm, body, err := extractFrontmatter(src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(body))

	c := &mdConverter{source: body}
	root := NewDoc()
	for child := doc.FirstChild(); child != nil; child = child.NextSibling() {
		nodes, err := c.block(child)
		if err != nil {
			return nil, err
		}
		root.Content = append(root.Content, nodes...)
	}

	out := &Imported{Frontmatter: *fm, Title: fm.Title, Root: root}
	if out.Title == "" {
		for n := range FindAll(root, func(n *Node) bool { return n.Type == TypeHeading }) {
			out.Title = strings.TrimSpace(n.TextContent())
			break
		}
	}
	return out, nil
}

// extractFrontmatter splits a leading "---" YAML block from content.
func extractFrontmatter(content []byte) (*Frontmatter, []byte, error) {
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return &Frontmatter{}, content, nil
	}
	endIdx := bytes.Index(content[4:], []byte("\n---\n"))
	if endIdx == -1 {
		return nil, nil, fmt.Errorf("unclosed frontmatter")
	}
	var fm Frontmatter
	if err := yaml.Unmarshal(content[4:4+endIdx], &fm); err != nil {
		return nil, nil, err
	}
	return &fm, content[4+endIdx+5:], nil
}

type mdConverter struct {
	source []byte
}

func (c *mdConverter) block(n ast.Node) ([]*Node, error) {
	switch b := n.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		p := New(TypeParagraph)
		p.Content = c.inlines(b, nil)
		return []*Node{p}, nil
	case *ast.Heading:
		h := New(TypeHeading)
		h.SetAttr("level", b.Level)
		h.Content = c.inlines(b, nil)
		return []*Node{h}, nil
	case *ast.List:
		l := New(TypeList)
		l.SetAttr("ordered", b.IsOrdered())
		if b.IsOrdered() && b.Start > 1 {
			l.SetAttr("start", b.Start)
		}
		for item := b.FirstChild(); item != nil; item = item.NextSibling() {
			li := New(TypeListItem)
			for child := item.FirstChild(); child != nil; child = child.NextSibling() {
				nodes, err := c.block(child)
				if err != nil {
					return nil, err
				}
				li.Content = append(li.Content, nodes...)
			}
			l.Content = append(l.Content, li)
		}
		return []*Node{l}, nil
	case *ast.Blockquote:
		q := New(TypeBlockquote)
		for child := b.FirstChild(); child != nil; child = child.NextSibling() {
			nodes, err := c.block(child)
			if err != nil {
				return nil, err
			}
			q.Content = append(q.Content, nodes...)
		}
		return []*Node{q}, nil
	case *ast.FencedCodeBlock:
		return c.fenced(b)
	case *ast.CodeBlock:
		cb := New(TypeCodeBlock, NewText(c.lines(b)))
		return []*Node{cb}, nil
	case *ast.ThematicBreak:
		return []*Node{New(TypeHorizontalRule)}, nil
	case *extast.Table:
		return []*Node{c.table(b)}, nil
	case *ast.HTMLBlock:
		// Raw HTML is not representable in the content model.
		return nil, nil
	default:
		if n.HasChildren() {
			var out []*Node
			for child := n.FirstChild(); child != nil; child = child.NextSibling() {
				nodes, err := c.block(child)
				if err != nil {
					return nil, err
				}
				out = append(out, nodes...)
			}
			return out, nil
		}
		return nil, nil
	}
}

func (c *mdConverter) lines(n ast.Node) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(c.source))
	}
	return buf.String()
}

func (c *mdConverter) fenced(b *ast.FencedCodeBlock) ([]*Node, error) {
	info := ""
	if b.Info != nil {
		info = string(b.Info.Segment.Value(c.source))
	}
	parts := strings.Fields(info)
	body := c.lines(b)

	if len(parts) > 0 && parts[0] == "section" {
		if len(parts) < 2 {
			return nil, fmt.Errorf("section block requires a component key (```section <key>)")
		}
		props := map[string]any{}
		if strings.TrimSpace(body) != "" {
			if err := yaml.Unmarshal([]byte(body), &props); err != nil {
				return nil, fmt.Errorf("section %s: invalid props: %w", parts[1], err)
			}
		}
		return []*Node{NewSection(parts[1], props)}, nil
	}

	cb := New(TypeCodeBlock, NewText(body))
	if len(parts) > 0 {
		cb.SetAttr("language", parts[0])
	}
	return []*Node{cb}, nil
}

func (c *mdConverter) table(t *extast.Table) *Node {
	var headers []any
	var rows []any
	for row := t.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []any
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			var buf strings.Builder
			for _, n := range c.inlines(cell, nil) {
				buf.WriteString(n.TextContent())
			}
			cells = append(cells, strings.TrimSpace(buf.String()))
		}
		if _, ok := row.(*extast.TableHeader); ok {
			headers = cells
			continue
		}
		rows = append(rows, cells)
	}
	return NewSection("table", map[string]any{
		"headers": headers,
		"rows":    rows,
	})
}

// inlines flattens the inline children of n into text nodes, carrying the
// accumulated marks down to each leaf.
func (c *mdConverter) inlines(n ast.Node, marks []Mark) []*Node {
	var out []*Node
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		out = append(out, c.inline(child, marks)...)
	}
	return mergeText(out)
}

func (c *mdConverter) inline(n ast.Node, marks []Mark) []*Node {
	switch in := n.(type) {
	case *ast.Text:
		value := string(in.Segment.Value(c.source))
		out := []*Node{NewText(value, copyMarks(marks)...)}
		if in.HardLineBreak() {
			out = append(out, New(TypeHardBreak))
		} else if in.SoftLineBreak() {
			out = append(out, NewText(" ", copyMarks(marks)...))
		}
		return out
	case *ast.String:
		return []*Node{NewText(string(in.Value), copyMarks(marks)...)}
	case *ast.CodeSpan:
		var buf bytes.Buffer
		for child := in.FirstChild(); child != nil; child = child.NextSibling() {
			if t, ok := child.(*ast.Text); ok {
				buf.Write(t.Segment.Value(c.source))
			}
		}
		return []*Node{NewText(buf.String(), append(copyMarks(marks), Mark{Type: MarkCode})...)}
	case *ast.Emphasis:
		mark := Mark{Type: MarkItalic}
		if in.Level >= 2 {
			mark = Mark{Type: MarkBold}
		}
		return c.inlines(in, append(copyMarks(marks), mark))
	case *extast.Strikethrough:
		return c.inlines(in, append(copyMarks(marks), Mark{Type: MarkStrike}))
	case *ast.Link:
		mark := Mark{Type: MarkLink, Attrs: map[string]any{"href": string(in.Destination)}}
		if len(in.Title) > 0 {
			mark.Attrs["title"] = string(in.Title)
		}
		return c.inlines(in, append(copyMarks(marks), mark))
	case *ast.AutoLink:
		url := string(in.URL(c.source))
		mark := Mark{Type: MarkLink, Attrs: map[string]any{"href": url}}
		return []*Node{NewText(string(in.Label(c.source)), append(copyMarks(marks), mark)...)}
	case *ast.Image:
		// Inline images keep their alt text, linked to the image source.
		mark := Mark{Type: MarkLink, Attrs: map[string]any{"href": string(in.Destination)}}
		return c.inlines(in, append(copyMarks(marks), mark))
	case *ast.RawHTML:
		return nil
	default:
		return c.inlines(n, marks)
	}
}

func copyMarks(marks []Mark) []Mark {
	if len(marks) == 0 {
		return nil
	}
	out := make([]Mark, len(marks))
	copy(out, marks)
	return out
}

// mergeText joins adjacent text nodes that carry identical marks.
func mergeText(nodes []*Node) []*Node {
	var out []*Node
	for _, n := range nodes {
		if n.Type == TypeText && n.Text == "" {
			continue
		}
		if len(out) > 0 {
			prev := out[len(out)-1]
			if prev.Type == TypeText && n.Type == TypeText && sameMarks(prev.Marks, n.Marks) {
				prev.Text += n.Text
				continue
			}
		}
		out = append(out, n)
	}
	return out
}

func sameMarks(a, b []Mark) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type != b[i].Type || !valuesEqual(emptyIfNil(a[i].Attrs), emptyIfNil(b[i].Attrs)) {
			return false
		}
	}
	return true
}
