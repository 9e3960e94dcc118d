package render

import (
	"fmt"
	"strconv"

	"github.com/livetemplate/blockpress/internal/element"
	"github.com/livetemplate/blockpress/internal/security"
)

// ChildrenProp carries a section's rendered nested content.
const ChildrenProp = "children"

// BuiltinFunc renders a Go-implemented component.
type BuiltinFunc func(props map[string]any) *element.Element

// Builtins returns the Go renderers for the registry's builtin components.
func Builtins() map[string]BuiltinFunc {
	return map[string]BuiltinFunc{
		"hero":    renderHero,
		"callout": renderCallout,
		"table":   renderTable,
		"quote":   renderQuote,
		"image":   renderImage,
		"divider": renderDivider,
		"columns": renderColumns,
	}
}

func str(props map[string]any, key string) string {
	return textOf(props[key])
}

func num(props map[string]any, key string, def int) int {
	switch v := props[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func list(props map[string]any, key string) []any {
	switch v := props[key].(type) {
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	}
	return nil
}

func oneOf(v string, allowed ...string) string {
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return allowed[0]
}

// safeURL returns u when it is an allowed link target.
func safeURL(u string) string {
	if u == "" || security.ValidateLinkURL(u) != nil {
		return ""
	}
	return u
}

func children(props map[string]any) *element.Element {
	el, _ := props[ChildrenProp].(*element.Element)
	return el
}

func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func renderHero(props map[string]any) *element.Element {
	align := oneOf(str(props, "align"), "center", "left")
	el := element.New("section", map[string]string{"class": "bp-hero bp-align-" + align},
		element.New("h1", nil, element.Text(str(props, "title"))),
	)
	if sub := str(props, "subtitle"); sub != "" {
		el.Append(element.New("p", map[string]string{"class": "bp-hero-subtitle"}, element.Text(sub)))
	}
	if label := str(props, "ctaLabel"); label != "" {
		attrs := map[string]string{"class": "bp-button"}
		if href := safeURL(str(props, "ctaHref")); href != "" {
			attrs["href"] = href
		}
		el.Append(element.New("a", attrs, element.Text(label)))
	}
	return el.Append(children(props))
}

func renderCallout(props map[string]any) *element.Element {
	tone := oneOf(str(props, "tone"), "info", "success", "warning", "danger")
	el := element.New("aside", map[string]string{"class": "bp-callout bp-callout-" + tone, "role": "note"})
	if title := str(props, "title"); title != "" {
		el.Append(element.New("strong", nil, element.Text(title)))
	}
	if body := str(props, "body"); body != "" {
		el.Append(element.New("p", nil, element.Text(body)))
	}
	return el.Append(children(props))
}

func renderTable(props map[string]any) *element.Element {
	table := element.New("table", map[string]string{"class": "bp-table"})
	if caption := str(props, "caption"); caption != "" {
		table.Append(element.New("caption", nil, element.Text(caption)))
	}
	if headers := list(props, "headers"); len(headers) > 0 {
		row := element.New("tr", nil)
		for _, h := range headers {
			row.Append(element.New("th", nil, element.Text(textOf(h))))
		}
		table.Append(element.New("thead", nil, row))
	}
	body := element.New("tbody", nil)
	for _, r := range list(props, "rows") {
		row := element.New("tr", nil)
		switch cells := r.(type) {
		case []any:
			for _, c := range cells {
				row.Append(element.New("td", nil, element.Text(textOf(c))))
			}
		default:
			row.Append(element.New("td", nil, element.Text(textOf(cells))))
		}
		body.Append(row)
	}
	return table.Append(body)
}

func renderQuote(props map[string]any) *element.Element {
	attrs := map[string]string{"class": "bp-quote"}
	if cite := safeURL(str(props, "cite")); cite != "" {
		attrs["cite"] = cite
	}
	el := element.New("figure", map[string]string{"class": "bp-quote-figure"},
		element.New("blockquote", attrs, element.New("p", nil, element.Text(str(props, "text")))),
	)
	if author := str(props, "author"); author != "" {
		el.Append(element.New("figcaption", nil, element.Text(author)))
	}
	return el.Append(children(props))
}

func renderImage(props map[string]any) *element.Element {
	src := safeURL(str(props, "src"))
	if src == "" {
		return element.New("div", map[string]string{"class": "bp-image bp-image-empty"}, element.Text("No image selected"))
	}
	img := element.New("img", map[string]string{"src": src, "alt": str(props, "alt"), "loading": "lazy"})
	if w := num(props, "width", 0); w > 0 {
		img.SetAttr("width", strconv.Itoa(w))
	}
	el := element.New("figure", map[string]string{"class": "bp-image"}, img)
	if caption := str(props, "caption"); caption != "" {
		el.Append(element.New("figcaption", nil, element.Text(caption)))
	}
	return el
}

func renderDivider(props map[string]any) *element.Element {
	style := oneOf(str(props, "style"), "solid", "dashed", "dotted")
	return element.New("hr", map[string]string{"class": "bp-divider bp-divider-" + style})
}

func renderColumns(props map[string]any) *element.Element {
	count := num(props, "count", 2)
	if count < 1 {
		count = 1
	}
	if count > 6 {
		count = 6
	}
	gap := oneOf(str(props, "gap"), "medium", "small", "large")
	el := element.New("div", map[string]string{
		"class": fmt.Sprintf("bp-columns bp-columns-%d bp-gap-%s", count, gap),
	})
	for _, item := range list(props, "items") {
		el.Append(element.New("div", map[string]string{"class": "bp-column"}, element.Text(textOf(item))))
	}
	if nested := children(props); nested != nil {
		for _, c := range nested.Children {
			el.Append(element.New("div", map[string]string{"class": "bp-column"}, c))
		}
	}
	return el
}
