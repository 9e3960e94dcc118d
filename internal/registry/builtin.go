package registry

import "time"

// builtinEpoch is the UpdatedAt reported for builtin components.
var builtinEpoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Builtins returns the Go-implemented components available in every
// registry. Their renderers live in the render package under the same keys.
func Builtins() []Definition {
	defs := []Definition{
		{
			Key:         "hero",
			Name:        "Hero banner",
			Description: "Large heading with an optional subtitle and call to action.",
			Category:    "layout",
			Schema: map[string]FieldSchema{
				"title":    {Type: "string", Label: "Title", Required: true},
				"subtitle": {Type: "text", Label: "Subtitle"},
				"ctaLabel": {Type: "string", Label: "Button label"},
				"ctaHref":  {Type: "url", Label: "Button link"},
				"align":    {Type: "select", Label: "Alignment", Options: []string{"left", "center"}, Default: "center"},
			},
			DefaultConfig: map[string]any{"title": "Welcome", "subtitle": "", "align": "center"},
		},
		{
			Key:         "callout",
			Name:        "Callout",
			Description: "Highlighted note with a tone.",
			Category:    "content",
			Schema: map[string]FieldSchema{
				"tone":  {Type: "select", Label: "Tone", Options: []string{"info", "success", "warning", "danger"}, Default: "info"},
				"title": {Type: "string", Label: "Title"},
				"body":  {Type: "text", Label: "Body"},
			},
			DefaultConfig: map[string]any{"tone": "info", "title": "", "body": ""},
		},
		{
			Key:         "table",
			Name:        "Table",
			Description: "Rows of cells under a header row.",
			Category:    "content",
			Schema: map[string]FieldSchema{
				"headers": {Type: "list", Label: "Headers"},
				"rows":    {Type: "list", Label: "Rows"},
				"caption": {Type: "string", Label: "Caption"},
			},
			DefaultConfig: map[string]any{"headers": []any{}, "rows": []any{}},
		},
		{
			Key:         "quote",
			Name:        "Quote",
			Description: "Pull quote with attribution.",
			Category:    "content",
			Schema: map[string]FieldSchema{
				"text":   {Type: "text", Label: "Quote", Required: true},
				"author": {Type: "string", Label: "Author"},
				"cite":   {Type: "url", Label: "Source link"},
			},
			DefaultConfig: map[string]any{"text": "", "author": ""},
		},
		{
			Key:         "image",
			Name:        "Image",
			Description: "Image with alternative text and caption.",
			Category:    "media",
			Schema: map[string]FieldSchema{
				"src":     {Type: "url", Label: "Image URL", Required: true},
				"alt":     {Type: "string", Label: "Alternative text"},
				"caption": {Type: "string", Label: "Caption"},
				"width":   {Type: "number", Label: "Width"},
			},
			DefaultConfig: map[string]any{"src": "", "alt": ""},
		},
		{
			Key:         "divider",
			Name:        "Divider",
			Description: "Horizontal separator.",
			Category:    "layout",
			Schema: map[string]FieldSchema{
				"style": {Type: "select", Label: "Style", Options: []string{"solid", "dashed", "dotted"}, Default: "solid"},
			},
			DefaultConfig: map[string]any{"style": "solid"},
		},
		{
			Key:         "columns",
			Name:        "Columns",
			Description: "Lays out its nested content or text items side by side.",
			Category:    "layout",
			Schema: map[string]FieldSchema{
				"count": {Type: "number", Label: "Columns", Default: 2},
				"items": {Type: "list", Label: "Column text"},
				"gap":   {Type: "select", Label: "Gap", Options: []string{"small", "medium", "large"}, Default: "medium"},
			},
			DefaultConfig: map[string]any{"count": 2.0, "items": []any{}, "gap": "medium"},
		},
	}
	for i := range defs {
		defs[i].Origin = OriginBuiltin
		defs[i].UpdatedAt = builtinEpoch
	}
	return defs
}
