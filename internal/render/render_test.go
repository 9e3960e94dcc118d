package render

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livetemplate/blockpress/internal/compiler"
	"github.com/livetemplate/blockpress/internal/element"
	"github.com/livetemplate/blockpress/internal/registry"
	"github.com/livetemplate/blockpress/internal/tree"
)

const badgeSource = `export default function Badge({ label, tone = "info" }) {
  return h("span", { className: "badge badge-" + tone }, upper(label))
}`

func newRenderer(t *testing.T) (*Renderer, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	_, err := reg.RegisterCustom(registry.CustomSource{Key: "badge", Code: badgeSource})
	require.NoError(t, err)
	_, err = reg.RegisterCustom(registry.CustomSource{Key: "broken", Code: "function Broken(props) { return h(\"div\", null, props.a.b) }"})
	require.NoError(t, err)
	_, err = reg.RegisterCustom(registry.CustomSource{Key: "unparsable", Code: "function Oops(props) { return ( }"})
	require.NoError(t, err)
	return New(NewResolver(reg, compiler.New(compiler.Options{}))), reg
}

func findByClass(el *element.Element, class string) []*element.Element {
	return el.FindAll(func(e *element.Element) bool { return e.HasClass(class) })
}

func TestRenderProse(t *testing.T) {
	r, _ := newRenderer(t)
	link := tree.Mark{Type: tree.MarkLink, Attrs: map[string]any{"href": "https://example.com"}}
	root := tree.NewDoc(
		tree.NewHeading(2, "Title"),
		tree.New(tree.TypeParagraph,
			tree.NewText("plain "),
			tree.NewText("bold", tree.Mark{Type: tree.MarkBold}),
			tree.NewText("link", link, tree.Mark{Type: tree.MarkItalic}),
		),
		tree.New(tree.TypeList, tree.New(tree.TypeListItem, tree.NewParagraph("one"))),
		tree.New(tree.TypeHorizontalRule),
	)

	el, res := r.Render(root, Context{Mode: ModePublic})
	assert.Empty(t, res)

	out, err := HTML(el)
	require.NoError(t, err)
	assert.Equal(t,
		`<div class="bp-document"><h2>Title</h2><p>plain <strong>bold</strong><a href="https://example.com"><em>link</em></a></p><ul><li><p>one</p></li></ul><hr/></div>`,
		out)
}

func TestRenderDropsUnsafeLinks(t *testing.T) {
	r, _ := newRenderer(t)
	link := tree.Mark{Type: tree.MarkLink, Attrs: map[string]any{"href": "javascript:alert(1)"}}
	root := tree.NewDoc(tree.New(tree.TypeParagraph, tree.NewText("x", link)))

	el, _ := r.Render(root, Context{Mode: ModePublic})
	out, err := HTML(el)
	require.NoError(t, err)
	assert.NotContains(t, out, "javascript")
}

func TestResolutionsMatchAcrossModes(t *testing.T) {
	r, _ := newRenderer(t)
	root := tree.NewDoc(
		tree.NewParagraph("intro"),
		tree.NewSection("hero", map[string]any{"title": "Hello"}),
		tree.NewSection("badge", map[string]any{"label": "new"},
			tree.NewSection("callout", map[string]any{"title": "nested"})),
		tree.NewSection("missing", nil),
		tree.NewSection("broken", nil),
		tree.NewSection("unparsable", nil),
	)

	_, editable := r.Render(root, Context{Mode: ModeEditable, UIState: UIState{SelectedID: root.Content[1].ID}})
	_, public := r.Render(root, Context{Mode: ModePublic})

	if diff := cmp.Diff(editable, public); diff != "" {
		t.Fatalf("resolutions differ between modes (-editable +public):\n%s", diff)
	}

	var keys []string
	var statuses []Status
	for _, res := range public {
		keys = append(keys, res.ComponentKey)
		statuses = append(statuses, res.Status)
	}
	assert.Equal(t, []string{"hero", "badge", "callout", "missing", "broken", "unparsable"}, keys)
	assert.Equal(t, []Status{StatusOK, StatusOK, StatusOK, StatusNotFound, StatusRuntimeError, StatusCompileError}, statuses)
	assert.Equal(t, root.Content[1].ID, public[0].NodeID)
	assert.Equal(t, map[string]any{"title": "Hello"}, public[0].Props)
}

func TestBrokenSectionIsIsolated(t *testing.T) {
	r, _ := newRenderer(t)
	root := tree.NewDoc(
		tree.NewSection("hero", map[string]any{"title": "Before"}),
		tree.NewSection("broken", nil),
		tree.NewSection("badge", map[string]any{"label": "after"}),
	)

	el, res := r.Render(root, Context{Mode: ModePublic})
	require.Len(t, res, 3)

	placeholders := findByClass(el, "bp-placeholder")
	require.Len(t, placeholders, 1)
	assert.Equal(t, "broken", placeholders[0].Attr("data-component"))
	assert.Equal(t, string(StatusRuntimeError), placeholders[0].Attr("data-status"))
	assert.Contains(t, placeholders[0].TextContent(), "cannot read property")

	text := el.TextContent()
	assert.Contains(t, text, "Before")
	assert.Contains(t, text, "AFTER")
}

type panickingCompiler struct{}

func (panickingCompiler) Compile(key, code string) (*compiler.Component, error) {
	panic("lexer out of bounds")
}

func TestCompilerPanicIsIsolated(t *testing.T) {
	reg := registry.New()
	_, err := reg.RegisterCustom(registry.CustomSource{Key: "badge", Code: badgeSource})
	require.NoError(t, err)
	r := New(NewResolver(reg, panickingCompiler{}))

	root := tree.NewDoc(
		tree.NewSection("hero", map[string]any{"title": "Still here"}),
		tree.NewSection("badge", map[string]any{"label": "x"}),
	)
	el, res := r.Render(root, Context{Mode: ModeEditable})
	require.Len(t, res, 2)

	placeholders := findByClass(el, "bp-placeholder")
	require.Len(t, placeholders, 1)
	assert.Equal(t, string(StatusCompileError), placeholders[0].Attr("data-status"))
	assert.Contains(t, placeholders[0].TextContent(), "internal error: lexer out of bounds")
	assert.Contains(t, el.TextContent(), "Still here")
}

func TestEditableOverlay(t *testing.T) {
	r, _ := newRenderer(t)
	selected := tree.NewSection("callout", map[string]any{"title": "pick me"})
	other := tree.NewSection("divider", nil)
	root := tree.NewDoc(selected, other)
	before := tree.Clone(root)

	el, _ := r.Render(root, Context{Mode: ModeEditable, UIState: UIState{SelectedID: selected.ID}})
	assert.True(t, tree.Equal(before, root), "rendering must not alter the tree")

	wrappers := findByClass(el, "bp-editable")
	require.Len(t, wrappers, 2)
	assert.Equal(t, string(selected.ID), wrappers[0].Attr("data-node-id"))
	assert.True(t, wrappers[0].HasClass("bp-selected"))
	assert.False(t, wrappers[1].HasClass("bp-selected"))

	var actions []string
	for _, b := range wrappers[0].FindAll(func(e *element.Element) bool { return e.Attr("data-action") != "" }) {
		actions = append(actions, b.Attr("data-action"))
		assert.Equal(t, string(selected.ID), b.Attr("data-node-id"))
	}
	assert.Equal(t, []string{"edit", "duplicate", "delete", "move-before", "move-after"}, actions)

	public, _ := r.Render(root, Context{Mode: ModePublic, UIState: UIState{SelectedID: selected.ID}})
	assert.Empty(t, public.FindAll(func(e *element.Element) bool { return e.Attr("data-action") != "" }))
	assert.Empty(t, findByClass(public, "bp-selected"))
}

func TestSectionChildrenArePassedAsProp(t *testing.T) {
	r, _ := newRenderer(t)
	root := tree.NewDoc(tree.NewSection("callout", map[string]any{"title": "T"}, tree.NewParagraph("caption text")))

	el, _ := r.Render(root, Context{})
	callout := findByClass(el, "bp-callout")
	require.Len(t, callout, 1)
	assert.Contains(t, callout[0].TextContent(), "caption text")
}

func TestDefaultsFillMissingProps(t *testing.T) {
	r, _ := newRenderer(t)
	root := tree.NewDoc(tree.NewSection("hero", nil))

	el, res := r.Render(root, Context{})
	assert.Equal(t, map[string]any{}, res[0].Props)
	assert.Contains(t, el.TextContent(), "Welcome")
}

func TestPlaceholderMessageTruncated(t *testing.T) {
	reg := registry.New()
	r := New(NewResolver(reg, nil, WithBuiltin("hero", func(map[string]any) *element.Element {
		panic(strings.Repeat("x", 500))
	})))

	_, res := r.Render(tree.NewDoc(tree.NewSection("hero", nil)), Context{})
	require.Len(t, res, 1)
	assert.Equal(t, StatusRuntimeError, res[0].Status)
	assert.Equal(t, maxMessageRunes, len([]rune(res[0].Message)))
}

func TestCodeChangeRecompiles(t *testing.T) {
	r, reg := newRenderer(t)
	root := tree.NewDoc(tree.NewSection("badge", map[string]any{"label": "x"}))

	el, _ := r.Render(root, Context{})
	assert.Equal(t, "X", el.TextContent())

	_, err := reg.UpdateCustom(registry.CustomSource{Key: "badge", Code: `function Badge({ label }) { return h("em", null, lower(label) + "!") }`})
	require.NoError(t, err)

	el, _ = r.Render(root, Context{})
	assert.Equal(t, "x!", el.TextContent())
}

func TestBuiltinRenderers(t *testing.T) {
	tests := []struct {
		key      string
		props    map[string]any
		contains []string
		excludes []string
	}{
		{"hero", map[string]any{"title": "Hi", "ctaLabel": "Go", "ctaHref": "javascript:x"}, []string{"<h1>Hi</h1>", `class="bp-button"`}, []string{"javascript"}},
		{"callout", map[string]any{"tone": "bogus", "body": "b"}, []string{"bp-callout-info", "<p>b</p>"}, nil},
		{"table", map[string]any{"headers": []any{"A"}, "rows": []any{[]any{"1", 2.0}}}, []string{"<th>A</th>", "<td>1</td><td>2</td>"}, nil},
		{"quote", map[string]any{"text": "q", "author": "me"}, []string{"<blockquote", "<figcaption>me</figcaption>"}, nil},
		{"image", map[string]any{"src": "https://x.test/a.png", "alt": "pic", "width": 300.0}, []string{`src="https://x.test/a.png"`, `width="300"`}, nil},
		{"image", map[string]any{"src": "javascript:alert(1)"}, []string{"No image selected"}, []string{"<img"}},
		{"divider", map[string]any{"style": "dashed"}, []string{"bp-divider-dashed"}, nil},
		{"columns", map[string]any{"count": 3.0, "items": []any{"a", "b"}}, []string{"bp-columns-3", `<div class="bp-column">a</div>`}, nil},
	}

	r, _ := newRenderer(t)
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			out := r.Resolver().Resolve(tt.key, tt.props)
			require.Equal(t, StatusOK, out.Status, out.Message)
			html, err := HTML(out.Element)
			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, html, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, html, s)
			}
		})
	}
}

func TestHTMLVoidElementsAndEscaping(t *testing.T) {
	el := element.Fragment(
		element.New("img", map[string]string{"src": "a.png", "alt": `"q"`}, element.Text("ignored")),
		element.New("p", nil, element.Text("<b>&")),
	)
	out, err := HTML(el)
	require.NoError(t, err)
	assert.Equal(t, `<img alt="&#34;q&#34;" src="a.png"/><p>&lt;b&gt;&amp;</p>`, out)
}

func TestPublicHTMLSanitizes(t *testing.T) {
	r, _ := newRenderer(t)
	el := element.New("div", map[string]string{"class": "bp-section", "onclick": "steal()"},
		element.New("a", map[string]string{"href": "javascript:alert(1)"}, element.Text("x")),
	)
	out, err := r.PublicHTML(el)
	require.NoError(t, err)
	assert.Contains(t, out, `class="bp-section"`)
	assert.NotContains(t, out, "onclick")
	assert.NotContains(t, out, "javascript")
}

func TestParseMode(t *testing.T) {
	m, ok := ParseMode("editable")
	assert.True(t, ok)
	assert.Equal(t, ModeEditable, m)

	m, ok = ParseMode("")
	assert.True(t, ok)
	assert.Equal(t, ModePublic, m)

	_, ok = ParseMode("draft")
	assert.False(t, ok)
}
