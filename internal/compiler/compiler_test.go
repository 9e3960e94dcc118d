package compiler

import (
	goruntime "runtime"
	"strings"
	"testing"

	"github.com/livetemplate/blockpress"
	"github.com/livetemplate/blockpress/internal/element"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const heroSource = `export default function Hero({ title, items = [] }) {
  return h("section", { className: "hero" },
    h("h1", null, title),
    h("ul", null, items.map((item, i) => h("li", { "data-index": i }, item))))
}`

func render(t *testing.T, code string, props map[string]any) (*element.Element, error) {
	t.Helper()
	comp, err := New(Options{}).Compile("test", code)
	require.NoError(t, err)
	return comp.Render(props)
}

func TestCompileAndRender(t *testing.T) {
	el, err := render(t, heroSource, map[string]any{"title": "Hi", "items": []any{"a", "b"}})
	require.NoError(t, err)

	assert.Equal(t, "section", el.Tag)
	assert.Equal(t, "hero", el.Attr("class"))
	require.Len(t, el.Children, 2)

	ul := el.Children[1]
	require.Len(t, ul.Children, 2)
	assert.Equal(t, "1", ul.Children[1].Attr("data-index"))
	assert.Equal(t, "Hiab", el.TextContent())
}

func TestRenderDefaultsAndMissingProps(t *testing.T) {
	el, err := render(t, heroSource, nil)
	require.NoError(t, err)
	assert.Equal(t, "", el.TextContent())
}

func TestExpressions(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		props map[string]any
		want  string
	}{
		{"arithmetic and String", `return String(1 + 2) + "x"`, nil, "3x"},
		{"number formatting", `return "n=" + 2.5`, nil, "n=2.5"},
		{"nullish", `return props.missing ?? "fallback"`, nil, "fallback"},
		{"optional chaining", `return props.user?.name ?? "anon"`, nil, "anon"},
		{"let and if", `let s = "a"; if (props.n > 1) { s += "b" } else { s += "c" } return s`, map[string]any{"n": 2}, "ab"},
		{"else branch", `let s = "a"; if (props.n > 1) s += "b"; else s += "c"; return s`, map[string]any{"n": 0}, "ac"},
		{"destructuring default", `const { a, b = "B" } = props; return a + b`, map[string]any{"a": "A"}, "AB"},
		{"filter map join", `return [3, 1, 2].filter(x => x > 1).map(x => x * 2).join("-")`, nil, "6-4"},
		{"helpers", `return upper("abc") + lower("DEF") + len([1, 2, 3])`, nil, "ABCdef3"},
		{"join helper", `return join(["a", "b"], "+")`, nil, "a+b"},
		{"object keys sorted", `return Object.keys({ b: 1, a: 2 }).join()`, nil, "a,b"},
		{"ternary", `return props.flag ? "yes" : "no"`, map[string]any{"flag": false}, "no"},
		{"math", `return Math.max(1, 5, 3) + Math.round(2.5)`, nil, "8"},
		{"string methods", `return "abc".slice(-2).toUpperCase()`, nil, "BC"},
		{"logic", `return String(7 % 4 === 3 && !false)`, nil, "true"},
		{"typeof", `return typeof props.items`, map[string]any{"items": []any{}}, "object"},
		{"loose and strict equality", `return (1 == "1") + "," + (1 === "1")`, nil, "true,false"},
		{"spread", `const o = { ...props, b: 2 }; return [...[o.a], o.b].join()`, map[string]any{"a": 1}, "1,2"},
		{"index access", `return props.list[1] + props.list.length`, map[string]any{"list": []any{"x", "y"}}, "y2"},
		{"arrow block body", `const f = (x) => { if (x) { return "t" } return "f" }; return f(0) + f(1)`, nil, "ft"},
		{"toFixed", `return (1.005 * 100).toFixed(1)`, nil, "100.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := "export default function C(props) {\n" + tt.body + "\n}"
			el, err := render(t, code, tt.props)
			require.NoError(t, err)
			assert.Equal(t, tt.want, el.TextContent())
		})
	}
}

func TestNestedComponentFunction(t *testing.T) {
	code := `const Item = ({ label, children }) => h("li", null, label, children)
export default function List({ items }) {
  return h("ul", null, items.map((x) => h(Item, { label: x }, "!")))
}`
	el, err := render(t, code, map[string]any{"items": []any{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "ul", el.Tag)
	assert.Equal(t, "a!b!", el.TextContent())
}

func TestAttributeConversion(t *testing.T) {
	code := `export default () => h("div", {
  className: ["a", false, "b"],
  style: { marginTop: "4px" },
  hidden: true,
  title: null,
  key: "k",
})`
	el, err := render(t, code, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"class":  "a b",
		"style":  "margin-top: 4px;",
		"hidden": "",
	}, el.Attrs)
}

func TestExportForms(t *testing.T) {
	sources := map[string]string{
		"leading function":  `export default function A(props) { return h("p", null, "ok") }`,
		"anonymous":         `export default function (props) { return h("p", null, "ok") }`,
		"arrow":             `export default (props) => h("p", null, "ok")`,
		"trailing export":   "function A(props) { return h(\"p\", null, \"ok\") }\nexport default A;",
		"comment before":    "// banner\n/* block */\nexport default () => h(\"p\", null, \"ok\")",
		"helper after main": "export default function A() { return h(\"p\", null, label) }\nconst label = \"ok\"",
	}
	for name, code := range sources {
		t.Run(name, func(t *testing.T) {
			el, err := render(t, code, nil)
			require.NoError(t, err)
			assert.Equal(t, "ok", el.TextContent())
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
	}{
		{"empty", "   ", "empty"},
		{"no function", "export default 42", "no function definition"},
		{"no export", "function A(props) { return null }", "must have a default export"},
		{"export only in comment", "// export default\nfunction A() {}", "must have a default export"},
		{"two exports", "export default function A() {}\nexport default A", "more than once"},
		{"named export", "export const x = 1; export default () => null", "named exports"},
		{"two functions", "function a() {}\nexport default function b() {}", "more than one top-level function"},
		{"nested export", "export default function A() { export default 1 }", "top level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.code)
			require.Error(t, err)
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, StageValidation, ce.Stage)
			assert.Equal(t, blockpress.CodeValidation, ce.Code())
			assert.Contains(t, ce.Message, tt.wantMsg)
		})
	}

	assert.NoError(t, Validate(heroSource))
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		stage   Stage
		wantMsg string
	}{
		{"script tag", `export default () => h("script", null, "alert(1)")`, StageCompile, "<script> is not allowed"},
		{"iframe tag", `export default () => h("iframe", null)`, StageCompile, "not allowed"},
		{"event handler", `export default () => h("div", { onclick: "x()" })`, StageCompile, "event handler"},
		{"javascript href", `export default () => h("a", { href: "javascript:alert(1)" })`, StageCompile, "not allowed"},
		{"unknown global", `export default (props) => fetch(props.url)`, StageCompile, `"fetch" is not defined`},
		{"process", `export default () => process.env`, StageCompile, `"process" is not defined`},
		{"loop", "export default function A(props) { for (;;) {} }", StageSyntax, "loops are not supported"},
		{"template substitution", "export default (p) => `a${p.x}`", StageSyntax, "template substitutions"},
		{"const reassignment", "export default function A() { const a = 1; a = 2; return a }", StageCompile, "constant"},
		{"self reference", "export default function A() { const a = a + 1; return a }", StageCompile, `"a" is not defined`},
		{"unterminated string", `export default () => "abc`, StageSyntax, "unterminated string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Options{}).Compile("k", tt.code)
			require.Error(t, err)
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.stage, ce.Stage)
			assert.Equal(t, blockpress.CodeInvalidCode, ce.Code())
			assert.Contains(t, ce.Message, tt.wantMsg)
		})
	}
}

func TestCompileErrorPositions(t *testing.T) {
	_, err := New(Options{}).Compile("k", "export default function A(props) {\n  return h(\"div\", null,\n}")
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 3, ce.Pos.Line)

	_, err = New(Options{}).Compile("k", "// header\nexport default (props) => missing")
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, Pos{Line: 2, Col: 27}, ce.Pos)
}

func TestSourceSizeLimit(t *testing.T) {
	c := New(Options{MaxSourceBytes: 32})
	err := c.Check(heroSource)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, StageValidation, ce.Stage)
}

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		props   map[string]any
		wantMsg string
	}{
		{"null property", `export default (props) => h("p", null, props.user.name)`, nil, `cannot read property "name" of null`},
		{"dynamic script tag", `export default (props) => h(props.tag, null)`, map[string]any{"tag": "script"}, "<script> is not allowed"},
		{"dynamic javascript href", `export default (props) => h("a", { href: props.url }, "x")`, map[string]any{"url": "javascript:alert(1)"}, "not allowed"},
		{"not a function", `export default (props) => props.title()`, map[string]any{"title": "x"}, "is not a function"},
		{"object child", `export default (props) => h("p", null, {})`, nil, "not a valid element child"},
		{"object result", `export default (props) => ({ a: 1 })`, nil, "must return an element"},
		{"unbounded recursion", "const loop = (f, n) => f(f, n + 1)\nexport default function Bad(props) { return loop(loop, 0) }", nil, "call depth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := render(t, tt.code, tt.props)
			require.Error(t, err)
			var re *RuntimeError
			require.ErrorAs(t, err, &re)
			assert.Contains(t, re.Message, tt.wantMsg)
		})
	}
}

func TestBudgets(t *testing.T) {
	items := make([]any, 100)
	for i := range items {
		items[i] = i
	}
	code := `export default ({ items }) => h("ul", null, items.map((i) => h("li", null, i)))`

	steps := New(Options{Limits: Limits{MaxSteps: 50}})
	comp, err := steps.Compile("k", code)
	require.NoError(t, err)
	_, err = comp.Render(map[string]any{"items": items})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step budget")

	elements := New(Options{Limits: Limits{MaxElements: 10}})
	comp, err = elements.Compile("k", code)
	require.NoError(t, err)
	_, err = comp.Render(map[string]any{"items": items})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "element budget")

	strs := New(Options{Limits: Limits{MaxStringLen: 64}})
	comp, err = strs.Compile("k", `export default function A() { let s = "0123456789abcdef"; s = s + s; s = s + s; s = s + s; return s }`)
	require.NoError(t, err)
	_, err = comp.Render(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "string longer than")
}

// megabyteSource declares s as a 1 MB string built by doubling, followed by
// the given statements.
func megabyteSource(stmts ...string) string {
	var b strings.Builder
	b.WriteString("export default function Bomb() {\n  let s = \"x\";\n")
	for range 20 {
		b.WriteString("  s = s + s;\n")
	}
	for _, st := range stmts {
		b.WriteString("  " + st + "\n")
	}
	b.WriteString("}")
	return b.String()
}

func doubled(name string, times int) []string {
	out := make([]string, times)
	for i := range out {
		out[i] = name + " = [..." + name + ", ..." + name + "];"
	}
	return out
}

func TestAllocationStaysBounded(t *testing.T) {
	tests := []struct {
		name  string
		stmts []string
		want  string
	}{
		{
			"join of repeated references",
			append(append([]string{"let a = [s];"}, doubled("a", 16)...), `return a.join("")`),
			"string longer than",
		},
		{
			"array converted by concatenation",
			append(append([]string{"let a = [s];"}, doubled("a", 16)...), `return "" + a`),
			"string longer than",
		},
		{
			"replaceAll growth",
			[]string{`return s.replaceAll("x", s)`},
			"string longer than",
		},
		{
			"split into characters",
			[]string{`return s.split("").length`},
			"array longer than",
		},
		{
			"repeated element references",
			append(append([]string{`const p = h("p", null, s);`, "let a = [p];"}, doubled("a", 8)...), `return h("div", null, a)`),
			"output larger than",
		},
		{
			"repeated empty elements",
			append(append([]string{`const i = h("i", null);`, "let a = [i];"}, doubled("a", 13)...), `return h("div", null, a)`),
			"element budget",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp, err := New(Options{}).Compile("bomb", megabyteSource(tt.stmts...))
			require.NoError(t, err)

			var before, after goruntime.MemStats
			goruntime.ReadMemStats(&before)
			el, err := comp.Render(nil)
			goruntime.ReadMemStats(&after)

			assert.Nil(t, el)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			allocated := after.TotalAlloc - before.TotalAlloc
			assert.Less(t, allocated, uint64(96<<20), "render allocated %d MB", allocated>>20)
		})
	}
}

func TestByteBudget(t *testing.T) {
	// each doubling stays under MaxStringLen but the total does not
	comp, err := New(Options{Limits: Limits{MaxBytes: 1 << 20}}).Compile("k", megabyteSource(`return s`))
	require.NoError(t, err)
	_, err = comp.Render(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory budget")
}

func TestRenderRecoversPanics(t *testing.T) {
	comp := &Component{
		prog: &compiledProgram{
			export: func(*frame) any { panic("boom") },
		},
		limits: DefaultLimits(),
	}
	el, err := comp.Render(nil)
	assert.Nil(t, el)
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Message, "internal error: boom")
}

func TestCacheInvalidationOnCodeChange(t *testing.T) {
	c := New(Options{})

	first, err := c.Compile("hero", heroSource)
	require.NoError(t, err)
	again, err := c.Compile("hero", heroSource)
	require.NoError(t, err)
	assert.Same(t, first, again, "unchanged code must reuse the cached component")

	changed := strings.Replace(heroSource, `"hero"`, `"hero hero--wide"`, 1)
	second, err := c.Compile("hero", changed)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 1, c.Cached())

	el, err := second.Render(map[string]any{"title": "x"})
	require.NoError(t, err)
	assert.Equal(t, "hero hero--wide", el.Attr("class"))

	c.Invalidate("hero")
	assert.Equal(t, 0, c.Cached())
}

func TestCompileFailuresAreCached(t *testing.T) {
	c := New(Options{})
	broken := "export default function Oops(props) { return ( }"

	_, first := c.Compile("oops", broken)
	var ce *CompileError
	require.ErrorAs(t, first, &ce)
	_, again := c.Compile("oops", broken)
	assert.Same(t, first, again, "unchanged broken code must not be parsed again")

	_, other := c.Compile("oops", broken+" ")
	require.Error(t, other)
	assert.NotSame(t, first, other, "changed code is compiled afresh")

	comp, err := c.Compile("oops", heroSource)
	require.NoError(t, err)
	assert.NotNil(t, comp)
	assert.Equal(t, 1, c.Cached())

	_, first = c.Compile("oops", broken)
	c.Invalidate("oops")
	_, again = c.Compile("oops", broken)
	assert.NotSame(t, first, again, "invalidation drops cached failures")
	assert.Equal(t, 0, c.Cached(), "a failed compile replaces the cached component")
}

func TestAsAPIError(t *testing.T) {
	err := AsAPIError("components.create", Validate("function A() {}"))
	assert.Equal(t, blockpress.CodeValidation, blockpress.CodeOf(err))

	_, compileErr := New(Options{}).Compile("k", `export default () => h("script")`)
	err = AsAPIError("components.create", compileErr)
	assert.Equal(t, blockpress.CodeInvalidCode, blockpress.CodeOf(err))

	assert.NoError(t, AsAPIError("x", nil))
}
