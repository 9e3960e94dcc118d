package compiler

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/livetemplate/blockpress/internal/element"
)

// Limits bound a single component invocation.
type Limits struct {
	MaxSteps     int // statements, calls and callback iterations
	MaxElements  int // elements constructed
	MaxDepth     int // nested calls
	MaxStringLen int // bytes in any string built by concatenation
	MaxArrayLen  int // elements in any array built by spreading or concat
	MaxBytes     int // bytes of strings, arrays and output built per invocation
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxSteps:     100000,
		MaxElements:  5000,
		MaxDepth:     64,
		MaxStringLen: 1 << 20,
		MaxArrayLen:  100000,
		MaxBytes:     32 << 20,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxSteps <= 0 {
		l.MaxSteps = d.MaxSteps
	}
	if l.MaxElements <= 0 {
		l.MaxElements = d.MaxElements
	}
	if l.MaxDepth <= 0 {
		l.MaxDepth = d.MaxDepth
	}
	if l.MaxStringLen <= 0 {
		l.MaxStringLen = d.MaxStringLen
	}
	if l.MaxArrayLen <= 0 {
		l.MaxArrayLen = d.MaxArrayLen
	}
	if l.MaxBytes <= 0 {
		l.MaxBytes = d.MaxBytes
	}
	return l
}

// arrayCellBytes is what one array slot is charged against MaxBytes.
const arrayCellBytes = 16

// runtime holds the per-invocation budget counters.
type runtime struct {
	limits   Limits
	steps    int
	elements int
	depth    int
	bytes    int
	sizes    map[*element.Element]treeSize
}

func newRuntime(limits Limits) *runtime {
	return &runtime{limits: limits, sizes: make(map[*element.Element]treeSize)}
}

// treeSize is the expanded size of an element subtree. A subtree referenced
// from several parents counts once per reference.
type treeSize struct {
	nodes int
	bytes int
}

func (rt *runtime) step(pos Pos) {
	rt.steps++
	if rt.steps > rt.limits.MaxSteps {
		throwf(pos, "step budget of %d exceeded", rt.limits.MaxSteps)
	}
}

func (rt *runtime) addElement(pos Pos) {
	rt.elements++
	if rt.elements > rt.limits.MaxElements {
		throwf(pos, "element budget of %d exceeded", rt.limits.MaxElements)
	}
}

func (rt *runtime) checkStringLen(pos Pos, n int) {
	if n > rt.limits.MaxStringLen {
		throwf(pos, "string longer than %d bytes", rt.limits.MaxStringLen)
	}
}

func (rt *runtime) checkLen(pos Pos, n int) {
	if n > rt.limits.MaxArrayLen {
		throwf(pos, "array longer than %d elements", rt.limits.MaxArrayLen)
	}
}

// charge counts n freshly allocated bytes against the invocation budget.
func (rt *runtime) charge(pos Pos, n int) {
	rt.bytes += n
	if rt.bytes > rt.limits.MaxBytes {
		throwf(pos, "memory budget of %d bytes exceeded", rt.limits.MaxBytes)
	}
}

// chargeArray accounts for a newly built array of n slots.
func (rt *runtime) chargeArray(pos Pos, n int) {
	rt.checkLen(pos, n)
	rt.charge(pos, n*arrayCellBytes)
}

// str converts v to a string. Arrays and elements are flattened into at
// most MaxStringLen bytes.
func (rt *runtime) str(pos Pos, v any) string {
	switch v.(type) {
	case []any, *element.Element:
	default:
		return primitiveString(v)
	}
	w := boundedWriter{limit: rt.limits.MaxStringLen}
	if !w.value(v) {
		throwf(pos, "string longer than %d bytes", rt.limits.MaxStringLen)
	}
	rt.charge(pos, w.b.Len())
	return w.b.String()
}

// concat joins strings after checking the result size.
func (rt *runtime) concat(pos Pos, parts ...string) string {
	n := 0
	for _, p := range parts {
		n += len(p)
		rt.checkStringLen(pos, n)
	}
	rt.charge(pos, n)
	return strings.Join(parts, "")
}

// sizeOf returns the expanded size of el, memoized per element.
func (rt *runtime) sizeOf(el *element.Element) treeSize {
	if s, ok := rt.sizes[el]; ok {
		return s
	}
	s := treeSize{nodes: 1, bytes: len(el.Tag) + len(el.Text)}
	for k, v := range el.Attrs {
		s.bytes += len(k) + len(v)
	}
	for _, c := range el.Children {
		cs := rt.sizeOf(c)
		s.nodes += cs.nodes
		s.bytes += cs.bytes
	}
	rt.sizes[el] = s
	return s
}

// grow adds a child's size to a running total and enforces the output
// limits on the result.
func (rt *runtime) grow(pos Pos, total *treeSize, child treeSize) {
	total.nodes += child.nodes
	total.bytes += child.bytes
	if total.nodes > rt.limits.MaxElements {
		throwf(pos, "element budget of %d exceeded", rt.limits.MaxElements)
	}
	if total.bytes > rt.limits.MaxBytes {
		throwf(pos, "output larger than %d bytes", rt.limits.MaxBytes)
	}
}

// track registers a newly built element and checks its expanded size.
func (rt *runtime) track(pos Pos, el *element.Element) *element.Element {
	var total treeSize
	rt.grow(pos, &total, rt.sizeOf(el))
	return el
}

// callable is implemented by closures and builtin functions.
type callable interface {
	call(rt *runtime, pos Pos, args []any) any
}

type closure struct {
	fn  *compiledFunc
	env *env
}

func (c *closure) call(rt *runtime, pos Pos, args []any) any {
	rt.step(pos)
	rt.depth++
	if rt.depth > rt.limits.MaxDepth {
		throwf(pos, "maximum call depth of %d exceeded", rt.limits.MaxDepth)
	}
	fr := &frame{env: &env{slots: make([]any, c.fn.nslots), parent: c.env}, rt: rt}
	for i, bind := range c.fn.params {
		var v any
		if i < len(args) {
			v = args[i]
		}
		bind(fr, v)
	}
	v, _ := c.fn.body(fr)
	rt.depth--
	return v
}

type builtinFn struct {
	name string
	fn   func(rt *runtime, pos Pos, args []any) any
}

func (b *builtinFn) call(rt *runtime, pos Pos, args []any) any {
	rt.step(pos)
	return b.fn(rt, pos, args)
}

func callValue(rt *runtime, pos Pos, fn any, args []any) any {
	c, ok := fn.(callable)
	if !ok {
		throwf(pos, "%s is not a function", typeOf(fn))
	}
	return c.call(rt, pos, args)
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func getMember(rt *runtime, pos Pos, obj, key any) any {
	switch o := obj.(type) {
	case nil:
		throwf(pos, "cannot read property %q of null", rt.str(pos, key))
	case map[string]any:
		return o[rt.str(pos, key)]
	case []any:
		if s, ok := key.(string); ok && s == "length" {
			return float64(len(o))
		}
		if i, ok := index(key, len(o)); ok {
			return o[i]
		}
	case string:
		if s, ok := key.(string); ok && s == "length" {
			return stringLen(o)
		}
		if i, ok := index(key, utf8.RuneCountInString(o)); ok {
			return runeSlice(o, i, i+1)
		}
	}
	return nil
}

func index(key any, n int) (int, bool) {
	f, ok := key.(float64)
	if !ok || f != math.Trunc(f) || f < 0 || f >= float64(n) {
		return 0, false
	}
	return int(f), true
}

func callMethod(rt *runtime, pos Pos, obj any, name string, args []any) any {
	switch o := obj.(type) {
	case nil:
		throwf(pos, "cannot read property %q of null", name)
	case map[string]any:
		if fn, ok := o[name]; ok {
			return callValue(rt, pos, fn, args)
		}
	case []any:
		return arrayMethod(rt, pos, o, name, args)
	case string:
		return stringMethod(rt, pos, o, name, args)
	case float64:
		switch name {
		case "toFixed":
			digits := int(toNumber(arg(args, 0)))
			if digits < 0 || digits > 20 {
				throwf(pos, "toFixed digits must be between 0 and 20")
			}
			return strconvFixed(o, digits)
		case "toString":
			return formatNumber(o)
		}
	}
	throwf(pos, "%s.%s is not a function", typeOf(obj), name)
	return nil
}

func arrayMethod(rt *runtime, pos Pos, arr []any, name string, args []any) any {
	switch name {
	case "map":
		fn := arg(args, 0)
		rt.chargeArray(pos, len(arr))
		out := make([]any, len(arr))
		for i, v := range arr {
			rt.step(pos)
			out[i] = callValue(rt, pos, fn, []any{v, float64(i)})
		}
		return out
	case "filter":
		fn := arg(args, 0)
		rt.chargeArray(pos, len(arr))
		out := make([]any, 0, len(arr))
		for i, v := range arr {
			rt.step(pos)
			if truthy(callValue(rt, pos, fn, []any{v, float64(i)})) {
				out = append(out, v)
			}
		}
		return out
	case "find", "findIndex", "some", "every":
		fn := arg(args, 0)
		for i, v := range arr {
			rt.step(pos)
			hit := truthy(callValue(rt, pos, fn, []any{v, float64(i)}))
			switch {
			case name == "find" && hit:
				return v
			case name == "findIndex" && hit:
				return float64(i)
			case name == "some" && hit:
				return true
			case name == "every" && !hit:
				return false
			}
		}
		switch name {
		case "findIndex":
			return float64(-1)
		case "some":
			return false
		case "every":
			return true
		}
		return nil
	case "join":
		sep := ","
		if s := arg(args, 0); s != nil {
			sep = rt.str(pos, s)
		}
		w := boundedWriter{limit: rt.limits.MaxStringLen}
		if !w.join(arr, sep) {
			throwf(pos, "string longer than %d bytes", rt.limits.MaxStringLen)
		}
		rt.charge(pos, w.b.Len())
		return w.b.String()
	case "includes":
		for _, v := range arr {
			if strictEqual(v, arg(args, 0)) {
				return true
			}
		}
		return false
	case "indexOf":
		for i, v := range arr {
			if strictEqual(v, arg(args, 0)) {
				return float64(i)
			}
		}
		return float64(-1)
	case "slice":
		start, end := sliceBounds(len(arr), args)
		rt.chargeArray(pos, end-start)
		return append([]any(nil), arr[start:end]...)
	case "concat":
		n := len(arr)
		for _, a := range args {
			if more, ok := a.([]any); ok {
				n += len(more)
			} else {
				n++
			}
			rt.checkLen(pos, n)
		}
		rt.chargeArray(pos, n)
		out := make([]any, 0, n)
		out = append(out, arr...)
		for _, a := range args {
			if more, ok := a.([]any); ok {
				out = append(out, more...)
			} else {
				out = append(out, a)
			}
		}
		return out
	case "reverse":
		rt.chargeArray(pos, len(arr))
		out := make([]any, len(arr))
		for i, v := range arr {
			out[len(arr)-1-i] = v
		}
		return out
	}
	throwf(pos, "array.%s is not a function", name)
	return nil
}

func stringMethod(rt *runtime, pos Pos, s, name string, args []any) any {
	switch name {
	case "toUpperCase", "toLowerCase":
		out := strings.ToLower(s)
		if name == "toUpperCase" {
			out = strings.ToUpper(s)
		}
		rt.checkStringLen(pos, len(out))
		rt.charge(pos, len(out))
		return out
	case "trim":
		return strings.TrimSpace(s)
	case "includes":
		return strings.Contains(s, rt.str(pos, arg(args, 0)))
	case "startsWith":
		return strings.HasPrefix(s, rt.str(pos, arg(args, 0)))
	case "endsWith":
		return strings.HasSuffix(s, rt.str(pos, arg(args, 0)))
	case "indexOf":
		i := strings.Index(s, rt.str(pos, arg(args, 0)))
		if i < 0 {
			return float64(-1)
		}
		return stringLen(s[:i])
	case "slice":
		start, end := sliceBounds(utf8.RuneCountInString(s), args)
		return runeSlice(s, start, end)
	case "charAt":
		if i, ok := index(toNumber(arg(args, 0)), utf8.RuneCountInString(s)); ok {
			return runeSlice(s, i, i+1)
		}
		return ""
	case "split":
		sep := arg(args, 0)
		if sep == nil {
			return []any{s}
		}
		sepStr := rt.str(pos, sep)
		n := utf8.RuneCountInString(s)
		if sepStr != "" {
			n = strings.Count(s, sepStr) + 1
		}
		rt.chargeArray(pos, n)
		parts := strings.Split(s, sepStr)
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out
	case "replace", "replaceAll":
		old, repl := rt.str(pos, arg(args, 0)), rt.str(pos, arg(args, 1))
		n := strings.Count(s, old)
		if name == "replace" {
			n = min(n, 1)
		}
		size := len(s) + n*(len(repl)-len(old))
		rt.checkStringLen(pos, size)
		rt.charge(pos, size)
		if name == "replace" {
			return strings.Replace(s, old, repl, 1)
		}
		return strings.ReplaceAll(s, old, repl)
	case "toString":
		return s
	}
	throwf(pos, "string.%s is not a function", name)
	return nil
}

// runeSlice returns runes [start, end) of s without decoding the whole
// string into a rune slice.
func runeSlice(s string, start, end int) string {
	from, to := len(s), len(s)
	i := 0
	for off := range s {
		if i == start {
			from = off
		}
		if i == end {
			to = off
			break
		}
		i++
	}
	if from > to {
		return ""
	}
	return s[from:to]
}

// sliceBounds applies slice(start, end) argument rules, including negative
// offsets from the end.
func sliceBounds(n int, args []any) (int, int) {
	clamp := func(v any, def int) int {
		if v == nil {
			return def
		}
		f := toNumber(v)
		if math.IsNaN(f) {
			return 0
		}
		i := int(math.Trunc(f))
		if i < 0 {
			i += n
		}
		return max(0, min(i, n))
	}
	start := clamp(arg(args, 0), 0)
	end := clamp(arg(args, 1), n)
	if end < start {
		end = start
	}
	return start, end
}

// toElement converts a component's return value into a render-tree node.
func toElement(rt *runtime, pos Pos, v any) *element.Element {
	switch v := v.(type) {
	case nil, bool:
		return element.Fragment()
	case *element.Element:
		return v
	case string:
		return rt.track(pos, element.Text(v))
	case float64:
		return rt.track(pos, element.Text(formatNumber(v)))
	case []any:
		var children []*element.Element
		var size treeSize
		appendChildren(rt, pos, &children, &size, v)
		return rt.track(pos, element.Fragment(children...))
	}
	throwf(pos, "component must return an element, got %s", typeOf(v))
	return nil
}
