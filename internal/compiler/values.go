package compiler

import (
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/livetemplate/blockpress/internal/element"
	"github.com/livetemplate/blockpress/internal/tree"
)

// Values inside the sandbox are nil (null and undefined), bool, float64,
// string, []any, map[string]any, *element.Element and callables.

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', -1, 64)
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

// primitiveString converts a scalar value. Arrays and elements are flattened
// by runtime.str, which bounds the result.
func primitiveString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return formatNumber(v)
	case string:
		return v
	case map[string]any:
		return "[object Object]"
	case callable:
		return "function"
	default:
		return ""
	}
}

// boundedWriter builds a string and stops once it would exceed limit bytes.
// Nothing past the limit is ever allocated.
type boundedWriter struct {
	b     strings.Builder
	limit int
}

func (w *boundedWriter) write(s string) bool {
	if w.b.Len()+len(s) > w.limit {
		return false
	}
	w.b.WriteString(s)
	return true
}

// value writes v the way string conversion spells it: arrays joined with
// commas, elements as their text content.
func (w *boundedWriter) value(v any) bool {
	switch v := v.(type) {
	case []any:
		return w.join(v, ",")
	case *element.Element:
		return w.text(v)
	default:
		return w.write(primitiveString(v))
	}
}

func (w *boundedWriter) join(arr []any, sep string) bool {
	for i, e := range arr {
		if i > 0 && !w.write(sep) {
			return false
		}
		if e == nil {
			continue
		}
		if !w.value(e) {
			return false
		}
	}
	return true
}

func (w *boundedWriter) text(el *element.Element) bool {
	if el == nil {
		return true
	}
	if el.Kind == element.KindText {
		return w.write(el.Text)
	}
	for _, c := range el.Children {
		if !w.text(c) {
			return false
		}
	}
	return true
}

func toNumber(v any) float64 {
	switch v := v.(type) {
	case nil:
		return 0
	case bool:
		if v {
			return 1
		}
		return 0
	case float64:
		return v
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0 && !math.IsNaN(v)
	case string:
		return v != ""
	default:
		return true
	}
}

func typeOf(v any) string {
	switch v.(type) {
	case nil:
		return "undefined"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case callable:
		return "function"
	default:
		return "object"
	}
}

// strictEqual compares primitives by value and composites by identity.
func strictEqual(a, b any) bool {
	switch a := a.(type) {
	case nil:
		return b == nil
	case bool, float64, string:
		return a == b
	case []any:
		bs, ok := b.([]any)
		return ok && len(a) == len(bs) && reflect.ValueOf(a).Pointer() == reflect.ValueOf(bs).Pointer()
	case map[string]any:
		bm, ok := b.(map[string]any)
		return ok && reflect.ValueOf(a).Pointer() == reflect.ValueOf(bm).Pointer()
	default:
		return a == b
	}
}

func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch a.(type) {
	case float64, string, bool:
		switch b.(type) {
		case float64, string, bool:
			if _, as := a.(string); as {
				if _, bs := b.(string); bs {
					return a == b
				}
			}
			return toNumber(a) == toNumber(b)
		}
	}
	return strictEqual(a, b)
}

func compare(op string, a, b any) bool {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			switch op {
			case "<":
				return as < bs
			case "<=":
				return as <= bs
			case ">":
				return as > bs
			default:
				return as >= bs
			}
		}
	}
	x, y := toNumber(a), toNumber(b)
	switch op {
	case "<":
		return x < y
	case "<=":
		return x <= y
	case ">":
		return x > y
	default:
		return x >= y
	}
}

func stringLen(s string) float64 {
	return float64(utf8.RuneCountInString(s))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// fromGo converts host values into sandbox values. Elements pass through;
// everything else is normalized to the JSON value space.
func fromGo(v any) any {
	switch v := v.(type) {
	case nil, bool, float64, string, *element.Element:
		return v
	case []*element.Element:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = fromGo(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = fromGo(e)
		}
		return out
	default:
		return tree.NormalizeValue(v)
	}
}

func strconvFixed(f float64, digits int) string {
	return strconv.FormatFloat(f, 'f', digits, 64)
}
