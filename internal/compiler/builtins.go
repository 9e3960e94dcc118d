package compiler

import (
	"math"
	"strings"
	"unicode"

	"github.com/livetemplate/blockpress/internal/element"
	"github.com/livetemplate/blockpress/internal/security"
)

// builtins is the complete set of names visible to component code besides
// its own bindings. Everything here is pure: no I/O, clock or process state.
var builtins map[string]any

func init() {
	fns := map[string]func(rt *runtime, pos Pos, args []any) any{
		"h":        builtinH,
		"text":     builtinText,
		"fragment": builtinFragment,
		"String": func(rt *runtime, pos Pos, args []any) any {
			return rt.str(pos, arg(args, 0))
		},
		"Number": func(_ *runtime, _ Pos, args []any) any {
			return toNumber(arg(args, 0))
		},
		"Boolean": func(_ *runtime, _ Pos, args []any) any {
			return truthy(arg(args, 0))
		},
		"upper": func(rt *runtime, pos Pos, args []any) any {
			return stringMethod(rt, pos, rt.str(pos, arg(args, 0)), "toUpperCase", nil)
		},
		"lower": func(rt *runtime, pos Pos, args []any) any {
			return stringMethod(rt, pos, rt.str(pos, arg(args, 0)), "toLowerCase", nil)
		},
		"len": func(_ *runtime, _ Pos, args []any) any {
			switch v := arg(args, 0).(type) {
			case string:
				return stringLen(v)
			case []any:
				return float64(len(v))
			case map[string]any:
				return float64(len(v))
			}
			return float64(0)
		},
		"join": func(rt *runtime, pos Pos, args []any) any {
			arr, _ := arg(args, 0).([]any)
			return arrayMethod(rt, pos, arr, "join", args[min(1, len(args)):])
		},
	}

	builtins = make(map[string]any, len(fns)+3)
	for name, fn := range fns {
		builtins[name] = &builtinFn{name: name, fn: fn}
	}
	builtins["Math"] = mathObject()
	builtins["Object"] = objectObject()
	builtins["Array"] = map[string]any{
		"isArray": &builtinFn{name: "Array.isArray", fn: func(_ *runtime, _ Pos, args []any) any {
			_, ok := arg(args, 0).([]any)
			return ok
		}},
	}
}

func mathObject() map[string]any {
	unary := func(name string, f func(float64) float64) *builtinFn {
		return &builtinFn{name: "Math." + name, fn: func(_ *runtime, _ Pos, args []any) any {
			return f(toNumber(arg(args, 0)))
		}}
	}
	fold := func(name string, init float64, f func(a, b float64) float64) *builtinFn {
		return &builtinFn{name: "Math." + name, fn: func(_ *runtime, _ Pos, args []any) any {
			acc := init
			for _, a := range args {
				acc = f(acc, toNumber(a))
			}
			return acc
		}}
	}
	return map[string]any{
		"abs":   unary("abs", math.Abs),
		"ceil":  unary("ceil", math.Ceil),
		"floor": unary("floor", math.Floor),
		"round": unary("round", func(f float64) float64 { return math.Floor(f + 0.5) }),
		"min":   fold("min", math.Inf(1), math.Min),
		"max":   fold("max", math.Inf(-1), math.Max),
		"PI":    math.Pi,
	}
}

func objectObject() map[string]any {
	return map[string]any{
		"keys": &builtinFn{name: "Object.keys", fn: func(_ *runtime, _ Pos, args []any) any {
			m, _ := arg(args, 0).(map[string]any)
			keys := sortedKeys(m)
			out := make([]any, len(keys))
			for i, k := range keys {
				out[i] = k
			}
			return out
		}},
		"values": &builtinFn{name: "Object.values", fn: func(_ *runtime, _ Pos, args []any) any {
			m, _ := arg(args, 0).(map[string]any)
			keys := sortedKeys(m)
			out := make([]any, len(keys))
			for i, k := range keys {
				out[i] = m[k]
			}
			return out
		}},
		"entries": &builtinFn{name: "Object.entries", fn: func(_ *runtime, _ Pos, args []any) any {
			m, _ := arg(args, 0).(map[string]any)
			keys := sortedKeys(m)
			out := make([]any, len(keys))
			for i, k := range keys {
				out[i] = []any{k, m[k]}
			}
			return out
		}},
	}
}

// builtinH constructs an element: h(tag, attrs, ...children). When tag is a
// function it is called as a nested component with attrs as its props and
// the children under props.children.
func builtinH(rt *runtime, pos Pos, args []any) any {
	if len(args) == 0 {
		throwf(pos, "h requires a tag")
	}
	var children []*element.Element
	var size treeSize
	appendChildren(rt, pos, &children, &size, args[min(2, len(args)):])

	switch tag := args[0].(type) {
	case callable:
		props := map[string]any{}
		if attrs, ok := arg(args, 1).(map[string]any); ok {
			for k, v := range attrs {
				props[k] = v
			}
		}
		if len(children) > 0 {
			props["children"] = element.Fragment(children...)
		}
		return toElement(rt, pos, tag.call(rt, pos, []any{props}))
	case string:
		tag = strings.ToLower(strings.TrimSpace(tag))
		if err := security.ValidateTag(tag); err != nil {
			throwf(pos, "%v", err)
		}
		rt.addElement(pos)
		el := element.New(tag, buildAttrs(rt, pos, arg(args, 1)), children...)
		return rt.track(pos, el)
	default:
		throwf(pos, "h tag must be a string or a component function, got %s", typeOf(args[0]))
	}
	return nil
}

func builtinText(rt *runtime, pos Pos, args []any) any {
	s := rt.str(pos, arg(args, 0))
	rt.addElement(pos)
	return rt.track(pos, element.Text(s))
}

func builtinFragment(rt *runtime, pos Pos, args []any) any {
	var children []*element.Element
	var size treeSize
	appendChildren(rt, pos, &children, &size, args)
	rt.addElement(pos)
	return rt.track(pos, element.Fragment(children...))
}

// appendChildren flattens child values: arrays are spread, null and booleans
// are skipped and primitives become text nodes. size accumulates the
// expanded size of everything appended so far.
func appendChildren(rt *runtime, pos Pos, out *[]*element.Element, size *treeSize, values []any) {
	for _, v := range values {
		switch v := v.(type) {
		case nil, bool:
		case *element.Element:
			rt.grow(pos, size, rt.sizeOf(v))
			*out = append(*out, v)
		case string:
			rt.addElement(pos)
			rt.grow(pos, size, treeSize{nodes: 1, bytes: len(v)})
			*out = append(*out, element.Text(v))
		case float64:
			rt.addElement(pos)
			text := formatNumber(v)
			rt.grow(pos, size, treeSize{nodes: 1, bytes: len(text)})
			*out = append(*out, element.Text(text))
		case []any:
			appendChildren(rt, pos, out, size, v)
		default:
			throwf(pos, "%s is not a valid element child", typeOf(v))
		}
	}
}

// attrName maps DOM property spellings to attribute names.
func attrName(key string) string {
	switch key {
	case "className":
		return "class"
	case "htmlFor":
		return "for"
	}
	return key
}

func buildAttrs(rt *runtime, pos Pos, v any) map[string]string {
	if v == nil {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		throwf(pos, "h attributes must be an object or null, got %s", typeOf(v))
	}
	attrs := make(map[string]string, len(m))
	for key, val := range m {
		if key == "key" || key == "children" {
			continue
		}
		name := attrName(key)
		var s string
		switch val := val.(type) {
		case nil:
			continue
		case bool:
			if !val {
				continue
			}
		case string:
			s = val
		case float64:
			s = formatNumber(val)
		case []any:
			w := boundedWriter{limit: rt.limits.MaxStringLen}
			for _, p := range val {
				if !truthy(p) {
					continue
				}
				if (w.b.Len() > 0 && !w.write(" ")) || !w.value(p) {
					throwf(pos, "attribute %q longer than %d bytes", key, rt.limits.MaxStringLen)
				}
			}
			rt.charge(pos, w.b.Len())
			s = w.b.String()
		case map[string]any:
			if name != "style" {
				throwf(pos, "attribute %q must not be an object", key)
			}
			s = styleString(rt, pos, val)
		default:
			throwf(pos, "attribute %q has unsupported value type %s", key, typeOf(val))
		}
		if err := security.ValidateAttribute(name, s); err != nil {
			throwf(pos, "%v", err)
		}
		attrs[name] = s
	}
	return attrs
}

// styleString renders a style object, converting camelCase properties to
// kebab-case.
func styleString(rt *runtime, pos Pos, m map[string]any) string {
	var b strings.Builder
	for _, k := range sortedKeys(m) {
		v := m[k]
		if v == nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		for _, r := range k {
			if unicode.IsUpper(r) {
				b.WriteByte('-')
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(r)
			}
		}
		b.WriteString(": ")
		b.WriteString(rt.str(pos, v))
		b.WriteString(";")
		rt.checkStringLen(pos, b.Len())
	}
	rt.charge(pos, b.Len())
	return b.String()
}
