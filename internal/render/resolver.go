package render

import (
	"fmt"
	"log"
	"unicode/utf8"

	"github.com/livetemplate/blockpress/internal/compiler"
	"github.com/livetemplate/blockpress/internal/element"
	"github.com/livetemplate/blockpress/internal/registry"
)

// Status is the outcome of resolving one section.
type Status string

const (
	StatusOK           Status = "ok"
	StatusNotFound     Status = "not_found"
	StatusCompileError Status = "compile_error"
	StatusRuntimeError Status = "runtime_error"
)

// maxMessageRunes bounds the error message shown in a placeholder.
const maxMessageRunes = 200

// Definitions is the lookup surface of the component registry.
type Definitions interface {
	Lookup(key string) (registry.Definition, bool)
}

// Compiler compiles code-backed components.
type Compiler interface {
	Compile(key, code string) (*compiler.Component, error)
}

// Outcome is the result of Resolver.Resolve. Element is never nil: failures
// produce a placeholder.
type Outcome struct {
	Element *element.Element
	Status  Status
	Message string
}

// Resolver turns a component key and props into a render-tree. Both render
// modes use the same Resolver.
type Resolver struct {
	defs     Definitions
	compiler Compiler
	builtins map[string]BuiltinFunc
	debug    bool
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithDebug enables resolution logging.
func WithDebug(debug bool) ResolverOption {
	return func(r *Resolver) { r.debug = debug }
}

// WithBuiltin registers or replaces a Go renderer.
func WithBuiltin(key string, fn BuiltinFunc) ResolverOption {
	return func(r *Resolver) { r.builtins[key] = fn }
}

// NewResolver creates a resolver over defs. comp may be nil when no
// code-backed components are registered.
func NewResolver(defs Definitions, comp Compiler, opts ...ResolverOption) *Resolver {
	r := &Resolver{defs: defs, compiler: comp, builtins: Builtins()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve renders the component registered under key. Missing props are
// filled from the definition's defaults. Every failure is reported as a
// placeholder element with the matching status.
func (r *Resolver) Resolve(key string, props map[string]any) Outcome {
	def, ok := r.defs.Lookup(key)
	if !ok {
		return r.fail(key, StatusNotFound, fmt.Sprintf("unknown component %q", key))
	}
	input := def.Defaults()
	for k, v := range props {
		input[k] = v
	}

	if def.HasCode() {
		if r.compiler == nil {
			return r.fail(key, StatusCompileError, "no compiler configured")
		}
		comp, err := r.compile(key, def.Code)
		if err != nil {
			return r.fail(key, StatusCompileError, err.Error())
		}
		el, err := comp.Render(input)
		if err != nil {
			return r.fail(key, StatusRuntimeError, err.Error())
		}
		return Outcome{Element: el, Status: StatusOK}
	}

	fn, ok := r.builtins[key]
	if !ok {
		return r.fail(key, StatusNotFound, fmt.Sprintf("component %q has no renderer", key))
	}
	return r.builtin(key, fn, input)
}

// compile converts a panic inside the compiler into an error so that only
// the affected section fails.
func (r *Resolver) compile(key, code string) (comp *compiler.Component, err error) {
	defer func() {
		if p := recover(); p != nil {
			comp, err = nil, fmt.Errorf("internal error: %v", p)
		}
	}()
	return r.compiler.Compile(key, code)
}

func (r *Resolver) builtin(key string, fn BuiltinFunc, props map[string]any) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			out = r.fail(key, StatusRuntimeError, fmt.Sprintf("internal error: %v", p))
		}
	}()
	return Outcome{Element: fn(props), Status: StatusOK}
}

func (r *Resolver) fail(key string, status Status, msg string) Outcome {
	msg = truncate(msg, maxMessageRunes)
	if r.debug {
		log.Printf("[Render] Section %q: %s: %s", key, status, msg)
	}
	return Outcome{Element: Placeholder(key, status, msg), Status: status, Message: msg}
}

// Placeholder builds the element shown in place of a section that could not
// be rendered.
func Placeholder(key string, status Status, msg string) *element.Element {
	var title string
	switch status {
	case StatusNotFound:
		title = fmt.Sprintf("Component %q not found", key)
	case StatusCompileError:
		title = fmt.Sprintf("Component %q failed to compile", key)
	default:
		title = fmt.Sprintf("Component %q failed to render", key)
	}
	return element.New("div", map[string]string{
		"class":          "bp-placeholder bp-placeholder-" + string(status),
		"data-status":    string(status),
		"data-component": key,
		"role":           "alert",
	},
		element.New("strong", nil, element.Text(title)),
		element.New("p", nil, element.Text(msg)),
	)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}
