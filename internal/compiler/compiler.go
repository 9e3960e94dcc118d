// Package compiler turns component source text into sandboxed render
// functions.
//
// Component source is written in a small JavaScript-like language:
//
//	export default function Hero({ title, items = [] }) {
//	  return h("section", { className: "hero" },
//	    h("h1", null, title),
//	    h("ul", null, items.map((item) => h("li", null, item))))
//	}
//
// The only names visible to component code are its own bindings and the
// builtins: h, text, fragment, String, Number, Boolean, upper, lower, len,
// join, Math, Object and Array. Evaluation is bounded by Limits.
package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/livetemplate/blockpress/internal/cache"
	"github.com/livetemplate/blockpress/internal/element"
)

// Component is a compiled component source.
type Component struct {
	Key      string
	CodeHash string
	prog     *compiledProgram
	limits   Limits
	offset   sourceOffset
}

// Render invokes the component. Runtime failures, including panics raised
// while evaluating, are returned as *RuntimeError.
func (c *Component) Render(props map[string]any) (el *element.Element, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		el = nil
		if re, ok := r.(*RuntimeError); ok {
			shifted := *re
			shifted.Pos = c.offset.apply(re.Pos)
			err = &shifted
			return
		}
		err = &RuntimeError{Message: fmt.Sprintf("internal error: %v", r)}
	}()

	rt := newRuntime(c.limits)
	fr := &frame{env: &env{slots: make([]any, c.prog.nslots)}, rt: rt}
	for _, init := range c.prog.init {
		init(fr)
	}
	export := c.prog.export(fr)
	if _, ok := export.(callable); !ok {
		throwf(c.prog.pos, "default export is not a function")
	}

	input, _ := fromGo(props).(map[string]any)
	if input == nil {
		input = map[string]any{}
	}
	return toElement(rt, c.prog.pos, callValue(rt, c.prog.pos, export, []any{input})), nil
}

// Options configure a Compiler.
type Options struct {
	Limits         Limits
	MaxSourceBytes int
	CacheTTL       time.Duration // zero keeps compiled components until invalidated
	Debug          bool
}

// Compiler compiles component sources and caches the result per key.
// Compile failures are cached too, so a broken source is parsed once.
type Compiler struct {
	opts     Options
	cache    *cache.Memory[*Component]
	failures *cache.Memory[failure]
}

// failure is a cached compile error for one version of a source.
type failure struct {
	hash string
	err  *CompileError
}

// New creates a compiler with its own cache.
func New(opts Options) *Compiler {
	opts.Limits = opts.Limits.withDefaults()
	if opts.MaxSourceBytes <= 0 {
		opts.MaxSourceBytes = 64 * 1024
	}
	return &Compiler{opts: opts, cache: cache.New[*Component](0), failures: cache.New[failure](0)}
}

// HashCode returns the cache fingerprint of a source text.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:8])
}

// Check validates and compiles code without caching it.
func (c *Compiler) Check(code string) error {
	_, err := c.compile("", code)
	return err
}

// Compile returns the compiled component for key. The cached entry is reused
// while the code is unchanged; a different code string for the same key is
// recompiled and replaces the entry.
func (c *Compiler) Compile(key, code string) (*Component, error) {
	hash := HashCode(code)
	if comp, ok := c.cache.Get(key); ok && comp.CodeHash == hash {
		return comp, nil
	}
	if f, ok := c.failures.Get(key); ok && f.hash == hash {
		return nil, f.err
	}
	comp, err := c.compile(key, code)
	if err != nil {
		if c.opts.Debug {
			log.Printf("[Compiler] %s: %v", key, err)
		}
		var ce *CompileError
		if errors.As(err, &ce) {
			c.cache.Invalidate(key)
			c.failures.Set(key, failure{hash: hash, err: ce}, c.opts.CacheTTL)
		}
		return nil, err
	}
	c.failures.Invalidate(key)
	c.cache.Set(key, comp, c.opts.CacheTTL)
	if c.opts.Debug {
		log.Printf("[Compiler] compiled %s (%s)", key, hash)
	}
	return comp, nil
}

// Invalidate drops the cached component for key.
func (c *Compiler) Invalidate(key string) {
	c.cache.Invalidate(key)
	c.failures.Invalidate(key)
}

// Cached reports the number of cached components.
func (c *Compiler) Cached() int {
	return c.cache.Len()
}

// Stats exposes cache counters.
func (c *Compiler) Stats() cache.Stats {
	return c.cache.Stats()
}

func (c *Compiler) compile(key, code string) (*Component, error) {
	if len(code) > c.opts.MaxSourceBytes {
		return nil, &CompileError{Stage: StageValidation,
			Message: fmt.Sprintf("source is %d bytes; the limit is %d", len(code), c.opts.MaxSourceBytes)}
	}
	if err := Validate(code); err != nil {
		return nil, err
	}
	body, leading := Normalize(code)
	off := offsetOf(code, body)
	prog, err := parse(body, leading)
	if err != nil {
		return nil, shiftPos(err, off)
	}
	cprog, err := compileProgram(prog)
	if err != nil {
		return nil, shiftPos(err, off)
	}
	return &Component{Key: key, CodeHash: HashCode(code), prog: cprog, limits: c.opts.Limits, offset: off}, nil
}

// sourceOffset describes the text stripped by Normalize so that positions in
// the normalized body can be reported against the original source.
type sourceOffset struct {
	lines int
	cols  int // added to positions on the first body line
}

func offsetOf(code, body string) sourceOffset {
	var off sourceOffset
	for _, r := range code[:len(code)-len(body)] {
		if r == '\n' {
			off.lines++
			off.cols = 0
		} else {
			off.cols++
		}
	}
	return off
}

func (o sourceOffset) apply(p Pos) Pos {
	if p.Line == 0 {
		return p
	}
	if p.Line == 1 {
		p.Col += o.cols
	}
	p.Line += o.lines
	return p
}

func shiftPos(err error, off sourceOffset) error {
	if ce, ok := err.(*CompileError); ok {
		shifted := *ce
		shifted.Pos = off.apply(ce.Pos)
		return &shifted
	}
	return err
}
