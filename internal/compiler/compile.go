package compiler

import (
	"math"

	"github.com/livetemplate/blockpress/internal/security"
)

// The AST is compiled into Go closures. Names are resolved at compile time to
// (function depth, slot) pairs, so evaluation never looks anything up by name
// and no identifier can reach anything outside the builtin table.

type env struct {
	slots  []any
	parent *env
}

type frame struct {
	env *env
	rt  *runtime
}

type (
	evalFn func(fr *frame) any
	execFn func(fr *frame) (any, bool)
)

type binding struct {
	slot     int
	constant bool
}

// fnScope tracks the bindings of one function body at compile time.
type fnScope struct {
	parent *fnScope
	blocks []map[string]*binding
	nslots int
}

type compiler struct {
	fn *fnScope
}

func (cp *compiler) pushFn() {
	cp.fn = &fnScope{parent: cp.fn, blocks: []map[string]*binding{{}}}
}

func (cp *compiler) popFn() *fnScope {
	s := cp.fn
	cp.fn = s.parent
	return s
}

func (cp *compiler) pushBlock() {
	cp.fn.blocks = append(cp.fn.blocks, map[string]*binding{})
}

func (cp *compiler) popBlock() {
	cp.fn.blocks = cp.fn.blocks[:len(cp.fn.blocks)-1]
}

func (cp *compiler) declare(pos Pos, name string, constant bool) *binding {
	block := cp.fn.blocks[len(cp.fn.blocks)-1]
	if _, exists := block[name]; exists {
		errorf(StageCompile, pos, "%q is already declared", name)
	}
	b := &binding{slot: cp.fn.nslots, constant: constant}
	cp.fn.nslots++
	block[name] = b
	return b
}

// resolve finds name in the enclosing scopes and returns the number of
// function boundaries crossed.
func (cp *compiler) resolve(name string) (*binding, int, bool) {
	depth := 0
	for s := cp.fn; s != nil; s = s.parent {
		for i := len(s.blocks) - 1; i >= 0; i-- {
			if b, ok := s.blocks[i][name]; ok {
				return b, depth, true
			}
		}
		depth++
	}
	return nil, 0, false
}

func envAt(e *env, depth int) *env {
	for ; depth > 0; depth-- {
		e = e.parent
	}
	return e
}

// compiledProgram is the executable form of a component source.
type compiledProgram struct {
	nslots int
	init   []execFn
	export evalFn
	pos    Pos
}

func compileProgram(prog *program) (cprog *compiledProgram, err error) {
	defer recoverCompileError(&err)
	cp := &compiler{}
	cp.pushFn()

	// Top-level names are hoisted so that the exported function may use
	// helpers declared after it.
	for _, d := range prog.decls {
		switch d := d.(type) {
		case *funcDecl:
			cp.declare(d.pos, d.fn.name, true)
		case *declStmt:
			cp.declarePattern(d.target, d.constant)
		}
	}

	cprog = &compiledProgram{pos: prog.export.position()}
	for _, d := range prog.decls {
		switch d := d.(type) {
		case *funcDecl:
			b, _, _ := cp.resolve(d.fn.name)
			fn := cp.function(d.fn)
			slot := b.slot
			cprog.init = append(cprog.init, func(fr *frame) (any, bool) {
				fr.env.slots[slot] = &closure{fn: fn, env: fr.env}
				return nil, false
			})
		case *declStmt:
			cprog.init = append(cprog.init, cp.declInit(d, false))
		}
	}
	cprog.export = cp.expr(prog.export)
	cprog.nslots = cp.popFn().nslots
	return cprog, nil
}

func (cp *compiler) declarePattern(pat pattern, constant bool) {
	if pat.fields == nil {
		cp.declare(pat.pos, pat.name, constant)
		return
	}
	for _, f := range pat.fields {
		cp.declarePattern(f.target, constant)
	}
}

// bindPattern compiles a binder storing a value into already declared slots.
func (cp *compiler) bindPattern(pat pattern) func(fr *frame, v any) {
	var def evalFn
	if pat.def != nil {
		def = cp.expr(pat.def)
	}
	withDefault := func(fr *frame, v any) any {
		if v == nil && def != nil {
			return def(fr)
		}
		return v
	}

	if pat.fields == nil {
		b, _, _ := cp.resolve(pat.name)
		slot := b.slot
		return func(fr *frame, v any) {
			fr.env.slots[slot] = withDefault(fr, v)
		}
	}

	type fieldBinder struct {
		key  string
		bind func(*frame, any)
	}
	fields := make([]fieldBinder, len(pat.fields))
	for i, f := range pat.fields {
		fields[i] = fieldBinder{key: f.key, bind: cp.bindPattern(f.target)}
	}
	pos := pat.pos
	return func(fr *frame, v any) {
		v = withDefault(fr, v)
		obj, ok := v.(map[string]any)
		if !ok {
			if v == nil {
				throwf(pos, "cannot destructure %s", "null")
			}
			obj = nil
		}
		for _, f := range fields {
			f.bind(fr, obj[f.key])
		}
	}
}

// declInit compiles the initializer of a declaration. Inside function bodies
// the names are declared after the initializer is compiled, so an
// initializer cannot refer to the binding it defines.
func (cp *compiler) declInit(d *declStmt, declare bool) execFn {
	var init evalFn
	if d.init != nil {
		init = cp.expr(d.init)
	}
	if declare {
		cp.declarePattern(d.target, d.constant)
	}
	bind := cp.bindPattern(d.target)
	pos := d.pos
	return func(fr *frame) (any, bool) {
		fr.rt.step(pos)
		var v any
		if init != nil {
			v = init(fr)
		}
		bind(fr, v)
		return nil, false
	}
}

// compiledFunc is the compiled form of a function or arrow expression.
type compiledFunc struct {
	name   string
	pos    Pos
	nslots int
	params []func(*frame, any)
	body   execFn
}

func (cp *compiler) function(fe *funcExpr) *compiledFunc {
	cp.pushFn()
	fn := &compiledFunc{name: fe.name, pos: fe.pos}
	for _, p := range fe.params {
		// Defaults may refer to earlier parameters only.
		var def evalFn
		if p.def != nil {
			def = cp.expr(p.def)
		}
		noDefault := p
		noDefault.def = nil
		cp.declarePattern(noDefault, false)
		bind := cp.bindPattern(noDefault)
		fn.params = append(fn.params, func(fr *frame, v any) {
			if v == nil && def != nil {
				v = def(fr)
			}
			bind(fr, v)
		})
	}
	if fe.result != nil {
		result := cp.expr(fe.result)
		fn.body = func(fr *frame) (any, bool) { return result(fr), true }
	} else {
		fn.body = cp.block(fe.body)
	}
	fn.nslots = cp.popFn().nslots
	return fn
}

func (cp *compiler) block(body []stmt) execFn {
	cp.pushBlock()
	defer cp.popBlock()
	stmts := make([]execFn, len(body))
	for i, s := range body {
		stmts[i] = cp.stmt(s)
	}
	return func(fr *frame) (any, bool) {
		for _, s := range stmts {
			if v, returned := s(fr); returned {
				return v, true
			}
		}
		return nil, false
	}
}

func (cp *compiler) stmt(s stmt) execFn {
	switch s := s.(type) {
	case *declStmt:
		return cp.declInit(s, true)

	case *assignStmt:
		b, depth, ok := cp.resolve(s.name)
		if !ok {
			errorf(StageCompile, s.pos, "assignment to undeclared %q", s.name)
		}
		if b.constant {
			errorf(StageCompile, s.pos, "assignment to constant %q", s.name)
		}
		value := cp.expr(s.value)
		slot, op, pos := b.slot, s.op, s.pos
		return func(fr *frame) (any, bool) {
			fr.rt.step(pos)
			e := envAt(fr.env, depth)
			v := value(fr)
			switch op {
			case "+=":
				v = add(fr.rt, pos, e.slots[slot], v)
			case "-=":
				v = toNumber(e.slots[slot]) - toNumber(v)
			}
			e.slots[slot] = v
			return nil, false
		}

	case *ifStmt:
		cond := cp.expr(s.cond)
		then := cp.block(s.then)
		var els execFn
		if s.els != nil {
			els = cp.block(s.els)
		}
		pos := s.pos
		return func(fr *frame) (any, bool) {
			fr.rt.step(pos)
			if truthy(cond(fr)) {
				return then(fr)
			}
			if els != nil {
				return els(fr)
			}
			return nil, false
		}

	case *returnStmt:
		if s.value == nil {
			return func(*frame) (any, bool) { return nil, true }
		}
		value := cp.expr(s.value)
		return func(fr *frame) (any, bool) { return value(fr), true }

	case *blockStmt:
		return cp.block(s.body)

	case *exprStmt:
		x := cp.expr(s.x)
		pos := s.pos
		return func(fr *frame) (any, bool) {
			fr.rt.step(pos)
			x(fr)
			return nil, false
		}
	}
	errorf(StageCompile, s.position(), "unsupported statement")
	return nil
}

func (cp *compiler) exprs(xs []expr) []evalFn {
	out := make([]evalFn, len(xs))
	for i, x := range xs {
		out[i] = cp.expr(x)
	}
	return out
}

func (cp *compiler) expr(x expr) evalFn {
	switch x := x.(type) {
	case *numberLit:
		v := x.val
		return func(*frame) any { return v }
	case *stringLit:
		v := x.val
		return func(*frame) any { return v }
	case *boolLit:
		v := x.val
		return func(*frame) any { return v }
	case *nullLit:
		return func(*frame) any { return nil }

	case *identExpr:
		if b, depth, ok := cp.resolve(x.name); ok {
			slot := b.slot
			if depth == 0 {
				return func(fr *frame) any { return fr.env.slots[slot] }
			}
			return func(fr *frame) any { return envAt(fr.env, depth).slots[slot] }
		}
		if v, ok := builtins[x.name]; ok {
			return func(*frame) any { return v }
		}
		errorf(StageCompile, x.pos, "%q is not defined", x.name)

	case *arrayLit:
		return cp.arrayLiteral(x)

	case *objectLit:
		return cp.objectLiteral(x)

	case *spreadExpr:
		errorf(StageCompile, x.pos, "spread is only allowed in array literals, object literals and calls")

	case *memberExpr:
		obj := cp.expr(x.obj)
		key := cp.memberKey(x)
		pos, optional := x.pos, x.optional
		return func(fr *frame) any {
			o := obj(fr)
			if o == nil && optional {
				return nil
			}
			return getMember(fr.rt, pos, o, key(fr))
		}

	case *callExpr:
		return cp.call(x)

	case *unaryExpr:
		operand := cp.expr(x.x)
		switch x.op {
		case "!":
			return func(fr *frame) any { return !truthy(operand(fr)) }
		case "-":
			return func(fr *frame) any { return -toNumber(operand(fr)) }
		case "+":
			return func(fr *frame) any { return toNumber(operand(fr)) }
		case "typeof":
			return func(fr *frame) any { return typeOf(operand(fr)) }
		}

	case *binaryExpr:
		return cp.binary(x)

	case *condExpr:
		cond, then, els := cp.expr(x.cond), cp.expr(x.then), cp.expr(x.els)
		return func(fr *frame) any {
			if truthy(cond(fr)) {
				return then(fr)
			}
			return els(fr)
		}

	case *funcExpr:
		fn := cp.function(x)
		return func(fr *frame) any { return &closure{fn: fn, env: fr.env} }
	}
	errorf(StageCompile, x.position(), "unsupported expression")
	return nil
}

func (cp *compiler) memberKey(x *memberExpr) evalFn {
	if x.index == nil {
		name := x.name
		return func(*frame) any { return name }
	}
	return cp.expr(x.index)
}

func (cp *compiler) arrayLiteral(x *arrayLit) evalFn {
	type item struct {
		eval   evalFn
		spread bool
	}
	items := make([]item, len(x.elems))
	for i, e := range x.elems {
		if s, ok := e.(*spreadExpr); ok {
			items[i] = item{eval: cp.expr(s.x), spread: true}
		} else {
			items[i] = item{eval: cp.expr(e)}
		}
	}
	pos := x.pos
	return func(fr *frame) any {
		out := make([]any, 0, len(items))
		for _, it := range items {
			v := it.eval(fr)
			if !it.spread {
				out = append(out, v)
				continue
			}
			arr, ok := v.([]any)
			if !ok && v != nil {
				throwf(pos, "cannot spread %s into an array", typeOf(v))
			}
			fr.rt.checkLen(pos, len(out)+len(arr))
			out = append(out, arr...)
		}
		fr.rt.charge(pos, len(out)*arrayCellBytes)
		return out
	}
}

func (cp *compiler) objectLiteral(x *objectLit) evalFn {
	type prop struct {
		key      string
		computed evalFn
		value    evalFn
		spread   bool
	}
	props := make([]prop, len(x.props))
	for i, p := range x.props {
		props[i] = prop{key: p.key, value: cp.expr(p.value), spread: p.spread}
		if p.computed != nil {
			props[i].computed = cp.expr(p.computed)
		}
	}
	pos := x.pos
	return func(fr *frame) any {
		out := make(map[string]any, len(props))
		for _, p := range props {
			v := p.value(fr)
			if p.spread {
				switch src := v.(type) {
				case nil:
				case map[string]any:
					for k, e := range src {
						out[k] = e
					}
				default:
					throwf(pos, "cannot spread %s into an object", typeOf(v))
				}
				continue
			}
			key := p.key
			if p.computed != nil {
				key = fr.rt.str(pos, p.computed(fr))
			}
			out[key] = v
		}
		return out
	}
}

func (cp *compiler) args(xs []expr) func(fr *frame, pos Pos) []any {
	type arg struct {
		eval   evalFn
		spread bool
	}
	args := make([]arg, len(xs))
	for i, e := range xs {
		if s, ok := e.(*spreadExpr); ok {
			args[i] = arg{eval: cp.expr(s.x), spread: true}
		} else {
			args[i] = arg{eval: cp.expr(e)}
		}
	}
	return func(fr *frame, pos Pos) []any {
		out := make([]any, 0, len(args))
		for _, a := range args {
			v := a.eval(fr)
			if !a.spread {
				out = append(out, v)
				continue
			}
			arr, ok := v.([]any)
			if !ok && v != nil {
				throwf(pos, "cannot spread %s into arguments", typeOf(v))
			}
			fr.rt.checkLen(pos, len(out)+len(arr))
			out = append(out, arr...)
		}
		return out
	}
}

func (cp *compiler) call(x *callExpr) evalFn {
	cp.checkElementCall(x)
	args := cp.args(x.args)
	pos := x.pos

	if m, ok := x.callee.(*memberExpr); ok {
		obj := cp.expr(m.obj)
		key := cp.memberKey(m)
		optional := m.optional
		return func(fr *frame) any {
			o := obj(fr)
			if o == nil && optional {
				return nil
			}
			return callMethod(fr.rt, pos, o, fr.rt.str(pos, key(fr)), args(fr, pos))
		}
	}

	callee := cp.expr(x.callee)
	return func(fr *frame) any {
		return callValue(fr.rt, pos, callee(fr), args(fr, pos))
	}
}

// checkElementCall validates literal tags and attribute names passed to h so
// that obviously unsafe markup is rejected before the component ever runs.
func (cp *compiler) checkElementCall(x *callExpr) {
	id, ok := x.callee.(*identExpr)
	if !ok || id.name != "h" || len(x.args) == 0 {
		return
	}
	if _, _, shadowed := cp.resolve("h"); shadowed {
		return
	}
	if tag, ok := x.args[0].(*stringLit); ok {
		if err := security.ValidateTag(tag.val); err != nil {
			errorf(StageCompile, tag.pos, "%v", err)
		}
	}
	if len(x.args) < 2 {
		return
	}
	attrs, ok := x.args[1].(*objectLit)
	if !ok {
		return
	}
	for _, p := range attrs.props {
		if p.spread || p.computed != nil {
			continue
		}
		name := attrName(p.key)
		if s, ok := p.value.(*stringLit); ok {
			if err := security.ValidateAttribute(name, s.val); err != nil {
				errorf(StageCompile, s.pos, "%v", err)
			}
		} else if err := security.ValidateAttribute(name, ""); err != nil {
			errorf(StageCompile, attrs.pos, "%v", err)
		}
	}
}

func (cp *compiler) binary(x *binaryExpr) evalFn {
	l, r := cp.expr(x.x), cp.expr(x.y)
	pos := x.pos
	switch x.op {
	case "&&":
		return func(fr *frame) any {
			if v := l(fr); !truthy(v) {
				return v
			}
			return r(fr)
		}
	case "||":
		return func(fr *frame) any {
			if v := l(fr); truthy(v) {
				return v
			}
			return r(fr)
		}
	case "??":
		return func(fr *frame) any {
			if v := l(fr); v != nil {
				return v
			}
			return r(fr)
		}
	case "+":
		return func(fr *frame) any { return add(fr.rt, pos, l(fr), r(fr)) }
	case "-":
		return func(fr *frame) any { return toNumber(l(fr)) - toNumber(r(fr)) }
	case "*":
		return func(fr *frame) any { return toNumber(l(fr)) * toNumber(r(fr)) }
	case "/":
		return func(fr *frame) any { return toNumber(l(fr)) / toNumber(r(fr)) }
	case "%":
		return func(fr *frame) any { return math.Mod(toNumber(l(fr)), toNumber(r(fr))) }
	case "===":
		return func(fr *frame) any { return strictEqual(l(fr), r(fr)) }
	case "!==":
		return func(fr *frame) any { return !strictEqual(l(fr), r(fr)) }
	case "==":
		return func(fr *frame) any { return looseEqual(l(fr), r(fr)) }
	case "!=":
		return func(fr *frame) any { return !looseEqual(l(fr), r(fr)) }
	case "<", "<=", ">", ">=":
		op := x.op
		return func(fr *frame) any { return compare(op, l(fr), r(fr)) }
	}
	errorf(StageCompile, x.pos, "unsupported operator %q", x.op)
	return nil
}

func add(rt *runtime, pos Pos, a, b any) any {
	_, as := a.(string)
	_, bs := b.(string)
	if as || bs {
		return rt.concat(pos, rt.str(pos, a), rt.str(pos, b))
	}
	return toNumber(a) + toNumber(b)
}
