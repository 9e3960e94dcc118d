package compiler

// parser is a recursive-descent parser over a token slice.
type parser struct {
	toks  []token
	i     int
	depth int
}

// maxNesting bounds expression nesting so hostile input cannot exhaust the
// goroutine stack.
const maxNesting = 200

// parse turns normalized component source into a program. leadingExport
// reports whether an "export default" marker was stripped from the front, in
// which case the first top-level item is the default export.
func parse(src string, leadingExport bool) (prog *program, err error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	defer recoverCompileError(&err)
	p := &parser{toks: toks}
	return p.program(leadingExport), nil
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) peekAt(n int) token {
	if p.i+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i+n]
}

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) isPunct(text string) bool { return p.peek().is(tokPunct, text) }
func (p *parser) isKeyword(kw string) bool { return p.peek().is(tokIdent, kw) }
func (p *parser) failf(t token, format string, args ...any) {
	errorf(StageSyntax, t.pos, format, args...)
}

func (p *parser) enter() {
	p.depth++
	if p.depth > maxNesting {
		p.failf(p.peek(), "expression nested too deeply")
	}
}

func (p *parser) leave() { p.depth-- }

func (p *parser) accept(text string) bool {
	if p.isPunct(text) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(text string) token {
	t := p.next()
	if !t.is(tokPunct, text) {
		p.failf(t, "expected '%s', found %s", text, t.describe())
	}
	return t
}

func (p *parser) ident() token {
	t := p.next()
	if t.kind != tokIdent {
		p.failf(t, "expected identifier, found %s", t.describe())
	}
	if reserved[t.text] {
		p.failf(t, "'%s' is a reserved word", t.text)
	}
	return t
}

// reserved words that cannot name bindings.
var reserved = map[string]bool{
	"const": true, "let": true, "var": true, "function": true, "return": true,
	"if": true, "else": true, "export": true, "default": true, "import": true,
	"true": true, "false": true, "null": true, "undefined": true,
	"for": true, "while": true, "do": true, "new": true, "class": true,
	"this": true, "typeof": true, "delete": true, "void": true, "await": true,
	"async": true, "yield": true, "try": true, "catch": true, "throw": true,
	"switch": true, "case": true, "break": true, "continue": true, "with": true,
}

// unsupported statement keywords, reported with a dedicated message.
var unsupported = map[string]string{
	"for":    "loops are not supported; use .map or .filter",
	"while":  "loops are not supported; use .map or .filter",
	"do":     "loops are not supported; use .map or .filter",
	"import": "imports are not supported",
	"class":  "classes are not supported",
	"new":    "'new' is not supported",
	"this":   "'this' is not supported",
	"var":    "use const or let instead of var",
	"try":    "exceptions are not supported",
	"throw":  "exceptions are not supported",
	"async":  "async functions are not supported",
	"await":  "async functions are not supported",
	"switch": "switch is not supported; use if/else",
}

func (p *parser) program(leadingExport bool) *program {
	prog := &program{}
	if leadingExport {
		if p.isKeyword("function") {
			fn := p.functionDecl(false)
			prog.export = fn
			if fn.name != "" {
				prog.decls = append(prog.decls, &funcDecl{pos: fn.pos, fn: fn})
				prog.export = &identExpr{pos: fn.pos, name: fn.name}
			}
		} else {
			prog.export = p.expr()
		}
		p.accept(";")
	}

	for p.peek().kind != tokEOF {
		t := p.peek()
		switch {
		case t.is(tokPunct, ";"):
			p.next()
		case t.is(tokIdent, "function"):
			fn := p.functionDecl(true)
			prog.decls = append(prog.decls, &funcDecl{pos: fn.pos, fn: fn})
		case t.is(tokIdent, "const") || t.is(tokIdent, "let"):
			prog.decls = append(prog.decls, p.declaration())
		case t.is(tokIdent, "export"):
			p.next()
			if !p.isKeyword("default") {
				p.failf(p.peek(), "only a default export is supported")
			}
			p.next()
			if prog.export != nil {
				p.failf(t, "more than one default export")
			}
			prog.export = p.expr()
			p.accept(";")
		default:
			p.failf(t, "unexpected %s at top level; expected a declaration", t.describe())
		}
	}
	if prog.export == nil {
		errorf(StageSyntax, p.peek().pos, "component has no default export")
	}
	return prog
}

// functionDecl parses "function name(params) { body }". The name is optional
// only for an exported function.
func (p *parser) functionDecl(requireName bool) *funcExpr {
	start := p.next() // function
	fn := &funcExpr{pos: start.pos}
	if p.peek().kind == tokIdent {
		fn.name = p.ident().text
	} else if requireName {
		p.failf(p.peek(), "function declaration requires a name")
	}
	fn.params = p.params()
	fn.body = p.block()
	return fn
}

func (p *parser) params() []pattern {
	p.expect("(")
	var params []pattern
	for !p.isPunct(")") {
		params = append(params, p.pattern(true))
		if !p.accept(",") {
			break
		}
	}
	p.expect(")")
	return params
}

// pattern parses a binding target with an optional default value.
func (p *parser) pattern(allowDefault bool) pattern {
	t := p.peek()
	var pat pattern
	if t.is(tokPunct, "{") {
		p.next()
		pat = pattern{pos: t.pos, fields: []patternField{}}
		for !p.isPunct("}") {
			keyTok := p.next()
			if keyTok.kind != tokIdent && keyTok.kind != tokString {
				p.failf(keyTok, "expected property name in pattern, found %s", keyTok.describe())
			}
			field := patternField{key: keyTok.text}
			if p.accept(":") {
				field.target = p.pattern(true)
			} else {
				if keyTok.kind != tokIdent || reserved[keyTok.text] {
					p.failf(keyTok, "invalid shorthand binding %s", keyTok.describe())
				}
				field.target = pattern{pos: keyTok.pos, name: keyTok.text}
				if p.accept("=") {
					field.target.def = p.assignExpr()
				}
			}
			pat.fields = append(pat.fields, field)
			if !p.accept(",") {
				break
			}
		}
		p.expect("}")
	} else {
		name := p.ident()
		pat = pattern{pos: name.pos, name: name.text}
	}
	if allowDefault && p.accept("=") {
		pat.def = p.assignExpr()
	}
	return pat
}

func (p *parser) block() []stmt {
	p.enter()
	defer p.leave()
	p.expect("{")
	var body []stmt
	for !p.isPunct("}") {
		if p.peek().kind == tokEOF {
			p.failf(p.peek(), "unexpected end of input; missing '}'")
		}
		body = append(body, p.statement())
	}
	p.expect("}")
	return body
}

// blockOrStatement parses the body of an if or else branch.
func (p *parser) blockOrStatement() []stmt {
	if p.isPunct("{") {
		return p.block()
	}
	return []stmt{p.statement()}
}

func (p *parser) statement() stmt {
	t := p.peek()
	if t.kind == tokIdent {
		if msg, ok := unsupported[t.text]; ok {
			p.failf(t, "%s", msg)
		}
		switch t.text {
		case "const", "let":
			return p.declaration()
		case "if":
			return p.ifStatement()
		case "return":
			p.next()
			s := &returnStmt{pos: t.pos}
			if !p.isPunct(";") && !p.isPunct("}") && p.peek().kind != tokEOF {
				s.value = p.expr()
			}
			p.accept(";")
			return s
		case "function":
			p.failf(t, "nested function declarations are not supported; use an arrow function")
		}
		if next := p.peekAt(1); next.is(tokPunct, "=") || next.is(tokPunct, "+=") || next.is(tokPunct, "-=") {
			name := p.ident()
			op := p.next().text
			s := &assignStmt{pos: name.pos, name: name.text, op: op, value: p.expr()}
			p.accept(";")
			return s
		}
	}
	if t.is(tokPunct, "{") {
		return &blockStmt{pos: t.pos, body: p.block()}
	}
	x := p.expr()
	p.accept(";")
	return &exprStmt{pos: t.pos, x: x}
}

func (p *parser) declaration() stmt {
	kw := p.next()
	d := &declStmt{pos: kw.pos, constant: kw.text == "const"}
	d.target = p.pattern(false)
	if p.accept("=") {
		d.init = p.expr()
	} else if d.constant {
		p.failf(p.peek(), "const declaration requires an initializer")
	}
	p.accept(";")
	return d
}

func (p *parser) ifStatement() stmt {
	kw := p.next()
	p.expect("(")
	s := &ifStmt{pos: kw.pos, cond: p.expr()}
	p.expect(")")
	s.then = p.blockOrStatement()
	if p.isKeyword("else") {
		p.next()
		if p.isKeyword("if") {
			s.els = []stmt{p.ifStatement()}
		} else {
			s.els = p.blockOrStatement()
		}
	}
	return s
}

// Expressions, lowest precedence first.

func (p *parser) expr() expr { return p.assignExpr() }

func (p *parser) assignExpr() expr {
	p.enter()
	defer p.leave()
	if p.isArrow() {
		return p.arrow()
	}
	return p.conditional()
}

func (p *parser) conditional() expr {
	cond := p.logicalOr()
	if !p.isPunct("?") {
		return cond
	}
	q := p.next()
	then := p.assignExpr()
	p.expect(":")
	els := p.assignExpr()
	return &condExpr{pos: q.pos, cond: cond, then: then, els: els}
}

func (p *parser) logicalOr() expr {
	x := p.logicalAnd()
	for p.isPunct("||") || p.isPunct("??") {
		op := p.next()
		x = &binaryExpr{pos: op.pos, op: op.text, x: x, y: p.logicalAnd()}
	}
	return x
}

func (p *parser) logicalAnd() expr {
	x := p.equality()
	for p.isPunct("&&") {
		op := p.next()
		x = &binaryExpr{pos: op.pos, op: op.text, x: x, y: p.equality()}
	}
	return x
}

func (p *parser) equality() expr {
	x := p.comparison()
	for p.isPunct("===") || p.isPunct("!==") || p.isPunct("==") || p.isPunct("!=") {
		op := p.next()
		x = &binaryExpr{pos: op.pos, op: op.text, x: x, y: p.comparison()}
	}
	return x
}

func (p *parser) comparison() expr {
	x := p.additive()
	for p.isPunct("<") || p.isPunct("<=") || p.isPunct(">") || p.isPunct(">=") {
		op := p.next()
		x = &binaryExpr{pos: op.pos, op: op.text, x: x, y: p.additive()}
	}
	return x
}

func (p *parser) additive() expr {
	x := p.multiplicative()
	for p.isPunct("+") || p.isPunct("-") {
		op := p.next()
		x = &binaryExpr{pos: op.pos, op: op.text, x: x, y: p.multiplicative()}
	}
	return x
}

func (p *parser) multiplicative() expr {
	x := p.unary()
	for p.isPunct("*") || p.isPunct("/") || p.isPunct("%") {
		op := p.next()
		x = &binaryExpr{pos: op.pos, op: op.text, x: x, y: p.unary()}
	}
	return x
}

func (p *parser) unary() expr {
	if p.isPunct("!") || p.isPunct("-") || p.isPunct("+") {
		p.enter()
		defer p.leave()
		op := p.next()
		return &unaryExpr{pos: op.pos, op: op.text, x: p.unary()}
	}
	if p.isKeyword("typeof") {
		op := p.next()
		return &unaryExpr{pos: op.pos, op: "typeof", x: p.unary()}
	}
	return p.postfix()
}

func (p *parser) postfix() expr {
	x := p.primary()
	for {
		t := p.peek()
		switch {
		case t.is(tokPunct, "."), t.is(tokPunct, "?."):
			p.next()
			if t.text == "?." && p.isPunct("[") {
				p.next()
				idx := p.expr()
				p.expect("]")
				x = &memberExpr{pos: t.pos, obj: x, index: idx, optional: true}
				continue
			}
			name := p.next()
			if name.kind != tokIdent {
				p.failf(name, "expected property name, found %s", name.describe())
			}
			x = &memberExpr{pos: name.pos, obj: x, name: name.text, optional: t.text == "?."}
		case t.is(tokPunct, "["):
			p.next()
			idx := p.expr()
			p.expect("]")
			x = &memberExpr{pos: t.pos, obj: x, index: idx}
		case t.is(tokPunct, "("):
			x = &callExpr{pos: t.pos, callee: x, args: p.arguments()}
		default:
			return x
		}
	}
}

func (p *parser) arguments() []expr {
	p.expect("(")
	var args []expr
	for !p.isPunct(")") {
		args = append(args, p.spreadOr())
		if !p.accept(",") {
			break
		}
	}
	p.expect(")")
	return args
}

func (p *parser) spreadOr() expr {
	if p.isPunct("...") {
		t := p.next()
		return &spreadExpr{pos: t.pos, x: p.assignExpr()}
	}
	return p.assignExpr()
}

func (p *parser) primary() expr {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return &numberLit{pos: t.pos, val: t.num}
	case tokString:
		return &stringLit{pos: t.pos, val: t.text}
	case tokIdent:
		switch t.text {
		case "true", "false":
			return &boolLit{pos: t.pos, val: t.text == "true"}
		case "null", "undefined":
			return &nullLit{pos: t.pos}
		case "function":
			p.i--
			return p.functionDecl(false)
		}
		if msg, ok := unsupported[t.text]; ok {
			p.failf(t, "%s", msg)
		}
		if reserved[t.text] {
			p.failf(t, "unexpected '%s'", t.text)
		}
		return &identExpr{pos: t.pos, name: t.text}
	case tokPunct:
		switch t.text {
		case "(":
			x := p.expr()
			p.expect(")")
			return x
		case "[":
			arr := &arrayLit{pos: t.pos}
			for !p.isPunct("]") {
				arr.elems = append(arr.elems, p.spreadOr())
				if !p.accept(",") {
					break
				}
			}
			p.expect("]")
			return arr
		case "{":
			return p.objectLiteral(t)
		}
	}
	p.failf(t, "unexpected %s", t.describe())
	return nil
}

func (p *parser) objectLiteral(open token) expr {
	obj := &objectLit{pos: open.pos}
	for !p.isPunct("}") {
		if p.isPunct("...") {
			p.next()
			obj.props = append(obj.props, objectProp{spread: true, value: p.assignExpr()})
		} else {
			var prop objectProp
			keyTok := p.next()
			switch {
			case keyTok.is(tokPunct, "["):
				prop.computed = p.expr()
				p.expect("]")
			case keyTok.kind == tokIdent || keyTok.kind == tokString:
				prop.key = keyTok.text
			case keyTok.kind == tokNumber:
				prop.key = formatNumber(keyTok.num)
			default:
				p.failf(keyTok, "expected property name, found %s", keyTok.describe())
			}
			if p.accept(":") {
				prop.value = p.assignExpr()
			} else if keyTok.kind == tokIdent && !reserved[keyTok.text] && prop.computed == nil {
				prop.value = &identExpr{pos: keyTok.pos, name: keyTok.text}
			} else {
				p.failf(p.peek(), "expected ':' after property name")
			}
			obj.props = append(obj.props, prop)
		}
		if !p.accept(",") {
			break
		}
	}
	p.expect("}")
	return obj
}

// isArrow looks ahead for "ident =>" or "( ... ) =>".
func (p *parser) isArrow() bool {
	t := p.peek()
	if t.kind == tokIdent && !reserved[t.text] {
		return p.peekAt(1).is(tokPunct, "=>")
	}
	if !t.is(tokPunct, "(") {
		return false
	}
	depth := 0
	for j := p.i; j < len(p.toks); j++ {
		tok := p.toks[j]
		if tok.kind == tokEOF {
			return false
		}
		if tok.kind != tokPunct {
			continue
		}
		switch tok.text {
		case "(", "[", "{":
			depth++
		case ")", "]", "}":
			depth--
			if depth == 0 {
				return j+1 < len(p.toks) && p.toks[j+1].is(tokPunct, "=>")
			}
		}
	}
	return false
}

func (p *parser) arrow() expr {
	start := p.peek()
	fn := &funcExpr{pos: start.pos}
	if start.kind == tokIdent {
		name := p.ident()
		fn.params = []pattern{{pos: name.pos, name: name.text}}
	} else {
		fn.params = p.params()
	}
	p.expect("=>")
	if p.isPunct("{") {
		fn.body = p.block()
	} else {
		fn.result = p.assignExpr()
	}
	return fn
}
