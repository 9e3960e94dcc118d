package compiler

// Expressions.
type expr interface{ position() Pos }

type (
	numberLit struct {
		pos Pos
		val float64
	}
	stringLit struct {
		pos Pos
		val string
	}
	boolLit struct {
		pos Pos
		val bool
	}
	nullLit struct{ pos Pos }
	identExpr struct {
		pos  Pos
		name string
	}
	arrayLit struct {
		pos   Pos
		elems []expr // *spreadExpr allowed
	}
	objectLit struct {
		pos   Pos
		props []objectProp
	}
	spreadExpr struct {
		pos Pos
		x   expr
	}
	memberExpr struct {
		pos      Pos
		obj      expr
		name     string // static property name
		index    expr   // computed property, when non-nil
		optional bool   // ?.
	}
	callExpr struct {
		pos    Pos
		callee expr
		args   []expr // *spreadExpr allowed
	}
	unaryExpr struct {
		pos Pos
		op  string
		x   expr
	}
	binaryExpr struct {
		pos  Pos
		op   string
		x, y expr
	}
	condExpr struct {
		pos             Pos
		cond, then, els expr
	}
	funcExpr struct {
		pos    Pos
		name   string
		params []pattern
		body   []stmt
		// arrow functions with an expression body
		result expr
	}
)

type objectProp struct {
	key      string
	computed expr
	value    expr
	spread   bool
}

func (e *numberLit) position() Pos  { return e.pos }
func (e *stringLit) position() Pos  { return e.pos }
func (e *boolLit) position() Pos    { return e.pos }
func (e *nullLit) position() Pos    { return e.pos }
func (e *identExpr) position() Pos  { return e.pos }
func (e *arrayLit) position() Pos   { return e.pos }
func (e *objectLit) position() Pos  { return e.pos }
func (e *spreadExpr) position() Pos { return e.pos }
func (e *memberExpr) position() Pos { return e.pos }
func (e *callExpr) position() Pos   { return e.pos }
func (e *unaryExpr) position() Pos  { return e.pos }
func (e *binaryExpr) position() Pos { return e.pos }
func (e *condExpr) position() Pos   { return e.pos }
func (e *funcExpr) position() Pos   { return e.pos }

// pattern is a binding target: a plain name or an object pattern.
type pattern struct {
	pos    Pos
	name   string
	fields []patternField // object pattern when non-nil
	def    expr           // default when the value is undefined
}

type patternField struct {
	key    string
	target pattern
}

// Statements.
type stmt interface{ position() Pos }

type (
	declStmt struct {
		pos      Pos
		constant bool
		target   pattern
		init     expr
	}
	assignStmt struct {
		pos   Pos
		name  string
		op    string // "=", "+=", "-="
		value expr
	}
	ifStmt struct {
		pos  Pos
		cond expr
		then []stmt
		els  []stmt
	}
	returnStmt struct {
		pos   Pos
		value expr
	}
	exprStmt struct {
		pos Pos
		x   expr
	}
	blockStmt struct {
		pos  Pos
		body []stmt
	}
	funcDecl struct {
		pos Pos
		fn  *funcExpr
	}
)

func (s *declStmt) position() Pos   { return s.pos }
func (s *assignStmt) position() Pos { return s.pos }
func (s *ifStmt) position() Pos     { return s.pos }
func (s *returnStmt) position() Pos { return s.pos }
func (s *exprStmt) position() Pos   { return s.pos }
func (s *blockStmt) position() Pos  { return s.pos }
func (s *funcDecl) position() Pos   { return s.pos }

// program is a parsed component source file.
type program struct {
	decls []stmt // top-level declarations, in order
	// the default export: a function expression or a reference to a
	// top-level declaration
	export expr
}
