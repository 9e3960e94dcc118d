package compiler

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokPunct
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokNumber:
		return "number"
	case tokString:
		return "string"
	default:
		return "punctuation"
	}
}

type token struct {
	kind tokenKind
	text string  // identifier name, punctuation or decoded string
	num  float64 // tokNumber only
	pos  Pos
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

func (t token) describe() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokString:
		return strconv.Quote(t.text)
	default:
		return "'" + t.text + "'"
	}
}

// Multi-character operators, longest first.
var punctuators = []string{
	"===", "!==", "...",
	"=>", "==", "!=", "<=", ">=", "&&", "||", "??", "?.", "+=", "-=",
	"{", "}", "(", ")", "[", "]", ";", ",", ".", ":", "?",
	"+", "-", "*", "/", "%", "<", ">", "=", "!",
}

type lexer struct {
	src  string
	off  int
	line int
	col  int
}

// lex splits source text into tokens. Comments are discarded.
func lex(src string) (toks []token, err error) {
	defer recoverCompileError(&err)
	lx := &lexer{src: src, line: 1, col: 1}
	for {
		tok := lx.next()
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks, nil
		}
	}
}

func (lx *lexer) pos() Pos { return Pos{Line: lx.line, Col: lx.col} }

func (lx *lexer) peekRune() rune {
	if lx.off >= len(lx.src) {
		return -1
	}
	r, _ := utf8.DecodeRuneInString(lx.src[lx.off:])
	return r
}

func (lx *lexer) advance() rune {
	r, size := utf8.DecodeRuneInString(lx.src[lx.off:])
	lx.off += size
	if r == '\n' {
		lx.line++
		lx.col = 1
	} else {
		lx.col++
	}
	return r
}

func (lx *lexer) skipSpaceAndComments() {
	for lx.off < len(lx.src) {
		rest := lx.src[lx.off:]
		switch {
		case strings.HasPrefix(rest, "//"):
			for lx.off < len(lx.src) && lx.peekRune() != '\n' {
				lx.advance()
			}
		case strings.HasPrefix(rest, "/*"):
			start := lx.pos()
			lx.advance()
			lx.advance()
			for {
				if lx.off >= len(lx.src) {
					errorf(StageSyntax, start, "unterminated comment")
				}
				if strings.HasPrefix(lx.src[lx.off:], "*/") {
					lx.advance()
					lx.advance()
					break
				}
				lx.advance()
			}
		case unicode.IsSpace(lx.peekRune()):
			lx.advance()
		default:
			return
		}
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}

func (lx *lexer) next() token {
	lx.skipSpaceAndComments()
	start := lx.pos()
	if lx.off >= len(lx.src) {
		return token{kind: tokEOF, pos: start}
	}

	r := lx.peekRune()
	switch {
	case isIdentStart(r):
		begin := lx.off
		for lx.off < len(lx.src) && isIdentPart(lx.peekRune()) {
			lx.advance()
		}
		return token{kind: tokIdent, text: lx.src[begin:lx.off], pos: start}

	case r >= '0' && r <= '9' || r == '.' && lx.off+1 < len(lx.src) && isDigit(lx.src[lx.off+1]):
		begin := lx.off
		for lx.off < len(lx.src) && (isDigit(lx.src[lx.off]) || lx.src[lx.off] == '.' || lx.src[lx.off] == '_') {
			lx.advance()
		}
		if lx.off < len(lx.src) && (lx.src[lx.off] == 'e' || lx.src[lx.off] == 'E') {
			lx.advance()
			if lx.off < len(lx.src) && (lx.src[lx.off] == '+' || lx.src[lx.off] == '-') {
				lx.advance()
			}
			for lx.off < len(lx.src) && isDigit(lx.src[lx.off]) {
				lx.advance()
			}
		}
		text := strings.ReplaceAll(lx.src[begin:lx.off], "_", "")
		n, err := strconv.ParseFloat(text, 64)
		if err != nil {
			errorf(StageSyntax, start, "invalid number %q", lx.src[begin:lx.off])
		}
		return token{kind: tokNumber, text: text, num: n, pos: start}

	case r == '"' || r == '\'':
		return token{kind: tokString, text: lx.quoted(r), pos: start}

	case r == '`':
		return token{kind: tokString, text: lx.backquoted(), pos: start}
	}

	rest := lx.src[lx.off:]
	for _, p := range punctuators {
		if strings.HasPrefix(rest, p) {
			// "?." followed by a digit is a ternary and a number.
			if p == "?." && len(rest) > 2 && isDigit(rest[2]) {
				continue
			}
			for range p {
				lx.advance()
			}
			return token{kind: tokPunct, text: p, pos: start}
		}
	}
	errorf(StageSyntax, start, "unexpected character %q", r)
	return token{}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func (lx *lexer) quoted(quote rune) string {
	start := lx.pos()
	lx.advance()
	var b strings.Builder
	for {
		if lx.off >= len(lx.src) || lx.peekRune() == '\n' {
			errorf(StageSyntax, start, "unterminated string")
		}
		r := lx.advance()
		if r == quote {
			return b.String()
		}
		if r == '\\' {
			b.WriteRune(lx.escape(start))
			continue
		}
		b.WriteRune(r)
	}
}

// backquoted reads a template string without substitutions. A "${" sequence
// is rejected so that interpolation is never silently treated as text.
func (lx *lexer) backquoted() string {
	start := lx.pos()
	lx.advance()
	var b strings.Builder
	for {
		if lx.off >= len(lx.src) {
			errorf(StageSyntax, start, "unterminated template string")
		}
		if strings.HasPrefix(lx.src[lx.off:], "${") {
			errorf(StageSyntax, lx.pos(), "template substitutions are not supported; use + to concatenate")
		}
		r := lx.advance()
		if r == '`' {
			return b.String()
		}
		if r == '\\' {
			b.WriteRune(lx.escape(start))
			continue
		}
		b.WriteRune(r)
	}
}

func (lx *lexer) escape(start Pos) rune {
	if lx.off >= len(lx.src) {
		errorf(StageSyntax, start, "unterminated string")
	}
	r := lx.advance()
	switch r {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case '0':
		return 0
	case 'u':
		if lx.off+4 > len(lx.src) {
			errorf(StageSyntax, start, "invalid unicode escape")
		}
		v, err := strconv.ParseUint(lx.src[lx.off:lx.off+4], 16, 32)
		if err != nil {
			errorf(StageSyntax, start, "invalid unicode escape")
		}
		for range 4 {
			lx.advance()
		}
		return rune(v)
	default:
		return r
	}
}
