package compiler

import (
	"regexp"
	"strings"
)

// leadingExport matches an "export default" marker preceded only by
// whitespace and comments.
var leadingExport = regexp.MustCompile(`^(?:\s+|//[^\n]*\n?|/\*(?s:.*?)\*/)*export\s+default\b`)

// Normalize strips a leading "export default" marker. It reports whether the
// marker was present.
func Normalize(code string) (string, bool) {
	loc := leadingExport.FindStringIndex(code)
	if loc == nil {
		return code, false
	}
	return code[loc[1]:], true
}

// Validate performs the fast structural checks that run before parsing: the
// source must define a function and declare exactly one default export,
// either as a leading marker or as a top-level "export default" statement,
// with at most one top-level function declaration.
func Validate(code string) error {
	if strings.TrimSpace(code) == "" {
		return &CompileError{Stage: StageValidation, Message: "component source is empty"}
	}

	toks, err := lex(code)
	if err != nil {
		return err
	}

	var (
		exports       int
		hasFunction   bool
		topLevelFuncs int
		depth         int
	)
	for i, t := range toks {
		switch {
		case t.is(tokPunct, "{"), t.is(tokPunct, "("), t.is(tokPunct, "["):
			depth++
		case t.is(tokPunct, "}"), t.is(tokPunct, ")"), t.is(tokPunct, "]"):
			depth--
		case t.is(tokPunct, "=>"):
			hasFunction = true
		case t.is(tokIdent, "function"):
			hasFunction = true
			if depth == 0 {
				topLevelFuncs++
			}
		case t.is(tokIdent, "export"):
			if !toks[i+1].is(tokIdent, "default") {
				return &CompileError{Stage: StageValidation, Pos: t.pos,
					Message: "named exports are not supported; declare a single default export"}
			}
			if depth != 0 {
				return &CompileError{Stage: StageValidation, Pos: t.pos,
					Message: "export default must appear at the top level"}
			}
			exports++
			if exports > 1 {
				return &CompileError{Stage: StageValidation, Pos: t.pos,
					Message: "export default appears more than once"}
			}
		}
	}

	switch {
	case !hasFunction:
		return &CompileError{Stage: StageValidation, Message: "no function definition found"}
	case exports == 0:
		return &CompileError{Stage: StageValidation, Message: "component must have a default export"}
	case topLevelFuncs > 1:
		return &CompileError{Stage: StageValidation, Message: "more than one top-level function; define helpers with const arrow functions"}
	}
	return nil
}
