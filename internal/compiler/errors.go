package compiler

import (
	"fmt"

	"github.com/livetemplate/blockpress"
)

// Stage identifies where compilation failed.
type Stage string

const (
	StageValidation Stage = "validation"
	StageSyntax     Stage = "syntax"
	StageCompile    Stage = "compile"
)

// Pos is a 1-based source location.
type Pos struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// CompileError is returned when component source is rejected before it can
// run.
type CompileError struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	Pos     Pos    `json:"pos"`
}

func (e *CompileError) Error() string {
	if e.Pos.Line > 0 {
		return fmt.Sprintf("%s error at %s: %s", e.Stage, e.Pos, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Stage, e.Message)
}

// Code maps the failure to an API error code. Structural validation failures
// report VALIDATION_ERROR, syntax and compile failures INVALID_CODE.
func (e *CompileError) Code() blockpress.Code {
	if e.Stage == StageValidation {
		return blockpress.CodeValidation
	}
	return blockpress.CodeInvalidCode
}

// RuntimeError is returned when a compiled component fails while rendering.
type RuntimeError struct {
	Message string `json:"message"`
	Pos     Pos    `json:"pos"`
}

func (e *RuntimeError) Error() string {
	if e.Pos.Line > 0 {
		return fmt.Sprintf("runtime error at %s: %s", e.Pos, e.Message)
	}
	return "runtime error: " + e.Message
}

// AsAPIError wraps a compile error into the shared error type.
func AsAPIError(op string, err error) error {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*CompileError); ok {
		return &blockpress.Error{Code: ce.Code(), Op: op, Message: ce.Error(), Err: ce}
	}
	return blockpress.Wrap(blockpress.CodeInvalidCode, op, err)
}

// panics raised inside the lexer, parser and compiler carry *CompileError and
// are converted back to errors at the package boundary.
func errorf(stage Stage, pos Pos, format string, args ...any) {
	panic(&CompileError{Stage: stage, Message: fmt.Sprintf(format, args...), Pos: pos})
}

func recoverCompileError(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if ce, ok := r.(*CompileError); ok {
		*err = ce
		return
	}
	panic(r)
}

// runtime failures are raised the same way and recovered in Func.
func throwf(pos Pos, format string, args ...any) {
	panic(&RuntimeError{Message: fmt.Sprintf(format, args...), Pos: pos})
}
