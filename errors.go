package blockpress

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies an Error. Codes are stable strings that travel over the
// HTTP API unchanged.
type Code string

const (
	CodeNotFound      Code = "NOT_FOUND"
	CodeNoContent     Code = "NO_CONTENT"
	CodeCreateFailed  Code = "CREATE_FAILED"
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeInvalidCode   Code = "INVALID_CODE"
	CodeDuplicateKey  Code = "DUPLICATE_KEY"
	CodeInvalidTarget Code = "INVALID_TARGET"
	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeInternal      Code = "INTERNAL"
	CodeConflict      Code = "CONFLICT"
)

// Error is the typed error returned by every package in the module.
type Error struct {
	Code    Code   // Classification
	Op      string // Operation that failed (e.g. "publish", "tree.delete")
	Message string // Human readable detail
	Hint    string // Optional suggestion shown to authors
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code. This lets
// callers write errors.Is(err, blockpress.ErrNoContent).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Op == "" && t.Message == ""
}

// WithHint adds a helpful hint to the error.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound      = &Error{Code: CodeNotFound}
	ErrNoContent     = &Error{Code: CodeNoContent}
	ErrCreateFailed  = &Error{Code: CodeCreateFailed}
	ErrValidation    = &Error{Code: CodeValidation}
	ErrDuplicateKey  = &Error{Code: CodeDuplicateKey}
	ErrInvalidTarget = &Error{Code: CodeInvalidTarget}
	ErrInvalidInput  = &Error{Code: CodeInvalidInput}
)

// Errorf creates an Error with a formatted message.
func Errorf(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error wrapping err.
func Wrap(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsRetryable reports whether a failed operation may succeed when retried
// unchanged. Only publish collisions are retryable.
func IsRetryable(err error) bool {
	return CodeOf(err) == CodeCreateFailed
}

// UserFriendlyMessage returns a short message suitable for showing to an
// author in the editing surface.
func UserFriendlyMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return "Something went wrong. Please try again."
	}
	switch e.Code {
	case CodeNotFound:
		return "The requested item no longer exists."
	case CodeNoContent:
		return "There is no draft to publish yet."
	case CodeCreateFailed:
		return "Publishing collided with another publish. Please try again."
	case CodeValidation, CodeInvalidCode:
		if e.Message != "" {
			return "Invalid component: " + e.Message
		}
		return "Invalid component source."
	case CodeDuplicateKey:
		return "A component with this key already exists."
	case CodeInvalidTarget:
		return "That operation cannot be applied here."
	default:
		if e.Message != "" {
			return e.Message
		}
		return "Something went wrong. Please try again."
	}
}
