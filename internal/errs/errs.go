// Package errs defines the error taxonomy shared by the core services.
//
// Validation and Conflict errors carry a stable machine-readable code that the
// HTTP layer surfaces unchanged. Anything that is not an *errs.Error is treated
// as an infrastructure failure and rolls back the surrounding transaction.
package errs

import "errors"

type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

// NotFound deliberately carries a single generic code: a missing resource and
// an inaccessible one must be indistinguishable to the caller.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: message}
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// CodeOf returns the stable code of a domain error, or "" for infrastructure
// failures.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
