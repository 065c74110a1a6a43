package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

type errorKind int

const (
	kindNotFound errorKind = iota + 1
	kindConflict
	kindPermission
)

// kindError carries a stable machine-readable kind alongside a human message.
type kindError struct {
	kind errorKind
	msg  string
}

func (e kindError) Error() string { return e.msg }

// NewNotFoundError indicates a resource that is absent or not visible to the
// actor; callers cannot tell the two apart.
func NewNotFoundError(msg string) error { return &kindError{kindNotFound, msg} }

// NewConflictError indicates a uniqueness violation or a state precondition
// that no longer holds.
func NewConflictError(msg string) error { return &kindError{kindConflict, msg} }

// NewPermissionError indicates the actor lacks the required role or ownership.
func NewPermissionError(msg string) error { return &kindError{kindPermission, msg} }

func isKind(err error, kind errorKind) bool {
	ke, ok := errors.Cause(err).(*kindError)
	return ok && ke.kind == kind
}

func IsNotFound(err error) bool         { return isKind(err, kindNotFound) }
func IsConflict(err error) bool         { return isKind(err, kindConflict) }
func IsPermissionDenied(err error) bool { return isKind(err, kindPermission) }

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
