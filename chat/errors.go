package chat

import (
	"errors"
	"fmt"
)

// Kind classifies a request-level failure. All kinds except KindPersistence
// are expected, non-fatal outcomes which are reported to the requesting
// connection only.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuth
	KindCapacity
	KindConflict
	KindNotFound
	KindPersistence
)

// Error is a per-request failure with a client-facing message.
type Error struct {
	Kind Kind
	Text string
}

func (e *Error) Error() string {
	return e.Text
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Text: fmt.Sprintf(format, args...)}
}

func ValidationError(format string, args ...interface{}) *Error {
	return newError(KindValidation, format, args...)
}

func AuthError(format string, args ...interface{}) *Error {
	return newError(KindAuth, format, args...)
}

func CapacityError(format string, args ...interface{}) *Error {
	return newError(KindCapacity, format, args...)
}

func ConflictError(format string, args ...interface{}) *Error {
	return newError(KindConflict, format, args...)
}

func NotFoundError(format string, args ...interface{}) *Error {
	return newError(KindNotFound, format, args...)
}

func PersistenceError(format string, args ...interface{}) *Error {
	return newError(KindPersistence, format, args...)
}

// KindOf returns the Kind of a request-level error, or 0 for any other error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
