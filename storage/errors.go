package storage

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorKind classifies a storage failure.
type ErrorKind int

const (
	// KindUnknown is used when the failure cannot be attributed to an operation.
	KindUnknown ErrorKind = iota
	// KindClearFailed indicates Clear could not remove every entry.
	KindClearFailed
	// KindDeleteFailed indicates Delete could not remove the entry.
	KindDeleteFailed
	// KindReadValueFailed indicates Read could not load or decode the entry.
	KindReadValueFailed
	// KindWriteFailed indicates Write could not encode or persist the entry.
	KindWriteFailed
)

var kindNames = map[ErrorKind]string{
	KindUnknown:         "unknown",
	KindClearFailed:     "clear failed",
	KindDeleteFailed:    "delete failed",
	KindReadValueFailed: "read value failed",
	KindWriteFailed:     "write failed",
}

// String returns the human-readable kind name.
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is the error returned by every Storage implementation.
type Error struct {
	// Kind is the failed operation.
	Kind ErrorKind

	// Err is the underlying cause, if any.
	Err error

	// Source is the file:line where the error was created.
	Source string
}

// NewError creates an Error of the given kind, recording the caller's location.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err, Source: callerSource(2)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "storage: " + e.Kind.String()
	}
	return "storage: " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// IsKind reports whether err is a storage error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func callerSource(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", file, line)
}
