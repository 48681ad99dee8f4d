package auth

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorKind classifies an authentication failure.
type ErrorKind int

const (
	// KindAuthenticateFailed indicates the device registration call failed.
	KindAuthenticateFailed ErrorKind = iota + 1
	// KindUnauthenticatedDevice indicates no token is stored for the device.
	KindUnauthenticatedDevice
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthenticateFailed:
		return "authenticate failed"
	case KindUnauthenticatedDevice:
		return "unauthenticated device"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is returned by the authentication client and the token refresh.
type Error struct {
	Kind   ErrorKind
	Err    error
	Source string
}

// NewError creates an Error of the given kind at the caller's location.
func NewError(kind ErrorKind, err error) *Error {
	source := "unknown"
	if _, file, line, ok := runtime.Caller(1); ok {
		source = fmt.Sprintf("%s:%d", file, line)
	}
	return &Error{Kind: kind, Err: err, Source: source}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "auth: " + e.Kind.String()
	}
	return "auth: " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	return errors.As(target, &t) && t.Kind == e.Kind
}

// IsKind reports whether err is an auth error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
