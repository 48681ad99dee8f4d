package httpclient

import (
	"context"
	"errors"
	"fmt"
	"runtime"
)

// ErrorKind classifies a NetworkError.
type ErrorKind int

const (
	// KindUnknown is used when no other kind applies.
	KindUnknown ErrorKind = iota
	// KindExplicitlyCancelled means Cancel was called on the request.
	KindExplicitlyCancelled
	// KindInvalidURL means the base URL or path could not form a URL.
	KindInvalidURL
	// KindParameterEncodingFailed means the parameters could not be encoded.
	KindParameterEncodingFailed
	// KindRequestAdaptationFailed means an interceptor rejected the request.
	KindRequestAdaptationFailed
	// KindRequestRetryFailed means the retry machinery itself failed.
	KindRequestRetryFailed
	// KindResponseSerializationFailed means the body could not be decoded.
	KindResponseSerializationFailed
	// KindResponseValidationFailed means a validator rejected the response.
	KindResponseValidationFailed
	// KindSessionInvalidated means the client was closed.
	KindSessionInvalidated
	// KindSessionTaskFailed means the transport round trip failed.
	KindSessionTaskFailed
	// KindURLRequestValidationFailed means the built request is unusable.
	KindURLRequestValidationFailed
)

var errorKindNames = map[ErrorKind]string{
	KindUnknown:                     "unknown",
	KindExplicitlyCancelled:         "explicitly cancelled",
	KindInvalidURL:                  "invalid url",
	KindParameterEncodingFailed:     "parameter encoding failed",
	KindRequestAdaptationFailed:     "request adaptation failed",
	KindRequestRetryFailed:          "request retry failed",
	KindResponseSerializationFailed: "response serialization failed",
	KindResponseValidationFailed:    "response validation failed",
	KindSessionInvalidated:          "session invalidated",
	KindSessionTaskFailed:           "session task failed",
	KindURLRequestValidationFailed:  "url request validation failed",
}

// String returns the kind name.
func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

var (
	// ErrClientClosed is the cause of KindSessionInvalidated errors.
	ErrClientClosed = errors.New("client closed")

	// ErrCellularAccessDenied is returned when AllowsCellularAccess is false
	// and the current network path is expensive.
	ErrCellularAccessDenied = errors.New("cellular access not allowed")
)

// NetworkError is returned by every request operation. It is created at the
// point of failure and never modified afterward.
type NetworkError struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Err is the underlying cause, if any.
	Err error

	// URL is set for KindInvalidURL.
	URL string

	// Source is the file:line where the error was created.
	Source string
}

func newNetworkError(kind ErrorKind, err error) *NetworkError {
	return &NetworkError{Kind: kind, Err: err, Source: callerSource(2)}
}

// Error returns the underlying cause's message when there is one, so that
// structured server faults surface their own description.
func (e *NetworkError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Kind == KindInvalidURL && e.URL != "" {
		return "invalid url: " + e.URL
	}
	return e.Kind.String()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *NetworkError of the same kind.
func (e *NetworkError) Is(target error) bool {
	t, ok := target.(*NetworkError)
	return ok && t.Kind == e.Kind
}

// IsKind reports whether err is a NetworkError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *NetworkError
	return errors.As(err, &e) && e.Kind == kind
}

// asNetworkError classifies err into the network taxonomy, keeping an
// existing *NetworkError untouched.
func asNetworkError(kind ErrorKind, err error) *NetworkError {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne
	}
	return newNetworkError(kind, err)
}

// classifyTaskError maps a transport error to a NetworkError. Context
// cancellation caused by Request.Cancel becomes KindExplicitlyCancelled.
func classifyTaskError(err error, cancelled bool) *NetworkError {
	if cancelled && errors.Is(err, context.Canceled) {
		return newNetworkError(KindExplicitlyCancelled, err)
	}
	return asNetworkError(KindSessionTaskFailed, err)
}

func callerSource(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", file, line)
}
