package httpclient

import (
	"context"
	"errors"
	"net/http"
)

var errEmptyBody = errors.New("response body is empty")

// DataResponse is the typed result of a request.
type DataResponse[T any] struct {
	// Request is the last adapted request that was sent.
	Request *http.Request

	// Response is nil when no attempt got a response.
	Response *http.Response

	Data    []byte
	Metrics *TraceInfo

	// Value is the decoded body, or the zero value when Err is set.
	Value T

	// Err is the request's terminal error or the serialization failure.
	Err error
}

// ParsedResponse is implemented by every DataResponse, letting monitors
// inspect EventParsedResponse values without knowing T.
type ParsedResponse interface {
	ResponseValue() any
	ResponseError() error
}

// ResponseValue returns Value.
func (r DataResponse[T]) ResponseValue() any { return r.Value }

// ResponseError returns Err.
func (r DataResponse[T]) ResponseError() error { return r.Err }

// DataTask awaits the typed result of a Request.
type DataTask[T any] struct {
	request *Request
	done    chan struct{}
	result  DataResponse[T]
}

// Serializing decodes the terminal response of req into T. The decoded
// value is delivered to monitors as EventParsedResponse before the request's
// terminal event.
//
//	task := httpclient.Serializing[User](req)
//	user, err := task.Value(ctx)
func Serializing[T any](req *Request) *DataTask[T] {
	t := &DataTask[T]{request: req, done: make(chan struct{})}
	req.addSerializer(func(o outcome) any {
		t.result = serialize[T](o)
		close(t.done)
		return t.result
	})
	return t
}

// Request returns the underlying handle.
func (t *DataTask[T]) Request() *Request {
	return t.request
}

// Response resumes the request and waits for its typed result.
func (t *DataTask[T]) Response(ctx context.Context) (DataResponse[T], error) {
	t.request.Resume()
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return DataResponse[T]{}, ctx.Err()
	}
}

// Value resumes the request and returns the decoded value.
func (t *DataTask[T]) Value(ctx context.Context) (T, error) {
	resp, err := t.Response(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return resp.Value, resp.Err
}

func serialize[T any](o outcome) DataResponse[T] {
	resp := DataResponse[T]{
		Request:  o.request,
		Response: o.response,
		Data:     o.data,
		Metrics:  o.trace,
		Err:      o.err,
	}
	if o.err != nil {
		return resp
	}

	if len(o.data) == 0 {
		if !emptyBodyAllowed(o.request, o.response) {
			resp.Err = newNetworkError(KindResponseSerializationFailed, errEmptyBody)
		}
		return resp
	}

	if raw, ok := any(&resp.Value).(*[]byte); ok {
		*raw = o.data
		return resp
	}

	contentType := ""
	if o.response != nil {
		contentType = o.response.Header.Get("Content-Type")
	}
	if err := decodeBody(o.data, contentType, &resp.Value); err != nil {
		resp.Err = newNetworkError(KindResponseSerializationFailed, err)
	}
	return resp
}

// emptyBodyAllowed reports whether an empty body is a valid result.
func emptyBodyAllowed(req *http.Request, resp *http.Response) bool {
	if req != nil && req.Method == http.MethodHead {
		return true
	}
	if resp == nil {
		return false
	}
	return resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusResetContent
}

// Fetch sends a request that validates the API's fault envelope and a 2xx
// status, then decodes the body into T.
//
//	user, err := httpclient.Fetch[User](ctx, client, "api/users/1", http.MethodGet, nil, httpclient.Headers{})
func Fetch[T any](
	ctx context.Context,
	client *Client,
	path, method string,
	params any,
	headers Headers,
) (T, error) {
	req, err := client.Request(path, method).
		Parameters(params).
		Headers(headers).
		ValidateWith(ValidateFault).
		Validate().
		Build(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return Serializing[T](req).Value(ctx)
}
