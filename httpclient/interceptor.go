package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/google/uuid"
)

// RequestInterceptor adapts a request before it is sent. Returning an error
// aborts the attempt; the request is never sent.
//
// Common use cases:
//   - Adding authentication headers (Bearer tokens, API keys)
//   - Injecting correlation IDs
//   - Rate limiting outbound traffic
type RequestInterceptor interface {
	Intercept(ctx context.Context, req *http.Request, client *Client) (*http.Request, error)
}

// InterceptorFunc adapts a function to RequestInterceptor.
type InterceptorFunc func(ctx context.Context, req *http.Request, client *Client) (*http.Request, error)

// Intercept implements RequestInterceptor.
func (f InterceptorFunc) Intercept(
	ctx context.Context,
	req *http.Request,
	client *Client,
) (*http.Request, error) {
	return f(ctx, req, client)
}

// RequestRetrier decides whether a failed attempt is retried. A retrier that
// cannot decide returns DoNotRetry. It may block, for example while a
// credential is refreshed.
type RequestRetrier interface {
	Retry(ctx context.Context, req *Request, client *Client, err error) RetryPolicy
}

// RetrierFunc adapts a function to RequestRetrier.
type RetrierFunc func(ctx context.Context, req *Request, client *Client, err error) RetryPolicy

// Retry implements RequestRetrier.
func (f RetrierFunc) Retry(ctx context.Context, req *Request, client *Client, err error) RetryPolicy {
	return f(ctx, req, client, err)
}

// Interceptor is an ordered chain of interceptors and retriers. It is
// immutable once built and safe for concurrent use.
//
// Interceptors run in order, each seeing the previous one's output, and the
// first failure stops the chain. Retriers are consulted in order and the
// first Retry vote wins.
type Interceptor struct {
	interceptors []RequestInterceptor
	retriers     []RequestRetrier
}

// NewInterceptor builds a chain. Nil entries are skipped.
func NewInterceptor(interceptors []RequestInterceptor, retriers []RequestRetrier) *Interceptor {
	c := &Interceptor{}
	for _, i := range interceptors {
		if i != nil {
			c.interceptors = append(c.interceptors, i)
		}
	}
	for _, r := range retriers {
		if r != nil {
			c.retriers = append(c.retriers, r)
		}
	}
	return c
}

// Interceptors builds a chain without retriers.
func Interceptors(interceptors ...RequestInterceptor) *Interceptor {
	return NewInterceptor(interceptors, nil)
}

// Retriers builds a chain without interceptors.
func Retriers(retriers ...RequestRetrier) *Interceptor {
	return NewInterceptor(nil, retriers)
}

// Compose concatenates two chains, keeping each chain's internal order with
// perCall's entries first. It returns nil when both chains are empty.
func Compose(perCall, clientWide *Interceptor) *Interceptor {
	switch {
	case perCall.empty() && clientWide.empty():
		return nil
	case perCall.empty():
		return clientWide
	case clientWide.empty():
		return perCall
	}
	return &Interceptor{
		interceptors: slices.Concat(perCall.interceptors, clientWide.interceptors),
		retriers:     slices.Concat(perCall.retriers, clientWide.retriers),
	}
}

func (c *Interceptor) empty() bool {
	return c == nil || (len(c.interceptors) == 0 && len(c.retriers) == 0)
}

// RequestInterceptors returns a copy of the chain's interceptors.
func (c *Interceptor) RequestInterceptors() []RequestInterceptor {
	if c == nil {
		return nil
	}
	return slices.Clone(c.interceptors)
}

// RequestRetriers returns a copy of the chain's retriers.
func (c *Interceptor) RequestRetriers() []RequestRetrier {
	if c == nil {
		return nil
	}
	return slices.Clone(c.retriers)
}

// Intercept runs every interceptor in order and returns the first failure.
func (c *Interceptor) Intercept(
	ctx context.Context,
	req *http.Request,
	client *Client,
) (*http.Request, error) {
	if c == nil {
		return req, nil
	}
	for _, i := range c.interceptors {
		adapted, err := i.Intercept(ctx, req, client)
		if err != nil {
			return nil, err
		}
		if adapted != nil {
			req = adapted
		}
	}
	return req, nil
}

// Retry consults the retriers in order and stops at the first Retry vote.
// A panicking retrier counts as DoNotRetry.
func (c *Interceptor) Retry(ctx context.Context, req *Request, client *Client, err error) RetryPolicy {
	if c == nil {
		return DoNotRetry
	}
	for _, r := range c.retriers {
		if safeRetry(ctx, r, req, client, err) == Retry {
			return Retry
		}
	}
	return DoNotRetry
}

func safeRetry(
	ctx context.Context,
	r RequestRetrier,
	req *Request,
	client *Client,
	err error,
) (policy RetryPolicy) {
	defer func() {
		if p := recover(); p != nil {
			if client != nil {
				client.logger.Warn().
					Str("panic", fmt.Sprint(p)).
					Msg("request retrier panicked")
			}
			policy = DoNotRetry
		}
	}()
	return r.Retry(ctx, req, client, err)
}

// Common interceptor helpers

// HeaderInterceptor sets a header on every request.
func HeaderInterceptor(name, value string) RequestInterceptor {
	return InterceptorFunc(func(_ context.Context, req *http.Request, _ *Client) (*http.Request, error) {
		req.Header.Set(name, value)
		return req, nil
	})
}

// APIKeyInterceptor sets an API key header on every request.
func APIKeyInterceptor(headerName, apiKey string) RequestInterceptor {
	return HeaderInterceptor(headerName, apiKey)
}

// CorrelationIDInterceptor sets a correlation ID header unless the request
// already carries one. A nil idFunc generates random UUIDs.
func CorrelationIDInterceptor(headerName string, idFunc func() string) RequestInterceptor {
	if idFunc == nil {
		idFunc = uuid.NewString
	}
	return InterceptorFunc(func(_ context.Context, req *http.Request, _ *Client) (*http.Request, error) {
		if req.Header.Get(headerName) == "" {
			req.Header.Set(headerName, idFunc())
		}
		return req, nil
	})
}

// UserAgentInterceptor sets the User-Agent header.
func UserAgentInterceptor(userAgent string) RequestInterceptor {
	return HeaderInterceptor("User-Agent", userAgent)
}

// StatusRetrier retries responses whose status code is one of codes while
// the request is below the client's retry ceiling.
func StatusRetrier(codes ...int) RequestRetrier {
	set := make(map[int]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return RetrierFunc(func(_ context.Context, req *Request, client *Client, _ error) RetryPolicy {
		resp := req.LastResponse()
		if resp == nil || req.RetryCount() >= client.MaxRetries() {
			return DoNotRetry
		}
		if _, ok := set[resp.StatusCode]; ok {
			return Retry
		}
		return DoNotRetry
	})
}
