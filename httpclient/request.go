package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// RequestBuilder provides a fluent API for constructing requests.
//
// Create a RequestBuilder using Client.Request() or one of the method
// shortcuts:
//
//	resp, err := client.Post("api/users").
//	    Parameters(httpclient.Parameters{"name": "John"}).
//	    Validate().
//	    Do(ctx)
type RequestBuilder struct {
	client      *Client
	method      string
	path        string
	pathParams  map[string]string
	query       url.Values
	params      any
	encoding    ParameterEncoding
	headers     Headers
	interceptor *Interceptor
	validators  []Validator
	redirect    RedirectHandler
}

// PathParam sets a path parameter value.
//
// Path parameters replace {key} placeholders in the path. The value is
// URL-escaped automatically.
//
//	client.Get("api/users/{id}").PathParam("id", userID)
func (rb *RequestBuilder) PathParam(key, value string) *RequestBuilder {
	if rb.pathParams == nil {
		rb.pathParams = make(map[string]string)
	}
	rb.pathParams[key] = value
	return rb
}

// Query adds a query parameter independently of the parameter encoding.
func (rb *RequestBuilder) Query(key, value string) *RequestBuilder {
	if rb.query == nil {
		rb.query = make(url.Values)
	}
	rb.query.Add(key, value)
	return rb
}

// Parameters sets the request parameters. JSON encoding accepts any value;
// the URL encodings accept maps or values that encode to a JSON object.
func (rb *RequestBuilder) Parameters(params any) *RequestBuilder {
	rb.params = params
	return rb
}

// Encoding sets how parameters are applied. The default depends on the
// method.
func (rb *RequestBuilder) Encoding(e ParameterEncoding) *RequestBuilder {
	rb.encoding = e
	return rb
}

// Headers merges headers into the per-call headers. Per-call headers win over
// client-wide ones.
func (rb *RequestBuilder) Headers(headers Headers) *RequestBuilder {
	rb.headers = rb.headers.Merge(headers)
	return rb
}

// Header sets a single per-call header.
func (rb *RequestBuilder) Header(key, value string) *RequestBuilder {
	rb.headers.Set(key, value)
	return rb
}

// Interceptor sets the per-call chain. It runs before the client-wide chain.
func (rb *RequestBuilder) Interceptor(i *Interceptor) *RequestBuilder {
	rb.interceptor = i
	return rb
}

// Validate rejects responses outside 200..299.
func (rb *RequestBuilder) Validate() *RequestBuilder {
	return rb.ValidateWith(ValidateSuccess())
}

// ValidateWith appends validators, run in order on every attempt that got a
// response.
func (rb *RequestBuilder) ValidateWith(validators ...Validator) *RequestBuilder {
	for _, v := range validators {
		if v != nil {
			rb.validators = append(rb.validators, v)
		}
	}
	return rb
}

// Redirect sets the redirect policy for this request.
func (rb *RequestBuilder) Redirect(h RedirectHandler) *RequestBuilder {
	rb.redirect = h
	return rb
}

// Build encodes the request and registers its handle with the client. The
// handle is not started; call Resume or use Do.
//
// Cancelling ctx cancels the request.
func (rb *RequestBuilder) Build(ctx context.Context) (*Request, error) {
	c := rb.client
	if c.closed.Load() {
		return nil, newNetworkError(KindSessionInvalidated, ErrClientClosed)
	}

	method := rb.method
	if method == "" {
		method = http.MethodGet
	}

	target, err := rb.buildURL()
	if err != nil {
		return nil, err
	}

	enc, err := encodeParameters(rb.params, rb.encoding.resolve(method))
	if err != nil {
		return nil, newNetworkError(KindParameterEncodingFailed, err)
	}
	if enc.query != "" {
		target = appendQuery(target, enc.query)
	}

	headers := c.Headers().
		Merge(HeadersFromMap(c.config.httpConfig.AdditionalHeaders)).
		Merge(rb.headers)
	if _, ok := headers.Get("Content-Type"); !ok && enc.contentType != "" {
		headers.Set("Content-Type", enc.contentType)
	}
	if _, ok := headers.Get("Cache-Control"); !ok {
		if d := c.config.httpConfig.CachePolicy.directive(); d != "" {
			headers.Set("Cache-Control", d)
		}
	}

	body := enc.body
	redirect := rb.redirect
	build := func(ctx context.Context) (*http.Request, []byte, error) {
		if redirect != nil {
			ctx = context.WithValue(ctx, redirectKey{}, redirect)
		}
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, nil, err
		}
		headers.applyTo(req.Header)
		return req, body, nil
	}

	req := newRequest(ctx, c, Compose(rb.interceptor, c.interceptor), build, slices.Clone(rb.validators))
	c.registry.register(req)
	if req.State().IsTerminal() {
		// Expired before it was registered.
		c.registry.remove(req.ID())
	}
	if c.closed.Load() {
		req.Cancel()
		return nil, newNetworkError(KindSessionInvalidated, ErrClientClosed)
	}
	return req, nil
}

// Do builds the request, starts it and waits for its response.
func (rb *RequestBuilder) Do(ctx context.Context) (*Response, error) {
	req, err := rb.Build(ctx)
	if err != nil {
		return nil, err
	}
	return req.Resume().Response(ctx)
}

// buildURL joins the base URL, path and extra query parameters.
func (rb *RequestBuilder) buildURL() (string, error) {
	path := rb.path
	for k, v := range rb.pathParams {
		path = strings.ReplaceAll(path, "{"+k+"}", url.PathEscape(v))
	}

	fullURL := path
	if base := rb.client.baseURL; base != nil {
		fullURL = strings.TrimSuffix(base.String(), "/") + "/" + strings.TrimPrefix(path, "/")
	}

	u, err := url.Parse(fullURL)
	if err != nil {
		return "", &NetworkError{Kind: KindInvalidURL, Err: err, URL: fullURL, Source: callerSource(1)}
	}
	if u.Scheme == "" || u.Host == "" {
		return "", &NetworkError{Kind: KindInvalidURL, URL: fullURL, Source: callerSource(1)}
	}

	if len(rb.query) > 0 {
		q := u.Query()
		for k, v := range rb.query {
			for _, vv := range v {
				q.Add(k, vv)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// appendQuery adds an encoded query to target, keeping any existing query.
func appendQuery(target, query string) string {
	if strings.Contains(target, "?") {
		return target + "&" + query
	}
	return target + "?" + query
}

// RedirectHandler decides whether a redirect is followed. It has the
// semantics of http.Client.CheckRedirect.
type RedirectHandler func(req *http.Request, via []*http.Request) error

// DoNotFollowRedirects returns the redirect response itself.
func DoNotFollowRedirects(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

type redirectKey struct{}

const maxRedirects = 10

// checkRedirect dispatches to the request's RedirectHandler.
func checkRedirect(req *http.Request, via []*http.Request) error {
	if h, ok := req.Context().Value(redirectKey{}).(RedirectHandler); ok {
		return h(req, via)
	}
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}
	return nil
}
