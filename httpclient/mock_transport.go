package httpclient

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"sync"
)

// MockTransport provides a configurable http.RoundTripper for testing.
// It allows stubbing responses and verifying request expectations.
//
// Stubs are checked in registration order. A stub registered with
// StubSequence answers with its responses in turn and repeats the last one.
type MockTransport struct {
	mu          sync.Mutex
	stubs       []*stub
	fallback    *stub
	requests    []*http.Request
	requestHook func(*http.Request)
}

// MockResponse is a canned response.
type MockResponse struct {
	StatusCode int
	Body       string
	Header     http.Header
	Err        error
}

type stub struct {
	matcher   func(*http.Request) bool
	responses []MockResponse
	handler   func(*http.Request) (*http.Response, error)
	calls     int
}

// next returns the response for the current call and advances the sequence.
func (s *stub) next() MockResponse {
	i := min(s.calls, len(s.responses)-1)
	s.calls++
	return s.responses[i]
}

// NewMockTransport creates a new MockTransport for testing.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// StubResponse answers every unmatched request with the given response.
func (m *MockTransport) StubResponse(statusCode int, body string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &stub{responses: []MockResponse{{StatusCode: statusCode, Body: body}}}
	return m
}

// StubError answers every unmatched request with err.
func (m *MockTransport) StubError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &stub{responses: []MockResponse{{Err: err}}}
	return m
}

// StubPath stubs requests matching the path to return the given response.
func (m *MockTransport) StubPath(path string, statusCode int, body string) *MockTransport {
	return m.StubSequence(matchPath(path), MockResponse{StatusCode: statusCode, Body: body})
}

// StubPathRegex stubs requests matching the path regex to return the given response.
func (m *MockTransport) StubPathRegex(pattern string, statusCode int, body string) *MockTransport {
	re := regexp.MustCompile(pattern)
	return m.StubSequence(func(req *http.Request) bool {
		return re.MatchString(req.URL.Path)
	}, MockResponse{StatusCode: statusCode, Body: body})
}

// StubSequence answers requests matching matcher with responses in order.
// A nil matcher matches every request.
//
//	mock.StubSequence(nil,
//	    httpclient.MockResponse{StatusCode: 401},
//	    httpclient.MockResponse{StatusCode: 200, Body: `{"ok":true}`},
//	)
func (m *MockTransport) StubSequence(matcher func(*http.Request) bool, responses ...MockResponse) *MockTransport {
	if len(responses) == 0 {
		return m
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, &stub{matcher: matcher, responses: responses})
	return m
}

// StubHandler answers requests matching matcher by calling fn. fn runs
// without the transport's lock held and may block.
func (m *MockTransport) StubHandler(
	matcher func(*http.Request) bool,
	fn func(*http.Request) (*http.Response, error),
) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, &stub{matcher: matcher, handler: fn})
	return m
}

// OnRequest sets a hook that is called for each request.
// Useful for assertions or capturing request details.
func (m *MockTransport) OnRequest(fn func(*http.Request)) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestHook = fn
	return m
}

// RoundTrip implements http.RoundTripper.
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	hook := m.requestHook

	var handler func(*http.Request) (*http.Response, error)
	var resp MockResponse
	found := false
	for _, s := range m.stubs {
		if s.matcher != nil && !s.matcher(req) {
			continue
		}
		found = true
		if s.handler != nil {
			handler = s.handler
		} else {
			resp = s.next()
		}
		break
	}
	if !found && m.fallback != nil {
		found = true
		resp = m.fallback.next()
	}
	m.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	if err := req.Context().Err(); err != nil {
		return nil, err
	}

	switch {
	case handler != nil:
		return handler(req)
	case !found:
		return nil, errors.New("no stub found for request: " + req.Method + " " + req.URL.String())
	case resp.Err != nil:
		return nil, resp.Err
	default:
		return newMockResponse(req, resp), nil
	}
}

// Requests returns all requests made through this transport.
func (m *MockTransport) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request{}, m.requests...)
}

// RequestCount returns the number of requests made.
func (m *MockTransport) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// LastRequest returns the most recent request, or nil if none.
func (m *MockTransport) LastRequest() *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// Reset clears all recorded requests and stubs.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.stubs = nil
	m.fallback = nil
	m.requestHook = nil
}

func matchPath(path string) func(*http.Request) bool {
	return func(req *http.Request) bool {
		return req.URL.Path == path
	}
}

func newMockResponse(req *http.Request, r MockResponse) *http.Response {
	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	if r.Body != "" && header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/json")
	}
	return &http.Response{
		Status:        strconv.Itoa(r.StatusCode) + " " + http.StatusText(r.StatusCode),
		StatusCode:    r.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewBufferString(r.Body)),
		ContentLength: int64(len(r.Body)),
		Request:       req,
	}
}

// WithMockTransport is a convenience function to create a client with a mock transport.
func WithMockTransport(mock *MockTransport) Option {
	return func(cfg *internalConfig) {
		cfg.MockTransport = mock
	}
}
