package httpclient

import (
	"context"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bodyCapture records the body of every request sent through a mock.
type bodyCapture struct {
	mu     sync.Mutex
	bodies []string
}

func (b *bodyCapture) hook(req *http.Request) {
	if req.Body == nil {
		return
	}
	data, _ := io.ReadAll(req.Body)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bodies = append(b.bodies, string(data))
}

func (b *bodyCapture) last() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.bodies) == 0 {
		return ""
	}
	return b.bodies[len(b.bodies)-1]
}

func TestRequestBuilder_URL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		baseURL string
		build   func(c *Client) *RequestBuilder
		wantURL string
	}{
		{
			name:    "given relative path, then joins with base url",
			baseURL: "https://api.example.com",
			build:   func(c *Client) *RequestBuilder { return c.Get("api/videos") },
			wantURL: "https://api.example.com/api/videos",
		},
		{
			name:    "given slashes on both sides, then joins with a single slash",
			baseURL: "https://api.example.com/v1/",
			build:   func(c *Client) *RequestBuilder { return c.Get("/api/videos") },
			wantURL: "https://api.example.com/v1/api/videos",
		},
		{
			name:    "given path params, then escapes and substitutes them",
			baseURL: "https://api.example.com",
			build: func(c *Client) *RequestBuilder {
				return c.Get("api/videos/{id}").PathParam("id", "a b/c")
			},
			wantURL: "https://api.example.com/api/videos/a%20b%2Fc",
		},
		{
			name:    "given query and parameters, then combines both",
			baseURL: "https://api.example.com",
			build: func(c *Client) *RequestBuilder {
				return c.Get("api/videos").Query("page", "2").Parameters(Parameters{"sort": "date"})
			},
			wantURL: "https://api.example.com/api/videos?page=2&sort=date",
		},
		{
			name:    "given query string encoding on POST, then parameters go to the url",
			baseURL: "https://api.example.com",
			build: func(c *Client) *RequestBuilder {
				return c.Post("api/videos").Encoding(EncodingQueryString).Parameters(Parameters{"draft": true})
			},
			wantURL: "https://api.example.com/api/videos?draft=1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := NewMockTransport().StubResponse(http.StatusOK, `{}`)
			c, err := New(tt.baseURL, WithMockTransport(mock))
			require.NoError(t, err)
			defer c.Close()

			_, err = tt.build(c).Do(context.Background())

			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, mock.LastRequest().URL.String())
		})
	}
}

func TestRequestBuilder_Body(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		build           func(c *Client) *RequestBuilder
		wantBody        string
		wantContentType string
	}{
		{
			name: "given POST parameters, then sends a JSON body",
			build: func(c *Client) *RequestBuilder {
				return c.Post("api/device").Parameters(Parameters{"brand": "Apple"})
			},
			wantBody:        `{"brand":"Apple"}`,
			wantContentType: "application/json",
		},
		{
			name: "given URL encoding on PUT, then sends a form body",
			build: func(c *Client) *RequestBuilder {
				return c.Put("api/device").Encoding(EncodingURL).Parameters(Parameters{"brand": "Apple"})
			},
			wantBody:        "brand=Apple",
			wantContentType: contentTypeForm,
		},
		{
			name: "given explicit content type, then it is kept",
			build: func(c *Client) *RequestBuilder {
				return c.Post("api/device").
					Header("Content-Type", "application/vnd.api+json").
					Parameters(Parameters{"brand": "Apple"})
			},
			wantBody:        `{"brand":"Apple"}`,
			wantContentType: "application/vnd.api+json",
		},
		{
			name: "given no parameters, then sends no body",
			build: func(c *Client) *RequestBuilder {
				return c.Post("api/authenticate/exchange/1")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			capture := &bodyCapture{}
			mock := NewMockTransport().StubResponse(http.StatusOK, `{}`).OnRequest(capture.hook)
			c := newTestClient(t, mock)

			_, err := tt.build(c).Do(context.Background())

			require.NoError(t, err)
			assert.Equal(t, tt.wantBody, capture.last())
			assert.Equal(t, tt.wantContentType, mock.LastRequest().Header.Get("Content-Type"))
		})
	}
}

func TestRequestBuilder_BodyResentOnRetry(t *testing.T) {
	t.Parallel()

	capture := &bodyCapture{}
	mock := NewMockTransport().
		StubSequence(nil, MockResponse{StatusCode: http.StatusServiceUnavailable}, MockResponse{StatusCode: http.StatusOK}).
		OnRequest(capture.hook)
	c := newTestClient(t, mock, WithInterceptor(Retriers(TransientRetrier(nil))))

	_, err := c.Post("api/videos").Parameters(Parameters{"title": "clip"}).Validate().Do(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{`{"title":"clip"}`, `{"title":"clip"}`}, capture.bodies)
}

func TestRequestBuilder_Headers(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.AdditionalHeaders = map[string]string{
		"X-Layer":       "additional",
		"X-App-Version": "1.4.0",
	}
	mock := NewMockTransport().StubResponse(http.StatusOK, `{}`)
	c := newTestClient(t, mock,
		WithConfig(cfg),
		WithSessionHeaders(NewHeaders(
			Header{"X-Layer", "session"},
			Header{"X-Session", "s"},
			AcceptLanguageHeader("en;q=1.0"),
		)),
	)

	_, err := c.Get("api/videos").
		Headers(NewHeaders(Header{"x-layer", "call"})).
		Do(context.Background())
	require.NoError(t, err)

	header := mock.LastRequest().Header
	assert.Equal(t, "call", header.Get("X-Layer"))
	assert.Equal(t, "s", header.Get("X-Session"))
	assert.Equal(t, "1.4.0", header.Get("X-App-Version"))
	assert.Equal(t, "en;q=1.0", header.Get("Accept-Language"))
	assert.Equal(t, "no-cache", header.Get("Cache-Control"))
}

func TestRequestBuilder_CacheControl(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		policy CachePolicy
		header string
		want   string
	}{
		{name: "given default policy, then asks for fresh data", policy: CachePolicyReloadIgnoringLocalCache, want: "no-cache"},
		{name: "given use protocol, then sends no directive", policy: CachePolicyUseProtocol, want: ""},
		{name: "given return cache data, then accepts stale data", policy: CachePolicyReturnCacheDataElseLoad, want: "max-stale"},
		{name: "given per-call directive, then it wins", policy: CachePolicyReloadIgnoringLocalCache, header: "max-age=60", want: "max-age=60"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			cfg.CachePolicy = tt.policy
			mock := NewMockTransport().StubResponse(http.StatusOK, `{}`)
			c := newTestClient(t, mock, WithConfig(cfg))

			rb := c.Get("api/videos")
			if tt.header != "" {
				rb = rb.Header("Cache-Control", tt.header)
			}
			_, err := rb.Do(context.Background())

			require.NoError(t, err)
			assert.Equal(t, tt.want, mock.LastRequest().Header.Get("Cache-Control"))
		})
	}
}

func TestRequestBuilder_BuildErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		build    func(c *Client) *RequestBuilder
		closed   bool
		wantKind ErrorKind
	}{
		{
			name:     "given closed client, then session invalidated",
			build:    func(c *Client) *RequestBuilder { return c.Get("api/videos") },
			closed:   true,
			wantKind: KindSessionInvalidated,
		},
		{
			name: "given parameters that are not an object, then parameter encoding failed",
			build: func(c *Client) *RequestBuilder {
				return c.Get("api/videos").Parameters([]string{"a"})
			},
			wantKind: KindParameterEncodingFailed,
		},
		{
			name:     "given malformed path, then invalid url",
			build:    func(c *Client) *RequestBuilder { return c.Get("api/%zz") },
			wantKind: KindInvalidURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := NewMockTransport().StubResponse(http.StatusOK, `{}`)
			c := newTestClient(t, mock)
			if tt.closed {
				require.NoError(t, c.Close())
			}

			req, err := tt.build(c).Build(context.Background())

			assert.Nil(t, req)
			assert.True(t, IsKind(err, tt.wantKind), "got %v", err)
			assert.Equal(t, 0, c.ActiveRequests())
			assert.Zero(t, mock.RequestCount())
		})
	}
}

func TestRequestBuilder_Redirect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		handler    RedirectHandler
		wantStatus int
		wantPath   string
	}{
		{
			name:       "given default policy, then follows the redirect",
			wantStatus: http.StatusOK,
			wantPath:   "/new",
		},
		{
			name:       "given do not follow, then returns the redirect itself",
			handler:    DoNotFollowRedirects,
			wantStatus: http.StatusFound,
			wantPath:   "/old",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := NewMockTransport().
				StubSequence(matchPath("/old"), MockResponse{
					StatusCode: http.StatusFound,
					Header:     http.Header{"Location": {testBaseURL + "/new"}},
				}).
				StubPath("/new", http.StatusOK, `{}`)
			c := newTestClient(t, mock)

			resp, err := c.Get("old").Redirect(tt.handler).Do(context.Background())

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantPath, mock.LastRequest().URL.Path)
		})
	}
}
