package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kroma-labs/sentinel-mobile/internal/guard"
	"github.com/kroma-labs/sentinel-mobile/reachability"
)

// Client issues requests against one API base URL. It owns the registry of
// in-flight requests, the client-wide interceptor chain, the monitor
// fan-out and the reachability status.
//
// Create a Client using New():
//
//	client, err := httpclient.New("https://api.example.com",
//	    httpclient.WithServiceName("mobile-app"),
//	    httpclient.WithInterceptor(chain),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	resp, err := client.Get("api/users/1").Validate().Do(ctx)
type Client struct {
	// httpClient is the underlying HTTP client with transport chain.
	httpClient *http.Client

	// config holds all client configuration.
	config *internalConfig

	baseURL     *url.URL
	logger      zerolog.Logger
	registry    *requestRegistry
	monitor     *CompositeMonitor
	interceptor *Interceptor

	// headers are the session headers sent with every request.
	headers *guard.Value[Headers]

	status      *reachability.Publisher
	stopMonitor context.CancelFunc
	monitorDone chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
}

// New creates a Client for baseURL.
//
// The transport chain is, from the wire outwards: the base transport (built
// from Config unless WithTransport or WithMockTransport is given), optional
// fault injection, the optional circuit breaker, then OpenTelemetry tracing
// and metrics.
//
// A malformed baseURL fails with KindInvalidURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, &NetworkError{Kind: KindInvalidURL, Err: err, URL: baseURL, Source: callerSource(1)}
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, &NetworkError{Kind: KindInvalidURL, URL: baseURL, Source: callerSource(1)}
	}

	cfg := newConfig(opts...)

	withBreaker := newCircuitBreakerTransport(newChaosTransport(cfg.baseTransport(), cfg.chaos), cfg)
	instrumented := newOtelTransport(withBreaker, cfg)

	sessionHeaders := NewHeaders(DefaultAcceptLanguageHeader())
	if cfg.sessionHeaders != nil {
		sessionHeaders = *cfg.sessionHeaders
	}

	interceptor := cfg.interceptor
	if rl := NewRateLimitInterceptor(cfg.httpConfig.RateLimit); rl != nil {
		interceptor = Compose(interceptor, Interceptors(rl))
	}

	c := &Client{
		httpClient: &http.Client{
			Transport:     instrumented,
			CheckRedirect: checkRedirect,
		},
		config:      cfg,
		baseURL:     u,
		logger:      cfg.logger,
		registry:    newRequestRegistry(),
		monitor:     NewCompositeMonitor(cfg.logger, cfg.monitors...),
		interceptor: interceptor,
		headers:     guard.New(sessionHeaders),
		status:      reachability.NewPublisher(),
		monitorDone: make(chan struct{}),
	}
	c.startPathMonitor()

	return c, nil
}

// NewTransport creates an instrumented http.RoundTripper that can be used
// with a custom http.Client.
//
// Example:
//
//	transport := httpclient.NewTransport(http.DefaultTransport,
//	    httpclient.WithServiceName("uploader"),
//	)
//	client := &http.Client{Transport: transport}
func NewTransport(base http.RoundTripper, opts ...Option) http.RoundTripper {
	cfg := newConfig(opts...)
	return newOtelTransport(newCircuitBreakerTransport(newChaosTransport(base, cfg.chaos), cfg), cfg)
}

func (c *Client) startPathMonitor() {
	if c.config.pathMonitor == nil {
		c.status.Publish(reachability.Path{Status: reachability.StatusSatisfied})
		close(c.monitorDone)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.stopMonitor = cancel
	go func() {
		defer close(c.monitorDone)
		err := c.status.Run(ctx, c.config.pathMonitor)
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn().Err(err).Msg("path monitor stopped")
		}
	}()
}

// HTTP returns the underlying *http.Client for advanced use cases.
//
// Requests sent through it bypass the registry, the interceptor chain and
// the monitors but keep the instrumented transport.
func (c *Client) HTTP() *http.Client {
	return c.httpClient
}

// BaseURL returns a copy of the base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.config.httpConfig
}

// MaxRetries returns the retry ceiling applied to every request.
func (c *Client) MaxRetries() int {
	return c.config.httpConfig.MaxRetries
}

// Logger returns the client's logger.
func (c *Client) Logger() zerolog.Logger {
	return c.logger
}

// Headers returns a copy of the session headers.
func (c *Client) Headers() Headers {
	return c.headers.Load().Clone()
}

// SetHeader sets a session header for every subsequent request.
func (c *Client) SetHeader(name, value string) {
	c.headers.Update(func(h *Headers) {
		next := h.Clone()
		next.Set(name, value)
		*h = next
	})
}

// RemoveHeader removes a session header.
func (c *Client) RemoveHeader(name string) {
	c.headers.Update(func(h *Headers) {
		next := h.Clone()
		next.Remove(name)
		*h = next
	})
}

// Request creates a RequestBuilder for path relative to the base URL.
func (c *Client) Request(path, method string) *RequestBuilder {
	return &RequestBuilder{client: c, method: method, path: path}
}

// Get creates a GET RequestBuilder.
func (c *Client) Get(path string) *RequestBuilder {
	return c.Request(path, http.MethodGet)
}

// Post creates a POST RequestBuilder.
func (c *Client) Post(path string) *RequestBuilder {
	return c.Request(path, http.MethodPost)
}

// Put creates a PUT RequestBuilder.
func (c *Client) Put(path string) *RequestBuilder {
	return c.Request(path, http.MethodPut)
}

// Patch creates a PATCH RequestBuilder.
func (c *Client) Patch(path string) *RequestBuilder {
	return c.Request(path, http.MethodPatch)
}

// Delete creates a DELETE RequestBuilder.
func (c *Client) Delete(path string) *RequestBuilder {
	return c.Request(path, http.MethodDelete)
}

// LookupRequest returns the in-flight request with id.
func (c *Client) LookupRequest(id uuid.UUID) (*Request, bool) {
	return c.registry.lookup(id)
}

// ActiveRequests returns the number of requests that are not terminal.
func (c *Client) ActiveRequests() int {
	return c.registry.len()
}

// Status returns the latest network path.
func (c *Client) Status() reachability.Path {
	return c.status.Current()
}

// SubscribeStatus returns a channel receiving the current path and every
// change, and a function that ends the subscription.
func (c *Client) SubscribeStatus() (<-chan reachability.Path, func()) {
	return c.status.Subscribe()
}

// checkPath rejects attempts on an expensive path when cellular access is
// not allowed.
func (c *Client) checkPath() error {
	if c.config.httpConfig.AllowsCellularAccess {
		return nil
	}
	if c.status.Current().IsExpensive {
		return ErrCellularAccessDenied
	}
	return nil
}

// Close cancels every in-flight request, stops the path monitor, drains the
// monitors and closes idle connections. Requests built afterwards fail with
// KindSessionInvalidated.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		for _, req := range c.registry.snapshot() {
			req.Cancel()
		}

		if c.stopMonitor != nil {
			c.stopMonitor()
		}
		<-c.monitorDone

		c.monitor.Close()
		c.httpClient.CloseIdleConnections()

		c.logger.Debug().Msg("client closed")
	})
	return nil
}
