package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/kroma-labs/sentinel-mobile/reachability"
)

const (
	// scope is the instrumentation scope name for OpenTelemetry.
	scope = "github.com/kroma-labs/sentinel-mobile/httpclient"
)

// =============================================================================
// Internal Configuration
// =============================================================================

// internalConfig holds all configuration including client behaviour,
// collaborators and OTel settings.
type internalConfig struct {
	// Client configuration
	httpConfig Config

	logger zerolog.Logger

	// === Collaborators ===

	// monitors receive every request's lifecycle events.
	monitors []Monitor

	// interceptor is the client-wide chain.
	interceptor *Interceptor

	// pathMonitor publishes reachability. If nil the path is assumed to
	// be satisfied and inexpensive.
	pathMonitor reachability.PathMonitor

	// sessionHeaders are the initial session headers.
	// Default: Accept-Language derived from the environment.
	sessionHeaders *Headers

	// transport replaces the http.Transport built from Config.
	transport http.RoundTripper

	// MockTransport replaces the base transport in tests.
	MockTransport *MockTransport

	// chaos injects simulated network faults when set.
	chaos *ChaosConfig

	// BreakerConfig enables the circuit breaker when set.
	BreakerConfig *BreakerConfig

	// === OpenTelemetry Configuration ===

	// TracerProvider is the tracer provider to use.
	// If not set, uses the global provider via otel.GetTracerProvider().
	TracerProvider trace.TracerProvider

	// MeterProvider is the meter provider to use.
	// If not set, uses the global provider via otel.GetMeterProvider().
	MeterProvider metric.MeterProvider

	Tracer  trace.Tracer
	Meter   metric.Meter
	Metrics *metrics

	// ServiceName identifies the client. Added as "http.client.name" on
	// spans and metrics.
	ServiceName string

	// EnableNetworkTrace enables httptrace span events for DNS, connect and
	// TLS. Default: true
	EnableNetworkTrace bool

	// Propagators configures the context propagators.
	// Default: TraceContext + Baggage (W3C standard)
	Propagators propagation.TextMapPropagator

	// SpanNameFormatter formats span names from the request.
	// Default: "HTTP {method}"
	SpanNameFormatter SpanNameFormatter

	// === Advanced Settings ===

	TLSConfig            *tls.Config
	ProxyURL             *url.URL
	ProxyFromEnvironment bool
}

// newConfig creates a new internal config with defaults and applies options.
func newConfig(opts ...Option) *internalConfig {
	cfg := &internalConfig{
		httpConfig:     DefaultConfig(),
		logger:         zerolog.Nop(),
		TracerProvider: otel.GetTracerProvider(),
		MeterProvider:  otel.GetMeterProvider(),

		EnableNetworkTrace:   true,
		ProxyFromEnvironment: true,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	cfg.Tracer = cfg.TracerProvider.Tracer(scope)
	cfg.Meter = cfg.MeterProvider.Meter(scope)

	var err error
	if cfg.Metrics, err = newMetrics(cfg.Meter); err != nil {
		cfg.logger.Warn().Err(err).Msg("metric instruments unavailable")
	}
	return cfg
}

// buildTransport creates an http.Transport from the configuration.
func (cfg *internalConfig) buildTransport() *http.Transport {
	hc := cfg.httpConfig

	dialer := &net.Dialer{
		Timeout:       hc.DialTimeout,
		KeepAlive:     hc.KeepAlive,
		FallbackDelay: hc.FallbackDelay,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          hc.MaxIdleConns,
		MaxIdleConnsPerHost:   hc.MaxIdleConnsPerHost,
		MaxConnsPerHost:       hc.MaxConnsPerHost,
		IdleConnTimeout:       hc.IdleConnTimeout,
		TLSHandshakeTimeout:   hc.TLSHandshakeTimeout,
		ResponseHeaderTimeout: hc.RequestTimeout,
		ExpectContinueTimeout: hc.ExpectContinueTimeout,
		DisableCompression:    hc.DisableCompression,
		TLSClientConfig:       cfg.TLSConfig,
		ForceAttemptHTTP2:     hc.ForceHTTP2,
	}

	if cfg.ProxyURL != nil {
		transport.Proxy = http.ProxyURL(cfg.ProxyURL)
	} else if cfg.ProxyFromEnvironment {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return transport
}

// baseTransport returns the innermost RoundTripper.
func (cfg *internalConfig) baseTransport() http.RoundTripper {
	switch {
	case cfg.MockTransport != nil:
		return cfg.MockTransport
	case cfg.transport != nil:
		return cfg.transport
	default:
		return cfg.buildTransport()
	}
}

// baseAttributes returns common attributes for all spans and metrics.
func (cfg *internalConfig) baseAttributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 1)
	if cfg.ServiceName != "" {
		attrs = append(attrs, attribute.String("http.client.name", cfg.ServiceName))
	}
	return attrs
}

// =============================================================================
// Options - Functional Options for Client Configuration
// =============================================================================

// SpanNameFormatter formats span names based on the HTTP request.
//
// Default behavior produces: "HTTP {method}" (e.g., "HTTP GET")
//
// Example custom formatter:
//
//	func(method string, r *http.Request) string {
//	    return method + " " + r.URL.Path
//	}
type SpanNameFormatter func(method string, r *http.Request) string

// Option configures the Client.
type Option func(*internalConfig)

// WithConfig sets the client configuration.
//
// Example - Customizing the default config:
//
//	cfg := httpclient.DefaultConfig()
//	cfg.MaxRetries = 5
//
//	client, err := httpclient.New(baseURL, httpclient.WithConfig(cfg))
//
// Example - Loading from a file:
//
//	cfg, err := httpclient.LoadConfig("client.yaml")
//	if err != nil {
//	    return err
//	}
//	client, err := httpclient.New(baseURL, httpclient.WithConfig(cfg))
func WithConfig(c Config) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig = c
	}
}

// WithServiceName sets an identifier for this client in traces and metrics.
// This value is added as the "http.client.name" attribute.
func WithServiceName(name string) Option {
	return func(cfg *internalConfig) {
		cfg.ServiceName = name
	}
}

// WithLogger sets the logger. Default: zerolog.Nop().
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *internalConfig) {
		cfg.logger = logger
	}
}

// WithMonitors adds monitors that receive every request's events. They are
// wrapped in one CompositeMonitor owned by the client.
func WithMonitors(monitors ...Monitor) Option {
	return func(cfg *internalConfig) {
		cfg.monitors = append(cfg.monitors, monitors...)
	}
}

// WithInterceptor adds a client-wide chain. Calling it more than once
// concatenates the chains in call order.
//
// Example:
//
//	client, err := httpclient.New(baseURL,
//	    httpclient.WithInterceptor(httpclient.NewInterceptor(
//	        []httpclient.RequestInterceptor{auth.NewBearerTokenInterceptor(provider)},
//	        []httpclient.RequestRetrier{retrier},
//	    )),
//	)
func WithInterceptor(i *Interceptor) Option {
	return func(cfg *internalConfig) {
		cfg.interceptor = Compose(cfg.interceptor, i)
	}
}

// WithPathMonitor sets the collaborator reporting network reachability.
func WithPathMonitor(m reachability.PathMonitor) Option {
	return func(cfg *internalConfig) {
		cfg.pathMonitor = m
	}
}

// WithSessionHeaders replaces the initial session headers, which default to
// Accept-Language.
func WithSessionHeaders(h Headers) Option {
	return func(cfg *internalConfig) {
		h = h.Clone()
		cfg.sessionHeaders = &h
	}
}

// WithTransport sets the base RoundTripper. Breaker and instrumentation
// still wrap it; the pool settings of Config are ignored.
func WithTransport(rt http.RoundTripper) Option {
	return func(cfg *internalConfig) {
		cfg.transport = rt
	}
}

// WithTracerProvider sets a custom TracerProvider.
// If not set, the global TracerProvider is used (otel.GetTracerProvider()).
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *internalConfig) {
		cfg.TracerProvider = tp
	}
}

// WithMeterProvider sets a custom MeterProvider.
// If not set, the global MeterProvider is used (otel.GetMeterProvider()).
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *internalConfig) {
		cfg.MeterProvider = mp
	}
}

// WithTLSConfig sets a custom TLS configuration for the transport.
func WithTLSConfig(tlsCfg *tls.Config) Option {
	return func(cfg *internalConfig) {
		cfg.TLSConfig = tlsCfg
	}
}

// WithProxyURL sets a fixed proxy URL for all requests.
// This overrides WithProxyFromEnvironment.
func WithProxyURL(proxyURL *url.URL) Option {
	return func(cfg *internalConfig) {
		cfg.ProxyURL = proxyURL
		cfg.ProxyFromEnvironment = false
	}
}

// WithProxyFromEnvironment enables or disables reading proxy settings
// from HTTP_PROXY, HTTPS_PROXY and NO_PROXY. Default: enabled.
func WithProxyFromEnvironment(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.ProxyFromEnvironment = enabled
	}
}

// WithDisableNetworkTrace disables the DNS, connect and TLS span events.
func WithDisableNetworkTrace() Option {
	return func(cfg *internalConfig) {
		cfg.EnableNetworkTrace = false
	}
}

// WithSpanNameFormatter sets a custom function to format span names.
func WithSpanNameFormatter(f SpanNameFormatter) Option {
	return func(cfg *internalConfig) {
		cfg.SpanNameFormatter = f
	}
}

// WithPropagators sets custom context propagators.
// Default: TraceContext + Baggage (W3C standard).
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *internalConfig) {
		cfg.Propagators = p
	}
}
