package httpclient

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Config - Client Configuration
// =============================================================================

// Config holds the client configuration. Use DefaultConfig() to get a
// properly initialized configuration, then modify specific fields as needed.
//
// Example:
//
//	cfg := httpclient.DefaultConfig()
//	cfg.AllowsCellularAccess = false
//	cfg.MaxRetries = 5
//
//	client, err := httpclient.New("https://api.example.com",
//	    httpclient.WithConfig(cfg),
//	)
//
// Config can also be loaded from YAML; durations use Go syntax ("60s"):
//
//	max_retries: 5
//	request_timeout: 30s
//	allows_cellular_access: false
//	additional_headers:
//	  X-App-Version: "1.4.0"
type Config struct {
	// =======================================================================
	// Request Behaviour
	// =======================================================================

	// AllowsCellularAccess permits attempts while the network path is
	// expensive. When false such attempts fail with ErrCellularAccessDenied.
	//
	// Default: true
	AllowsCellularAccess bool `yaml:"allows_cellular_access"`

	// AdditionalHeaders are sent with every request. They override session
	// headers and are overridden by per-call headers.
	AdditionalHeaders map[string]string `yaml:"additional_headers"`

	// CachePolicy selects the Cache-Control directive sent with requests.
	//
	// Default: CachePolicyReloadIgnoringLocalCache
	CachePolicy CachePolicy `yaml:"cache_policy"`

	// MaxRetries bounds the number of retries of a single request, whatever
	// the retriers decide.
	//
	// Default: 3
	MaxRetries int `yaml:"max_retries"`

	// RequestTimeout limits how long an attempt waits for response headers
	// once the request is written.
	//
	// Default: 60s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ResourceTimeout limits the whole request, across retries, suspension
	// and backoff. When it expires the request is cancelled.
	//
	// Default: 7 days
	ResourceTimeout time.Duration `yaml:"resource_timeout"`

	// Retry controls the delay between attempts.
	//
	// Default: immediate retries
	Retry RetryConfig `yaml:"retry"`

	// RateLimit throttles outgoing attempts when RequestsPerSecond > 0.
	//
	// Default: disabled
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// =======================================================================
	// Connection Pool Settings (Transport)
	// =======================================================================

	// MaxIdleConns controls the maximum number of idle (keep-alive)
	// connections across all hosts combined.
	//
	// Default: 20
	MaxIdleConns int `yaml:"max_idle_conns"`

	// MaxIdleConnsPerHost controls the maximum idle connections to keep
	// for each host. A mobile client mostly talks to one API host, so this
	// is usually close to MaxIdleConns.
	//
	// Default: 10
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host"`

	// MaxConnsPerHost limits the total number of connections per host,
	// including connections in the dialing, active and idle states.
	// Zero means no limit.
	//
	// Default: 0
	MaxConnsPerHost int `yaml:"max_conns_per_host"`

	// IdleConnTimeout is how long an idle connection remains in the pool.
	//
	// Default: 90s
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`

	// =======================================================================
	// Timeouts (Transport)
	// =======================================================================

	// TLSHandshakeTimeout limits the time spent performing the TLS handshake.
	//
	// Default: 10s
	TLSHandshakeTimeout time.Duration `yaml:"tls_handshake_timeout"`

	// ExpectContinueTimeout limits the time to wait for a server's first
	// response headers after fully writing the request headers if the
	// request has an "Expect: 100-continue" header.
	//
	// Default: 1s
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout"`

	// =======================================================================
	// Dialer Settings
	// =======================================================================

	// DialTimeout limits the time spent establishing a TCP connection.
	//
	// Default: 15s
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// KeepAlive specifies the interval between TCP keep-alive probes.
	//
	// Default: 30s
	KeepAlive time.Duration `yaml:"keep_alive"`

	// FallbackDelay is the delay before RFC 6555 "Happy Eyeballs" falls back
	// to IPv4 when IPv6 is slow.
	//
	// Default: 300ms
	FallbackDelay time.Duration `yaml:"fallback_delay"`

	// =======================================================================
	// Protocol Settings
	// =======================================================================

	// DisableCompression prevents the transport from requesting gzip.
	//
	// Default: false
	DisableCompression bool `yaml:"disable_compression"`

	// ForceHTTP2 enables HTTP/2 even with a custom TLS config.
	//
	// Default: true
	ForceHTTP2 bool `yaml:"force_http2"`
}

// Defaults of the request behaviour settings.
const (
	DefaultRequestTimeout  = 60 * time.Second
	DefaultResourceTimeout = 7 * 24 * time.Hour
)

// DefaultConfig returns the default client configuration:
//   - cellular access allowed
//   - 3 retries, retried immediately
//   - 60s request timeout, 7 day resource timeout
//   - a small connection pool sized for a single API host
func DefaultConfig() Config {
	return Config{
		AllowsCellularAccess: true,
		CachePolicy:          CachePolicyReloadIgnoringLocalCache,
		MaxRetries:           DefaultMaxRetries,
		RequestTimeout:       DefaultRequestTimeout,
		ResourceTimeout:      DefaultResourceTimeout,
		Retry:                DefaultRetryConfig(),

		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     0,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		DialTimeout:   15 * time.Second,
		KeepAlive:     30 * time.Second,
		FallbackDelay: 300 * time.Millisecond,

		DisableCompression: false,
		ForceHTTP2:         true,
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig().
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML on top of DefaultConfig(). Keys that are absent
// keep their defaults.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.MaxRetries < 0 {
		return Config{}, fmt.Errorf("parse config: max_retries must not be negative, got %d", cfg.MaxRetries)
	}
	return cfg, nil
}

var cachePolicyNames = map[CachePolicy]string{
	CachePolicyReloadIgnoringLocalCache: "reload_ignoring_local_cache",
	CachePolicyUseProtocol:              "use_protocol",
	CachePolicyReturnCacheDataElseLoad:  "return_cache_data_else_load",
}

// String returns the YAML name of the policy.
func (p CachePolicy) String() string {
	if name, ok := cachePolicyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("CachePolicy(%d)", int(p))
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *CachePolicy) UnmarshalYAML(node *yaml.Node) error {
	var name string
	if err := node.Decode(&name); err != nil {
		return err
	}
	for policy, n := range cachePolicyNames {
		if n == name {
			*p = policy
			return nil
		}
	}
	return fmt.Errorf("unknown cache policy %q", name)
}

// MarshalYAML implements yaml.Marshaler.
func (p CachePolicy) MarshalYAML() (any, error) {
	return p.String(), nil
}
