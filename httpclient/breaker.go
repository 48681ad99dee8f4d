package httpclient

import (
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	gobreakerredis "github.com/sony/gobreaker/v2/redis"
)

// NewRedisStore creates a SharedDataStore backed by Redis so that every
// device process talking to the same backend through a shared gateway trips
// the same breaker.
//
// Usage:
//
//	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"localhost:6379"}})
//	client, err := httpclient.New(baseURL,
//	    httpclient.WithBreakerConfig(httpclient.DistributedBreakerConfig(httpclient.NewRedisStore(rdb))),
//	)
func NewRedisStore(client redis.UniversalClient) gobreaker.SharedDataStore {
	return gobreakerredis.NewStoreFromClient(client)
}

// CircuitBreaker is the subset of gobreaker used by the breaker transport.
type CircuitBreaker interface {
	Execute(req func() (*http.Response, error)) (*http.Response, error)
}

// BreakerClassifier reports whether an attempt counts as a failure for the
// circuit breaker.
type BreakerClassifier func(resp *http.Response, err error) bool

// BreakerConfig holds the configuration for the circuit breaker.
//
// Concepts:
//   - Closed: Normal state, requests allowed.
//   - Open: Failing state, attempts rejected immediately.
//   - Half-Open: Probing state, limited attempts allowed to test recovery.
//
// A rejected attempt fails with KindSessionTaskFailed wrapping
// gobreaker.ErrOpenState, so retriers see it like any transport failure.
type BreakerConfig struct {
	// MaxRequests is the maximum number of requests allowed to pass through
	// when the circuit breaker is half-open.
	// If 0, the circuit breaker allows 1 request.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state after which the
	// internal counts are cleared. If 0, counts are never cleared while closed.
	Interval time.Duration

	// Timeout is the period of the open state, after which the breaker
	// becomes half-open.
	Timeout time.Duration

	// FailureThreshold is the minimum number of requests needed before the
	// circuit can trip.
	FailureThreshold uint32

	// FailureRatio is the failure ratio (0.0 - 1.0) that trips the circuit.
	FailureRatio float64

	// ConsecutiveFailures trips the circuit after this many sequential
	// failures. If 0, this rule is disabled.
	ConsecutiveFailures uint32

	// Store is the shared data store for distributed circuit breaking.
	// If nil, the circuit breaker is local (in-memory).
	Store gobreaker.SharedDataStore

	// Classifier determines which attempts count as failures.
	// Default: DefaultBreakerClassifier
	Classifier BreakerClassifier

	// OnStateChange is invoked when the breaker changes state.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig returns a local breaker configuration:
//   - Interval: 10s
//   - Timeout: 10s
//   - FailureThreshold: 20
//   - FailureRatio: 0.5
//   - ConsecutiveFailures: 5
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            10 * time.Second,
		Timeout:             10 * time.Second,
		FailureThreshold:    20,
		FailureRatio:        0.5,
		ConsecutiveFailures: 5,
		Classifier:          DefaultBreakerClassifier,
	}
}

// DistributedBreakerConfig returns DefaultBreakerConfig backed by store.
func DistributedBreakerConfig(store gobreaker.SharedDataStore) BreakerConfig {
	cfg := DefaultBreakerConfig()
	cfg.Store = store
	return cfg
}

// DefaultBreakerClassifier counts 5xx responses and network errors as
// failures. 401 and 429 are left to the retriers.
func DefaultBreakerClassifier(resp *http.Response, err error) bool {
	if err != nil {
		return isNetworkError(err)
	}
	return resp != nil && resp.StatusCode >= 500
}

// WithBreakerConfig wraps the transport in a circuit breaker.
func WithBreakerConfig(c BreakerConfig) Option {
	return func(cfg *internalConfig) {
		if c.Classifier == nil {
			c.Classifier = DefaultBreakerClassifier
		}
		cfg.BreakerConfig = &c
	}
}

// isNetworkError checks for common network errors.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT)
}
