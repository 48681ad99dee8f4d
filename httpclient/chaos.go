package httpclient

import (
	"bytes"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"time"
)

// ErrChaosInjected is the cause of a simulated connection failure.
var ErrChaosInjected = errors.New("chaos: simulated network error")

// ChaosConfig simulates a poor mobile network. It is meant for development
// builds and resilience tests of the retrier chain.
//
//	client, err := httpclient.New(baseURL,
//	    httpclient.WithChaos(httpclient.ChaosConfig{
//	        Latency:   200 * time.Millisecond,
//	        ErrorRate: 0.1,
//	    }),
//	)
type ChaosConfig struct {
	// Latency is added before every attempt.
	Latency time.Duration `yaml:"latency"`

	// Jitter adds a random delay in [0, Jitter) on top of Latency.
	Jitter time.Duration `yaml:"jitter"`

	// ErrorRate is the probability of failing an attempt with a dial error.
	ErrorRate float64 `yaml:"error_rate"`

	// TimeoutRate is the probability of hanging until the attempt's
	// context ends.
	TimeoutRate float64 `yaml:"timeout_rate"`

	// StatusRate is the probability of answering with StatusCode without
	// reaching the server.
	StatusRate float64 `yaml:"status_rate"`

	// StatusCode is the injected status. Default: 503.
	StatusCode int `yaml:"status_code"`
}

func (c ChaosConfig) delay() time.Duration {
	d := c.Latency
	if c.Jitter > 0 {
		d += rand.N(c.Jitter) //nolint:gosec
	}
	return d
}

func roll(p float64) bool {
	return p > 0 && rand.Float64() < p //nolint:gosec
}

// WithChaos injects the configured faults between the base transport and
// the circuit breaker.
func WithChaos(c ChaosConfig) Option {
	return func(cfg *internalConfig) {
		if c.StatusCode == 0 {
			c.StatusCode = http.StatusServiceUnavailable
		}
		cfg.chaos = &c
	}
}

type chaosTransport struct {
	next   http.RoundTripper
	config ChaosConfig
}

func newChaosTransport(next http.RoundTripper, cfg *ChaosConfig) http.RoundTripper {
	if cfg == nil {
		return next
	}
	return &chaosTransport{next: next, config: *cfg}
}

// RoundTrip implements http.RoundTripper.
func (t *chaosTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if roll(t.config.TimeoutRate) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	if d := t.config.delay(); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	if roll(t.config.ErrorRate) {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: ErrChaosInjected}
	}

	if roll(t.config.StatusRate) {
		code := t.config.StatusCode
		return &http.Response{
			Status:     strconv.Itoa(code) + " " + http.StatusText(code),
			StatusCode: code,
			Proto:      "HTTP/1.1",
			ProtoMajor: 1,
			ProtoMinor: 1,
			Header:     make(http.Header),
			Body:       io.NopCloser(bytes.NewReader(nil)),
			Request:    req,
		}, nil
	}

	return t.next.RoundTrip(req)
}

func (t *chaosTransport) Unwrap() http.RoundTripper { return t.next }
