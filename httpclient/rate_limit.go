package httpclient

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures client-side rate limiting of request attempts.
type RateLimitConfig struct {
	// RequestsPerSecond is the maximum sustained attempt rate.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the maximum number of attempts allowed in a burst.
	// This allows brief spikes above the rate limit.
	Burst int `yaml:"burst"`

	// WaitOnLimit determines behavior when rate limit is hit.
	// If true, adaptation waits for a token (respecting the request context).
	// If false, adaptation fails immediately with ErrRateLimited.
	WaitOnLimit bool `yaml:"wait_on_limit"`
}

// DefaultRateLimitConfig returns 100 requests per second with a burst of 10.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             10,
		WaitOnLimit:       true,
	}
}

// ErrRateLimited is returned when a request is rejected due to rate limiting.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitInterceptor throttles attempts through a token bucket. Because it
// runs during adaptation, a rejected attempt fails with
// KindRequestAdaptationFailed and retries are throttled as well.
type RateLimitInterceptor struct {
	limiter *rate.Limiter
	wait    bool
}

// NewRateLimitInterceptor returns nil when cfg.RequestsPerSecond is not
// positive; a nil *RateLimitInterceptor lets every request through.
func NewRateLimitInterceptor(cfg RateLimitConfig) *RateLimitInterceptor {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitInterceptor{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		wait:    cfg.WaitOnLimit,
	}
}

// Intercept implements RequestInterceptor.
func (i *RateLimitInterceptor) Intercept(
	ctx context.Context,
	req *http.Request,
	_ *Client,
) (*http.Request, error) {
	if i == nil {
		return req, nil
	}

	if i.wait {
		if err := i.limiter.Wait(ctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, err
			}
			return nil, ErrRateLimited
		}
		return req, nil
	}

	if !i.limiter.Allow() {
		return nil, ErrRateLimited
	}
	return req, nil
}

// RateLimiterStats provides visibility into rate limiter state.
type RateLimiterStats struct {
	// Limit is the maximum rate per second.
	Limit float64
	// Burst is the maximum burst size.
	Burst int
	// TokensAvailable is the current number of tokens.
	TokensAvailable float64
}

// Stats returns the limiter's current state.
func (i *RateLimitInterceptor) Stats() RateLimiterStats {
	if i == nil {
		return RateLimiterStats{}
	}
	return RateLimiterStats{
		Limit:           float64(i.limiter.Limit()),
		Burst:           i.limiter.Burst(),
		TokensAvailable: i.limiter.TokensAt(time.Now()),
	}
}
