package httpclient

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig controls the pause between a Retry vote and the next attempt.
// The number of attempts is bounded by Config.MaxRetries, not by this type.
//
// The zero value retries immediately. A positive InitialInterval switches
// to exponential backoff with jitter to prevent "thundering herd" problems
// when many devices retry at once.
//
// Example usage:
//
//	cfg := httpclient.DefaultConfig()
//	cfg.Retry = httpclient.ExponentialRetryConfig()
//	client, err := httpclient.New("https://api.example.com",
//	    httpclient.WithConfig(cfg),
//	)
type RetryConfig struct {
	// InitialInterval is the first backoff interval.
	// Zero disables backoff and retries immediately.
	InitialInterval time.Duration `yaml:"initial_interval"`

	// MaxInterval caps the backoff interval.
	MaxInterval time.Duration `yaml:"max_interval"`

	// Multiplier controls exponential growth of backoff intervals.
	//
	// Example with InitialInterval=500ms, Multiplier=2.0:
	//   Retry 1: 500ms → Retry 2: 1s → Retry 3: 2s
	Multiplier float64 `yaml:"multiplier"`

	// JitterFactor adds randomization to each interval, between 0.0 and 1.0.
	// Values below or equal to zero use DefaultJitterFactor.
	JitterFactor float64 `yaml:"jitter_factor"`
}

// Default values for ExponentialRetryConfig.
const (
	// DefaultMaxRetries is the default retry ceiling of a client.
	DefaultMaxRetries = 3

	// DefaultInitialInterval is the default starting backoff interval.
	DefaultInitialInterval = 500 * time.Millisecond

	// DefaultMaxInterval is the default maximum backoff interval.
	DefaultMaxInterval = 30 * time.Second

	// DefaultMultiplier is the default backoff multiplier.
	DefaultMultiplier = 2.0

	// DefaultJitterFactor is the default randomization factor.
	// 0.5 means ±50% randomization.
	DefaultJitterFactor = 0.5
)

// DefaultRetryConfig retries immediately.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{}
}

// ExponentialRetryConfig returns 500ms → 1s → 2s backoff with 50% jitter,
// capped at 30s.
func ExponentialRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		Multiplier:      DefaultMultiplier,
		JitterFactor:    DefaultJitterFactor,
	}
}

// IsImmediate reports whether retries happen without a pause.
func (c RetryConfig) IsImmediate() bool {
	return c.InitialInterval <= 0
}

// newBackOff returns a fresh backoff sequence for one request.
func (c RetryConfig) newBackOff() backoff.BackOff {
	if c.IsImmediate() {
		return &backoff.ZeroBackOff{}
	}
	return exponentialBackOffFromConfig(c)
}

// exponentialBackOffFromConfig creates a cenkalti/backoff ExponentialBackOff
// from a RetryConfig, ensuring jitter is always applied.
func exponentialBackOffFromConfig(cfg RetryConfig) *backoff.ExponentialBackOff {
	jitterFactor := cfg.JitterFactor
	if jitterFactor <= 0 {
		jitterFactor = DefaultJitterFactor
	}
	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = DefaultMultiplier
	}
	maxInterval := cfg.MaxInterval
	if maxInterval <= 0 {
		maxInterval = DefaultMaxInterval
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.InitialInterval,
		RandomizationFactor: jitterFactor,
		Multiplier:          multiplier,
		MaxInterval:         maxInterval,
	}
	b.Reset()
	return b
}
