package httpclient

import (
	"context"
	"errors"
	"net/http"

	"github.com/sony/gobreaker/v2"
)

// circuitBreakerTransport is a RoundTripper that wraps attempts in a circuit breaker.
type circuitBreakerTransport struct {
	breaker    CircuitBreaker
	next       http.RoundTripper
	classifier BreakerClassifier
	cfg        *internalConfig
	name       string
}

// errSyntheticFailure signals the breaker that an attempt failed (e.g. a 500)
// although RoundTrip returned no error. It never reaches the caller.
var errSyntheticFailure = errors.New("synthetic failure")

// RoundTrip implements http.RoundTripper.
func (t *circuitBreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	resp, err := t.breaker.Execute(func() (*http.Response, error) {
		resp, err := t.next.RoundTrip(req) //nolint:bodyclose // returned to caller
		if t.classifier(resp, err) {
			if err != nil {
				return resp, err
			}
			return resp, errSyntheticFailure
		}
		return resp, err
	})
	if err == nil {
		t.cfg.Metrics.recordBreakerRequest(ctx, t.name, "success")
		return resp, nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		t.cfg.Metrics.recordBreakerRequest(ctx, t.name, "rejected")
		return nil, err
	}

	t.cfg.Metrics.recordBreakerRequest(ctx, t.name, "failure")
	if errors.Is(err, errSyntheticFailure) && resp != nil {
		return resp, nil
	}
	return nil, err
}

// newCircuitBreakerTransport returns next unchanged when no breaker is configured.
func newCircuitBreakerTransport(next http.RoundTripper, cfg *internalConfig) http.RoundTripper {
	if cfg.BreakerConfig == nil {
		return next
	}
	bc := *cfg.BreakerConfig
	if bc.Classifier == nil {
		bc.Classifier = DefaultBreakerClassifier
	}

	name := cfg.ServiceName
	if name == "" {
		name = "sentinel-mobile"
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if bc.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= bc.ConsecutiveFailures {
				return true
			}
			if bc.FailureThreshold > 0 && counts.Requests < bc.FailureThreshold {
				return false
			}
			if bc.FailureRatio > 0 && counts.Requests > 0 {
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return ratio >= bc.FailureRatio
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			cfg.Metrics.recordBreakerState(context.Background(), name, int64(to))
			cfg.logger.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			if bc.OnStateChange != nil {
				bc.OnStateChange(name, from, to)
			}
		},
	}

	var cb CircuitBreaker
	if bc.Store != nil {
		dcb, err := gobreaker.NewDistributedCircuitBreaker[*http.Response](bc.Store, st)
		if err != nil {
			// A local breaker still protects this process.
			cfg.logger.Warn().Err(err).Msg("distributed circuit breaker unavailable, using local breaker")
			cb = gobreaker.NewCircuitBreaker[*http.Response](st)
		} else {
			cb = dcb
		}
	} else {
		cb = gobreaker.NewCircuitBreaker[*http.Response](st)
	}

	return &circuitBreakerTransport{
		breaker:    cb,
		next:       next,
		classifier: bc.Classifier,
		cfg:        cfg,
		name:       name,
	}
}

func (t *circuitBreakerTransport) Unwrap() http.RoundTripper { return t.next }
