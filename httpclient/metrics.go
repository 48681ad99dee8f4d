package httpclient

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Bucket boundaries shared by several instruments.
var (
	latencyBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10}
	handshakeBuckets  = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}
	bodySizeBuckets   = []float64{0, 100, 1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024}
	lifecycleBuckets  = []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 600}
	attemptsPerHandle = []float64{1, 2, 3, 4, 5, 8, 13}
)

// Outcome values of the handle.outcome attribute.
const (
	handleOutcomeSuccess   = "success"
	handleOutcomeFailure   = "failure"
	handleOutcomeCancelled = "cancelled"
)

// metrics holds the OpenTelemetry instruments of a Client.
//
// Two levels are measured. Round-trip instruments are recorded by the
// transport once per attempt on the wire. Handle instruments are recorded by
// the Request once per lifecycle: how long the handle lived, how many
// attempts it took and whether it hit the retry ceiling.
type metrics struct {
	// Round trip.
	requestDuration    metric.Float64Histogram
	requestBodySize    metric.Int64Histogram
	responseBodySize   metric.Int64Histogram
	openedConnections  metric.Int64Counter
	connectionDuration metric.Float64Histogram
	dnsDuration        metric.Float64Histogram
	tlsDuration        metric.Float64Histogram
	ttfb               metric.Float64Histogram
	inFlightAttempts   metric.Int64UpDownCounter
	requestErrors      metric.Int64Counter

	// Request handle.
	activeHandles  metric.Int64UpDownCounter
	handleDuration metric.Float64Histogram
	handleAttempts metric.Int64Histogram
	handleRetries  metric.Int64Counter
	retryCeiling   metric.Int64Counter

	// Circuit breaker.
	breakerRequests metric.Int64Counter
	breakerState    metric.Int64Gauge
}

// instruments collects the first error while creating instruments, so
// newMetrics reads as a flat list.
type instruments struct {
	meter metric.Meter
	err   error
}

func (b *instruments) seconds(name, desc string, bounds []float64) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(bounds...),
	)
	b.err = errors.Join(b.err, err)
	return h
}

func (b *instruments) histogram(name, desc, unit string, bounds []float64) metric.Int64Histogram {
	h, err := b.meter.Int64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit(unit),
		metric.WithExplicitBucketBoundaries(bounds...),
	)
	b.err = errors.Join(b.err, err)
	return h
}

func (b *instruments) counter(name, desc, unit string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.err = errors.Join(b.err, err)
	return c
}

func (b *instruments) upDown(name, desc, unit string) metric.Int64UpDownCounter {
	c, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.err = errors.Join(b.err, err)
	return c
}

// newMetrics creates the instruments on meter.
func newMetrics(meter metric.Meter) (*metrics, error) {
	b := &instruments{meter: meter}

	m := &metrics{
		requestDuration: b.seconds("http.client.request.duration",
			"Duration of a single round trip in seconds", latencyBuckets),
		requestBodySize: b.histogram("http.client.request.body.size",
			"Size of request bodies sent per attempt", "By", bodySizeBuckets),
		responseBodySize: b.histogram("http.client.response.body.size",
			"Size of response bodies received per attempt", "By", bodySizeBuckets),
		openedConnections: b.counter("http.client.connections.opened",
			"Number of connections opened instead of reused", "{connection}"),
		connectionDuration: b.seconds("http.client.connection.duration",
			"Time to establish a connection in seconds",
			[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}),
		dnsDuration: b.seconds("http.client.dns.duration",
			"DNS lookup duration in seconds", handshakeBuckets),
		tlsDuration: b.seconds("http.client.tls.duration",
			"TLS handshake duration in seconds", handshakeBuckets),
		ttfb: b.seconds("http.client.ttfb",
			"Time to first response byte in seconds", latencyBuckets[:12]),
		inFlightAttempts: b.upDown("http.client.active_requests",
			"Number of attempts currently on the wire", "{request}"),
		requestErrors: b.counter("http.client.request.error",
			"Number of attempts that failed before a response", "{error}"),

		activeHandles: b.upDown("http.client.handle.active",
			"Number of request handles built and not yet terminal", "{request}"),
		handleDuration: b.seconds("http.client.handle.duration",
			"Time from building a request handle to its terminal state in seconds", lifecycleBuckets),
		handleAttempts: b.histogram("http.client.handle.attempts",
			"Number of attempts a request handle made before its terminal state", "{attempt}", attemptsPerHandle),
		handleRetries: b.counter("http.client.handle.retries",
			"Number of retries granted by the retrier chain", "{retry}"),
		retryCeiling: b.counter("http.client.handle.retry_ceiling",
			"Number of requests stopped by the retry ceiling", "{request}"),

		breakerRequests: b.counter("http.client.breaker.requests",
			"Number of attempts seen by the circuit breaker", "{request}"),
	}

	state, err := meter.Int64Gauge("http.client.breaker.state",
		metric.WithDescription("Circuit breaker state: 0 closed, 1 half-open, 2 open"))
	b.err = errors.Join(b.err, err)
	m.breakerState = state

	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

func withExtra(attrs []attribute.KeyValue, extra ...attribute.KeyValue) metric.MeasurementOption {
	all := make([]attribute.KeyValue, 0, len(attrs)+len(extra))
	all = append(all, attrs...)
	all = append(all, extra...)
	return metric.WithAttributes(all...)
}

func (m *metrics) recordRequestDuration(ctx context.Context, duration time.Duration, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

func (m *metrics) recordRequestBodySize(ctx context.Context, size int64, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.requestBodySize.Record(ctx, size, metric.WithAttributes(attrs...))
}

func (m *metrics) recordResponseBodySize(ctx context.Context, size int64, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.responseBodySize.Record(ctx, size, metric.WithAttributes(attrs...))
}

func (m *metrics) recordConnectionOpened(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.openedConnections.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *metrics) recordConnectionDuration(ctx context.Context, duration time.Duration, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.connectionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

func (m *metrics) recordDNSDuration(ctx context.Context, duration time.Duration, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.dnsDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

func (m *metrics) recordTLSDuration(ctx context.Context, duration time.Duration, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.tlsDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

func (m *metrics) recordTTFB(ctx context.Context, duration time.Duration, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.ttfb.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

func (m *metrics) recordActiveRequestStart(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.inFlightAttempts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *metrics) recordActiveRequestEnd(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.inFlightAttempts.Add(ctx, -1, metric.WithAttributes(attrs...))
}

// recordError counts a failed round trip under its error.type.
func (m *metrics) recordError(ctx context.Context, errorType string, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.requestErrors.Add(ctx, 1, withExtra(attrs, attribute.String("error.type", errorType)))
}

// recordHandleStarted counts a newly built request handle.
func (m *metrics) recordHandleStarted(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.activeHandles.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// recordHandleCompleted records the end of a handle's lifecycle.
func (m *metrics) recordHandleCompleted(
	ctx context.Context,
	attrs []attribute.KeyValue,
	outcome string,
	lifetime time.Duration,
	attempts int,
) {
	if m == nil {
		return
	}
	m.activeHandles.Add(ctx, -1, metric.WithAttributes(attrs...))

	opt := withExtra(attrs, attribute.String("handle.outcome", outcome))
	m.handleDuration.Record(ctx, lifetime.Seconds(), opt)
	m.handleAttempts.Record(ctx, int64(attempts), opt)
}

// recordHandleRetry counts a retry granted by the chain.
func (m *metrics) recordHandleRetry(ctx context.Context, attrs []attribute.KeyValue, retry int) {
	if m == nil {
		return
	}
	m.handleRetries.Add(ctx, 1, withExtra(attrs, attribute.Int("retry.attempt", retry)))
}

// recordRetryCeiling counts a request refused a retry by MaxRetries.
func (m *metrics) recordRetryCeiling(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil {
		return
	}
	m.retryCeiling.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *metrics) recordBreakerRequest(ctx context.Context, name, result string) {
	if m == nil {
		return
	}
	m.breakerRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker.name", name),
		attribute.String("breaker.result", result),
	))
}

func (m *metrics) recordBreakerState(ctx context.Context, name string, state int64) {
	if m == nil {
		return
	}
	m.breakerState.Record(ctx, state, metric.WithAttributes(
		attribute.String("breaker.name", name),
	))
}
