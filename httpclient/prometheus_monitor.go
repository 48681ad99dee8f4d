package httpclient

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMonitor counts request lifecycle events with Prometheus
// metrics. It is safe for concurrent use.
//
// Metrics:
//   - {namespace}_request_events_total{event}
//   - {namespace}_request_retries_total
//   - {namespace}_requests_completed_total{outcome, status_code}
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	client, err := httpclient.New(baseURL,
//	    httpclient.WithMonitors(httpclient.NewPrometheusMonitor(reg, "mobile")),
//	)
type PrometheusMonitor struct {
	events    *prometheus.CounterVec
	retries   prometheus.Counter
	completed *prometheus.CounterVec
}

// NewPrometheusMonitor registers its metrics with registry. An empty
// namespace defaults to "httpclient".
func NewPrometheusMonitor(registry prometheus.Registerer, namespace string) *PrometheusMonitor {
	if namespace == "" {
		namespace = "httpclient"
	}
	factory := promauto.With(registry)

	return &PrometheusMonitor{
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "request_events_total",
				Help:      "Total number of request lifecycle events by kind",
			},
			[]string{"event"},
		),
		retries: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "request_retries_total",
				Help:      "Total number of request retries",
			},
		),
		completed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_completed_total",
				Help:      "Total number of requests that reached a terminal state",
			},
			[]string{"outcome", "status_code"},
		),
	}
}

// OnEvent implements Monitor.
func (m *PrometheusMonitor) OnEvent(e Event) {
	m.events.WithLabelValues(e.Kind.String()).Inc()

	switch e.Kind {
	case EventRetrying:
		m.retries.Inc()
	case EventFinished, EventCancelled:
		m.completed.WithLabelValues(outcomeLabel(e), statusLabel(e)).Inc()
	}
}

func outcomeLabel(e Event) string {
	switch {
	case e.Kind == EventCancelled:
		return "cancelled"
	case e.Err != nil:
		return "failure"
	default:
		return "success"
	}
}

func statusLabel(e Event) string {
	if e.Response == nil {
		return "none"
	}
	return strconv.Itoa(e.Response.StatusCode)
}
