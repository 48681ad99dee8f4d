package httpclient

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventKind identifies a request lifecycle event.
type EventKind int

const (
	// EventCreatedURLRequest is emitted when an attempt's *http.Request is built.
	EventCreatedURLRequest EventKind = iota
	// EventFailedToCreateURLRequest is emitted when building the request fails.
	EventFailedToCreateURLRequest
	// EventAdaptedRequest is emitted after the interceptors ran.
	EventAdaptedRequest
	// EventAdaptationFailed is emitted when an interceptor rejected the request.
	EventAdaptationFailed
	// EventTaskCreated is emitted right before the transport round trip.
	EventTaskCreated
	// EventMetricsCollected is emitted with the attempt's timing information.
	EventMetricsCollected
	// EventTaskCompleted is emitted when the round trip returned.
	EventTaskCompleted
	// EventValidated is emitted once per validator run.
	EventValidated
	// EventParsedResponse is emitted when a serializer decoded the response.
	EventParsedResponse
	// EventRetrying is emitted before a new attempt starts.
	EventRetrying
	// EventResumed is emitted by Request.Resume.
	EventResumed
	// EventSuspended is emitted by Request.Suspend.
	EventSuspended
	// EventCancelled is a terminal event emitted by Request.Cancel.
	EventCancelled
	// EventFinished is a terminal event emitted when the request completed.
	EventFinished
)

var eventKindNames = [...]string{
	EventCreatedURLRequest:        "created_url_request",
	EventFailedToCreateURLRequest: "failed_to_create_url_request",
	EventAdaptedRequest:           "adapted_request",
	EventAdaptationFailed:         "adaptation_failed",
	EventTaskCreated:              "task_created",
	EventMetricsCollected:         "metrics_collected",
	EventTaskCompleted:            "task_completed",
	EventValidated:                "validated",
	EventParsedResponse:           "parsed_response",
	EventRetrying:                 "retrying",
	EventResumed:                  "resumed",
	EventSuspended:                "suspended",
	EventCancelled:                "cancelled",
	EventFinished:                 "finished",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event describes one step of a request's lifecycle. Fields that do not
// apply to Kind are left zero.
type Event struct {
	Kind EventKind
	Time time.Time

	// Request is the handle the event belongs to.
	Request *Request

	// URLRequest is the request before adaptation.
	URLRequest *http.Request

	// AdaptedRequest is the request after adaptation.
	AdaptedRequest *http.Request

	// Attempt is the transport attempt the event refers to.
	Attempt *Attempt

	// Response is the attempt's response, if any.
	Response *http.Response

	// Data is the response body, if read.
	Data []byte

	// Err is the failure carried by the event.
	Err error

	// Value holds the DataResponse for EventParsedResponse.
	Value any
}

// Monitor observes request lifecycle events. OnEvent must not retain the
// request's mutable state beyond the call.
type Monitor interface {
	OnEvent(Event)
}

// MonitorFunc adapts a function to Monitor.
type MonitorFunc func(Event)

// OnEvent implements Monitor.
func (f MonitorFunc) OnEvent(e Event) { f(e) }

// CompositeMonitor dispatches each event to all of its children. Every
// child has its own unbounded queue and goroutine, so a slow or panicking
// child never delays the request or its siblings. Events reach each child in
// the order they were dispatched.
type CompositeMonitor struct {
	queues []*monitorQueue
}

// NewCompositeMonitor starts one dispatch goroutine per child. Panics in a
// child are recovered and logged with logger.
func NewCompositeMonitor(logger zerolog.Logger, monitors ...Monitor) *CompositeMonitor {
	c := &CompositeMonitor{queues: make([]*monitorQueue, 0, len(monitors))}
	for _, m := range monitors {
		if m == nil {
			continue
		}
		q := &monitorQueue{
			monitor: m,
			logger:  logger,
			signal:  make(chan struct{}, 1),
			done:    make(chan struct{}),
		}
		go q.run()
		c.queues = append(c.queues, q)
	}
	return c
}

// OnEvent enqueues e for every child and returns immediately.
func (c *CompositeMonitor) OnEvent(e Event) {
	if c == nil {
		return
	}
	for _, q := range c.queues {
		q.push(e)
	}
}

// Len returns the number of children.
func (c *CompositeMonitor) Len() int {
	if c == nil {
		return 0
	}
	return len(c.queues)
}

// Close stops accepting events, waits until every child drained its queue
// and stops the dispatch goroutines.
func (c *CompositeMonitor) Close() {
	if c == nil {
		return
	}
	for _, q := range c.queues {
		q.close()
	}
	for _, q := range c.queues {
		<-q.done
	}
}

type monitorQueue struct {
	monitor Monitor
	logger  zerolog.Logger

	mu      sync.Mutex
	pending []Event
	closed  bool

	signal chan struct{}
	done   chan struct{}
}

func (q *monitorQueue) push(e Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, e)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *monitorQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *monitorQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		closed := q.closed
		q.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-q.signal
			continue
		}

		for _, e := range batch {
			q.deliver(e)
		}
	}
}

func (q *monitorQueue) deliver(e Event) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Warn().
				Str("event", e.Kind.String()).
				Interface("panic", r).
				Msg("request monitor panicked")
		}
	}()
	q.monitor.OnEvent(e)
}
