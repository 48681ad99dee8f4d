package httpclient

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://api.example.com"

// eventRecorder is a Monitor that keeps every event it receives.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *eventRecorder) Kinds() []EventKind {
	events := r.Events()
	kinds := make([]EventKind, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	return kinds
}

func (r *eventRecorder) Count(kind EventKind) int {
	n := 0
	for _, k := range r.Kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

// newTestClient returns a client sending through mock. The client is
// closed when the test ends.
func newTestClient(t *testing.T, mock *MockTransport, opts ...Option) *Client {
	t.Helper()

	opts = append([]Option{WithMockTransport(mock)}, opts...)
	c, err := New(testBaseURL, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func retryConfig(maxRetries int) Config {
	cfg := DefaultConfig()
	cfg.MaxRetries = maxRetries
	return cfg
}

func alwaysRetry() RequestRetrier {
	return RetrierFunc(func(_ context.Context, _ *Request, _ *Client, _ error) RetryPolicy {
		return Retry
	})
}
