package httpclient

import (
	"sync"

	"github.com/google/uuid"
)

// requestRegistry maps request IDs to in-flight handles. An ID present in the
// registry always belongs to a request that has not reached a terminal state.
type requestRegistry struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*Request
}

func newRequestRegistry() *requestRegistry {
	return &requestRegistry{requests: make(map[uuid.UUID]*Request)}
}

func (r *requestRegistry) register(req *Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[req.id] = req
}

// remove is a no-op when id is absent.
func (r *requestRegistry) remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests, id)
}

func (r *requestRegistry) lookup(id uuid.UUID) (*Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	return req, ok
}

func (r *requestRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

// snapshot returns the registered handles in no particular order.
func (r *requestRegistry) snapshot() []*Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Request, 0, len(r.requests))
	for _, req := range r.requests {
		out = append(out, req)
	}
	return out
}
