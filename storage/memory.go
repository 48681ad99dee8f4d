package storage

import (
	"bytes"
	"context"
	"sync"
)

var _ Storage = (*InMemory)(nil)

// InMemory is a process-local Storage. Values do not survive restarts.
type InMemory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewInMemory returns an empty InMemory store.
func NewInMemory() *InMemory {
	return &InMemory{values: make(map[string][]byte)}
}

// Write implements Storage.
func (s *InMemory) Write(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = bytes.Clone(value)
	return nil
}

// Read implements Storage.
func (s *InMemory) Read(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

// Delete implements Storage.
func (s *InMemory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Clear implements Storage.
func (s *InMemory) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.values)
	return nil
}

// Len returns the number of stored values.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
