// Package guard provides a mutex-guarded value container.
package guard

import "sync"

// Value holds a T behind a mutex. The zero Value holds the zero T and is
// ready to use. A Value must not be copied after first use.
type Value[T any] struct {
	mu sync.RWMutex
	v  T
}

// New returns a Value initialized with v.
func New[T any](v T) *Value[T] {
	return &Value[T]{v: v}
}

// Load returns the current value.
func (g *Value[T]) Load() T {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.v
}

// Store replaces the current value.
func (g *Value[T]) Store(v T) {
	g.mu.Lock()
	g.v = v
	g.mu.Unlock()
}

// Update runs fn with exclusive access to the value and returns the value
// as left by fn.
func (g *Value[T]) Update(fn func(*T)) T {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.v)
	return g.v
}
