// Package reachability tracks network path status and republishes the
// latest value to any number of subscribers.
//
// A PathMonitor produces updates; a Publisher holds the current Path and
// fans changes out:
//
//	pub := reachability.NewPublisher()
//	go pub.Run(ctx, reachability.NewDialMonitor("api.example.com:443"))
//
//	updates, cancel := pub.Subscribe()
//	defer cancel()
//	for path := range updates {
//	    fmt.Println(path.Status)
//	}
package reachability

import (
	"context"
	"sync"

	"github.com/kroma-labs/sentinel-mobile/internal/guard"
)

// Status describes whether the network path can be used.
type Status int

const (
	// StatusUnsatisfied means the path is not available.
	StatusUnsatisfied Status = iota
	// StatusSatisfied means the path is available for traffic.
	StatusSatisfied
	// StatusRequiresConnection means the path will be available once a
	// connection is established on demand.
	StatusRequiresConnection
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSatisfied:
		return "satisfied"
	case StatusRequiresConnection:
		return "requires_connection"
	default:
		return "unsatisfied"
	}
}

// Path is a snapshot of the network path.
type Path struct {
	// Status is the path availability.
	Status Status

	// IsExpensive is true for metered paths such as cellular data.
	IsExpensive bool
}

// PathMonitor emits path updates until ctx is done.
type PathMonitor interface {
	// Start blocks, calling update for each observed path, and returns
	// when ctx is done or monitoring fails.
	Start(ctx context.Context, update func(Path)) error
}

// PathMonitorFunc adapts a function to PathMonitor.
type PathMonitorFunc func(ctx context.Context, update func(Path)) error

// Start implements PathMonitor.
func (f PathMonitorFunc) Start(ctx context.Context, update func(Path)) error {
	return f(ctx, update)
}

// Publisher holds the latest Path and notifies subscribers of changes.
// The zero Publisher is not usable; create one with NewPublisher.
type Publisher struct {
	current *guard.Value[Path]

	mu     sync.Mutex
	nextID int
	subs   map[int]chan Path
}

// NewPublisher returns a Publisher whose initial status is StatusUnsatisfied.
func NewPublisher() *Publisher {
	return &Publisher{
		current: guard.New(Path{Status: StatusUnsatisfied}),
		subs:    make(map[int]chan Path),
	}
}

// Current returns the latest published path.
func (p *Publisher) Current() Path {
	return p.current.Load()
}

// Publish records path as current and notifies subscribers when it changed.
// Slow subscribers only ever see the newest value.
func (p *Publisher) Publish(path Path) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current.Load() == path {
		return
	}
	p.current.Store(path)

	for _, ch := range p.subs {
		select {
		case <-ch:
		default:
		}
		ch <- path
	}
}

// Subscribe returns a channel that first receives the current path and then
// every change. The cancel function closes the channel.
func (p *Publisher) Subscribe() (<-chan Path, func()) {
	ch := make(chan Path, 1)

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	ch <- p.current.Load()
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			close(ch)
			p.mu.Unlock()
		})
	}
}

// Run starts monitor and publishes its updates until ctx is done.
func (p *Publisher) Run(ctx context.Context, monitor PathMonitor) error {
	return monitor.Start(ctx, p.Publish)
}
