package reachability

import (
	"context"
	"net"
	"time"
)

const (
	defaultProbeInterval = 10 * time.Second
	defaultProbeTimeout  = 3 * time.Second
)

// DialMonitor probes reachability by opening a TCP connection to an address
// on a fixed interval.
type DialMonitor struct {
	// Address is the host:port to dial.
	Address string

	// Interval between probes. Default: 10s
	Interval time.Duration

	// Timeout for each dial. Default: 3s
	Timeout time.Duration

	// Expensive marks every satisfied path as metered.
	Expensive bool

	dial func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewDialMonitor returns a DialMonitor for address with default timings.
func NewDialMonitor(address string) *DialMonitor {
	return &DialMonitor{
		Address:  address,
		Interval: defaultProbeInterval,
		Timeout:  defaultProbeTimeout,
	}
}

// Start implements PathMonitor. It probes once immediately.
func (m *DialMonitor) Start(ctx context.Context, update func(Path)) error {
	interval := m.Interval
	if interval <= 0 {
		interval = defaultProbeInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		update(m.probe(ctx))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *DialMonitor) probe(ctx context.Context) Path {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	dial := m.dial
	if dial == nil {
		d := &net.Dialer{}
		dial = d.DialContext
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dial(ctx, "tcp", m.Address)
	if err != nil {
		return Path{Status: StatusUnsatisfied}
	}
	_ = conn.Close()

	return Path{Status: StatusSatisfied, IsExpensive: m.Expensive}
}
