package httpclient

import (
	"net/http"
	"time"
)

// PoolStats is a snapshot of the connection pool settings in effect.
type PoolStats struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	ForceHTTP2          bool
}

// PoolStats reports the pool settings of the base transport. It is empty
// when the base transport is not an *http.Transport, for example with
// WithTransport or WithMockTransport.
func (c *Client) PoolStats() PoolStats {
	t := unwrapTransport(c.httpClient.Transport)
	if t == nil {
		return PoolStats{}
	}
	return PoolStats{
		MaxIdleConns:        t.MaxIdleConns,
		MaxIdleConnsPerHost: t.MaxIdleConnsPerHost,
		MaxConnsPerHost:     t.MaxConnsPerHost,
		IdleConnTimeout:     t.IdleConnTimeout,
		ForceHTTP2:          t.ForceAttemptHTTP2,
	}
}

// unwrapTransport walks the wrapper chain down to the *http.Transport.
func unwrapTransport(rt http.RoundTripper) *http.Transport {
	for rt != nil {
		switch t := rt.(type) {
		case *http.Transport:
			return t
		case interface{ Unwrap() http.RoundTripper }:
			rt = t.Unwrap()
		default:
			return nil
		}
	}
	return nil
}
