package httpclient

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httptrace"
	"sort"
	"strings"
	"sync"
	"time"
)

// generateCurlCommand creates a cURL command equivalent for the given request.
//
// The generated command can be used to reproduce the request from the command line.
// Sensitive headers like Authorization are included for debugging purposes.
//
// Example output:
//
//	curl -X POST 'https://api.example.com/users' -H 'Content-Type: application/json' -d '{"name":"John"}'
func generateCurlCommand(req *http.Request, body []byte) string {
	if req == nil || req.URL == nil {
		return "$ curl command could not be created"
	}

	parts := []string{"curl"}

	if req.Method != http.MethodGet {
		parts = append(parts, "-X", req.Method)
	}

	parts = append(parts, fmt.Sprintf("'%s'", req.URL.String()))

	// Headers (sorted for consistent output)
	headerKeys := make([]string, 0, len(req.Header))
	for k := range req.Header {
		headerKeys = append(headerKeys, k)
	}
	sort.Strings(headerKeys)

	for _, k := range headerKeys {
		for _, v := range req.Header[k] {
			parts = append(parts, "-H", fmt.Sprintf("'%s: %s'", k, v))
		}
	}

	if len(body) > 0 {
		bodyStr := strings.ReplaceAll(string(body), "'", "'\\''")
		parts = append(parts, "-d", fmt.Sprintf("'%s'", bodyStr))
	}

	return strings.Join(parts, " ")
}

// TraceInfo contains timing information for one transport attempt.
//
// Example usage:
//
//	resp, err := client.Request("users/1", http.MethodGet).Do(ctx)
//	if err == nil {
//	    fmt.Println(resp.TraceInfo)
//	    // Output:
//	    // DNS Lookup:    2.1ms
//	    // TCP Connect:   15.3ms
//	    // TLS Handshake: 28.7ms
//	    // Server Time:   45.2ms
//	    // Total Time:    91.3ms
//	}
type TraceInfo struct {
	// DNSLookup is the duration of DNS name resolution.
	// Zero for cached DNS or IP-based URLs.
	DNSLookup time.Duration

	// ConnTime is the duration to establish a TCP connection.
	// Zero when a pooled connection was reused.
	ConnTime time.Duration

	// TLSHandshake is the duration of the TLS handshake.
	// Only populated for HTTPS requests.
	TLSHandshake time.Duration

	// ServerTime is the duration from writing the request to receiving
	// the first byte of the response.
	ServerTime time.Duration

	// TotalTime is the duration of the whole attempt, including reading the
	// response body.
	TotalTime time.Duration

	// ConnReused reports whether the connection came from the pool.
	ConnReused bool
}

// String returns a formatted string representation of the trace info.
func (t *TraceInfo) String() string {
	if t == nil {
		return "TraceInfo: nil"
	}

	return fmt.Sprintf(
		"DNS Lookup:    %s\nTCP Connect:   %s\nTLS Handshake: %s\nServer Time:   %s\nTotal Time:    %s",
		t.DNSLookup,
		t.ConnTime,
		t.TLSHandshake,
		t.ServerTime,
		t.TotalTime,
	)
}

// requestTracer captures timing information for an attempt. Callbacks may
// fire on transport goroutines, so every field is guarded by mu.
type requestTracer struct {
	mu         sync.Mutex
	dnsStart   time.Time
	dnsEnd     time.Time
	connStart  time.Time
	connEnd    time.Time
	tlsStart   time.Time
	tlsEnd     time.Time
	reqWritten time.Time
	firstByte  time.Time
	totalStart time.Time
	reused     bool
}

func newRequestTracer() *requestTracer {
	return &requestTracer{totalStart: time.Now()}
}

func (t *requestTracer) mark(dst *time.Time) {
	t.mu.Lock()
	*dst = time.Now()
	t.mu.Unlock()
}

// clientTrace creates an httptrace.ClientTrace for capturing timing info.
func (t *requestTracer) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			t.mu.Lock()
			t.reused = info.Reused
			t.mu.Unlock()
		},
		DNSStart:          func(httptrace.DNSStartInfo) { t.mark(&t.dnsStart) },
		DNSDone:           func(httptrace.DNSDoneInfo) { t.mark(&t.dnsEnd) },
		ConnectStart:      func(_, _ string) { t.mark(&t.connStart) },
		ConnectDone:       func(_, _ string, _ error) { t.mark(&t.connEnd) },
		TLSHandshakeStart: func() { t.mark(&t.tlsStart) },
		TLSHandshakeDone:  func(tls.ConnectionState, error) { t.mark(&t.tlsEnd) },
		WroteRequest:      func(httptrace.WroteRequestInfo) { t.mark(&t.reqWritten) },
		GotFirstResponseByte: func() {
			t.mark(&t.firstByte)
		},
	}
}

// toTraceInfo converts the captured timing data to a TraceInfo.
func (t *requestTracer) toTraceInfo() *TraceInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	return &TraceInfo{
		DNSLookup:    elapsed(t.dnsStart, t.dnsEnd),
		ConnTime:     elapsed(t.connStart, t.connEnd),
		TLSHandshake: elapsed(t.tlsStart, t.tlsEnd),
		ServerTime:   elapsed(t.reqWritten, t.firstByte),
		TotalTime:    elapsed(t.totalStart, time.Now()),
		ConnReused:   t.reused,
	}
}

func elapsed(start, end time.Time) time.Duration {
	if start.IsZero() || end.IsZero() {
		return 0
	}
	return end.Sub(start)
}
