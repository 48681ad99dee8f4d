package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// RetryClassifier reports whether a failed attempt is transient. resp is
// nil when the transport failed; err is nil when a response arrived.
//
// Example classifier that also retries 500:
//
//	classifier := func(resp *http.Response, err error) bool {
//	    if resp != nil && resp.StatusCode == http.StatusInternalServerError {
//	        return true
//	    }
//	    return httpclient.DefaultClassifier(resp, err)
//	}
type RetryClassifier func(resp *http.Response, err error) bool

// DefaultClassifier applies production-safe retry rules.
//
// Retries on:
//   - Network errors (timeout, connection refused, reset)
//   - 429 Too Many Requests
//   - 502, 503 and 504
//
// Does NOT retry on:
//   - Other status codes, including 500 and 401
//   - Context cancellation or deadline
//   - Permanent errors (certificate errors, unknown host)
func DefaultClassifier(resp *http.Response, err error) bool {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		if errors.Is(err, ErrCellularAccessDenied) || isPermanentError(err) {
			return false
		}
		// Unknown transport failures are worth another attempt.
		return true
	}

	if resp != nil {
		return isRetryableStatusCode(resp.StatusCode)
	}
	return false
}

// TransientRetrier retries failures that classifier reports as transient
// while the request is below the client's retry ceiling. A nil classifier
// uses DefaultClassifier.
func TransientRetrier(classifier RetryClassifier) RequestRetrier {
	if classifier == nil {
		classifier = DefaultClassifier
	}
	return RetrierFunc(func(_ context.Context, req *Request, client *Client, err error) RetryPolicy {
		if req.RetryCount() >= client.MaxRetries() {
			return DoNotRetry
		}

		var resp *http.Response
		var cause error
		if attempts := req.Attempts(); len(attempts) > 0 {
			resp = attempts[len(attempts)-1].Response
		}
		if IsKind(err, KindSessionTaskFailed) {
			cause = errors.Unwrap(err)
			resp = nil
		} else if resp == nil {
			// Failed before reaching the transport.
			return DoNotRetry
		}

		if classifier(resp, cause) {
			return Retry
		}
		return DoNotRetry
	})
}

// isRetryableStatusCode returns true for status codes that indicate
// transient failures that may succeed on retry.
func isRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// isPermanentError returns true for errors that will not succeed
// on retry and should fail immediately.
func isPermanentError(err error) bool {
	if err == nil {
		return false
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}

	// Host doesn't exist (NXDOMAIN)
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return true
	}

	if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EHOSTDOWN) {
		return true
	}

	// Wrapped errors from third-party code lose their types.
	errStr := strings.ToLower(err.Error())
	for _, p := range []string{"x509:", "certificate", "no route to host", "permission denied"} {
		if strings.Contains(errStr, p) {
			return true
		}
	}
	return false
}
