package httpclient

import "net/http"

// Parameters are the key/value pairs encoded into a request by a
// ParameterEncoding.
type Parameters = map[string]any

// ParameterEncoding defines how Parameters are applied to a request.
type ParameterEncoding int

const (
	// EncodingDefault picks EncodingURL for GET, HEAD and DELETE and
	// EncodingJSON for every other method.
	EncodingDefault ParameterEncoding = iota

	// EncodingJSON writes the parameters as a JSON body.
	EncodingJSON

	// EncodingURL writes a query string for GET, HEAD and DELETE and a
	// form-urlencoded body otherwise.
	EncodingURL

	// EncodingBody always writes a form-urlencoded body.
	EncodingBody

	// EncodingQueryString always writes a query string.
	EncodingQueryString
)

// resolve returns the concrete encoding for method: JSON, Body or
// QueryString.
func (e ParameterEncoding) resolve(method string) ParameterEncoding {
	bodyless := method == http.MethodGet || method == http.MethodHead || method == http.MethodDelete
	switch e {
	case EncodingDefault:
		if bodyless {
			return EncodingQueryString
		}
		return EncodingJSON
	case EncodingURL:
		if bodyless {
			return EncodingQueryString
		}
		return EncodingBody
	default:
		return e
	}
}

// CachePolicy controls the Cache-Control directive sent with each request.
// The client keeps no response cache of its own.
type CachePolicy int

const (
	// CachePolicyReloadIgnoringLocalCache asks intermediaries for a fresh
	// response (Cache-Control: no-cache). This is the default.
	CachePolicyReloadIgnoringLocalCache CachePolicy = iota

	// CachePolicyUseProtocol sends no cache directive.
	CachePolicyUseProtocol

	// CachePolicyReturnCacheDataElseLoad accepts stale intermediary data
	// (Cache-Control: max-stale).
	CachePolicyReturnCacheDataElseLoad
)

// directive returns the Cache-Control value for the policy, or "".
func (p CachePolicy) directive() string {
	switch p {
	case CachePolicyReloadIgnoringLocalCache:
		return "no-cache"
	case CachePolicyReturnCacheDataElseLoad:
		return "max-stale"
	default:
		return ""
	}
}

// RetryPolicy is the decision returned by a RequestRetrier.
type RetryPolicy int

const (
	// DoNotRetry completes the request with its current error.
	DoNotRetry RetryPolicy = iota

	// Retry sends the request again.
	Retry
)

// String returns the policy name.
func (p RetryPolicy) String() string {
	if p == Retry {
		return "retry"
	}
	return "do_not_retry"
}
