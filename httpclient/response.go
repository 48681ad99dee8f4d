package httpclient

import (
	"encoding/xml"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
)

// Response is the final response of a Request. The body has already been
// read from the wire; Body and String return the cached bytes.
//
// Example usage:
//
//	resp, err := client.Get("users/1").Do(ctx)
//	if err != nil {
//	    return err
//	}
//
//	var user User
//	if err := resp.Decode(&user); err != nil {
//	    return err
//	}
type Response struct {
	// Response embeds the standard http.Response. Its Body is always
	// http.NoBody.
	*http.Response

	body   []byte
	handle *Request
	curl   string
	trace  *TraceInfo
}

// Body returns the response body.
func (r *Response) Body() []byte {
	return r.body
}

// String returns the response body as a string.
func (r *Response) String() string {
	return string(r.body)
}

// IsSuccess returns true if the response status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsError returns true if the response status code is 4xx or 5xx.
func (r *Response) IsError() bool {
	return r.StatusCode >= 400
}

// Decode decodes the body into v according to the Content-Type header,
// defaulting to JSON.
func (r *Response) Decode(v any) error {
	if len(r.body) == 0 {
		return newNetworkError(KindResponseSerializationFailed, errEmptyBody)
	}
	if err := decodeBody(r.body, r.Header.Get("Content-Type"), v); err != nil {
		return newNetworkError(KindResponseSerializationFailed, err)
	}
	return nil
}

// CurlCommand returns the cURL command equivalent of the last attempt.
func (r *Response) CurlCommand() string {
	return r.curl
}

// TraceInfo returns timing information of the last attempt.
func (r *Response) TraceInfo() *TraceInfo {
	return r.trace
}

// Handle returns the request that produced the response.
func (r *Response) Handle() *Request {
	return r.handle
}

// decodeBody decodes the body based on content type.
func decodeBody(body []byte, contentType string, target any) error {
	if strings.Contains(contentType, "application/json") {
		return json.Unmarshal(body, target)
	}
	isXML := strings.Contains(contentType, "application/xml") ||
		strings.Contains(contentType, "text/xml")
	if isXML {
		return xml.Unmarshal(body, target)
	}
	return json.Unmarshal(body, target)
}
