package httpclient

import (
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"
)

// Validator inspects a completed attempt. A non-nil error fails the attempt
// with KindResponseValidationFailed and hands it to the retriers.
type Validator func(req *http.Request, resp *http.Response, data []byte) error

// loginInUseMessage replaces the LoginAlreadyInUseException error code.
const loginInUseMessage = "This email is already in use. Please sign in."

// FaultError is the structured error envelope returned by the API:
//
//	{"fault": {"type": "...", "message": "...", "arguments": {"statusCode": "008"}}}
//
// A flat {"error": "..."} body yields a FaultError whose Type and Message
// are both the error string. StatusCode is the API's own code, not the HTTP
// status.
type FaultError struct {
	Type       string
	Message    string
	StatusCode string
}

// Error returns the fault message.
func (e *FaultError) Error() string {
	return e.Message
}

type faultEnvelope struct {
	Fault *struct {
		Type      *string `json:"type"`
		Message   *string `json:"message"`
		Arguments *struct {
			StatusCode string `json:"statusCode"`
		} `json:"arguments"`
	} `json:"fault"`
}

type flatErrorEnvelope struct {
	Error any `json:"error"`
}

// ValidateFault decodes the API's error envelope from data. Bodies that are
// empty, not JSON, or carry neither envelope validate successfully; callers
// that need a status check add ValidateStatus.
func ValidateFault(_ *http.Request, _ *http.Response, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	var env faultEnvelope
	if err := json.Unmarshal(data, &env); err == nil {
		if f := env.Fault; f != nil && f.Type != nil && f.Message != nil {
			fault := &FaultError{Type: *f.Type, Message: *f.Message}
			if f.Arguments != nil {
				fault.StatusCode = f.Arguments.StatusCode
			}
			return fault
		}
	}

	// A malformed fault still falls through to the flat error key.
	var flat flatErrorEnvelope
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil
	}
	msg, ok := flat.Error.(string)
	if !ok {
		return nil
	}
	if msg == "LoginAlreadyInUseException" {
		msg = loginInUseMessage
	}
	return &FaultError{Type: msg, Message: msg}
}

// StatusCodeError is returned by ValidateStatus for unacceptable codes.
type StatusCodeError struct {
	StatusCode int
}

func (e *StatusCodeError) Error() string {
	return fmt.Sprintf("unacceptable status code %d", e.StatusCode)
}

// ValidateStatus accepts status codes in [lo, hi).
func ValidateStatus(lo, hi int) Validator {
	return func(_ *http.Request, resp *http.Response, _ []byte) error {
		if resp == nil {
			return nil
		}
		if resp.StatusCode < lo || resp.StatusCode >= hi {
			return &StatusCodeError{StatusCode: resp.StatusCode}
		}
		return nil
	}
}

// ValidateSuccess accepts 2xx status codes.
func ValidateSuccess() Validator {
	return ValidateStatus(200, 300)
}
