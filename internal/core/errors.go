// Package core provides the wire schema and error types shared by the
// transport and the conversation service.
package core

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// Structural validation failures. Use errors.Is on a StructuralError.
var (
	ErrNoChoices    = errors.New("no choices available in API response")
	ErrNilChoice    = errors.New("first choice is null in API response")
	ErrNilMessage   = errors.New("message object is null in API response choice")
	ErrEmptyContent = errors.New("message content is empty in API response")
)

// RequestFailedError is a transport-level failure: the connection failed,
// the server answered with a non-2xx status, or a required body was empty
// or undecodable.
type RequestFailedError struct {
	Method     string
	URL        string
	StatusCode int
	// Message is the HTTP reason phrase or a short description of the failure.
	Message string
	// Body is the raw response body, if one was read.
	Body string
	// Err is the underlying connection or decode error, if any.
	Err error `json:"-"`
}

// NewRequestFailedError builds a RequestFailedError for a received response.
func NewRequestFailedError(method, url string, statusCode int, body []byte) *RequestFailedError {
	return &RequestFailedError{
		Method:     method,
		URL:        url,
		StatusCode: statusCode,
		Message:    http.StatusText(statusCode),
		Body:       string(body),
	}
}

// NewConnectionError builds a RequestFailedError for a request that never
// produced a response.
func NewConnectionError(method, url string, err error) *RequestFailedError {
	return &RequestFailedError{
		Method:  method,
		URL:     url,
		Message: "failed to send request: " + err.Error(),
		Err:     err,
	}
}

func (e *RequestFailedError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s request failed: %s", e.Method, e.Message)
	}
	msg := fmt.Sprintf("%s request failed. Code: %d - %s", e.Method, e.StatusCode, e.Message)
	if e.Method == http.MethodPost {
		msg += "\nResponse body: " + e.Body
	}
	return msg
}

func (e *RequestFailedError) Unwrap() error {
	return e.Err
}

// APIMessage returns the provider's own error message from the body, if the
// body follows one of the common {"error": ...} shapes.
func (e *RequestFailedError) APIMessage() string {
	if e.Body == "" || !gjson.Valid(e.Body) {
		return ""
	}
	for _, path := range []string{"error.message", "error", "message"} {
		if v := gjson.Get(e.Body, path); v.Exists() && v.Type == gjson.String {
			return v.String()
		}
	}
	return ""
}

// APIError is a service-level failure. Op describes the attempted action
// and Err keeps the transport cause.
type APIError struct {
	Op  string
	Err error
}

// NewAPIError wraps err with a human-readable action description.
func NewAPIError(op string, err error) *APIError {
	return &APIError{Op: op, Err: err}
}

func (e *APIError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// StructuralError reports a syntactically valid response that lacks the
// fields needed to extract a result.
type StructuralError struct {
	Reason error
}

// NewStructuralError wraps one of the Err* structural sentinels.
func NewStructuralError(reason error) *StructuralError {
	return &StructuralError{Reason: reason}
}

func (e *StructuralError) Error() string {
	return e.Reason.Error()
}

func (e *StructuralError) Unwrap() error {
	return e.Reason
}
