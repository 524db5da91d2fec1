// Package errors defines the stable error codes returned by getudid components.
package errors

import (
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// BindFailed indicates the listening socket could not be created
	BindFailed ErrorCode = "BIND_FAILED"
	// TransportFailed indicates the listener failed while accepting connections
	TransportFailed ErrorCode = "TRANSPORT_FAILED"
	// MalformedRequest indicates the request line could not be parsed
	MalformedRequest ErrorCode = "MALFORMED_REQUEST"
	// MethodNotAllowed indicates an endpoint was called with an unsupported method
	MethodNotAllowed ErrorCode = "METHOD_NOT_ALLOWED"
	// UnparseableBody indicates the body has no embedded property list
	UnparseableBody ErrorCode = "UNPARSEABLE_BODY"
	// ParseError indicates the embedded property list could not be decoded
	ParseError ErrorCode = "PARSE_ERROR"
	// ArtifactUnavailable indicates the configuration profile could not be read
	ArtifactUnavailable ErrorCode = "ARTIFACT_UNAVAILABLE"
	// ProbeFailed indicates the liveness probe did not reach the server
	ProbeFailed ErrorCode = "PROBE_FAILED"
	// ConfigInvalid indicates configuration failed validation or could not be loaded
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
)

// Error is a getudid error with a stable code, a message and an optional cause
type Error struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error       // Underlying error (not exported to JSON)
}

// New creates a new Error
func New(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// CodeOf returns the code of err when it is an *Error, or "" otherwise.
func CodeOf(err error) ErrorCode {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
