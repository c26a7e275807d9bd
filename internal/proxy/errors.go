package proxy

import "fmt"

// ErrorCode classifies a request handling failure.
type ErrorCode string

const (
	CodeHeaderReadTimeout ErrorCode = "HEADER_READ_TIMEOUT"
	CodeMalformedRequest  ErrorCode = "MALFORMED_REQUEST"
	CodeAccessDenied      ErrorCode = "ACCESS_DENIED"
	CodeBodyTooLarge      ErrorCode = "BODY_TOO_LARGE"
	CodeUpstreamConnect   ErrorCode = "UPSTREAM_CONNECT_FAILURE"
	CodeUpstreamRequest   ErrorCode = "UPSTREAM_REQUEST_ERROR"
)

// RequestError is a classified failure raised while handling one client
// request. The code decides which canned response the client receives.
type RequestError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *RequestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Cause
}

// NewRequestError creates a classified error without an underlying cause.
func NewRequestError(code ErrorCode, format string, args ...any) *RequestError {
	return &RequestError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapRequestError attaches a classification to an underlying error.
func WrapRequestError(cause error, code ErrorCode, message string) *RequestError {
	return &RequestError{Code: code, Message: message, Cause: cause}
}
