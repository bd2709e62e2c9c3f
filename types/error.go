package types

import "fmt"

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Request and validation error codes
const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"
	ErrUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	ErrFileTooLarge      ErrorCode = "FILE_TOO_LARGE"
	ErrNotFound          ErrorCode = "NOT_FOUND"
	ErrUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrRateLimited       ErrorCode = "RATE_LIMITED"
)

// Media processing error codes
const (
	ErrFFmpegFailed  ErrorCode = "FFMPEG_FAILED"
	ErrFFprobeFailed ErrorCode = "FFPROBE_FAILED"
	ErrFFmpegMissing ErrorCode = "FFMPEG_MISSING"
)

// AI service error codes
const (
	ErrTranscriptionFailed ErrorCode = "TRANSCRIPTION_FAILED"
	ErrAnalysisFailed      ErrorCode = "ANALYSIS_FAILED"
	ErrAPIKeyMissing       ErrorCode = "API_KEY_MISSING"
	ErrUpstreamError       ErrorCode = "UPSTREAM_ERROR"
	ErrUpstreamTimeout     ErrorCode = "UPSTREAM_TIMEOUT"
)

// Persistence error codes
const (
	ErrStorageFailed ErrorCode = "STORAGE_FAILED"
	ErrCacheFailed   ErrorCode = "CACHE_FAILED"
)

// Job lifecycle error codes
const (
	ErrJobNotFound  ErrorCode = "JOB_NOT_FOUND"
	ErrJobCancelled ErrorCode = "JOB_CANCELLED"
	ErrTimeout      ErrorCode = "TIMEOUT"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Component  string    `json:"component,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates a new Error wrapping an underlying cause.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithComponent sets the component that produced the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
