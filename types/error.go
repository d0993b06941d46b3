package types

import "fmt"

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Configuration errors — rejected before any work is enqueued, never retried.
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnsupportedBackend ErrorCode = "UNSUPPORTED_BACKEND"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrDuplicateName      ErrorCode = "DUPLICATE_NAME"
	ErrEngineMismatch     ErrorCode = "ENGINE_MISMATCH"
)

// Connectivity errors — surfaced as reachable=false, never crash the engine.
const (
	ErrConnectorUnreachable ErrorCode = "CONNECTOR_UNREACHABLE"
	ErrConnectorChatFailed  ErrorCode = "CONNECTOR_CHAT_FAILED"
	ErrConnectorEmptyReply  ErrorCode = "CONNECTOR_EMPTY_REPLY"
	ErrUpstreamError        ErrorCode = "UPSTREAM_ERROR"
)

// Run-level errors
const (
	ErrConversationFailed ErrorCode = "CONVERSATION_FAILED"
	ErrBatchRunFailed     ErrorCode = "BATCH_RUN_FAILED"
	ErrEvaluationFailed   ErrorCode = "EVALUATION_FAILED"
	ErrDatabase           ErrorCode = "DATABASE_ERROR"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Backend    string    `json:"backend,omitempty"`
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

// WithBackend sets the backend name the error originated from.
func (e *Error) WithBackend(backend string) *Error {
	e.Backend = backend
	return e
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether the error is marked retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}
