package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError is the unified error type used across streamkit.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the status the expose adapter answers with.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// Is reports whether target is an AppError with the same code, so that
// errors.Is(err, ErrClosed) matches any closed-state error.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// ErrClosed is the comparison target for closed-state errors. Match it
// with errors.Is; never mutate it.
var ErrClosed = &AppError{Code: ErrCodeClosed, Message: "closed"}

// Closed creates the error returned by pushes and pulls on a closed resource.
func Closed(resource string) *AppError {
	return &AppError{
		Code: ErrCodeClosed, Message: fmt.Sprintf("%s is closed", resource),
		HTTPStatus: http.StatusGone,
		Details:    map[string]any{"resource": resource},
	}
}

// InvalidConfig creates a construction-time configuration error.
func InvalidConfig(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidConfig, Message: fmt.Sprintf("invalid configuration: %s", reason),
		HTTPStatus: http.StatusInternalServerError, Details: details,
	}
}

// InvalidInput creates an error for malformed adapter input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("invalid input: %s", reason),
		HTTPStatus: http.StatusBadRequest, Details: details,
	}
}

// NotFound creates a new AppError for a resource that was not found.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %q was not found", resource, id),
		HTTPStatus: http.StatusNotFound, Details: details,
	}
}

// ListenerFailed wraps a value recovered from a panicking listener.
func ListenerFailed(stream string, recovered any) *AppError {
	cause, ok := recovered.(error)
	if !ok {
		cause = fmt.Errorf("%v", recovered)
	}
	return &AppError{
		Code: ErrCodeListenerFailed, Message: "listener panicked during dispatch",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"stream": stream},
		Cause:      cause,
	}
}

// TransformFailed wraps an error returned by a per-value transformation.
// index is the arrival position of the failed value.
func TransformFailed(index uint64, cause error) *AppError {
	return &AppError{
		Code: ErrCodeTransformFailed, Message: "transformation failed",
		HTTPStatus: http.StatusUnprocessableEntity, Retryable: true,
		Details: map[string]any{"index": index},
		Cause:   cause,
	}
}

// FromContext maps a context error to a Canceled or Timeout AppError.
// Returns nil when err is nil.
func FromContext(err error) *AppError {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, context.DeadlineExceeded):
		return &AppError{
			Code: ErrCodeTimeout, Message: "deadline exceeded while waiting",
			HTTPStatus: http.StatusGatewayTimeout, Retryable: true, Cause: err,
		}
	default:
		return &AppError{
			Code: ErrCodeCanceled, Message: "canceled while waiting",
			HTTPStatus: 499, Cause: err,
		}
	}
}

// Internal creates a new AppError for an unexpected failure.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "an unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError, Cause: cause,
	}
}
