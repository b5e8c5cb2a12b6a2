package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Lifecycle errors
const (
	// ErrCodeClosed indicates an operation on a permanently closed stream or buffer.
	ErrCodeClosed ErrorCode = "STREAM_CLOSED"
	// ErrCodeCanceled indicates the caller's context was canceled while waiting.
	ErrCodeCanceled ErrorCode = "CANCELED"
	// ErrCodeTimeout indicates the caller's deadline expired while waiting.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
)

// Configuration errors
const (
	// ErrCodeInvalidConfig indicates a rejected capacity, policy or strategy.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	// ErrCodeInvalidInput indicates malformed input at an adapter boundary.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeNotFound indicates an unknown route or resource.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Containment errors
const (
	// ErrCodeListenerFailed indicates a listener callback panicked during dispatch.
	ErrCodeListenerFailed ErrorCode = "LISTENER_FAILED"
	// ErrCodeTransformFailed indicates a mapper or predicate returned an error.
	ErrCodeTransformFailed ErrorCode = "TRANSFORM_FAILED"
	// ErrCodeInternal indicates an unexpected internal failure.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeTimeout:         true,
	ErrCodeTransformFailed: true,
	ErrCodeInternal:        false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
