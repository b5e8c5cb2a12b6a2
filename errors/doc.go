// Package errors provides the structured error type shared by every
// streamkit package.
//
// Errors carry a machine-readable code, an HTTP status used by the expose
// adapter, and an optional cause. Closed-state errors match the ErrClosed
// sentinel through errors.Is regardless of which resource produced them.
package errors
