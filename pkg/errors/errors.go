// Package errors provides typed errors for the realtime subscription and
// cache-consistency layer. Errors carry a code, a human-readable message,
// an optional cause, and a captured stack trace.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Common sentinel errors for quick checks
var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("operation timeout")

	// ErrServiceUnavailable is returned when a required service is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrConnectionFailed is returned when a change-feed connection cannot
	// be established or is terminally lost.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrChannelClosed is returned when a closed channel is used.
	ErrChannelClosed = errors.New("channel closed")

	// ErrInternal is returned when an internal error occurs.
	ErrInternal = errors.New("internal error")
)

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool { return errors.As(err, target) }

// Error is the base interface for all typed errors in the system.
// It extends the standard error interface with additional context.
type Error interface {
	error
	// Code returns the error code
	Code() string
	// Message returns the human-readable error message
	Message() string
	// Unwrap returns the underlying cause
	Unwrap() error
}

// BaseError provides a foundation for all typed errors.
type BaseError struct {
	code    string
	message string
	cause   error
	stack   []uintptr
}

// Error implements the error interface.
func (e *BaseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Code returns the error code.
func (e *BaseError) Code() string {
	return e.code
}

// Message returns the error message.
func (e *BaseError) Message() string {
	return e.message
}

// Unwrap returns the underlying cause.
func (e *BaseError) Unwrap() error {
	return e.cause
}

// Stack returns the captured stack trace.
func (e *BaseError) Stack() []uintptr {
	return e.stack
}

// captureStack captures the current stack trace.
func captureStack(skip int) []uintptr {
	const maxDepth = 32
	stack := make([]uintptr, maxDepth)
	n := runtime.Callers(skip+2, stack)
	return stack[:n]
}

// StackTrace returns a formatted stack trace string.
func (e *BaseError) StackTrace() string {
	if len(e.stack) == 0 {
		return ""
	}

	var buf strings.Builder
	frames := runtime.CallersFrames(e.stack)
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			fmt.Fprintf(&buf, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		}
		if !more {
			break
		}
	}
	return buf.String()
}

// ConnectionError represents a change-feed connection failure: the
// connection could not be opened, or it dropped and could not be reopened
// within the retry budget. It is scoped to one channel and does not affect
// other channels.
type ConnectionError struct {
	*BaseError
	Channel  string
	Attempts int
}

// NewConnectionError creates a new connection error for a channel.
func NewConnectionError(channel string, attempts int, cause error) *ConnectionError {
	return &ConnectionError{
		BaseError: &BaseError{
			code:    CodeConnectionFailed,
			message: fmt.Sprintf("channel %q: connection failed", channel),
			cause:   cause,
			stack:   captureStack(1),
		},
		Channel:  channel,
		Attempts: attempts,
	}
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Attempts > 1 {
		if e.cause != nil {
			return fmt.Sprintf("channel %q: connection failed after %d attempts: %v", e.Channel, e.Attempts, e.cause)
		}
		return fmt.Sprintf("channel %q: connection failed after %d attempts", e.Channel, e.Attempts)
	}
	return e.BaseError.Error()
}

// MalformedEventError represents a change event missing the identity
// fields its event type requires, such as an update without a primary key.
// Malformed events are dropped with a diagnostic; they never crash a
// channel or affect other consumers.
type MalformedEventError struct {
	*BaseError
	Table     string
	EventType string
	Field     string
}

// NewMalformedEventError creates a new malformed event error.
func NewMalformedEventError(table, eventType, field string) *MalformedEventError {
	return &MalformedEventError{
		BaseError: &BaseError{
			code:    CodeMalformedEvent,
			message: fmt.Sprintf("malformed %s event on %q: missing %s", eventType, table, field),
			stack:   captureStack(1),
		},
		Table:     table,
		EventType: eventType,
		Field:     field,
	}
}

// ValidationError represents an input validation error.
type ValidationError struct {
	*BaseError
	Field string
	Value interface{}
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		BaseError: &BaseError{
			code:    CodeValidation,
			message: message,
			stack:   captureStack(1),
		},
		Field: field,
		Value: value,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.message)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	*BaseError
	Resource string
	ID       string
}

// NewNotFoundError creates a new not found error.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{
		BaseError: &BaseError{
			code:    CodeNotFound,
			message: fmt.Sprintf("%s not found", resource),
			stack:   captureStack(1),
		},
		Resource: resource,
		ID:       id,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s with ID '%s' not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// TimeoutError represents an operation timeout.
type TimeoutError struct {
	*BaseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new timeout error.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		BaseError: &BaseError{
			code:    CodeTimeout,
			message: fmt.Sprintf("%s timed out after %s", operation, duration),
			stack:   captureStack(1),
		},
		Operation: operation,
		Duration:  duration,
	}
}

// InternalError represents an internal error.
type InternalError struct {
	*BaseError
}

// NewInternalError creates a new internal error wrapping a cause.
func NewInternalError(message string, cause error) *InternalError {
	return &InternalError{
		BaseError: &BaseError{
			code:    CodeInternal,
			message: message,
			cause:   cause,
			stack:   captureStack(1),
		},
	}
}

// Wrap wraps an error with an additional message while preserving the
// original error for Is/As checks.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
