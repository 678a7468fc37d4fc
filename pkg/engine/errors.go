package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of a runtime error for retry logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on retry.
	// Examples: daemon restarting, registry timeouts.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassThrottled indicates rate limiting, typically by an image registry.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassConflict indicates a resource state conflict.
	// Examples: a container or network name already in use.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: image not found, invalid container configuration.
	ErrorClassPermanent ErrorClass = "permanent"
)

// RuntimeError is a classified error returned by a Runtime operation.
type RuntimeError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource names the container, image or network involved.
	Resource string `json:"resource,omitempty"`

	// Operation is the runtime operation that failed.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Resource != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (resource=%s, operation=%s)%s",
			e.Class, e.Message, e.Resource, e.Operation, e.unwrapMessage())
	}
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s (resource=%s)%s",
			e.Class, e.Message, e.Resource, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s%s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func (e *RuntimeError) unwrapMessage() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *RuntimeError) Is(target error) bool {
	t, ok := target.(*RuntimeError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// Reason is the short description shown to users: the message followed
// by the underlying cause.
func (e *RuntimeError) Reason() string {
	return e.Message + e.unwrapMessage()
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *RuntimeError {
	return &RuntimeError{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewThrottledError creates a new throttled error.
func NewThrottledError(message string, err error) *RuntimeError {
	return &RuntimeError{Class: ErrorClassThrottled, Message: message, Err: err}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *RuntimeError {
	return &RuntimeError{Class: ErrorClassConflict, Message: message, Err: err}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *RuntimeError {
	return &RuntimeError{Class: ErrorClassPermanent, Message: message, Err: err}
}

// WithResource adds resource context to an error.
func (e *RuntimeError) WithResource(resource string) *RuntimeError {
	e.Resource = resource
	return e
}

// WithOperation adds operation context to an error.
func (e *RuntimeError) WithOperation(operation string) *RuntimeError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *RuntimeError) WithCode(code string) *RuntimeError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *RuntimeError) WithDetail(key string, value interface{}) *RuntimeError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// AsRuntimeError returns err as a *RuntimeError, classifying anything
// unclassified as permanent.
func AsRuntimeError(err error) *RuntimeError {
	if err == nil {
		return nil
	}
	var re *RuntimeError
	if errors.As(err, &re) {
		return re
	}
	return NewPermanentError("runtime operation failed", err).WithCode(ErrCodeInternal)
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *RuntimeError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsThrottled returns true if the error is classified as throttled.
func IsThrottled(err error) bool {
	var e *RuntimeError
	if errors.As(err, &e) {
		return e.Class == ErrorClassThrottled
	}
	return false
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	var e *RuntimeError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConflict
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *RuntimeError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsRetryable returns true if the error can be retried.
// Transient, throttled, and conflict errors are retryable.
func IsRetryable(err error) bool {
	return IsTransient(err) || IsThrottled(err) || IsConflict(err)
}

// Common error codes.
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeAlreadyExists     = "ALREADY_EXISTS"
	ErrCodePermissionDenied  = "PERMISSION_DENIED"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeDaemonUnavailable = "DAEMON_UNAVAILABLE"
	ErrCodeInvalidSpec       = "INVALID_SPEC"
	ErrCodeUnhealthy         = "UNHEALTHY"
	ErrCodeExited            = "EXITED"
	ErrCodeBuildFailed       = "BUILD_FAILED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// InvariantViolation reports an internally impossible state, such as two
// events for a fact that can only happen once. It is a defect, never a
// recoverable condition.
type InvariantViolation struct {
	// Message describes the violated invariant.
	Message string

	// Kind is the event kind involved, if any.
	Kind EventKind

	// Count is the number of matching events found, if relevant.
	Count int
}

// Error implements the error interface.
func (v *InvariantViolation) Error() string {
	if v.Kind != "" {
		return fmt.Sprintf("invariant violation: %s (event=%s, count=%d)", v.Message, v.Kind, v.Count)
	}
	return "invariant violation: " + v.Message
}

// IsInvariantViolation reports whether err is or wraps an InvariantViolation.
func IsInvariantViolation(err error) bool {
	var v *InvariantViolation
	return errors.As(err, &v)
}
