package errors

import (
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrNotFound          = errors.New("not found")
	ErrCapabilityMissing = errors.New("capability missing")
	ErrInvalidInput      = errors.New("invalid input")
	ErrTimeout           = errors.New("timeout")
	ErrUnavailable       = errors.New("unavailable")
	ErrInternalError     = errors.New("internal error")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeCapability ErrorType = "capability"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeSource     ErrorType = "source"
	ErrorTypeInternal   ErrorType = "internal"
)

// ObjectError is a structured error for operations on a domain object
type ObjectError struct {
	Type       ErrorType
	Op         string // Operation that failed (e.g., "request_data", "list_children")
	Object     string // Identifier of the object involved
	Capability string // Capability name if applicable
	Err        error  // Underlying error
	StatusCode int    // HTTP status code from a remote source if applicable
	Timestamp  time.Time
}

func (e *ObjectError) Error() string {
	if e.Capability != "" && e.Object != "" {
		return fmt.Sprintf("%s failed on %s (%s): %v", e.Op, e.Object, e.Capability, e.Err)
	}
	if e.Object != "" {
		return fmt.Sprintf("%s failed on %s: %v", e.Op, e.Object, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ObjectError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *ObjectError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrNotFound:
		return e.Type == ErrorTypeNotFound
	case ErrCapabilityMissing:
		return e.Type == ErrorTypeCapability
	case ErrInvalidInput:
		return e.Type == ErrorTypeValidation
	case ErrTimeout:
		return e.Type == ErrorTypeTimeout
	}

	return errors.Is(e.Err, target)
}

// NewObjectError creates a new ObjectError
func NewObjectError(errorType ErrorType, op, object string, err error) *ObjectError {
	return &ObjectError{
		Type:      errorType,
		Op:        op,
		Object:    object,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// WithCapability adds the capability name to the error
func (e *ObjectError) WithCapability(name string) *ObjectError {
	e.Capability = name
	return e
}

// WithStatusCode adds a remote HTTP status code to the error
func (e *ObjectError) WithStatusCode(code int) *ObjectError {
	e.StatusCode = code
	if code == 404 {
		e.Type = ErrorTypeNotFound
	} else if code == 408 || code == 504 {
		e.Type = ErrorTypeTimeout
	}
	return e
}

// Helper functions

// NotFound reports an unknown object identifier
func NotFound(op, object string) error {
	return NewObjectError(ErrorTypeNotFound, op, object, ErrNotFound)
}

// CapabilityMissing reports an object that does not expose the named capability
func CapabilityMissing(op, object, capability string) error {
	return NewObjectError(ErrorTypeCapability, op, object, ErrCapabilityMissing).WithCapability(capability)
}

// WrapSourceError wraps a telemetry source failure with context
func WrapSourceError(op, object string, err error, statusCode int) error {
	return NewObjectError(ErrorTypeSource, op, object, err).WithStatusCode(statusCode)
}

// IsNotFound checks if an error reports an unknown object
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCapabilityMissing checks if an error reports a missing capability
func IsCapabilityMissing(err error) bool {
	return errors.Is(err, ErrCapabilityMissing)
}
