package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Authentication
	ErrCodeUnauthorized ErrorCode = "unauthorized"

	// Validation
	ErrCodeInvalidInput        ErrorCode = "invalid-input"
	ErrCodeMissingRequired     ErrorCode = "missing-required"
	ErrCodeMissingDevice       ErrorCode = "missing-device"
	ErrCodeInvalidDeviceFormat ErrorCode = "invalid-device-format"

	// Resource
	ErrCodeNotFound       ErrorCode = "not-found"
	ErrCodeDeviceNotFound ErrorCode = "device-not-found"

	// Request size
	ErrCodePayloadTooLarge ErrorCode = "payload-too-large"

	// Pairing
	ErrCodeUnknownCode          ErrorCode = "unknown-code"
	ErrCodeCodeExpired          ErrorCode = "code-expired"
	ErrCodeCodeAllocationFailed ErrorCode = "code-allocation-failed"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "rate-limit-exceeded"

	// Storage
	ErrCodeStorageBusy    ErrorCode = "storage-busy"
	ErrCodeStorageFailure ErrorCode = "storage-failure"

	// Internal
	ErrCodeInternal ErrorCode = "internal"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// Retryable reports whether the caller may safely repeat the request.
func (e *AppError) Retryable() bool {
	return e.Code == ErrCodeStorageBusy
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func MissingDevice() *AppError {
	return New(ErrCodeMissingDevice, "device is required")
}

func InvalidDeviceFormat(id string) *AppError {
	return New(ErrCodeInvalidDeviceFormat, "device id has an invalid format").
		WithDetails(map[string]string{"device": id})
}

func DeviceNotFound(id string) *AppError {
	return New(ErrCodeDeviceNotFound, "Device not found").
		WithDetails(map[string]string{"device": id})
}

func UnknownCode() *AppError {
	return New(ErrCodeUnknownCode, "Unknown pairing code")
}

func CodeExpired() *AppError {
	return New(ErrCodeCodeExpired, "Pairing code has expired")
}

func CodeAllocationFailed(attempts int) *AppError {
	return New(ErrCodeCodeAllocationFailed, fmt.Sprintf("Cannot allocate pairing code after %d attempts", attempts))
}

func PayloadTooLarge(limit int64) *AppError {
	return New(ErrCodePayloadTooLarge, "Request body too large").
		WithDetails(map[string]int64{"limitBytes": limit})
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func StorageBusy(cause error) *AppError {
	return Wrap(ErrCodeStorageBusy, "Store is busy, retry the request", cause)
}

func StorageFailure(cause error) *AppError {
	return Wrap(ErrCodeStorageFailure, "Storage error", cause)
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
