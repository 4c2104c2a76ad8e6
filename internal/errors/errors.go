package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Pied error code.
type ErrorCode string

const (
	ErrInvalidRequest        ErrorCode = "INVALID_REQUEST"         // 400
	ErrNotFound              ErrorCode = "NOT_FOUND"               // 404
	ErrFieldClosed           ErrorCode = "FIELD_CLOSED"            // 409
	ErrContentTooLarge       ErrorCode = "CONTENT_TOO_LARGE"       // 413
	ErrInternal              ErrorCode = "INTERNAL"                // 500
	ErrRemoteWriteFailed     ErrorCode = "REMOTE_WRITE_FAILED"     // 502
	ErrRemoteSubscribeFailed ErrorCode = "REMOTE_SUBSCRIBE_FAILED" // 502
	ErrTimeout               ErrorCode = "TIMEOUT"                 // 504
)

// PiedError represents a structured error with code, status, and details.
type PiedError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// Err is the underlying cause, if any. Not rendered to clients.
	Err error
}

// Error implements the error interface.
func (e *PiedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *PiedError) Unwrap() error {
	return e.Err
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *PiedError {
	return &PiedError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing path or box.
func NewNotFound(identifier string) *PiedError {
	return &PiedError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewFieldClosed creates a 409 error for operations on a closed field.
func NewFieldClosed(name string) *PiedError {
	return &PiedError{
		Code:    ErrFieldClosed,
		Status:  409,
		Message: fmt.Sprintf("field %q is closed", name),
		Details: map[string]any{"name": name},
	}
}

// NewContentTooLarge creates a 413 error when content exceeds the size limit.
func NewContentTooLarge(max, actual int) *PiedError {
	return &PiedError{
		Code:    ErrContentTooLarge,
		Status:  413,
		Message: fmt.Sprintf("content exceeds maximum size: %d chars (max %d)", actual, max),
		Details: map[string]any{"max_chars": max, "actual_chars": actual},
	}
}

// NewRemoteWriteFailed creates a 502 error when a write to the remote store fails.
func NewRemoteWriteFailed(path string, err error) *PiedError {
	msg := fmt.Sprintf("remote write failed: %s", path)
	if err != nil {
		msg = fmt.Sprintf("remote write failed: %s: %v", path, err)
	}
	return &PiedError{
		Code:    ErrRemoteWriteFailed,
		Status:  502,
		Message: msg,
		Details: map[string]any{"path": path},
		Err:     err,
	}
}

// NewRemoteSubscribeFailed creates a 502 error when a subscription cannot be registered.
func NewRemoteSubscribeFailed(path string, err error) *PiedError {
	msg := fmt.Sprintf("remote subscribe failed: %s", path)
	if err != nil {
		msg = fmt.Sprintf("remote subscribe failed: %s: %v", path, err)
	}
	return &PiedError{
		Code:    ErrRemoteSubscribeFailed,
		Status:  502,
		Message: msg,
		Details: map[string]any{"path": path},
		Err:     err,
	}
}

// NewTimeout creates a 504 error when the remote store did not answer in time.
func NewTimeout(what string) *PiedError {
	return &PiedError{
		Code:    ErrTimeout,
		Status:  504,
		Message: fmt.Sprintf("timed out waiting for %s", what),
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the cause is kept in Details for logging.
func NewInternal(err error) *PiedError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &PiedError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
		Err:     err,
	}
}

// Is checks if an error (or anything it wraps) is a PiedError with the given code.
func Is(err error, code ErrorCode) bool {
	var pErr *PiedError
	if stderrors.As(err, &pErr) {
		return pErr.Code == code
	}
	return false
}
