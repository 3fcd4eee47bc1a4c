package metadata

import (
	"errors"
	"fmt"
)

// ErrorCode represents the type of error that occurred.
type ErrorCode int

const (
	// ErrNotFound indicates the content id (or lock) does not exist.
	ErrNotFound ErrorCode = iota + 1

	// ErrInvalidArgument indicates an invalid argument was provided.
	ErrInvalidArgument

	// ErrIOError indicates the backend failed to read or write.
	ErrIOError
)

// String returns a human-readable name for the error code.
func (e ErrorCode) String() string {
	switch e {
	case ErrNotFound:
		return "NotFound"
	case ErrInvalidArgument:
		return "InvalidArgument"
	case ErrIOError:
		return "IOError"
	default:
		return fmt.Sprintf("Unknown(%d)", e)
	}
}

// StoreError represents a metadata store error with an error code.
type StoreError struct {
	Code      ErrorCode
	Message   string
	ContentID string
	Err       error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.ContentID != "" {
		msg = fmt.Sprintf("%s (content_id: %s)", msg, e.ContentID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the backend error, if any.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a NotFound error for a content id.
func NewNotFoundError(contentID string) *StoreError {
	return &StoreError{
		Code:      ErrNotFound,
		Message:   "content not found",
		ContentID: contentID,
	}
}

// NewInvalidArgumentError creates an InvalidArgument error.
func NewInvalidArgumentError(message string) *StoreError {
	return &StoreError{
		Code:    ErrInvalidArgument,
		Message: message,
	}
}

// NewIOError wraps a backend failure.
func NewIOError(op, contentID string, err error) *StoreError {
	return &StoreError{
		Code:      ErrIOError,
		Message:   op + " failed",
		ContentID: contentID,
		Err:       err,
	}
}

// IsNotFoundError reports whether err carries the NotFound code.
func IsNotFoundError(err error) bool {
	return hasCode(err, ErrNotFound)
}

// IsInvalidArgumentError reports whether err carries the InvalidArgument code.
func IsInvalidArgumentError(err error) bool {
	return hasCode(err, ErrInvalidArgument)
}

func hasCode(err error, code ErrorCode) bool {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Code == code
	}
	return false
}
