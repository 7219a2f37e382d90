// Package errors defines the sentinel errors shared by the feedback,
// adjustment, index and recommendation layers, and maps them to HTTP status
// codes and process exit codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingFeedback   = errors.New("no feedback recorded")
	ErrMalformedRecord   = errors.New("malformed feedback record")
	ErrExtraction        = errors.New("keyword extraction failed")
	ErrIndexShape        = errors.New("index shape mismatch")
	ErrIO                = errors.New("i/o failure")
	ErrInvalidInput      = errors.New("invalid input")
	ErrRebuildInProgress = errors.New("index rebuild already in progress")
	ErrIndexNotLoaded    = errors.New("vector index not loaded")
	ErrUnavailable       = errors.New("upstream unavailable")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Shapef reports an index shape mismatch.
func Shapef(format string, args ...any) *AppError {
	return Newf(ErrIndexShape, http.StatusUnprocessableEntity, format, args...)
}

// IOf wraps a filesystem or network failure so callers can match ErrIO while
// the original cause stays reachable through the message.
func IOf(cause error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, fmt.Sprintf(format, args...), cause)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMalformedRecord):
		return http.StatusBadRequest
	case errors.Is(err, ErrRebuildInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrIndexShape):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrIndexNotLoaded), errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ExitCode maps the outcome of a batch run to a process exit status. A run
// without feedback is informational and exits zero.
func ExitCode(err error) int {
	if err == nil || errors.Is(err, ErrMissingFeedback) {
		return 0
	}
	return 1
}

// Is and As re-export the standard helpers so callers that import this
// package under its own name do not need a second errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
