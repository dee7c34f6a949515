// Package errors carries typed errors that know their HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches by code, so clones of a sentinel satisfy errors.Is against it.
func (e *Error) Is(target error) bool {
	var t *Error
	if e == nil || !errors.As(target, &t) || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrTooManyRequests    = New("TOO_MANY_REQUESTS", http.StatusTooManyRequests, "too many requests")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// ErrStructuralInput marks an input set that is unusable as a whole, e.g. a required column is absent.
	ErrStructuralInput = New("STRUCTURAL_INPUT", http.StatusUnprocessableEntity, "input is structurally unusable")
	// ErrInvalidSlot marks a day/period outside the configured grid.
	ErrInvalidSlot = New("INVALID_SLOT", http.StatusBadRequest, "slot is outside the timetable grid")
	// ErrTeacherBusy is returned when the replacement teacher already has a lesson at the slot.
	ErrTeacherBusy = New("TEACHER_BUSY", http.StatusConflict, "teacher is not free at this slot")
	// ErrLessonMismatch is returned when the requested class or subject differs from the indexed lesson.
	ErrLessonMismatch = New("LESSON_MISMATCH", http.StatusUnprocessableEntity, "lesson does not match the timetable")
	// ErrSnapshotUnavailable is returned by queries issued before the first index build.
	ErrSnapshotUnavailable = New("SNAPSHOT_UNAVAILABLE", http.StatusConflict, "timetable has not been imported yet")
	// ErrCollaborator wraps failures of template, storage or messaging collaborators. Callers may retry.
	ErrCollaborator = New("COLLABORATOR_UNAVAILABLE", http.StatusServiceUnavailable, "dependent service unavailable, please retry")
	// ErrCacheMiss signals an absent cache entry.
	ErrCacheMiss = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Retryable reports whether err came from a collaborator failure.
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == ErrCollaborator.Code
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
