package domain

import (
	"errors"
	"net/http"
)

// HTTPError is implemented by errors that know their HTTP status.
type HTTPError interface {
	error
	StatusCode() int
}

// Sentinel errors, matched with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Generation errors. Credential failures happen before any output is
// produced; transient failures may happen mid-stream.
var (
	ErrUpstreamCredential = errors.New("upstream credential rejected")
	ErrUpstreamTransient  = errors.New("upstream generation failed")
	ErrStreamInterrupted  = errors.New("stream interrupted")
)

// UpstreamError carries the provider's status alongside a generation error
// kind. Message is safe to show to end users; Cause is for logs only.
type UpstreamError struct {
	Kind     error
	Provider string
	Status   int
	Message  string
	Cause    error
}

func (e *UpstreamError) Error() string {
	if e.Cause != nil {
		return e.Provider + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Provider + ": " + e.Message
}

func (e *UpstreamError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// StatusCode implements HTTPError.
func (e *UpstreamError) StatusCode() int {
	if errors.Is(e.Kind, ErrUpstreamCredential) {
		return http.StatusUnauthorized
	}
	return http.StatusBadGateway
}

// ConflictError represents a resource conflict with details about the existing resource.
type ConflictError struct {
	Message      string
	ResourceType string
	ResourceID   string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// StatusCode implements HTTPError.
func (e *ConflictError) StatusCode() int {
	return http.StatusConflict
}

// Is allows errors.Is() to match against ErrConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
