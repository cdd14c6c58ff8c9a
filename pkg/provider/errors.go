// Package provider defines the Config Provider boundary: the interface
// for reading and writing live site configuration, the classified error
// taxonomy for provider failures, and an in-memory provider used for
// dry runs and tests.
package provider

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a provider error for retry and recovery logic.
type ErrorClass string

const (
	// ClassRateLimited indicates the provider throttled the call.
	// Retried with exponential backoff.
	ClassRateLimited ErrorClass = "rate_limited"

	// ClassTransient indicates a temporary failure (network timeout,
	// momentary unavailability). Retried like rate limiting.
	ClassTransient ErrorClass = "transient"

	// ClassConflict indicates the live entity changed underneath the
	// operation. Not retried; surfaced for a corrective re-run.
	ClassConflict ErrorClass = "conflict"

	// ClassUnauthorized indicates missing or invalid credentials for
	// the site. Never retried.
	ClassUnauthorized ErrorClass = "unauthorized"

	// ClassNotFound indicates the target entity does not exist live.
	// Never retried.
	ClassNotFound ErrorClass = "not_found"
)

// Error is a classified provider error with operation context.
type Error struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// SiteID is the site the failing call addressed.
	SiteID string `json:"siteId,omitempty"`

	// EntityType is the entity type involved, if applicable.
	EntityType string `json:"entityType,omitempty"`

	// Key is the identity key involved, if applicable.
	Key string `json:"key,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.EntityType != "" {
		msg += fmt.Sprintf(" (site=%s, entity=%s/%s)", e.SiteID, e.EntityType, e.Key)
	} else if e.SiteID != "" {
		msg += fmt.Sprintf(" (site=%s)", e.SiteID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements class-based equality for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// NewRateLimited creates a rate-limited error.
func NewRateLimited(message string, err error) *Error {
	return &Error{Class: ClassRateLimited, Message: message, Err: err}
}

// NewTransient creates a transient error.
func NewTransient(message string, err error) *Error {
	return &Error{Class: ClassTransient, Message: message, Err: err}
}

// NewConflict creates a conflict error.
func NewConflict(message string, err error) *Error {
	return &Error{Class: ClassConflict, Message: message, Err: err}
}

// NewUnauthorized creates an unauthorized error.
func NewUnauthorized(message string, err error) *Error {
	return &Error{Class: ClassUnauthorized, Message: message, Err: err}
}

// NewNotFound creates a not-found error.
func NewNotFound(message string, err error) *Error {
	return &Error{Class: ClassNotFound, Message: message, Err: err}
}

// WithSite adds site context to an error.
func (e *Error) WithSite(siteID string) *Error {
	e.SiteID = siteID
	return e
}

// WithEntity adds entity context to an error.
func (e *Error) WithEntity(entityType, key string) *Error {
	e.EntityType = entityType
	e.Key = key
	return e
}

// ClassOf returns the error class, or "" for non-provider errors.
func ClassOf(err error) ErrorClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// IsRateLimited returns true if the error is classified as rate limited.
func IsRateLimited(err error) bool {
	return ClassOf(err) == ClassRateLimited
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	return ClassOf(err) == ClassTransient
}

// IsNotFound returns true if the error is classified as not found.
func IsNotFound(err error) bool {
	return ClassOf(err) == ClassNotFound
}

// IsRetryable returns true if the operation may be retried: rate-limited
// and transient failures only. Authorization, not-found and conflict
// errors are terminal for the operation.
func IsRetryable(err error) bool {
	switch ClassOf(err) {
	case ClassRateLimited, ClassTransient:
		return true
	default:
		return false
	}
}
