package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes surfaced to callers.
const (
	CodeValidation              = "VALIDATION_FAILED"
	CodeNotFound                = "NOT_FOUND"
	CodeUnauthorized            = "UNAUTHORIZED"
	CodeForbidden               = "FORBIDDEN"
	CodeConflict                = "CONFLICT"
	CodeIllegalTransition       = "ILLEGAL_TRANSITION"
	CodeConcurrentModification  = "CONCURRENT_MODIFICATION"
	CodeCapacityExceeded        = "CAPACITY_EXCEEDED"
	CodeAlreadyJoined           = "ALREADY_JOINED"
	CodeInvariantViolation      = "INVARIANT_VIOLATION"
	CodeCollaboratorUnavailable = "COLLABORATOR_UNAVAILABLE"
	CodeInternal                = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewIllegalTransition reports an event that is not valid from the current status.
func NewIllegalTransition(from, event string) error {
	return NewDomainError(CodeIllegalTransition,
		fmt.Sprintf("illegal transition %s -> %s", from, event),
		http.StatusConflict,
		map[string]any{"from": from, "event": event})
}

// NewConcurrentModification reports a lost conditional update.
func NewConcurrentModification(ticketID string) error {
	return NewDomainError(CodeConcurrentModification,
		"ticket state changed concurrently",
		http.StatusConflict,
		map[string]any{"ticket_id": ticketID})
}

func NewCapacityExceeded(queueID string, maxSize int) error {
	return NewDomainError(CodeCapacityExceeded, "queue full", http.StatusConflict,
		map[string]any{"queue_id": queueID, "max_size": maxSize})
}

func NewAlreadyJoined(queueID string) error {
	return NewDomainError(CodeAlreadyJoined, "already in queue", http.StatusConflict,
		map[string]any{"queue_id": queueID})
}

// NewInvariantViolation signals a modeling bug, never a user error.
func NewInvariantViolation(message string, details map[string]any) error {
	return NewDomainError(CodeInvariantViolation, "invariant violation: "+message, http.StatusInternalServerError, details)
}

// NewCollaboratorUnavailable wraps a failure of the store, job facility or notifier.
func NewCollaboratorUnavailable(collaborator string, err error) error {
	return &DomainError{
		Code:       CodeCollaboratorUnavailable,
		Message:    collaborator + " unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"collaborator": collaborator},
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
