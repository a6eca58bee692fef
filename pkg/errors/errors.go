package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a validation error
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeConflict indicates the current state of a resource forbids the operation
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeCascadeIntegrity indicates a multi-step deletion stopped partway
	ErrorTypeCascadeIntegrity ErrorType = "CASCADE_INTEGRITY"

	// ErrorTypeRateLimited indicates a request was throttled
	ErrorTypeRateLimited ErrorType = "RATE_LIMITED"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal indicates an error from external service
	ErrorTypeExternal ErrorType = "EXTERNAL"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeExternal,
		Message: message,
		Err:     err,
	}
}

// ConflictError is returned when a precondition on a bed, room or admission
// does not hold. It is never retried automatically.
type ConflictError struct {
	Entity   string
	EntityID string
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s %s: %s", ErrorTypeConflict, e.Entity, e.EntityID, e.Reason)
}

// NewConflictError creates a conflict error for the given entity
func NewConflictError(entity, entityID, reason string) *ConflictError {
	return &ConflictError{Entity: entity, EntityID: entityID, Reason: reason}
}

// CascadeStep names a stage of the room deletion cascade.
type CascadeStep string

const (
	CascadeStepLoadBeds         CascadeStep = "load_beds"
	CascadeStepDeleteAdmissions CascadeStep = "delete_admissions"
	CascadeStepDeleteBeds       CascadeStep = "delete_beds"
	CascadeStepDeleteRoom       CascadeStep = "delete_room"
)

// CascadeIntegrityError reports the step at which a room deletion cascade
// stopped and what had already been committed.
type CascadeIntegrityError struct {
	RoomID            string
	FailedStep        CascadeStep
	AdmissionsDeleted int
	BedsDeleted       int
	Err               error
}

func (e *CascadeIntegrityError) Error() string {
	return fmt.Sprintf("%s: room %s: step %s failed (admissions deleted: %d, beds deleted: %d): %v",
		ErrorTypeCascadeIntegrity, e.RoomID, e.FailedStep, e.AdmissionsDeleted, e.BedsDeleted, e.Err)
}

func (e *CascadeIntegrityError) Unwrap() error {
	return e.Err
}

// SagaError reports a multi-document mutation that failed after some of its
// steps were committed.
type SagaError struct {
	Operation string
	Committed []string
	Failed    string
	Err       error
}

func (e *SagaError) Error() string {
	return fmt.Sprintf("%s: %s: step %s failed after [%s]: %v",
		ErrorTypeInternal, e.Operation, e.Failed, strings.Join(e.Committed, ", "), e.Err)
}

func (e *SagaError) Unwrap() error {
	return e.Err
}

// ErrRateLimited is returned by the debounce guard
var ErrRateLimited = &AppError{Type: ErrorTypeRateLimited, Message: "duplicate request suppressed"}

// IsNotFound reports whether err is a not found error
func IsNotFound(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsConflict reports whether err is a ConflictError
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsCascadeIntegrity reports whether err is a CascadeIntegrityError
func IsCascadeIntegrity(err error) bool {
	var c *CascadeIntegrityError
	return errors.As(err, &c)
}

func hasType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}
