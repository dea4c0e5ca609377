package retention

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input: bad policy data, a disallowed
// retention period or a missing justification. Nothing is persisted when it
// is returned.
type ValidationError struct {
	Field   string // Offending field, empty when the input as a whole is invalid
	Message string // Human-readable reason
	Cause   error  // Underlying error, if any
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("validation error: %s: %v", msg, e.Cause)
	}
	return fmt.Sprintf("validation error: %s", msg)
}

// Unwrap returns the underlying cause error.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NotFoundError reports a missing policy, record or file.
type NotFoundError struct {
	Resource string // "policy", "record", "file", ...
	ID       string // Identifier that was looked up
	Cause    error  // Underlying error, if any
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// Unwrap returns the underlying cause error.
func (e *NotFoundError) Unwrap() error {
	return e.Cause
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resource string, id any) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       fmt.Sprint(id),
	}
}

// ConflictError reports a request that clashes with existing state, such as
// an ancestor folder that already carries retention or a policy that is
// still referenced by active records.
type ConflictError struct {
	Resource string
	ID       string
	Message  string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict [%s=%s]: %s", e.Resource, e.ID, e.Message)
}

// NewConflictError creates a new ConflictError.
func NewConflictError(resource string, id any, message string) *ConflictError {
	return &ConflictError{
		Resource: resource,
		ID:       fmt.Sprint(id),
		Message:  message,
	}
}

// ProcessingError reports the failure of a disposal action for one record.
// The record stays active and is retried on the next run.
type ProcessingError struct {
	RecordID int64
	FileID   string
	Action   Action
	Cause    error
}

// Error implements the error interface.
func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing error [record_id=%d, file_id=%s, action=%s]: %v",
		e.RecordID, e.FileID, e.Action, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// NewProcessingError creates a new ProcessingError.
func NewProcessingError(rec *Record, action Action, cause error) *ProcessingError {
	pe := &ProcessingError{Action: action, Cause: cause}
	if rec != nil {
		pe.RecordID = rec.ID
		pe.FileID = rec.FileID
	}
	return pe
}

// CriticalJobError aborts a whole batch run before any record is touched.
type CriticalJobError struct {
	Job   string
	Cause error
}

// Error implements the error interface.
func (e *CriticalJobError) Error() string {
	return fmt.Sprintf("critical job error [job=%s]: %v", e.Job, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *CriticalJobError) Unwrap() error {
	return e.Cause
}

// NewCriticalJobError creates a new CriticalJobError.
func NewCriticalJobError(job string, cause error) *CriticalJobError {
	return &CriticalJobError{
		Job:   job,
		Cause: cause,
	}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsConflict reports whether err is or wraps a ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsProcessing reports whether err is or wraps a ProcessingError.
func IsProcessing(err error) bool {
	var target *ProcessingError
	return errors.As(err, &target)
}

// IsCritical reports whether err is or wraps a CriticalJobError.
func IsCritical(err error) bool {
	var target *CriticalJobError
	return errors.As(err, &target)
}
