// Package errors provides custom error types for the recon engine.
// These errors enable programmatic error checking and keep the
// fatal/non-fatal split of the pipeline explicit: only schema errors
// abort a run, everything else is captured as data downstream.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Is reports whether any error in err's tree matches target.
var Is = errors.Is

// As finds the first error in err's tree that matches target.
var As = errors.As

// Common sentinel errors for the recon engine
var (
	// ErrSchema indicates malformed, non-tabular input. The only fatal
	// condition in the pipeline.
	ErrSchema = errors.New("schema error")

	// ErrMappingGap indicates a field that could not be mapped. Recorded
	// on the plan, never raised across the pipeline boundary.
	ErrMappingGap = errors.New("mapping gap")

	// ErrUpstreamCritical indicates a degraded run: the mapping plan was
	// flagged critical and downstream automation is disabled.
	ErrUpstreamCritical = errors.New("upstream critical")

	// ErrConfirmationTimeout indicates the human confirmation gate was
	// never answered within the configured window.
	ErrConfirmationTimeout = errors.New("confirmation timeout")

	// ErrRunNotResumable indicates a resume was attempted on a run that
	// is not waiting at the confirmation gate.
	ErrRunNotResumable = errors.New("run not resumable")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")
)

// SchemaError represents malformed or non-tabular input. It aborts the
// run; business-level gaps are reported on the MappingPlan instead.
type SchemaError struct {
	Dataset string
	Detail  string
	Err     error
}

// Error implements the error interface
func (e *SchemaError) Error() string {
	if e.Dataset != "" {
		return fmt.Sprintf("schema error in dataset %s: %s", e.Dataset, e.Detail)
	}
	return fmt.Sprintf("schema error: %s", e.Detail)
}

// Is implements errors.Is support
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

// Unwrap implements errors.Unwrap
func (e *SchemaError) Unwrap() error {
	return e.Err
}

// NewSchemaError creates a new SchemaError
func NewSchemaError(dataset, detail string) *SchemaError {
	return &SchemaError{Dataset: dataset, Detail: detail}
}

// MappingGapError records a target field that no strategy could resolve.
// It is carried on the plan as a manual-review entry, not returned.
type MappingGapError struct {
	Field  string
	Reason string
}

// Error implements the error interface
func (e *MappingGapError) Error() string {
	return fmt.Sprintf("field %s could not be mapped: %s", e.Field, e.Reason)
}

// Is implements errors.Is support
func (e *MappingGapError) Is(target error) bool {
	return target == ErrMappingGap
}

// UpstreamCriticalError signals that the mapping plan was flagged
// critical and a downstream stage degraded its behavior in response.
type UpstreamCriticalError struct {
	Stage  string
	Reason string
}

// Error implements the error interface
func (e *UpstreamCriticalError) Error() string {
	return fmt.Sprintf("stage %s degraded, upstream mapping critical: %s", e.Stage, e.Reason)
}

// Is implements errors.Is support
func (e *UpstreamCriticalError) Is(target error) bool {
	return target == ErrUpstreamCritical
}

// ConfirmationTimeoutError indicates the confirmation gate expired. The
// run is marked incomplete and remains resumable.
type ConfirmationTimeoutError struct {
	RunID   string
	Waited  time.Duration
	Pending int
}

// Error implements the error interface
func (e *ConfirmationTimeoutError) Error() string {
	return fmt.Sprintf("run %s: confirmation not received after %s (%d breaks pending)", e.RunID, e.Waited, e.Pending)
}

// Is implements errors.Is support
func (e *ConfirmationTimeoutError) Is(target error) bool {
	return target == ErrConfirmationTimeout
}

// ValidationError represents a configuration or argument validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// IsSchema returns true if the error is a schema error
func IsSchema(err error) bool {
	return errors.Is(err, ErrSchema)
}

// IsConfirmationTimeout returns true if the error is a confirmation timeout
func IsConfirmationTimeout(err error) bool {
	return errors.Is(err, ErrConfirmationTimeout)
}

// IsFatal reports whether the error should abort the run. Per the
// pipeline's error design only schema errors and canceled contexts are
// fatal; every other condition is representable as output data.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSchema) || errors.Is(err, ErrCanceled)
}
