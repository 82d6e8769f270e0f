// Package errors provides centralized error definitions for the application.
// Errors are organized by domain to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - Unexported errors (err*): Use for internal package errors
//   - All sentinel errors should be defined as variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import "errors"

// Circuit breaker errors.
var (
	// ErrCircuitBreakerOpen indicates the circuit breaker has tripped and requests are blocked.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)

// Evidence and feedback lookup errors.
var (
	// ErrEvidenceMissing indicates the feedback has no evidence reference.
	ErrEvidenceMissing = errors.New("missing evidence reference")

	// ErrEvidenceNotFound indicates the evidence store has no payload for a key.
	ErrEvidenceNotFound = errors.New("evidence not found")

	// ErrEvidenceUnavailable indicates the evidence store could not be read.
	ErrEvidenceUnavailable = errors.New("evidence could not be loaded")

	// ErrEvidenceCorrupt indicates a stored payload could not be decoded.
	ErrEvidenceCorrupt = errors.New("evidence payload could not be parsed")

	// ErrFeedbackNotFound indicates a feedback row does not exist.
	ErrFeedbackNotFound = errors.New("feedback not found")
)

// Client and connection errors.
var (
	// ErrClientNotInitialized indicates a client has not been initialized.
	ErrClientNotInitialized = errors.New("client not initialized")
)

// Response and parsing errors.
var (
	// ErrEmptyResponse indicates an empty response was received.
	ErrEmptyResponse = errors.New("empty response")

	// ErrNoJSONObject indicates a generation response had no JSON object in it.
	ErrNoJSONObject = errors.New("no JSON object in response")

	// ErrSchemaMismatch indicates a generation response did not match the case file schema.
	ErrSchemaMismatch = errors.New("AI output did not match schema")
)

// Validation errors.
var (
	// ErrInvalidID indicates an invalid identifier.
	ErrInvalidID = errors.New("invalid id")
)

// Scheduling errors.
var (
	// ErrSchedulingFailed indicates a durable run could not be scheduled.
	ErrSchedulingFailed = errors.New("pipeline run could not be scheduled")

	// ErrStepFailed indicates a workflow step exhausted its retries.
	ErrStepFailed = errors.New("workflow step failed")
)
