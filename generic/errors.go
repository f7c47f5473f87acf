/*
errors.go - Centralized error types shared by stores and services

PURPOSE:
  All cross-package error types in one place for consistency and
  discoverability. Domain packages wrap these with additional context.

ERROR CATEGORIES:
  1. Lookup errors     - Referenced entity or policy does not exist
  2. Concurrency errors - Optimistic version check failed
  3. Client errors     - Malformed input, duplicates, rule failures

USAGE:
  if errors.Is(err, generic.ErrConcurrentModification) {
      // reload and retry
  }

SEE ALSO:
  - approval/errors.go: Workflow state machine errors
  - api/handlers.go:    Maps these errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrEntityNotFound is returned when a referenced user, request or workflow doesn't exist.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrPolicyNotFound is returned when a referenced approval policy doesn't exist.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrConcurrentModification is returned when optimistic locking detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrDuplicateWorkflow is returned when a second workflow is stored for the same request.
	ErrDuplicateWorkflow = errors.New("workflow already exists for request")

	// ErrValidationFailed is returned when a submission breaks a date or balance rule.
	ErrValidationFailed = errors.New("validation failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names what was missing.
type NotFoundError struct {
	Kind string // "user", "request", "workflow", "balance"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrEntityNotFound
}

// NotFound is a shorthand constructor.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// VersionConflictError reports the version a writer expected versus what was stored.
type VersionConflictError struct {
	Kind     string
	ID       string
	Expected int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently (expected version %d)", e.Kind, e.ID, e.Expected)
}

func (e *VersionConflictError) Unwrap() error {
	return ErrConcurrentModification
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrDuplicateWorkflow)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPolicyNotFound) ||
		errors.Is(err, ErrEntityNotFound)
}
