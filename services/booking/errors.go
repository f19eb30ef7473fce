package booking

import (
	"errors"
	"fmt"
)

// ErrConflict is returned when a requested interval overlaps an existing
// active booking or external calendar busy time.
var ErrConflict = errors.New("requested time is no longer available")

// ErrNotFound is returned when a booking lookup misses.
var ErrNotFound = errors.New("booking not found")

// ValidationError rejects an ill-formed request before any state changes.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// ExternalServiceError wraps a failure of a collaborator outside this
// process, such as the calendar API.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// PersistenceError wraps a failure writing or reading the booking store.
// The orchestrator treats these as retryable.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("booking store %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
