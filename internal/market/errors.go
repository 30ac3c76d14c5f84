package market

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation matches any *ValidationError via errors.Is.
	ErrValidation = errors.New("validation failed")
	// ErrConsistency matches any *ConsistencyError via errors.Is.
	ErrConsistency = errors.New("history consistency violated")
)

// ValidationError reports structurally invalid input handed to the core.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is lets callers test with errors.Is(err, ErrValidation).
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ConsistencyError is returned when an observation would be appended out of
// order for its source id.
type ConsistencyError struct {
	SourceID  string
	Latest    time.Time
	Attempted time.Time
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("source %s: observation at %s is older than latest entry at %s",
		e.SourceID, e.Attempted.UTC().Format(time.RFC3339), e.Latest.UTC().Format(time.RFC3339))
}

// Is lets callers test with errors.Is(err, ErrConsistency).
func (e *ConsistencyError) Is(target error) bool {
	return target == ErrConsistency
}
