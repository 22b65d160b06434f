package services

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the dispatch engine. Handlers map these to
// HTTP statuses; the scheduler retries only on ErrConflict.
var (
	// ErrNotFound: referenced task or provider does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition: the attempted status change is not permitted
	// from the current state, or the acting role may not perform it.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrConflict: the conditional update lost a race; the record changed
	// between read and write. Re-read and retry, or abandon.
	ErrConflict = errors.New("conflict")

	// ErrNoCandidate: one matching attempt found no eligible provider.
	// Not a failure; the task stays pending.
	ErrNoCandidate = errors.New("no candidate")
)

// PreconditionError reports a failed arrival check on accepted -> in_progress.
type PreconditionError struct {
	DistanceM float64
	RadiusM   float64
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("not at task location: %.1fm away, must be within %.1fm", e.DistanceM, e.RadiusM)
}
