package core

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedChannel is returned when no adapter is registered for a
	// channel name. Rejected before any store write.
	ErrUnsupportedChannel = errors.New("unsupported_channel")

	// ErrInvalidTransition marks an attempt to move a post along an edge the
	// lifecycle graph does not have.
	ErrInvalidTransition = errors.New("invalid_status_transition")
)

// TransitionError carries the offending edge. It unwraps to
// ErrInvalidTransition so callers can match with errors.Is.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
