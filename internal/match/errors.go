package match

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores for an unknown match.
	ErrNotFound = errors.New("match: not found")
	// ErrStopped is returned when a run is cancelled between turns.
	ErrStopped = errors.New("match: stopped")
	// ErrTurnOutOfOrder is returned by stores when a turn does not follow the
	// last persisted one.
	ErrTurnOutOfOrder = errors.New("match: turn out of order")
)

// PreconditionError reports a match that cannot start.
type PreconditionError struct {
	Reason string
	Err    error
}

func (e *PreconditionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("match: precondition failed: %s: %v", e.Reason, e.Err)
	}
	return "match: precondition failed: " + e.Reason
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a turn store failure that ended a run.
type PersistenceError struct {
	MatchID string
	Op      string
	Turn    int
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("match: %s failed for %s at turn %d: %v", e.Op, e.MatchID, e.Turn, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func precondition(reason string, err error) error {
	return &PreconditionError{Reason: reason, Err: err}
}
