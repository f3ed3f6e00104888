package ledger

import (
	"errors"
	"fmt"
)

// ValidationError reports a caller-supplied value that violates a stated
// bound. It is never retried automatically.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError reports a uniqueness violation.
type ConflictError struct {
	Resource string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists", e.Resource)
}

// NotFoundError reports a referenced row that no longer exists.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

// UnavailableError reports a transient store failure.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: store unavailable", e.Op)
	}
	return fmt.Sprintf("%s: store unavailable: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// DestructiveChangeError reports a round-count shrink that would discard
// recorded turns. The range names exactly which rounds block the change.
type DestructiveChangeError struct {
	FirstRound int
	LastRound  int
	TurnCount  int
}

func (e *DestructiveChangeError) Error() string {
	if e.FirstRound == e.LastRound {
		return fmt.Sprintf("round %d still has %d recorded turn(s)", e.FirstRound, e.TurnCount)
	}
	return fmt.Sprintf("rounds %d-%d still have %d recorded turn(s)", e.FirstRound, e.LastRound, e.TurnCount)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsUnavailable(err error) bool {
	var target *UnavailableError
	return errors.As(err, &target)
}

func IsDestructiveChange(err error) bool {
	var target *DestructiveChangeError
	return errors.As(err, &target)
}
