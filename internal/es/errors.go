package es

import (
	"errors"
	"fmt"
)

// ErrEventNotFound is returned by Stack.GetEvent for an unknown id.
var ErrEventNotFound = errors.New("event not found")

// ErrStackNotFound is returned by Store.GetStack for an unknown entity.
var ErrStackNotFound = errors.New("stack not found")

// InvalidSequenceError reports an append attempted against a stale tail:
// the given id is not exactly tail+1 (or 0 on an empty log).
//
// This is the optimistic-concurrency conflict signal. The model runner
// retries on it (bounded); everything else propagates it unchanged.
type InvalidSequenceError struct {
	Namespace string
	EventID   int64
}

// Error implements the error interface.
func (e *InvalidSequenceError) Error() string {
	return fmt.Sprintf("invalid sequence: cannot commit event %d to %q", e.EventID, e.Namespace)
}

// IsInvalidSequence reports whether err is (or wraps) an InvalidSequenceError.
func IsInvalidSequence(err error) bool {
	var se *InvalidSequenceError
	return errors.As(err, &se)
}

// RejectionError reports a business-rule rejection: the action handler
// declined to commit, carrying a caller-defined reason code. Never retried.
type RejectionError struct {
	ActionType string
	Code       string
}

// Error implements the error interface.
func (e *RejectionError) Error() string {
	return fmt.Sprintf("REJECT: %s (action=%s)", e.Code, e.ActionType)
}

// IsRejection reports whether err is (or wraps) a RejectionError.
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}

// RejectionCode extracts the reason code from a rejection error.
// Returns ok=false if err is not a rejection.
func RejectionCode(err error) (code string, ok bool) {
	var re *RejectionError
	if errors.As(err, &re) {
		return re.Code, true
	}
	return "", false
}
