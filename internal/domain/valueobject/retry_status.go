package valueobject

import (
	"errors"
)

var (
	ErrInvalidRetryStatus     = errors.New("invalid retry status")
	ErrIllegalRetryTransition = errors.New("illegal retry status transition")
)

// RetryStatus is the lifecycle state of a single payment retry attempt.
type RetryStatus string

const (
	RetryStatusPending    RetryStatus = "pending"
	RetryStatusProcessing RetryStatus = "processing"
	RetryStatusFailed     RetryStatus = "failed"
	RetryStatusComplete   RetryStatus = "complete"
	RetryStatusCancelled  RetryStatus = "cancelled"
)

// NewRetryStatus creates a RetryStatus value object from its string form.
func NewRetryStatus(status string) (RetryStatus, error) {
	s := RetryStatus(status)
	switch s {
	case RetryStatusPending, RetryStatusProcessing, RetryStatusFailed, RetryStatusComplete, RetryStatusCancelled:
		return s, nil
	default:
		return "", ErrInvalidRetryStatus
	}
}

// String returns the string representation of the status.
func (s RetryStatus) String() string {
	return string(s)
}

// IsTerminal returns true if no further transition is allowed from this status.
func (s RetryStatus) IsTerminal() bool {
	return s == RetryStatusFailed || s == RetryStatusComplete || s == RetryStatusCancelled
}

// CanTransitionTo reports whether moving to next is a legal transition.
// pending → processing is the only non-terminal to non-terminal move;
// cancelled is reachable from any non-terminal state.
func (s RetryStatus) CanTransitionTo(next RetryStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case RetryStatusPending:
		return next == RetryStatusProcessing || next == RetryStatusCancelled
	case RetryStatusProcessing:
		return next == RetryStatusFailed || next == RetryStatusComplete || next == RetryStatusCancelled
	}
	return false
}
