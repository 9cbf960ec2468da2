package valueobject

import (
	"errors"
)

var ErrInvalidSubscriptionStatus = errors.New("invalid subscription status")

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive        SubscriptionStatus = "active"
	SubscriptionStatusOnHold        SubscriptionStatus = "on-hold"
	SubscriptionStatusPending       SubscriptionStatus = "pending"
	SubscriptionStatusPendingCancel SubscriptionStatus = "pending-cancel"
	SubscriptionStatusCancelled     SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired       SubscriptionStatus = "expired"

	// SubscriptionStatusNone means "leave the subscription status unchanged" in a rule.
	SubscriptionStatusNone SubscriptionStatus = ""
)

// NewSubscriptionStatus creates a SubscriptionStatus value object from its string form.
func NewSubscriptionStatus(status string) (SubscriptionStatus, error) {
	s := SubscriptionStatus(status)
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusOnHold, SubscriptionStatusPending,
		SubscriptionStatusPendingCancel, SubscriptionStatusCancelled, SubscriptionStatusExpired,
		SubscriptionStatusNone:
		return s, nil
	default:
		return "", ErrInvalidSubscriptionStatus
	}
}

// String returns the string representation of the status.
func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsNone returns true for the "leave unchanged" sentinel.
func (s SubscriptionStatus) IsNone() bool {
	return s == SubscriptionStatusNone
}

// IsTerminated returns true if the subscription is cancelled or expired.
func (s SubscriptionStatus) IsTerminated() bool {
	return s == SubscriptionStatusCancelled || s == SubscriptionStatusExpired
}
