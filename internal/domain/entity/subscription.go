package entity

import (
	"time"

	"github.com/bivex/renewal-retry/internal/domain/valueobject"
)

// Payment method capabilities the retry core cares about.
const (
	CapabilityDateChanges = "subscription_date_changes"
)

// Subscription is a recurring billing agreement owned by the billing
// platform. Renewal orders belong to one or more subscriptions (grouped
// renewals share an order).
type Subscription struct {
	ID     int64
	Status valueobject.SubscriptionStatus
	// Manual is true when the customer renews by hand instead of being
	// charged automatically.
	Manual        bool
	PaymentMethod string
	// PaymentMetaHash fingerprints the stored payment token so multi
	// subscription orders can detect mismatched methods.
	PaymentMetaHash string
	Capabilities    []string
	// NextRetryAt is the pending payment-retry date, nil when none is scheduled.
	NextRetryAt *time.Time
}

// IsManual returns true if the subscription renews manually.
func (s *Subscription) IsManual() bool {
	return s.Manual
}

// HasStatus returns true if the subscription currently carries the given status.
func (s *Subscription) HasStatus(status valueobject.SubscriptionStatus) bool {
	return s.Status == status
}

// PaymentMethodSupports reports whether the stored payment method supports
// the named capability.
func (s *Subscription) PaymentMethodSupports(capability string) bool {
	for _, c := range s.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// HasPendingRetryDate returns true while a payment retry is scheduled.
func (s *Subscription) HasPendingRetryDate() bool {
	return s.NextRetryAt != nil && !s.NextRetryAt.IsZero()
}
