package entity

import (
	"fmt"
	"time"

	"github.com/bivex/renewal-retry/internal/domain/valueobject"
)

// Retry represents one retry attempt against one renewal order. The ID is
// zero until the record has been persisted; creation order of persisted IDs
// defines which retry is "current" for an order.
type Retry struct {
	ID      int64
	OrderID int64
	Status  valueobject.RetryStatus
	// Date is the UTC instant at which the retry should fire.
	Date time.Time
	Rule RetryRule
}

// NewRetry creates a pending retry for a renewal order, scheduled according
// to the rule's interval.
func NewRetry(orderID int64, rule RetryRule) *Retry {
	return &Retry{
		OrderID: orderID,
		Status:  valueobject.RetryStatusPending,
		Date:    time.Now().UTC().Add(rule.RetryInterval()),
		Rule:    rule,
	}
}

// IsPending returns true if the retry has not started executing yet.
func (r *Retry) IsPending() bool {
	return r.Status == valueobject.RetryStatusPending
}

// IsTerminal returns true once the retry reached a final state.
func (r *Retry) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// transition moves the record to next, enforcing state machine legality.
func (r *Retry) transition(next valueobject.RetryStatus) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("retry %d: %w: %s -> %s",
			r.ID, valueobject.ErrIllegalRetryTransition, r.Status, next)
	}
	r.Status = next
	return nil
}

// MarkProcessing marks the retry as executing.
func (r *Retry) MarkProcessing() error {
	return r.transition(valueobject.RetryStatusProcessing)
}

// MarkFailed marks the retry attempt as unsuccessful. Terminal for this
// record; a later failure event may create a fresh record for the next stage.
func (r *Retry) MarkFailed() error {
	return r.transition(valueobject.RetryStatusFailed)
}

// MarkComplete marks the retry attempt as having recovered the payment.
func (r *Retry) MarkComplete() error {
	return r.transition(valueobject.RetryStatusComplete)
}

// MarkCancelled marks the retry as invalidated by external state.
func (r *Retry) MarkCancelled() error {
	return r.transition(valueobject.RetryStatusCancelled)
}
