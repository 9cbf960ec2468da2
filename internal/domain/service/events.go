package service

import (
	"context"
	"sync"

	"github.com/bivex/renewal-retry/internal/domain/entity"
	"github.com/bivex/renewal-retry/internal/domain/valueobject"
)

// RetryEventType identifies a retry lifecycle event.
type RetryEventType string

const (
	EventRetryCreated       RetryEventType = "retry.created"
	EventRetryStatusUpdated RetryEventType = "retry.status_updated"
	EventBeforeApplyRule    RetryEventType = "retry.before_apply_rule"
	EventAfterApplyRule     RetryEventType = "retry.after_apply_rule"
	EventBeforeRetryPayment RetryEventType = "retry.before_payment"
	EventAfterRetryPayment  RetryEventType = "retry.after_payment"
)

// RetryEvent is delivered to listeners for every lifecycle transition.
// OldStatus/NewStatus are set only for status-updated events.
type RetryEvent struct {
	Type      RetryEventType
	Retry     *entity.Retry
	OldStatus valueobject.RetryStatus
	NewStatus valueobject.RetryStatus
}

// RetryListener observes retry lifecycle events. Listeners run synchronously
// inside the transition, while the manager holds the order's lock; they must
// not block, and the only manager operation safe to call back into for the
// same order is HandleSubscriptionStatusChanged, which checks the in-flight
// registry before taking the lock.
type RetryListener func(ctx context.Context, event RetryEvent)

// RetryEvents is an in-process observer bus for retry lifecycle events.
type RetryEvents struct {
	mu        sync.RWMutex
	listeners []RetryListener
}

// NewRetryEvents creates an empty event bus.
func NewRetryEvents() *RetryEvents {
	return &RetryEvents{}
}

// Subscribe registers a listener for all retry events.
func (e *RetryEvents) Subscribe(l RetryListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Publish delivers the event to every listener in subscription order.
func (e *RetryEvents) Publish(ctx context.Context, event RetryEvent) {
	e.mu.RLock()
	listeners := make([]RetryListener, len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.RUnlock()

	for _, l := range listeners {
		l(ctx, event)
	}
}
