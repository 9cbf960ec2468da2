package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bivex/renewal-retry/internal/domain/entity"
	domainerrors "github.com/bivex/renewal-retry/internal/domain/errors"
	"github.com/bivex/renewal-retry/internal/domain/repository"
	"github.com/bivex/renewal-retry/internal/domain/valueobject"
)

// Trigger says how a payment failure reached the manager. The scheduled
// renewal charge and an out-of-band human re-attempt follow different paths.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// PaymentGateway triggers a renewal charge attempt. Fire-and-observe: the
// manager re-reads order state afterwards instead of trusting a return value.
type PaymentGateway interface {
	TriggerRenewalPayment(ctx context.Context, order *entity.Order) error
}

// RetryScheduler schedules a durable "fire the retry" job. Cancellation is
// implicit: the handler re-checks that the retry is still pending on firing.
type RetryScheduler interface {
	ScheduleRetry(ctx context.Context, orderID int64, at time.Time) error
}

// RetryManager is the orchestration layer around retry records: it reacts to
// payment failures by applying rules, fires scheduled retries, and cancels
// retries invalidated by external state. All collaborators are injected at
// construction; there is no global state.
type RetryManager struct {
	store         repository.RetryStore
	rules         RuleProvider
	orders        repository.OrderRepository
	subscriptions repository.SubscriptionRepository
	gateway       PaymentGateway
	scheduler     RetryScheduler
	events        *RetryEvents
	logger        *zap.Logger
	locks         *orderLocks
}

// NewRetryManager wires the retry state machine.
func NewRetryManager(
	store repository.RetryStore,
	rules RuleProvider,
	orders repository.OrderRepository,
	subscriptions repository.SubscriptionRepository,
	gateway PaymentGateway,
	scheduler RetryScheduler,
	events *RetryEvents,
	logger *zap.Logger,
) *RetryManager {
	return &RetryManager{
		store:         store,
		rules:         rules,
		orders:        orders,
		subscriptions: subscriptions,
		gateway:       gateway,
		scheduler:     scheduler,
		events:        events,
		logger:        logger,
		locks:         newOrderLocks(),
	}
}

// Store exposes the retry store to collaborators (admin API, jobs).
func (m *RetryManager) Store() repository.RetryStore {
	return m.store
}

// Rules exposes the rule provider to collaborators.
func (m *RetryManager) Rules() RuleProvider {
	return m.rules
}

// Events exposes the lifecycle event bus for observers.
func (m *RetryManager) Events() *RetryEvents {
	return m.events
}

// HandlePaymentFailure reacts to a failed renewal charge. For scheduled
// failures it looks up the rule for the next attempt, creates a pending
// retry, applies the rule's statuses and schedules the firing. For manual
// re-attempt failures it re-applies the last pending retry's rule without
// creating a new record.
func (m *RetryManager) HandlePaymentFailure(ctx context.Context, orderID int64, trigger Trigger) error {
	m.locks.lock(orderID)
	defer m.locks.unlock(orderID)

	subscriptions, err := m.subscriptions.GetForRenewalOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load subscriptions for order %d: %w", orderID, err)
	}
	if len(subscriptions) == 0 {
		return nil
	}
	for _, sub := range subscriptions {
		if sub.IsManual() || !sub.PaymentMethodSupports(entity.CapabilityDateChanges) {
			m.logger.Debug("order not eligible for automatic retry",
				zap.Int64("order_id", orderID),
				zap.Int64("subscription_id", sub.ID))
			return nil
		}
	}

	if trigger == TriggerManual {
		return m.reapplyLastRule(ctx, orderID, subscriptions)
	}

	count, err := m.store.CountForOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to count retries for order %d: %w", orderID, err)
	}

	rule := m.rules.RuleFor(ctx, count, orderID)
	if rule == nil {
		m.logger.Info("retry schedule exhausted, no further retries",
			zap.Int64("order_id", orderID),
			zap.Int("attempt", count))
		return nil
	}

	retry := entity.NewRetry(orderID, *rule)
	id, err := m.store.Save(ctx, retry)
	if err != nil {
		return fmt.Errorf("failed to save retry for order %d: %w", orderID, err)
	}
	retry.ID = id
	m.events.Publish(ctx, RetryEvent{Type: EventRetryCreated, Retry: retry})

	if err := m.applyRule(ctx, retry, subscriptions); err != nil {
		return err
	}

	if err := m.scheduler.ScheduleRetry(ctx, orderID, retry.Date); err != nil {
		// The recurring due-retry sweep picks up anything the scheduler
		// dropped, so a failed enqueue is logged rather than fatal.
		m.logger.Error("failed to schedule retry job",
			zap.Int64("retry_id", retry.ID),
			zap.Int64("order_id", orderID),
			zap.Error(err))
	}

	m.logger.Info("retry created",
		zap.Int64("retry_id", retry.ID),
		zap.Int64("order_id", orderID),
		zap.Int("attempt", count),
		zap.Time("scheduled_at", retry.Date))
	return nil
}

// reapplyLastRule re-forces the statuses of the last pending retry's rule.
// Handles a human retrying payment out-of-band while a retry is pending.
func (m *RetryManager) reapplyLastRule(ctx context.Context, orderID int64, subscriptions []*entity.Subscription) error {
	last, err := m.store.LastForOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load last retry for order %d: %w", orderID, err)
	}
	if last == nil || !last.IsPending() {
		return nil
	}
	return m.applyRule(ctx, last, subscriptions)
}

// applyRule forces the rule's order/subscription statuses and records the
// retry date on every related subscription. Marked as an in-flight phase so
// a status change it causes does not cancel the retry it belongs to.
func (m *RetryManager) applyRule(ctx context.Context, retry *entity.Retry, subscriptions []*entity.Subscription) error {
	m.locks.enterPhase(retry.OrderID, phaseApplyingRule)
	defer m.locks.leavePhase(retry.OrderID)

	m.events.Publish(ctx, RetryEvent{Type: EventBeforeApplyRule, Retry: retry})

	order, err := m.orders.Get(ctx, retry.OrderID)
	if err != nil {
		return fmt.Errorf("failed to load order %d: %w", retry.OrderID, err)
	}

	if status := retry.Rule.StatusToApplyToOrder(); !status.IsNone() && !order.HasStatus(status) {
		note := fmt.Sprintf("Retry rule applied: order held %s until retry %d fires.", status, retry.ID)
		if err := m.orders.UpdateStatus(ctx, order.ID, status, note); err != nil {
			return fmt.Errorf("failed to apply order status for retry %d: %w", retry.ID, err)
		}
	}

	for _, sub := range subscriptions {
		if status := retry.Rule.StatusToApplyToSubscription(); !status.IsNone() && !sub.HasStatus(status) {
			note := fmt.Sprintf("Retry rule applied: subscription held %s until retry %d fires.", status, retry.ID)
			if err := m.subscriptions.UpdateStatus(ctx, sub.ID, status, note); err != nil {
				return fmt.Errorf("failed to apply subscription status for retry %d: %w", retry.ID, err)
			}
		}
		if err := m.subscriptions.SetNextRetryDate(ctx, sub.ID, retry.Date); err != nil {
			return fmt.Errorf("failed to set retry date on subscription %d: %w", sub.ID, err)
		}
	}

	m.events.Publish(ctx, RetryEvent{Type: EventAfterApplyRule, Retry: retry})
	return nil
}

// HandleRetry fires a scheduled retry. It no-ops unless the last retry for
// the order is still pending, so a stale scheduler job is harmless.
func (m *RetryManager) HandleRetry(ctx context.Context, orderID int64) error {
	m.locks.lock(orderID)
	defer m.locks.unlock(orderID)

	last, err := m.store.LastForOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load last retry for order %d: %w", orderID, err)
	}
	if last == nil || !last.IsPending() {
		return nil
	}

	order, err := m.orders.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load order %d: %w", orderID, err)
	}

	// Someone else paid the order while the retry waited.
	if !order.NeedsPayment() {
		return m.cancelRetry(ctx, last, "Retry cancelled: order no longer needs payment.")
	}

	m.locks.enterPhase(orderID, phaseRetryingPayment)
	defer m.locks.leavePhase(orderID)

	if err := m.updateStatus(ctx, last, valueobject.RetryStatusProcessing); err != nil {
		return err
	}

	subscriptions, err := m.subscriptions.GetForRenewalOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load subscriptions for order %d: %w", orderID, err)
	}

	// A status differing from what the rule set signals a human intervened;
	// back off instead of charging.
	if intervened := m.statusesChangedSinceRule(last, order, subscriptions); intervened {
		return m.cancelRetry(ctx, last, "Retry cancelled: order or subscription status was changed manually.")
	}

	if err := m.assertSinglePaymentMethod(subscriptions); err != nil {
		// Record intentionally left processing; this must surface to an
		// operator rather than risk charging the wrong method.
		return err
	}

	m.events.Publish(ctx, RetryEvent{Type: EventBeforeRetryPayment, Retry: last})

	if manual := anyManual(subscriptions); manual {
		note := "Renewal payment retry skipped: a related subscription has switched to manual renewal."
		if err := m.orders.ClearPaymentMethod(ctx, orderID, note); err != nil {
			return fmt.Errorf("failed to clear payment method on order %d: %w", orderID, err)
		}
	} else {
		if err := m.chargeRenewal(ctx, order, subscriptions); err != nil {
			return err
		}
	}

	// Observe the outcome from order state, never from the gateway call.
	order, err = m.orders.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to reload order %d: %w", orderID, err)
	}
	outcome := valueobject.RetryStatusComplete
	if order.NeedsPayment() {
		outcome = valueobject.RetryStatusFailed
	}
	if err := m.updateStatus(ctx, last, outcome); err != nil {
		return err
	}

	m.events.Publish(ctx, RetryEvent{Type: EventAfterRetryPayment, Retry: last})
	m.logger.Info("retry processed",
		zap.Int64("retry_id", last.ID),
		zap.Int64("order_id", orderID),
		zap.String("outcome", last.Status.String()))
	return nil
}

// chargeRenewal puts the order/subscriptions into chargeable states and
// triggers the gateway.
func (m *RetryManager) chargeRenewal(ctx context.Context, order *entity.Order, subscriptions []*entity.Subscription) error {
	if !order.HasStatus(valueobject.OrderStatusPending) {
		if err := m.orders.UpdateStatus(ctx, order.ID, valueobject.OrderStatusPending, "Preparing renewal order for payment retry."); err != nil {
			return fmt.Errorf("failed to reset order %d for retry: %w", order.ID, err)
		}
	}
	for _, sub := range subscriptions {
		if !sub.HasStatus(valueobject.SubscriptionStatusOnHold) {
			if err := m.subscriptions.UpdateStatus(ctx, sub.ID, valueobject.SubscriptionStatusOnHold, "Holding subscription for payment retry."); err != nil {
				return fmt.Errorf("failed to hold subscription %d for retry: %w", sub.ID, err)
			}
		}
	}
	if err := m.gateway.TriggerRenewalPayment(ctx, order); err != nil {
		// A transport error is observed the same way as a declined charge:
		// the reload below sees the order still needing payment.
		m.logger.Warn("gateway charge trigger failed",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
	return nil
}

// statusesChangedSinceRule reports whether the order or any subscription left
// the status the retry's rule forced on it.
func (m *RetryManager) statusesChangedSinceRule(retry *entity.Retry, order *entity.Order, subscriptions []*entity.Subscription) bool {
	if status := retry.Rule.StatusToApplyToOrder(); !status.IsNone() && !order.HasStatus(status) {
		return true
	}
	if status := retry.Rule.StatusToApplyToSubscription(); !status.IsNone() {
		for _, sub := range subscriptions {
			if !sub.HasStatus(status) {
				return true
			}
		}
	}
	return false
}

// assertSinglePaymentMethod fails when related subscriptions disagree on the
// stored payment method, since no single method could safely be charged.
func (m *RetryManager) assertSinglePaymentMethod(subscriptions []*entity.Subscription) error {
	seen := ""
	for _, sub := range subscriptions {
		key := sub.PaymentMethod + "|" + sub.PaymentMetaHash
		if seen == "" {
			seen = key
			continue
		}
		if key != seen {
			return domainerrors.ErrMultiplePaymentMethods
		}
	}
	return nil
}

func anyManual(subscriptions []*entity.Subscription) bool {
	for _, sub := range subscriptions {
		if sub.IsManual() {
			return true
		}
	}
	return false
}

// HandleSubscriptionStatusChanged reacts to a subscription status change of
// any external cause. If a retry is pending and the new status is not what
// its rule expected, the retry is cancelled, unless the change was caused by
// an in-flight rule application or payment retry.
func (m *RetryManager) HandleSubscriptionStatusChanged(ctx context.Context, subscriptionID int64, newStatus valueobject.SubscriptionStatus) error {
	sub, err := m.subscriptions.Get(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to load subscription %d: %w", subscriptionID, err)
	}
	if !sub.HasPendingRetryDate() {
		return nil
	}

	orderID, err := m.subscriptions.LastRenewalOrderID(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to resolve renewal order for subscription %d: %w", subscriptionID, err)
	}
	if orderID == 0 {
		return nil
	}

	// The manager is already working on this order, so the change came from
	// our own rule application or charge flow.
	if m.locks.busy(orderID) {
		return nil
	}

	m.locks.lock(orderID)
	defer m.locks.unlock(orderID)

	last, err := m.store.LastForOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load last retry for order %d: %w", orderID, err)
	}
	if last == nil || last.IsTerminal() {
		return nil
	}
	if expected := last.Rule.StatusToApplyToSubscription(); !expected.IsNone() && newStatus == expected {
		return nil
	}

	return m.cancelRetry(ctx, last, fmt.Sprintf("Retry cancelled: subscription %d changed to %s.", subscriptionID, newStatus))
}

// HandleOrderDeleted cancels the last retry for a deleted or trashed renewal
// order and removes every retry record that belonged to it.
func (m *RetryManager) HandleOrderDeleted(ctx context.Context, orderID int64) error {
	m.locks.lock(orderID)
	defer m.locks.unlock(orderID)

	last, err := m.store.LastForOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load last retry for order %d: %w", orderID, err)
	}
	if last != nil && !last.IsTerminal() {
		// Marking cancelled also neutralizes any scheduled job: the handler
		// re-checks for pending on firing.
		if err := m.cancelRetry(ctx, last, ""); err != nil {
			return err
		}
	}

	ids, err := m.store.IDsForOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to list retries for order %d: %w", orderID, err)
	}
	for _, id := range ids {
		if _, err := m.store.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete retry %d: %w", id, err)
		}
	}
	return nil
}

// cancelRetry marks the retry cancelled and notes the order when asked.
func (m *RetryManager) cancelRetry(ctx context.Context, retry *entity.Retry, note string) error {
	if err := m.updateStatus(ctx, retry, valueobject.RetryStatusCancelled); err != nil {
		return err
	}
	if note != "" {
		if err := m.orders.AddNote(ctx, retry.OrderID, note); err != nil {
			m.logger.Warn("failed to note order about cancelled retry",
				zap.Int64("order_id", retry.OrderID),
				zap.Error(err))
		}
	}
	return nil
}

// updateStatus performs a guarded status transition, persists it, publishes
// the status-updated event, and clears the subscriptions' retry dates when
// the most recent retry reaches a terminal state.
func (m *RetryManager) updateStatus(ctx context.Context, retry *entity.Retry, next valueobject.RetryStatus) error {
	old := retry.Status
	var err error
	switch next {
	case valueobject.RetryStatusProcessing:
		err = retry.MarkProcessing()
	case valueobject.RetryStatusFailed:
		err = retry.MarkFailed()
	case valueobject.RetryStatusComplete:
		err = retry.MarkComplete()
	case valueobject.RetryStatusCancelled:
		err = retry.MarkCancelled()
	default:
		err = valueobject.ErrIllegalRetryTransition
	}
	if err != nil {
		return err
	}
	if _, err := m.store.Save(ctx, retry); err != nil {
		return fmt.Errorf("failed to persist retry %d status %s: %w", retry.ID, next, err)
	}

	m.events.Publish(ctx, RetryEvent{
		Type:      EventRetryStatusUpdated,
		Retry:     retry,
		OldStatus: old,
		NewStatus: next,
	})

	if next.IsTerminal() {
		if err := m.clearRetryDatesIfCurrent(ctx, retry); err != nil {
			return err
		}
	}
	return nil
}

// clearRetryDatesIfCurrent removes the pending retry date from every related
// subscription, but only when the finished retry is still the most recent
// one for its order.
func (m *RetryManager) clearRetryDatesIfCurrent(ctx context.Context, retry *entity.Retry) error {
	last, err := m.store.LastForOrder(ctx, retry.OrderID)
	if err != nil {
		return fmt.Errorf("failed to load last retry for order %d: %w", retry.OrderID, err)
	}
	if last == nil || last.ID != retry.ID {
		return nil
	}
	subscriptions, err := m.subscriptions.GetForRenewalOrder(ctx, retry.OrderID)
	if err != nil {
		return fmt.Errorf("failed to load subscriptions for order %d: %w", retry.OrderID, err)
	}
	for _, sub := range subscriptions {
		if err := m.subscriptions.ClearNextRetryDate(ctx, sub.ID); err != nil {
			return fmt.Errorf("failed to clear retry date on subscription %d: %w", sub.ID, err)
		}
	}
	return nil
}
