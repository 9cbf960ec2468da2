package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bivex/renewal-retry/internal/domain/entity"
	domainerrors "github.com/bivex/renewal-retry/internal/domain/errors"
	"github.com/bivex/renewal-retry/internal/domain/service"
	"github.com/bivex/renewal-retry/internal/domain/valueobject"
	"github.com/bivex/renewal-retry/tests/mocks"
	"github.com/bivex/renewal-retry/tests/testutil"
)

type managerFixture struct {
	store     *testutil.MemoryRetryStore
	orders    *mocks.MockOrderRepository
	subs      *mocks.MockSubscriptionRepository
	gateway   *mocks.MockPaymentGateway
	scheduler *mocks.MockRetryScheduler
	events    *service.RetryEvents
	manager   *service.RetryManager
}

func newManagerFixture() *managerFixture {
	f := &managerFixture{
		store:     testutil.NewMemoryRetryStore(),
		orders:    mocks.NewMockOrderRepository(),
		subs:      mocks.NewMockSubscriptionRepository(),
		gateway:   mocks.NewMockPaymentGateway(),
		scheduler: mocks.NewMockRetryScheduler(),
		events:    service.NewRetryEvents(),
	}
	f.manager = service.NewRetryManager(
		f.store, service.NewDefaultRuleProvider(), f.orders, f.subs,
		f.gateway, f.scheduler, f.events, zap.NewNop(),
	)
	return f
}

// holdRule mirrors the default schedule stages: order pending, subscription on-hold.
func holdRule(interval time.Duration) entity.RetryRule {
	return entity.NewRetryRule(interval, "", "payment_retry_admin",
		valueobject.OrderStatusPending, valueobject.SubscriptionStatusOnHold)
}

func autoRenewSub(id int64, status valueobject.SubscriptionStatus) *entity.Subscription {
	return &entity.Subscription{
		ID:              id,
		Status:          status,
		PaymentMethod:   "card_gateway",
		PaymentMetaHash: "token-hash-1",
		Capabilities:    []string{entity.CapabilityDateChanges},
	}
}

func orderWith(id int64, status valueobject.OrderStatus) *entity.Order {
	return &entity.Order{ID: id, Status: status, PaymentMethod: "card_gateway", Total: 2999, Currency: "USD"}
}

func TestHandlePaymentFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("first failure creates a pending retry and applies the rule", func(t *testing.T) {
		f := newManagerFixture()
		sub := autoRenewSub(10, valueobject.SubscriptionStatusActive)

		f.subs.On("GetForRenewalOrder", ctx, int64(1)).Return([]*entity.Subscription{sub}, nil).Once()
		f.orders.On("Get", ctx, int64(1)).Return(orderWith(1, valueobject.OrderStatusFailed), nil).Once()
		f.orders.On("UpdateStatus", ctx, int64(1), valueobject.OrderStatusPending, mock.Anything).Return(nil).Once()
		f.subs.On("UpdateStatus", ctx, int64(10), valueobject.SubscriptionStatusOnHold, mock.Anything).Return(nil).Once()
		f.subs.On("SetNextRetryDate", ctx, int64(10), mock.Anything).Return(nil).Once()
		f.scheduler.On("ScheduleRetry", ctx, int64(1), mock.Anything).Return(nil).Once()

		err := f.manager.HandlePaymentFailure(ctx, 1, service.TriggerScheduled)
		require.NoError(t, err)

		last, err := f.store.LastForOrder(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.True(t, last.IsPending())
		assert.WithinDuration(t, time.Now().UTC().Add(12*time.Hour), last.Date, 5*time.Second)

		f.orders.AssertExpectations(t)
		f.subs.AssertExpectations(t)
		f.scheduler.AssertExpectations(t)
	})

	t.Run("second failure picks the next schedule stage", func(t *testing.T) {
		f := newManagerFixture()
		sub := autoRenewSub(10, valueobject.SubscriptionStatusOnHold)

		first := entity.NewRetry(1, holdRule(12*time.Hour))
		require.NoError(t, first.MarkProcessing())
		require.NoError(t, first.MarkFailed())
		_, err := f.store.Save(ctx, first)
		require.NoError(t, err)

		f.subs.On("GetForRenewalOrder", ctx, int64(1)).Return([]*entity.Subscription{sub}, nil).Once()
		f.orders.On("Get", ctx, int64(1)).Return(orderWith(1, valueobject.OrderStatusFailed), nil).Once()
		f.orders.On("UpdateStatus", ctx, int64(1), valueobject.OrderStatusPending, mock.Anything).Return(nil).Once()
		f.subs.On("SetNextRetryDate", ctx, int64(10), mock.Anything).Return(nil).Once()
		f.scheduler.On("ScheduleRetry", ctx, int64(1), mock.Anything).Return(nil).Once()

		require.NoError(t, f.manager.HandlePaymentFailure(ctx, 1, service.TriggerScheduled))

		count, err := f.store.CountForOrder(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("manual renewal subscriptions are not retried", func(t *testing.T) {
		f := newManagerFixture()
		sub := autoRenewSub(10, valueobject.SubscriptionStatusActive)
		sub.Manual = true

		f.subs.On("GetForRenewalOrder", ctx, int64(1)).Return([]*entity.Subscription{sub}, nil).Once()

		require.NoError(t, f.manager.HandlePaymentFailure(ctx, 1, service.TriggerScheduled))
		assert.Equal(t, 0, f.store.Len())
		f.scheduler.AssertNotCalled(t, "ScheduleRetry")
	})

	t.Run("payment method without date change support is not retried", func(t *testing.T) {
		f := newManagerFixture()
		sub := autoRenewSub(10, valueobject.SubscriptionStatusActive)
		sub.Capabilities = nil

		f.subs.On("GetForRenewalOrder", ctx, int64(1)).Return([]*entity.Subscription{sub}, nil).Once()

		require.NoError(t, f.manager.HandlePaymentFailure(ctx, 1, service.TriggerScheduled))
		assert.Equal(t, 0, f.store.Len())
	})

	t.Run("exhausted schedule creates no further retries", func(t *testing.T) {
		f := newManagerFixture()
		sub := autoRenewSub(10, valueobject.SubscriptionStatusOnHold)

		for i := 0; i < 5; i++ {
			retry := entity.NewRetry(1, holdRule(12*time.Hour))
			require.NoError(t, retry.MarkProcessing())
			require.NoError(t, retry.MarkFailed())
			_, err := f.store.Save(ctx, retry)
			require.NoError(t, err)
		}

		f.subs.On("GetForRenewalOrder", ctx, int64(1)).Return([]*entity.Subscription{sub}, nil).Once()

		require.NoError(t, f.manager.HandlePaymentFailure(ctx, 1, service.TriggerScheduled))
		assert.Equal(t, 5, f.store.Len())
		f.scheduler.AssertNotCalled(t, "ScheduleRetry")
	})

	t.Run("manual trigger reapplies the pending rule without a new record", func(t *testing.T) {
		f := newManagerFixture()
		sub := autoRenewSub(10, valueobject.SubscriptionStatusActive)

		pending := entity.NewRetry(1, holdRule(24*time.Hour))
		_, err := f.store.Save(ctx, pending)
		require.NoError(t, err)

		f.subs.On("GetForRenewalOrder", ctx, int64(1)).Return([]*entity.Subscription{sub}, nil).Once()
		f.orders.On("Get", ctx, int64(1)).Return(orderWith(1, valueobject.OrderStatusFailed), nil).Once()
		f.orders.On("UpdateStatus", ctx, int64(1), valueobject.OrderStatusPending, mock.Anything).Return(nil).Once()
		f.subs.On("UpdateStatus", ctx, int64(10), valueobject.SubscriptionStatusOnHold, mock.Anything).Return(nil).Once()
		f.subs.On("SetNextRetryDate", ctx, int64(10), pending.Date).Return(nil).Once()

		require.NoError(t, f.manager.HandlePaymentFailure(ctx, 1, service.TriggerManual))

		assert.Equal(t, 1, f.store.Len())
		f.scheduler.AssertNotCalled(t, "ScheduleRetry")
		f.subs.AssertExpectations(t)
	})

	t.Run("order without subscriptions is ignored", func(t *testing.T) {
		f := newManagerFixture()
		f.subs.On("GetForRenewalOrder", ctx, int64(1)).Return([]*entity.Subscription{}, nil).Once()

		require.NoError(t, f.manager.HandlePaymentFailure(ctx, 1, service.TriggerScheduled))
		assert.Equal(t, 0, f.store.Len())
	})
}

func TestHandleRetry(t *testing.T) {
	ctx := context.Background()

	seedPending := func(t *testing.T, f *managerFixture) *entity.Retry {
		t.Helper()
		retry := entity.NewRetry(1, holdRule(12*time.Hour))
		retry.Date = time.Now().UTC().Add(-time.Minute)
		_, err := f.store.Save(ctx, retry)
		require.NoError(t, err)
		return retry
	}

	t.Run("successful charge completes the retry", func(t *testing.T) {
		f := newManagerFixture()
		sub := autoRenewSub(10, valueobject.SubscriptionStatusOnHold)
		seedPending(t, f)

		f.orders.On("Get", ctx, int64(1)).Return(orderWith(1, valueobject.OrderStatusPending), nil).Once()
		f.subs.On("GetForRenewalOrder", ctx, int64(1)).Return([]*entity.Subscription{sub}, nil).Once()
		f.gateway.On("TriggerRenewalPayment", ctx, mock.Anything).Return(nil).Once()
		f.orders.On("Get", ctx, int64(1)).Return(orderWith(1, valueobject.OrderStatusCompleted), nil).Once()
		f.subs.On("GetForRenewalOrder", ctx, int64(1)).Return([]*entity.Subscription{sub}, nil).Once()
		f.subs.On("ClearNextRetryDate", ctx, int64(10)).Return(nil).Once()

		require.NoError(t, f.manager.HandleRetry(ctx, 1))

		last, err := f.store.LastForOrder(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, valueobject.RetryStatusComplete, last.Status)
		f.gateway.AssertExpectations(t)
		f.subs.AssertExpectations(t)
	})

	t.Run("declined charge fails the retry", func(t *testing.T) {
		f := newManagerFixture()
		sub := autoRenewSub(10, valueobject.SubscriptionStatusOnHold)
		seedPending(t, f)

		f.orders.On("Get", ctx, int64(1)).Return(orderWith(1, valueobject.OrderStatusPending), nil).Twice()
		f.subs.On("GetForRenewalOrder", ctx, int64(1)).Return([]*entity.Subscription{sub}, nil).Twice()
		f.gateway.On("TriggerRenewalPayment", ctx, mock.Anything).Return(nil).Once()
		f.subs.On("ClearNextRetryDate", ctx, int64(10)).Return(nil).Once()

		require.NoError(t, f.manager.HandleRetry(ctx, 1))

		last, err := f.store.LastForOrder(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, valueobject.RetryStatusFailed, last.Status)
	})

	t.Run("order paid while waiting cancels the retry", func(t *testing.T) {
		f := newManagerFixture()
		sub := autoRenewSub(10, valueobject.SubscriptionStatusOnHold)
		seedPending(t, f)

		f.orders.On("Get", ctx, int64(1)).Return(orderWith(1, valueobject.OrderStatusCompleted), nil).Once()
		f.subs.On("GetForRenewalOrder", ctx, int64(1)).Return([]*entity.Subscription{sub}, nil).Once()
		f.subs.On("ClearNextRetryDate", ctx, int64(10)).Return(nil).Once()
		f.orders.On("AddNote", ctx, int64(1), mock.Anything).Return(nil).Once()

		require.NoError(t, f.manager.HandleRetry(ctx, 1))

		last, err := f.store.LastForOrder(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, valueobject.RetryStatusCancelled, last.Status)
		f.gateway.AssertNotCalled(t, "TriggerRenewalPayment")
	})

	t.Run("manually changed statuses cancel instead of charging", func(t *testing.T) {
		f := newManagerFixture()
		// Rule forced pending, but the order now reads failed: a human moved it.
		sub := autoRenewSub(10, valueobject.SubscriptionStatusOnHold)
		seedPending(t, f)

		f.orders.On("Get", ctx, int64(1)).Return(orderWith(1, valueobject.OrderStatusFailed), nil).Once()
		f.subs.On("GetForRenewalOrder", ctx, int64(1)).Return([]*entity.Subscription{sub}, nil).Twice()
		f.subs.On("ClearNextRetryDate", ctx, int64(10)).Return(nil).Once()
		f.orders.On("AddNote", ctx, int64(1), mock.Anything).Return(nil).Once()

		require.NoError(t, f.manager.HandleRetry(ctx, 1))

		last, err := f.store.LastForOrder(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, valueobject.RetryStatusCancelled, last.Status)
		f.gateway.AssertNotCalled(t, "TriggerRenewalPayment")
	})

	t.Run("mismatched payment methods abort and leave the record processing", func(t *testing.T) {
		f := newManagerFixture()
		subA := autoRenewSub(10, valueobject.SubscriptionStatusOnHold)
		subB := autoRenewSub(11, valueobject.SubscriptionStatusOnHold)
		subB.PaymentMetaHash = "token-hash-2"
		seedPending(t, f)

		f.orders.On("Get", ctx, int64(1)).Return(orderWith(1, valueobject.OrderStatusPending), nil).Once()
		f.subs.On("GetForRenewalOrder", ctx, int64(1)).Return([]*entity.Subscription{subA, subB}, nil).Once()

		err := f.manager.HandleRetry(ctx, 1)
		assert.ErrorIs(t, err, domainerrors.ErrMultiplePaymentMethods)

		last, lerr := f.store.LastForOrder(ctx, 1)
		require.NoError(t, lerr)
		assert.Equal(t, valueobject.RetryStatusProcessing, last.Status)
		f.gateway.AssertNotCalled(t, "TriggerRenewalPayment")
	})

	t.Run("subscription switched to manual clears the payment method instead of charging", func(t *testing.T) {
		f := newManagerFixture()
		sub := autoRenewSub(10, valueobject.SubscriptionStatusOnHold)
		sub.Manual = true
		seedPending(t, f)

		f.orders.On("Get", ctx, int64(1)).Return(orderWith(1, valueobject.OrderStatusPending), nil).Twice()
		f.subs.On("GetForRenewalOrder", ctx, int64(1)).Return([]*entity.Subscription{sub}, nil).Twice()
		f.orders.On("ClearPaymentMethod", ctx, int64(1), mock.Anything).Return(nil).Once()
		f.subs.On("ClearNextRetryDate", ctx, int64(10)).Return(nil).Once()

		require.NoError(t, f.manager.HandleRetry(ctx, 1))

		last, err := f.store.LastForOrder(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, valueobject.RetryStatusFailed, last.Status)
		f.gateway.AssertNotCalled(t, "TriggerRenewalPayment")
		f.orders.AssertExpectations(t)
	})

	t.Run("gateway transport error is observed as a failed charge", func(t *testing.T) {
		f := newManagerFixture()
		sub := autoRenewSub(10, valueobject.SubscriptionStatusOnHold)
		seedPending(t, f)

		f.orders.On("Get", ctx, int64(1)).Return(orderWith(1, valueobject.OrderStatusPending), nil).Twice()
		f.subs.On("GetForRenewalOrder", ctx, int64(1)).Return([]*entity.Subscription{sub}, nil).Twice()
		f.gateway.On("TriggerRenewalPayment", ctx, mock.Anything).Return(assert.AnError).Once()
		f.subs.On("ClearNextRetryDate", ctx, int64(10)).Return(nil).Once()

		require.NoError(t, f.manager.HandleRetry(ctx, 1))

		last, err := f.store.LastForOrder(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, valueobject.RetryStatusFailed, last.Status)
	})

	t.Run("stale job for a finished retry is a no-op", func(t *testing.T) {
		f := newManagerFixture()
		retry := seedPending(t, f)
		require.NoError(t, retry.MarkCancelled())
		_, err := f.store.Save(ctx, retry)
		require.NoError(t, err)

		require.NoError(t, f.manager.HandleRetry(ctx, 1))
		f.orders.AssertNotCalled(t, "Get")
	})

	t.Run("order with no retries is a no-op", func(t *testing.T) {
		f := newManagerFixture()
		require.NoError(t, f.manager.HandleRetry(ctx, 99))
		f.orders.AssertNotCalled(t, "Get")
	})
}

func TestHandleSubscriptionStatusChanged(t *testing.T) {
	ctx := context.Background()
	future := time.Now().UTC().Add(12 * time.Hour)

	t.Run("external status change cancels the pending retry", func(t *testing.T) {
		f := newManagerFixture()
		sub := autoRenewSub(10, valueobject.SubscriptionStatusActive)
		sub.NextRetryAt = &future

		pending := entity.NewRetry(1, holdRule(12*time.Hour))
		_, err := f.store.Save(ctx, pending)
		require.NoError(t, err)

		f.subs.On("Get", ctx, int64(10)).Return(sub, nil).Once()
		f.subs.On("LastRenewalOrderID", ctx, int64(10)).Return(int64(1), nil).Once()
		f.subs.On("GetForRenewalOrder", ctx, int64(1)).Return([]*entity.Subscription{sub}, nil).Once()
		f.subs.On("ClearNextRetryDate", ctx, int64(10)).Return(nil).Once()
		f.orders.On("AddNote", ctx, int64(1), mock.Anything).Return(nil).Once()

		require.NoError(t, f.manager.HandleSubscriptionStatusChanged(ctx, 10, valueobject.SubscriptionStatusActive))

		last, err := f.store.LastForOrder(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, valueobject.RetryStatusCancelled, last.Status)
	})

	t.Run("change to the rule's expected status is tolerated", func(t *testing.T) {
		f := newManagerFixture()
		sub := autoRenewSub(10, valueobject.SubscriptionStatusOnHold)
		sub.NextRetryAt = &future

		pending := entity.NewRetry(1, holdRule(12*time.Hour))
		_, err := f.store.Save(ctx, pending)
		require.NoError(t, err)

		f.subs.On("Get", ctx, int64(10)).Return(sub, nil).Once()
		f.subs.On("LastRenewalOrderID", ctx, int64(10)).Return(int64(1), nil).Once()

		require.NoError(t, f.manager.HandleSubscriptionStatusChanged(ctx, 10, valueobject.SubscriptionStatusOnHold))

		last, err := f.store.LastForOrder(ctx, 1)
		require.NoError(t, err)
		assert.True(t, last.IsPending())
	})

	t.Run("no scheduled retry date means nothing to cancel", func(t *testing.T) {
		f := newManagerFixture()
		sub := autoRenewSub(10, valueobject.SubscriptionStatusActive)

		f.subs.On("Get", ctx, int64(10)).Return(sub, nil).Once()

		require.NoError(t, f.manager.HandleSubscriptionStatusChanged(ctx, 10, valueobject.SubscriptionStatusCancelled))
		f.subs.AssertNotCalled(t, "LastRenewalOrderID")
	})

	t.Run("listener calling back during a cancellation does not deadlock", func(t *testing.T) {
		f := newManagerFixture()
		sub := autoRenewSub(10, valueobject.SubscriptionStatusActive)
		sub.NextRetryAt = &future

		pending := entity.NewRetry(1, holdRule(12*time.Hour))
		_, err := f.store.Save(ctx, pending)
		require.NoError(t, err)

		f.subs.On("Get", ctx, int64(10)).Return(sub, nil).Twice()
		f.subs.On("LastRenewalOrderID", ctx, int64(10)).Return(int64(1), nil).Twice()
		f.subs.On("GetForRenewalOrder", ctx, int64(1)).Return([]*entity.Subscription{sub}, nil).Once()
		f.subs.On("ClearNextRetryDate", ctx, int64(10)).Return(nil).Once()
		f.orders.On("AddNote", ctx, int64(1), mock.Anything).Return(nil).Once()

		// The cancellation's own status write gets reported back while the
		// manager still holds the order.
		var reentrantErr error
		f.events.Subscribe(func(eventCtx context.Context, e service.RetryEvent) {
			if e.Type == service.EventRetryStatusUpdated {
				reentrantErr = f.manager.HandleSubscriptionStatusChanged(eventCtx, 10, valueobject.SubscriptionStatusCancelled)
			}
		})

		require.NoError(t, f.manager.HandleSubscriptionStatusChanged(ctx, 10, valueobject.SubscriptionStatusActive))
		require.NoError(t, reentrantErr)

		last, err := f.store.LastForOrder(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, valueobject.RetryStatusCancelled, last.Status)
		f.subs.AssertExpectations(t)
	})

	t.Run("changes caused by an in-flight rule application are ignored", func(t *testing.T) {
		f := newManagerFixture()
		sub := autoRenewSub(10, valueobject.SubscriptionStatusActive)
		sub.NextRetryAt = &future

		f.subs.On("GetForRenewalOrder", ctx, int64(1)).Return([]*entity.Subscription{sub}, nil).Once()
		f.orders.On("Get", ctx, int64(1)).Return(orderWith(1, valueobject.OrderStatusFailed), nil).Once()
		f.orders.On("UpdateStatus", ctx, int64(1), valueobject.OrderStatusPending, mock.Anything).Return(nil).Once()
		f.subs.On("UpdateStatus", ctx, int64(10), valueobject.SubscriptionStatusOnHold, mock.Anything).Return(nil).Once()
		f.subs.On("SetNextRetryDate", ctx, int64(10), mock.Anything).Return(nil).Once()
		f.scheduler.On("ScheduleRetry", ctx, int64(1), mock.Anything).Return(nil).Once()
		f.subs.On("Get", ctx, int64(10)).Return(sub, nil)
		f.subs.On("LastRenewalOrderID", ctx, int64(10)).Return(int64(1), nil)

		// Simulate the billing platform observing the forced status change and
		// reporting it back while the rule application still owns the order.
		var reentrantErr error
		f.events.Subscribe(func(eventCtx context.Context, e service.RetryEvent) {
			if e.Type == service.EventAfterApplyRule {
				reentrantErr = f.manager.HandleSubscriptionStatusChanged(eventCtx, 10, valueobject.SubscriptionStatusCancelled)
			}
		})

		require.NoError(t, f.manager.HandlePaymentFailure(ctx, 1, service.TriggerScheduled))
		require.NoError(t, reentrantErr)

		last, err := f.store.LastForOrder(ctx, 1)
		require.NoError(t, err)
		assert.True(t, last.IsPending(), "in-flight rule application must not cancel its own retry")
	})
}

func TestHandleOrderDeleted(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels the live retry and removes every record", func(t *testing.T) {
		f := newManagerFixture()
		sub := autoRenewSub(10, valueobject.SubscriptionStatusOnHold)

		old := entity.NewRetry(1, holdRule(12*time.Hour))
		require.NoError(t, old.MarkProcessing())
		require.NoError(t, old.MarkFailed())
		_, err := f.store.Save(ctx, old)
		require.NoError(t, err)

		live := entity.NewRetry(1, holdRule(24*time.Hour))
		_, err = f.store.Save(ctx, live)
		require.NoError(t, err)

		f.subs.On("GetForRenewalOrder", ctx, int64(1)).Return([]*entity.Subscription{sub}, nil).Once()
		f.subs.On("ClearNextRetryDate", ctx, int64(10)).Return(nil).Once()

		require.NoError(t, f.manager.HandleOrderDeleted(ctx, 1))
		assert.Equal(t, 0, f.store.Len())
	})

	t.Run("only terminal records need no cancellation", func(t *testing.T) {
		f := newManagerFixture()

		done := entity.NewRetry(1, holdRule(12*time.Hour))
		require.NoError(t, done.MarkProcessing())
		require.NoError(t, done.MarkComplete())
		_, err := f.store.Save(ctx, done)
		require.NoError(t, err)

		require.NoError(t, f.manager.HandleOrderDeleted(ctx, 1))
		assert.Equal(t, 0, f.store.Len())
		f.subs.AssertNotCalled(t, "ClearNextRetryDate")
	})
}
