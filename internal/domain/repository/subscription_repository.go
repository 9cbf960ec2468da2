package repository

import (
	"context"
	"time"

	"github.com/bivex/renewal-retry/internal/domain/entity"
	"github.com/bivex/renewal-retry/internal/domain/valueobject"
)

// SubscriptionRepository defines the retry core's view of subscriptions.
type SubscriptionRepository interface {
	// Get retrieves a subscription by id.
	Get(ctx context.Context, id int64) (*entity.Subscription, error)

	// GetForRenewalOrder returns every subscription the renewal order
	// belongs to. Grouped renewals may return more than one.
	GetForRenewalOrder(ctx context.Context, orderID int64) ([]*entity.Subscription, error)

	// UpdateStatus forces the subscription into the given status and records a note.
	UpdateStatus(ctx context.Context, id int64, status valueobject.SubscriptionStatus, note string) error

	// SetNextRetryDate records the scheduled payment-retry date.
	SetNextRetryDate(ctx context.Context, id int64, at time.Time) error

	// ClearNextRetryDate removes the scheduled payment-retry date.
	ClearNextRetryDate(ctx context.Context, id int64) error

	// LastRenewalOrderID returns the most recent renewal order for the
	// subscription, or 0 when it has none.
	LastRenewalOrderID(ctx context.Context, id int64) (int64, error)
}
