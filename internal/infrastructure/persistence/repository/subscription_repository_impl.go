package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bivex/renewal-retry/internal/domain/entity"
	domainerrors "github.com/bivex/renewal-retry/internal/domain/errors"
	"github.com/bivex/renewal-retry/internal/domain/valueobject"
)

// SubscriptionRepositoryImpl implements SubscriptionRepository over the
// billing schema.
type SubscriptionRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepository creates a new subscription repository.
func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepositoryImpl {
	return &SubscriptionRepositoryImpl{pool: pool}
}

const subscriptionColumns = `id, status, manual_renewal, payment_method, payment_meta_hash, capabilities, next_retry_at`

// Get retrieves a subscription by id.
func (r *SubscriptionRepositoryImpl) Get(ctx context.Context, id int64) (*entity.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	sub, err := scanSubscription(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.ErrSubscriptionNotFound
	}
	return sub, err
}

// GetForRenewalOrder returns every subscription tied to the renewal order.
func (r *SubscriptionRepositoryImpl) GetForRenewalOrder(ctx context.Context, orderID int64) ([]*entity.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions s
		JOIN subscription_orders so ON so.subscription_id = s.id
		WHERE so.order_id = $1
		ORDER BY s.id ASC
	`
	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*entity.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, sub)
	}
	return results, rows.Err()
}

// UpdateStatus forces the subscription into the given status and notes it.
func (r *SubscriptionRepositoryImpl) UpdateStatus(ctx context.Context, id int64, status valueobject.SubscriptionStatus, note string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE subscriptions SET status = $2 WHERE id = $1`, id, status.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domainerrors.ErrSubscriptionNotFound
	}
	if note != "" {
		_, err = r.pool.Exec(ctx,
			`INSERT INTO subscription_notes (subscription_id, note) VALUES ($1, $2)`, id, note)
	}
	return err
}

// SetNextRetryDate records the scheduled payment-retry date.
func (r *SubscriptionRepositoryImpl) SetNextRetryDate(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE subscriptions SET next_retry_at = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domainerrors.ErrSubscriptionNotFound
	}
	return nil
}

// ClearNextRetryDate removes the scheduled payment-retry date.
func (r *SubscriptionRepositoryImpl) ClearNextRetryDate(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE subscriptions SET next_retry_at = NULL WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domainerrors.ErrSubscriptionNotFound
	}
	return nil
}

// LastRenewalOrderID returns the most recent renewal order for the
// subscription, or 0 when it has none.
func (r *SubscriptionRepositoryImpl) LastRenewalOrderID(ctx context.Context, id int64) (int64, error) {
	var orderID int64
	err := r.pool.QueryRow(ctx,
		`SELECT order_id FROM subscription_orders WHERE subscription_id = $1 ORDER BY order_id DESC LIMIT 1`,
		id).Scan(&orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return orderID, err
}

func scanSubscription(row pgx.Row) (*entity.Subscription, error) {
	sub := &entity.Subscription{}
	var status string
	var nextRetryAt *time.Time
	err := row.Scan(&sub.ID, &status, &sub.Manual, &sub.PaymentMethod,
		&sub.PaymentMetaHash, &sub.Capabilities, &nextRetryAt)
	if err != nil {
		return nil, err
	}
	parsed, err := valueobject.NewSubscriptionStatus(status)
	if err != nil {
		return nil, fmt.Errorf("subscription %d: %w", sub.ID, err)
	}
	sub.Status = parsed
	sub.NextRetryAt = nextRetryAt
	return sub, nil
}
