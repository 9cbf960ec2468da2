package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bivex/renewal-retry/internal/domain/entity"
	domainerrors "github.com/bivex/renewal-retry/internal/domain/errors"
	"github.com/bivex/renewal-retry/internal/domain/valueobject"
)

// OrderRepositoryImpl implements OrderRepository over the billing schema.
type OrderRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewOrderRepository creates a new order repository.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepositoryImpl {
	return &OrderRepositoryImpl{pool: pool}
}

// Get retrieves a renewal order by id.
func (r *OrderRepositoryImpl) Get(ctx context.Context, id int64) (*entity.Order, error) {
	query := `
		SELECT id, status, payment_method, total, currency, created_at
		FROM orders
		WHERE id = $1
	`
	order := &entity.Order{}
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&order.ID, &status, &order.PaymentMethod, &order.Total, &order.Currency, &order.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainerrors.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	parsed, err := valueobject.NewOrderStatus(status)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", id, err)
	}
	order.Status = parsed
	return order, nil
}

// UpdateStatus forces the order into the given status and records a note.
func (r *OrderRepositoryImpl) UpdateStatus(ctx context.Context, id int64, status valueobject.OrderStatus, note string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1`, id, status.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domainerrors.ErrOrderNotFound
	}
	if note != "" {
		return r.AddNote(ctx, id, note)
	}
	return nil
}

// AddNote attaches an informational note to the order.
func (r *OrderRepositoryImpl) AddNote(ctx context.Context, id int64, note string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO order_notes (order_id, note) VALUES ($1, $2)`, id, note)
	return err
}

// ClearPaymentMethod removes the stored payment method, recording why.
func (r *OrderRepositoryImpl) ClearPaymentMethod(ctx context.Context, id int64, note string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET payment_method = '' WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domainerrors.ErrOrderNotFound
	}
	if note != "" {
		return r.AddNote(ctx, id, note)
	}
	return nil
}
