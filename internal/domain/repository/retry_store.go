package repository

import (
	"context"
	"time"

	"github.com/bivex/renewal-retry/internal/domain/entity"
	"github.com/bivex/renewal-retry/internal/domain/valueobject"
)

// RetryOrderBy selects the sort key for retry queries.
type RetryOrderBy string

const (
	// RetryOrderByID sorts by creation order (the stable key).
	RetryOrderByID RetryOrderBy = "id"
	// RetryOrderByDate sorts by scheduled fire date.
	RetryOrderByDate RetryOrderBy = "date"
)

// RetryQuery filters a retry store query. Zero-valued fields are ignored.
// Results are sorted descending by creation order unless OrderBy overrides it.
type RetryQuery struct {
	Status     *valueobject.RetryStatus
	OrderID    *int64
	DateBefore *time.Time
	DateAfter  *time.Time
	OrderBy    RetryOrderBy
	Ascending  bool
	Limit      int
}

// RetryStore defines persistence for retry records. Two backends implement
// it (the legacy entry/meta store and the custom table store); both must
// produce behaviorally identical records from the same logical data.
type RetryStore interface {
	// Save persists the record and returns its id. Records carrying an id
	// are upserted, so replaying a save with identical data is harmless.
	Save(ctx context.Context, retry *entity.Retry) (int64, error)

	// Get retrieves a record by id; returns ErrRetryNotFound when absent.
	Get(ctx context.Context, id int64) (*entity.Retry, error)

	// Delete removes a record, reporting whether it existed.
	Delete(ctx context.Context, id int64) (bool, error)

	// Query returns records matching the filter.
	Query(ctx context.Context, q RetryQuery) ([]*entity.Retry, error)

	// IDsForOrder returns the ids of all retries for a renewal order,
	// ascending by creation order.
	IDsForOrder(ctx context.Context, orderID int64) ([]int64, error)

	// LastForOrder returns the most recently created retry for a renewal
	// order, or nil when the order has none.
	LastForOrder(ctx context.Context, orderID int64) (*entity.Retry, error)

	// CountForOrder returns how many retries exist for a renewal order.
	CountForOrder(ctx context.Context, orderID int64) (int, error)
}
