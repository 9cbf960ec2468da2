package repository

import (
	"context"

	"github.com/bivex/renewal-retry/internal/domain/entity"
	"github.com/bivex/renewal-retry/internal/domain/valueobject"
)

// OrderRepository defines the retry core's view of renewal orders. The
// billing platform owns the data; this interface covers only what the retry
// state machine consumes.
type OrderRepository interface {
	// Get retrieves a renewal order by id.
	Get(ctx context.Context, id int64) (*entity.Order, error)

	// UpdateStatus forces the order into the given status and records a note.
	UpdateStatus(ctx context.Context, id int64, status valueobject.OrderStatus, note string) error

	// AddNote attaches an informational note to the order.
	AddNote(ctx context.Context, id int64, note string) error

	// ClearPaymentMethod removes the stored payment method from the order,
	// recording why.
	ClearPaymentMethod(ctx context.Context, id int64, note string) error
}
