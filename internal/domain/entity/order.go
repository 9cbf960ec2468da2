package entity

import (
	"time"

	"github.com/bivex/renewal-retry/internal/domain/valueobject"
)

// Order is a renewal order owned by the billing platform. The retry core
// reads it and forces status changes through OrderRepository; it never
// creates or deletes orders.
type Order struct {
	ID            int64
	Status        valueobject.OrderStatus
	PaymentMethod string
	Total         int64 // minor currency units
	Currency      string
	CreatedAt     time.Time
}

// NeedsPayment returns true while the order still awaits a successful charge.
func (o *Order) NeedsPayment() bool {
	return o.Status.NeedsPayment()
}

// HasStatus returns true if the order currently carries the given status.
func (o *Order) HasStatus(status valueobject.OrderStatus) bool {
	return o.Status == status
}
