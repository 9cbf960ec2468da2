package valueobject

import (
	"errors"
)

var ErrInvalidOrderStatus = errors.New("invalid order status")

// OrderStatus is the lifecycle state of a renewal order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusOnHold     OrderStatus = "on-hold"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"

	// OrderStatusNone means "leave the order status unchanged" when used in a rule.
	OrderStatusNone OrderStatus = ""
)

// NewOrderStatus creates an OrderStatus value object from its string form.
func NewOrderStatus(status string) (OrderStatus, error) {
	s := OrderStatus(status)
	switch s {
	case OrderStatusPending, OrderStatusOnHold, OrderStatusProcessing, OrderStatusCompleted,
		OrderStatusFailed, OrderStatusCancelled, OrderStatusRefunded, OrderStatusNone:
		return s, nil
	default:
		return "", ErrInvalidOrderStatus
	}
}

// String returns the string representation of the status.
func (s OrderStatus) String() string {
	return string(s)
}

// IsNone returns true for the "leave unchanged" sentinel.
func (s OrderStatus) IsNone() bool {
	return s == OrderStatusNone
}

// NeedsPayment returns true if an order in this status still awaits payment.
func (s OrderStatus) NeedsPayment() bool {
	return s == OrderStatusPending || s == OrderStatusFailed
}
