package errors

import (
	"errors"
	"fmt"
)

var (
	// Retry errors
	ErrRetryNotFound = errors.New("retry not found")

	// Order/subscription errors
	ErrOrderNotFound        = errors.New("order not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrMultiplePaymentMethods is raised when the subscriptions tied to a
	// renewal order disagree on the stored payment method, so no single
	// method can safely be charged. Fatal to the current retry attempt;
	// the record stays in processing until resolved manually.
	ErrMultiplePaymentMethods = errors.New("renewal order has multiple distinct payment methods")
)

// NotFoundError wraps an error with not found context
type NotFoundError struct {
	Entity string
	ID     string
	Err    error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with id '%s' not found: %v", e.Entity, e.ID, e.Err)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// MigrationError carries the identifier of the record that failed to move
// between retry stores. Always caught and logged by the batch driver, never
// fatal to the batch.
type MigrationError struct {
	RetryID int64
	Err     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("failed to migrate retry %d: %v", e.RetryID, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}
