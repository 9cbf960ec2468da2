// Package migration moves retry records from the legacy entry/meta store to
// the custom table store, lazily per record or in background batches, while
// the hybrid store keeps callers on a single consistent view.
package migration

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	domainerrors "github.com/bivex/renewal-retry/internal/domain/errors"
	"github.com/bivex/renewal-retry/internal/domain/repository"
)

// Migrator moves individual retry records from the source (legacy) store to
// the destination (custom table) store. Migration preserves the record id,
// order reference, status, scheduled date and rule snapshot.
type Migrator struct {
	source      repository.RetryStore
	destination repository.RetryStore
	flags       repository.MigrationFlagStore
	logger      *zap.Logger
}

// NewMigrator creates a per-record migrator.
func NewMigrator(
	source repository.RetryStore,
	destination repository.RetryStore,
	flags repository.MigrationFlagStore,
	logger *zap.Logger,
) *Migrator {
	return &Migrator{
		source:      source,
		destination: destination,
		flags:       flags,
		logger:      logger,
	}
}

// ShouldMigrate returns true iff the global flag is set and the destination
// store has no record with this id yet.
func (m *Migrator) ShouldMigrate(ctx context.Context, id int64) (bool, error) {
	needed, err := m.flags.NeedsMigration(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read migration flag: %w", err)
	}
	if !needed {
		return false, nil
	}
	_, err = m.destination.Get(ctx, id)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, domainerrors.ErrRetryNotFound) {
		return true, nil
	}
	return false, err
}

// Migrate copies the record to the destination store and returns the
// destination id (always equal to the source id). Idempotent and safe under
// at-least-once delivery: a record already present in the destination is
// treated as success, and the destination save is an upsert, so two
// concurrent migrations of the same id converge on identical data.
func (m *Migrator) Migrate(ctx context.Context, id int64) (int64, error) {
	if _, err := m.destination.Get(ctx, id); err == nil {
		return id, nil
	} else if !errors.Is(err, domainerrors.ErrRetryNotFound) {
		return 0, &domainerrors.MigrationError{RetryID: id, Err: err}
	}

	retry, err := m.source.Get(ctx, id)
	if err != nil {
		return 0, &domainerrors.MigrationError{RetryID: id, Err: err}
	}

	newID, err := m.destination.Save(ctx, retry)
	if err != nil {
		return 0, &domainerrors.MigrationError{RetryID: id, Err: err}
	}

	m.logger.Info("migrated retry record",
		zap.Int64("retry_id", id),
		zap.Int64("order_id", retry.OrderID),
		zap.String("status", retry.Status.String()))
	return newID, nil
}

// DeleteSourceEntry removes the migrated record from the legacy store. Only
// called once the batch driver has confirmed the migration succeeded.
func (m *Migrator) DeleteSourceEntry(ctx context.Context, id int64) (bool, error) {
	return m.source.Delete(ctx, id)
}
