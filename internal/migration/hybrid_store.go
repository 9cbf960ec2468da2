package migration

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/bivex/renewal-retry/internal/domain/entity"
	"github.com/bivex/renewal-retry/internal/domain/repository"
)

// HybridStore is a RetryStore facade used during the migration window. Every
// operation first upgrades any affected legacy records to the destination
// store, so callers always observe post-migration state and never stale or
// duplicate data. Once the persisted flag clears, the facade latches into
// pure delegation.
type HybridStore struct {
	migrator    *Migrator
	source      repository.RetryStore
	destination repository.RetryStore
	flags       repository.MigrationFlagStore
	logger      *zap.Logger

	// done latches true once the flag reads false; the flag never returns
	// to true at runtime, so the latch is safe and saves a read per call.
	done atomic.Bool
}

// NewHybridStore creates the migrating store facade.
func NewHybridStore(
	migrator *Migrator,
	source repository.RetryStore,
	destination repository.RetryStore,
	flags repository.MigrationFlagStore,
	logger *zap.Logger,
) *HybridStore {
	return &HybridStore{
		migrator:    migrator,
		source:      source,
		destination: destination,
		flags:       flags,
		logger:      logger,
	}
}

// migrating reports whether the migration window is still open.
func (s *HybridStore) migrating(ctx context.Context) bool {
	if s.done.Load() {
		return false
	}
	needed, err := s.flags.NeedsMigration(ctx)
	if err != nil {
		s.logger.Error("failed to read migration flag, assuming migration window open", zap.Error(err))
		return true
	}
	if !needed {
		s.done.Store(true)
		return false
	}
	return true
}

// upgrade lazily migrates one record, logging rather than propagating
// migration failures so reads degrade instead of erroring.
func (s *HybridStore) upgrade(ctx context.Context, id int64) {
	should, err := s.migrator.ShouldMigrate(ctx, id)
	if err != nil {
		s.logger.Error("failed to check migration state", zap.Int64("retry_id", id), zap.Error(err))
		return
	}
	if !should {
		return
	}
	if _, err := s.migrator.Migrate(ctx, id); err != nil {
		s.logger.Error("lazy migration failed", zap.Int64("retry_id", id), zap.Error(err))
	}
}

// upgradeOrder migrates every legacy record belonging to the order.
func (s *HybridStore) upgradeOrder(ctx context.Context, orderID int64) {
	ids, err := s.source.IDsForOrder(ctx, orderID)
	if err != nil {
		s.logger.Error("failed to list legacy retries for order",
			zap.Int64("order_id", orderID), zap.Error(err))
		return
	}
	for _, id := range ids {
		s.upgrade(ctx, id)
	}
}

// Save persists the record in the destination store, upgrading an existing
// legacy record first so the update is not applied to a row about to be
// superseded.
func (s *HybridStore) Save(ctx context.Context, retry *entity.Retry) (int64, error) {
	if retry.ID != 0 && s.migrating(ctx) {
		s.upgrade(ctx, retry.ID)
	}
	return s.destination.Save(ctx, retry)
}

// Get retrieves a record, migrating it on first access.
func (s *HybridStore) Get(ctx context.Context, id int64) (*entity.Retry, error) {
	if s.migrating(ctx) {
		s.upgrade(ctx, id)
	}
	return s.destination.Get(ctx, id)
}

// Delete removes the record from both stores during the window.
func (s *HybridStore) Delete(ctx context.Context, id int64) (bool, error) {
	if s.migrating(ctx) {
		if _, err := s.source.Delete(ctx, id); err != nil {
			return false, err
		}
	}
	return s.destination.Delete(ctx, id)
}

// Query migrates every legacy record the filter matches, then queries the
// destination store.
func (s *HybridStore) Query(ctx context.Context, q repository.RetryQuery) ([]*entity.Retry, error) {
	if s.migrating(ctx) {
		legacy, err := s.source.Query(ctx, q)
		if err != nil {
			s.logger.Error("failed to query legacy retries", zap.Error(err))
		} else {
			for _, retry := range legacy {
				s.upgrade(ctx, retry.ID)
			}
		}
	}
	return s.destination.Query(ctx, q)
}

// IDsForOrder migrates the order's legacy records, then delegates.
func (s *HybridStore) IDsForOrder(ctx context.Context, orderID int64) ([]int64, error) {
	if s.migrating(ctx) {
		s.upgradeOrder(ctx, orderID)
	}
	return s.destination.IDsForOrder(ctx, orderID)
}

// LastForOrder migrates the order's legacy records, then delegates.
func (s *HybridStore) LastForOrder(ctx context.Context, orderID int64) (*entity.Retry, error) {
	if s.migrating(ctx) {
		s.upgradeOrder(ctx, orderID)
	}
	return s.destination.LastForOrder(ctx, orderID)
}

// CountForOrder migrates the order's legacy records, then delegates.
func (s *HybridStore) CountForOrder(ctx context.Context, orderID int64) (int, error) {
	if s.migrating(ctx) {
		s.upgradeOrder(ctx, orderID)
	}
	return s.destination.CountForOrder(ctx, orderID)
}
