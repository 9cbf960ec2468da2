package migration

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bivex/renewal-retry/internal/domain/repository"
)

// DefaultBatchSize is how many legacy records one batch run drains.
const DefaultBatchSize = 10

// BackgroundMigrator drains the legacy store into the destination store in
// small batches, one batch per worker invocation, until nothing remains.
type BackgroundMigrator struct {
	migrator  *Migrator
	source    repository.RetryStore
	flags     repository.MigrationFlagStore
	batchSize int
	logger    *zap.Logger
}

// NewBackgroundMigrator creates the batch driver. batchSize <= 0 falls back
// to DefaultBatchSize.
func NewBackgroundMigrator(
	migrator *Migrator,
	source repository.RetryStore,
	flags repository.MigrationFlagStore,
	batchSize int,
	logger *zap.Logger,
) *BackgroundMigrator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &BackgroundMigrator{
		migrator:  migrator,
		source:    source,
		flags:     flags,
		batchSize: batchSize,
		logger:    logger,
	}
}

// RunBatch migrates up to batchSize legacy records. Per-record failures are
// logged and skipped, never fatal to the batch. It returns true while legacy
// records may remain, so the caller knows to schedule another run; once the
// legacy store is empty it clears the "needs migration" flag and returns
// false.
func (b *BackgroundMigrator) RunBatch(ctx context.Context) (bool, error) {
	batch, err := b.source.Query(ctx, repository.RetryQuery{
		OrderBy:   repository.RetryOrderByID,
		Ascending: true,
		Limit:     b.batchSize,
	})
	if err != nil {
		return true, fmt.Errorf("failed to fetch legacy retry batch: %w", err)
	}

	if len(batch) == 0 {
		if err := b.flags.SetNeedsMigration(ctx, false); err != nil {
			return true, fmt.Errorf("failed to clear migration flag: %w", err)
		}
		b.logger.Info("legacy retry store drained, migration complete")
		return false, nil
	}

	migrated := 0
	for _, retry := range batch {
		if _, err := b.migrator.Migrate(ctx, retry.ID); err != nil {
			b.logger.Error("skipping retry record after migration failure",
				zap.Int64("retry_id", retry.ID),
				zap.Error(err))
			continue
		}
		if _, err := b.migrator.DeleteSourceEntry(ctx, retry.ID); err != nil {
			b.logger.Error("failed to delete migrated legacy record",
				zap.Int64("retry_id", retry.ID),
				zap.Error(err))
			continue
		}
		migrated++
	}

	b.logger.Info("retry migration batch finished",
		zap.Int("fetched", len(batch)),
		zap.Int("migrated", migrated))
	return true, nil
}

// PendingCount reports how many legacy records still await migration.
func (b *BackgroundMigrator) PendingCount(ctx context.Context) (int, error) {
	// The legacy store has no dedicated count-all; an unfiltered query is
	// acceptable at migration-window sizes.
	records, err := b.source.Query(ctx, repository.RetryQuery{})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}
