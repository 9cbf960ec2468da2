package tasks

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/bivex/renewal-retry/internal/migration"
)

// MigrationJobHandler drives the background legacy-store drain.
type MigrationJobHandler struct {
	background *migration.BackgroundMigrator
	client     *asynq.Client
	logger     *zap.Logger
}

// NewMigrationJobHandler creates a new migration job handler.
func NewMigrationJobHandler(background *migration.BackgroundMigrator, client *asynq.Client, logger *zap.Logger) *MigrationJobHandler {
	return &MigrationJobHandler{
		background: background,
		client:     client,
		logger:     logger,
	}
}

// HandleMigrateBatch runs one migration batch and reschedules itself while
// legacy records remain. Once the store drains, the batch run clears the
// migration flag and no follow-up is enqueued.
func (h *MigrationJobHandler) HandleMigrateBatch(ctx context.Context, t *asynq.Task) error {
	remaining, err := h.background.RunBatch(ctx)
	if err != nil {
		return err
	}
	if !remaining {
		return nil
	}
	if _, err := h.client.Enqueue(NewMigrateRetryBatchTask(),
		asynq.ProcessIn(time.Minute), asynq.Queue("low")); err != nil {
		h.logger.Error("failed to reschedule migration batch", zap.Error(err))
		return err
	}
	return nil
}
