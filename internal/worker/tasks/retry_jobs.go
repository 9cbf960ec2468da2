package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/bivex/renewal-retry/internal/domain/repository"
	"github.com/bivex/renewal-retry/internal/domain/service"
	"github.com/bivex/renewal-retry/internal/domain/valueobject"
)

// RetryJobHandler handles retry-related background jobs.
type RetryJobHandler struct {
	manager *service.RetryManager
	store   repository.RetryStore
	client  *asynq.Client
	logger  *zap.Logger
}

// NewRetryJobHandler creates a new retry job handler.
func NewRetryJobHandler(manager *service.RetryManager, store repository.RetryStore, client *asynq.Client, logger *zap.Logger) *RetryJobHandler {
	return &RetryJobHandler{
		manager: manager,
		store:   store,
		client:  client,
		logger:  logger,
	}
}

// HandleProcessRetry fires one scheduled retry. The manager re-checks that
// the retry is still pending, so replays and stale jobs are no-ops.
func (h *RetryJobHandler) HandleProcessRetry(ctx context.Context, t *asynq.Task) error {
	var p ProcessRetryPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	return h.manager.HandleRetry(ctx, p.OrderID)
}

// HandleSweepDueRetries enqueues a process task for every pending retry
// whose scheduled date has passed. Backstop for jobs the best-effort
// scheduler lost.
func (h *RetryJobHandler) HandleSweepDueRetries(ctx context.Context, t *asynq.Task) error {
	now := time.Now().UTC()
	pending := valueobject.RetryStatusPending
	due, err := h.store.Query(ctx, repository.RetryQuery{
		Status:     &pending,
		DateBefore: &now,
	})
	if err != nil {
		return err
	}

	for _, retry := range due {
		task, err := NewProcessRetryTask(retry.OrderID)
		if err != nil {
			return err
		}
		if _, err := h.client.Enqueue(task, asynq.Queue("critical")); err != nil {
			h.logger.Error("failed to enqueue due retry",
				zap.Int64("retry_id", retry.ID),
				zap.Int64("order_id", retry.OrderID),
				zap.Error(err))
		}
	}

	if len(due) > 0 {
		h.logger.Info("enqueued due retries", zap.Int("count", len(due)))
	}
	return nil
}
