package scheduler

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bivex/renewal-retry/internal/worker/tasks"
)

// AsynqRetryScheduler implements the manager's RetryScheduler over asynq.
// Jobs are durable but best-effort; the handler re-checks retry state on
// firing, so no explicit cancellation is offered.
type AsynqRetryScheduler struct {
	client *asynq.Client
}

// NewAsynqRetryScheduler creates a scheduler over an asynq client.
func NewAsynqRetryScheduler(client *asynq.Client) *AsynqRetryScheduler {
	return &AsynqRetryScheduler{client: client}
}

// ScheduleRetry enqueues a process-retry task to fire at the given time.
// Times at or before now enqueue for immediate processing.
func (s *AsynqRetryScheduler) ScheduleRetry(ctx context.Context, orderID int64, at time.Time) error {
	task, err := tasks.NewProcessRetryTask(orderID)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.Queue("critical")}
	if at.After(time.Now()) {
		opts = append(opts, asynq.ProcessAt(at))
	}
	_, err = s.client.EnqueueContext(ctx, task, opts...)
	return err
}
