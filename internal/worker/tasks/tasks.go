package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// Task type names routed through the asynq mux.
const (
	TypeProcessRetry      = "retry:process"
	TypeSweepDueRetries   = "retry:sweep_due"
	TypeMigrateRetryBatch = "retry:migrate_batch"
)

// ProcessRetryPayload identifies the renewal order whose pending retry
// should fire.
type ProcessRetryPayload struct {
	OrderID int64 `json:"order_id"`
}

// NewProcessRetryTask builds the deferred "fire the retry" task.
func NewProcessRetryTask(orderID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(ProcessRetryPayload{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeProcessRetry, payload), nil
}

// NewMigrateRetryBatchTask builds one background migration batch run.
func NewMigrateRetryBatchTask() *asynq.Task {
	return asynq.NewTask(TypeMigrateRetryBatch, nil)
}

// RegisterHandlers binds every task handler onto the mux.
func RegisterHandlers(mux *asynq.ServeMux, retry *RetryJobHandler, migration *MigrationJobHandler) {
	mux.HandleFunc(TypeProcessRetry, retry.HandleProcessRetry)
	mux.HandleFunc(TypeSweepDueRetries, retry.HandleSweepDueRetries)
	mux.HandleFunc(TypeMigrateRetryBatch, migration.HandleMigrateBatch)
}

// RegisterScheduledTasks registers the recurring jobs: the due-retry sweep
// that backstops the best-effort scheduler, and the hourly migration batch
// kick (a no-op once the flag is cleared).
func RegisterScheduledTasks(scheduler *asynq.Scheduler) error {
	if _, err := scheduler.Register("*/10 * * * *", asynq.NewTask(TypeSweepDueRetries, nil)); err != nil {
		return err
	}
	if _, err := scheduler.Register("0 * * * *", NewMigrateRetryBatchTask()); err != nil {
		return err
	}
	return nil
}
