package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bivex/renewal-retry/internal/domain/entity"
	domainerrors "github.com/bivex/renewal-retry/internal/domain/errors"
	"github.com/bivex/renewal-retry/internal/domain/repository"
	"github.com/bivex/renewal-retry/internal/domain/valueobject"
	"github.com/bivex/renewal-retry/internal/interfaces/http/response"
	"github.com/bivex/renewal-retry/internal/migration"
)

// RetryHandler serves the read-only ops API over retry records and
// migration progress.
type RetryHandler struct {
	store      repository.RetryStore
	flags      repository.MigrationFlagStore
	background *migration.BackgroundMigrator
}

// NewRetryHandler creates a new retry ops handler.
func NewRetryHandler(store repository.RetryStore, flags repository.MigrationFlagStore, background *migration.BackgroundMigrator) *RetryHandler {
	return &RetryHandler{store: store, flags: flags, background: background}
}

type retryView struct {
	ID          int64             `json:"id"`
	OrderID     int64             `json:"order_id"`
	Status      string            `json:"status"`
	ScheduledAt time.Time         `json:"scheduled_at"`
	Rule        map[string]string `json:"rule"`
}

func viewOf(retry *entity.Retry) retryView {
	return retryView{
		ID:          retry.ID,
		OrderID:     retry.OrderID,
		Status:      retry.Status.String(),
		ScheduledAt: retry.Date,
		Rule:        retry.Rule.Raw(),
	}
}

// List handles GET /admin/retries with optional order_id, status and limit
// filters.
func (h *RetryHandler) List(c *gin.Context) {
	q := repository.RetryQuery{Limit: 50}

	if raw := c.Query("order_id"); raw != "" {
		orderID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.BadRequest(c, "order_id must be an integer")
			return
		}
		q.OrderID = &orderID
	}
	if raw := c.Query("status"); raw != "" {
		status, err := valueobject.NewRetryStatus(raw)
		if err != nil {
			response.BadRequest(c, "unknown retry status")
			return
		}
		q.Status = &status
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 500 {
			response.BadRequest(c, "limit must be between 1 and 500")
			return
		}
		q.Limit = limit
	}

	retries, err := h.store.Query(c.Request.Context(), q)
	if err != nil {
		response.InternalError(c, "failed to query retries")
		return
	}

	views := make([]retryView, 0, len(retries))
	for _, retry := range retries {
		views = append(views, viewOf(retry))
	}
	response.OK(c, views)
}

// Get handles GET /admin/retries/:id.
func (h *RetryHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "id must be an integer")
		return
	}

	retry, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domainerrors.ErrRetryNotFound) {
			response.NotFound(c, "retry not found")
			return
		}
		response.InternalError(c, "failed to load retry")
		return
	}
	response.OK(c, viewOf(retry))
}

// MigrationStatus handles GET /admin/migration.
func (h *RetryHandler) MigrationStatus(c *gin.Context) {
	ctx := c.Request.Context()
	needed, err := h.flags.NeedsMigration(ctx)
	if err != nil {
		response.InternalError(c, "failed to read migration state")
		return
	}

	pending := 0
	if needed {
		pending, err = h.background.PendingCount(ctx)
		if err != nil {
			response.InternalError(c, "failed to count pending legacy records")
			return
		}
	}

	response.OK(c, gin.H{
		"needs_migration": needed,
		"pending_records": pending,
	})
}
