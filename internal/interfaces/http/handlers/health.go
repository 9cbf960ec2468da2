package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bivex/renewal-retry/internal/interfaces/http/response"
)

// HealthHandler reports service liveness and database reachability.
type HealthHandler struct {
	pool *pgxpool.Pool
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(pool *pgxpool.Pool) *HealthHandler {
	return &HealthHandler{pool: pool}
}

// Health handles GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	if err := h.pool.Ping(c.Request.Context()); err != nil {
		response.Error(c, 503, "SERVICE_UNAVAILABLE", "database unreachable")
		return
	}
	response.OK(c, gin.H{"status": "ok"})
}
