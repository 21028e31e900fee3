package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/documcp/api/internal/database"
	"github.com/documcp/api/internal/llm"
)

// Prober re-tests the model endpoint; satisfied by the llm client.
type Prober interface {
	Probe(ctx context.Context) (string, error)
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	tracker *llm.Tracker
	prober  Prober
	db      *database.Postgres // nil when not configured
	redis   *database.Redis    // nil when not configured
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(tracker *llm.Tracker, prober Prober, db *database.Postgres, redis *database.Redis) *HealthHandler {
	return &HealthHandler{tracker: tracker, prober: prober, db: db, redis: redis}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status       string            `json:"status"`
	Service      string            `json:"service"`
	Version      string            `json:"version"`
	ModelState   string            `json:"model_state"`
	ModelID      string            `json:"model_id,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Health returns liveness plus the model connection snapshot. It never
// touches the network; the snapshot is the tracker's last known word.
func (h *HealthHandler) Health(c *gin.Context) {
	snap := h.tracker.Snapshot()

	status := "healthy"
	if snap.State == llm.StateUnreachable {
		status = "degraded"
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:     status,
		Service:    "documcp-api",
		Version:    "0.1.0",
		ModelState: snap.State.String(),
		ModelID:    snap.ModelID,
	})
}

// DeepHealth actively checks every dependency, including a live probe of the
// model endpoint.
func (h *HealthHandler) DeepHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	deps := make(map[string]string)
	allHealthy := true

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			deps["database"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			deps["database"] = "healthy"
		}
	} else {
		deps["database"] = "not configured"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			deps["redis"] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			deps["redis"] = "healthy"
		}
	} else {
		deps["redis"] = "not configured"
	}

	if _, err := h.prober.Probe(ctx); err != nil {
		deps["model_endpoint"] = "unhealthy: " + err.Error()
		allHealthy = false
	} else {
		deps["model_endpoint"] = "healthy"
	}

	snap := h.tracker.Snapshot()
	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:       status,
		Service:      "documcp-api",
		Version:      "0.1.0",
		ModelState:   snap.State.String(),
		ModelID:      snap.ModelID,
		Dependencies: deps,
	})
}
