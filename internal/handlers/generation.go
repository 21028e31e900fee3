package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/documcp/api/internal/cache"
	"github.com/documcp/api/internal/database"
	"github.com/documcp/api/internal/documents"
	"github.com/documcp/api/internal/eventbus"
	"github.com/documcp/api/internal/middleware"
	"github.com/documcp/api/internal/orchestrator"
)

// resultCache is the slice of the Redis cache the handler uses.
type resultCache interface {
	Get(ctx context.Context, req *documents.GenerationRequest) (*documents.GenerationResult, error)
	Put(ctx context.Context, req *documents.GenerationRequest, result *documents.GenerationResult) error
}

// generationStore is the slice of the audit log store the handler uses.
type generationStore interface {
	RecordResult(ctx context.Context, req *documents.GenerationRequest, result *documents.GenerationResult) error
	Recent(ctx context.Context, limit int) ([]database.GenerationLog, error)
}

// eventPublisher announces finished generations to downstream consumers.
type eventPublisher interface {
	PublishGenerated(result *documents.GenerationResult)
}

// GenerationHandler exposes the document generation endpoints.
type GenerationHandler struct {
	orch   *orchestrator.Orchestrator
	cache  resultCache     // nil when Redis is not configured
	store  generationStore // nil when Postgres is not configured
	bus    eventPublisher  // nil when NATS is not configured
	logger *zap.Logger
}

// NewGenerationHandler creates a generation handler. resultCache, store, and
// bus may each be nil; the handler degrades to orchestration only.
func NewGenerationHandler(orch *orchestrator.Orchestrator, resultCache *cache.ResultCache, store *database.GenerationStore, bus *eventbus.Bus, logger *zap.Logger) *GenerationHandler {
	h := &GenerationHandler{orch: orch, logger: logger}
	if resultCache != nil {
		h.cache = resultCache
	}
	if store != nil {
		h.store = store
	}
	if bus != nil {
		h.bus = bus
	}
	return h
}

// GenerateRequest is the request body for POST /generate.
type GenerateRequest struct {
	InputText     string   `json:"input_text" binding:"required"`
	ProjectName   string   `json:"project_name"`
	DocumentTypes []string `json:"document_types"`
}

// OutcomeResponse is the wire form of one per-type outcome.
type OutcomeResponse struct {
	DocumentType string `json:"document_type"`
	Status       string `json:"status"`
	Content      string `json:"content,omitempty"`
	Reason       string `json:"reason,omitempty"`
	ElapsedMs    int64  `json:"elapsed_ms"`
}

// GenerateResponse is the wire form of a generation result.
type GenerateResponse struct {
	RequestID string            `json:"request_id"`
	Status    string            `json:"status"`
	ModelID   string            `json:"model_id,omitempty"`
	ElapsedMs int64             `json:"elapsed_ms"`
	Cached    bool              `json:"cached,omitempty"`
	Outcomes  []OutcomeResponse `json:"outcomes"`
}

func toResponse(result *documents.GenerationResult, cached bool) GenerateResponse {
	outcomes := make([]OutcomeResponse, len(result.Outcomes))
	for i, out := range result.Outcomes {
		outcomes[i] = OutcomeResponse{
			DocumentType: string(out.Type),
			Status:       string(out.Status),
			Content:      out.Content,
			Reason:       string(out.Reason),
			ElapsedMs:    out.Elapsed.Milliseconds(),
		}
	}
	return GenerateResponse{
		RequestID: result.RequestID.String(),
		Status:    string(result.Status),
		ModelID:   result.ModelID,
		ElapsedMs: result.Elapsed.Milliseconds(),
		Cached:    cached,
		Outcomes:  outcomes,
	}
}

// Generate handles POST /api/v1/generate.
func (h *GenerationHandler) Generate(c *gin.Context) {
	var body GenerateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		middleware.BadRequest(c, err.Error())
		return
	}

	// An omitted type list means "everything we know how to write".
	types := make([]documents.DocumentType, 0, len(body.DocumentTypes))
	for _, t := range body.DocumentTypes {
		types = append(types, documents.DocumentType(t))
	}
	if len(body.DocumentTypes) == 0 {
		types = documents.AllTypes()
	}

	req, err := documents.NewRequest(body.InputText, body.ProjectName, types)
	if err != nil {
		var verr *documents.ValidationError
		if errors.As(err, &verr) {
			middleware.ValidationFailed(c, verr.Error())
			return
		}
		middleware.BadRequest(c, err.Error())
		return
	}

	if h.cache != nil {
		if hit, err := h.cache.Get(c.Request.Context(), req); err != nil {
			h.logger.Warn("cache lookup failed", zap.Error(err))
		} else if hit != nil {
			h.logger.Info("serving cached result", zap.String("request_id", hit.RequestID.String()))
			c.JSON(http.StatusOK, toResponse(hit, true))
			return
		}
	}

	result, err := h.orch.Orchestrate(c.Request.Context(), req)
	if err != nil {
		var verr *documents.ValidationError
		if errors.As(err, &verr) {
			middleware.ValidationFailed(c, verr.Error())
			return
		}
		h.logger.Error("orchestration failed", zap.Error(err))
		middleware.InternalError(c, "generation failed")
		return
	}

	go h.finalize(req, result)
	c.JSON(http.StatusOK, toResponse(result, false))
}

// finalize runs the best-effort side effects of a finished result: cache
// write, audit log, event publication. It runs off the request goroutine so
// none of them delay the response.
func (h *GenerationHandler) finalize(req *documents.GenerationRequest, result *documents.GenerationResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if h.cache != nil {
		if err := h.cache.Put(ctx, req, result); err != nil {
			h.logger.Warn("cache write failed", zap.Error(err))
		}
	}
	if h.store != nil {
		if err := h.store.RecordResult(ctx, req, result); err != nil {
			h.logger.Warn("failed to persist generation log", zap.Error(err))
		}
	}
	if h.bus != nil {
		h.bus.PublishGenerated(result)
	}
}

// ListTypes handles GET /api/v1/types.
func (h *GenerationHandler) ListTypes(c *gin.Context) {
	types := documents.AllTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	c.JSON(http.StatusOK, gin.H{"document_types": names})
}

// RecentGenerations handles GET /api/v1/generations.
func (h *GenerationHandler) RecentGenerations(c *gin.Context) {
	if h.store == nil {
		middleware.RespondError(c, http.StatusServiceUnavailable, middleware.ErrCodePersistenceError, "generation log is not configured")
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := parsePositiveInt(raw); err == nil {
			limit = n
		}
	}

	logs, err := h.store.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("failed to read generation log", zap.Error(err))
		middleware.InternalError(c, "failed to read generation log")
		return
	}
	c.JSON(http.StatusOK, gin.H{"generations": logs, "count": len(logs)})
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive: %d", n)
	}
	return n, nil
}
