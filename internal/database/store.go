package database

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/documcp/api/internal/documents"
)

// GenerationLog is one persisted per-document outcome row.
type GenerationLog struct {
	ID           uuid.UUID `json:"id"`
	RequestID    uuid.UUID `json:"request_id"`
	DocumentType string    `json:"document_type"`
	Status       string    `json:"status"`
	Reason       string    `json:"reason,omitempty"`
	ModelID      string    `json:"model_id,omitempty"`
	InputLen     int       `json:"input_len"`
	OutputLen    int       `json:"output_len"`
	LatencyMs    int64     `json:"latency_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// GenerationStore persists per-document generation outcomes for audit and
// the recent-generations listing. Content itself is not stored.
type GenerationStore struct {
	db *Postgres
}

// NewGenerationStore creates a store over the given pool.
func NewGenerationStore(db *Postgres) *GenerationStore {
	return &GenerationStore{db: db}
}

// RecordResult inserts one row per outcome of the result.
func (s *GenerationStore) RecordResult(ctx context.Context, req *documents.GenerationRequest, result *documents.GenerationResult) error {
	query := `
		INSERT INTO generation_logs (id, request_id, document_type, status, reason, model_id, input_len, output_len, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`
	for _, out := range result.Outcomes {
		_, err := s.db.Pool().Exec(ctx, query,
			uuid.New(), result.RequestID, string(out.Type), string(out.Status), string(out.Reason),
			result.ModelID, len(req.InputText), len(out.Content), out.Elapsed.Milliseconds(),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// Recent returns the latest generation log rows, newest first.
func (s *GenerationStore) Recent(ctx context.Context, limit int) ([]GenerationLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT id, request_id, document_type, status, reason, model_id, input_len, output_len, latency_ms, created_at
		FROM generation_logs
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []GenerationLog
	for rows.Next() {
		var l GenerationLog
		if err := rows.Scan(&l.ID, &l.RequestID, &l.DocumentType, &l.Status, &l.Reason,
			&l.ModelID, &l.InputLen, &l.OutputLen, &l.LatencyMs, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
