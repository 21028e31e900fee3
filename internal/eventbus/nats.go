package eventbus

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/documcp/api/internal/documents"
)

// SubjectGenerated is the subject generation events are published on.
const SubjectGenerated = "documents.generated"

// GeneratedEvent announces a finished orchestration to downstream consumers
// (indexers, notifiers). Content is not carried; consumers fetch it.
type GeneratedEvent struct {
	RequestID string    `json:"request_id"`
	Status    string    `json:"status"`
	Types     []string  `json:"document_types"`
	ModelID   string    `json:"model_id,omitempty"`
	ElapsedMs int64     `json:"elapsed_ms"`
	At        time.Time `json:"at"`
}

// Bus publishes generation events over NATS. A nil Bus is a no-op, so the
// service runs fine without a broker.
type Bus struct {
	nc     *nats.Conn
	logger *zap.Logger
}

// Connect dials NATS. Callers treat failure as a degraded mode, not fatal.
func Connect(natsURL string, logger *zap.Logger) (*Bus, error) {
	nc, err := nats.Connect(natsURL,
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
	)
	if err != nil {
		return nil, err
	}
	return &Bus{nc: nc, logger: logger}, nil
}

// PublishGenerated emits one event for a finished result. Publish failures
// are logged, never propagated; events are best-effort.
func (b *Bus) PublishGenerated(result *documents.GenerationResult) {
	if b == nil || b.nc == nil {
		return
	}

	types := make([]string, len(result.Outcomes))
	for i, out := range result.Outcomes {
		types[i] = string(out.Type)
	}

	payload, err := json.Marshal(GeneratedEvent{
		RequestID: result.RequestID.String(),
		Status:    string(result.Status),
		Types:     types,
		ModelID:   result.ModelID,
		ElapsedMs: result.Elapsed.Milliseconds(),
		At:        time.Now(),
	})
	if err != nil {
		b.logger.Error("failed to encode generation event", zap.Error(err))
		return
	}

	if err := b.nc.Publish(SubjectGenerated, payload); err != nil {
		b.logger.Warn("failed to publish generation event", zap.Error(err))
	}
}

// Close drains the connection.
func (b *Bus) Close() {
	if b != nil && b.nc != nil {
		b.nc.Close()
	}
}
