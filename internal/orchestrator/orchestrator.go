package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/documcp/api/internal/documents"
	"github.com/documcp/api/internal/llm"
	"github.com/documcp/api/internal/telemetry"
	"github.com/documcp/api/internal/templates"
)

var tracer = otel.Tracer("github.com/documcp/api/internal/orchestrator")

// ModelInvoker is the slice of the model client the orchestrator needs.
// The indirection lets tests swap in function-backed fakes.
type ModelInvoker interface {
	Invoke(ctx context.Context, prompt string, opts llm.InvokeOptions) (string, error)
	Probe(ctx context.Context) (string, error)
	ModelID() string
}

// Admitter is the health tracker view the orchestrator consults before
// dispatching any network work.
type Admitter interface {
	Admit() llm.Admission
}

// Config carries the orchestration latency budgets.
type Config struct {
	// GlobalTimeout bounds one whole orchestration call.
	GlobalTimeout time.Duration
	// PerTypeTimeout is the ceiling for a single document's model call, so
	// one slow type cannot starve its siblings.
	PerTypeTimeout time.Duration
}

// DefaultConfig targets the service's p95 latency goal for a three-document
// request against a local model server.
func DefaultConfig() Config {
	return Config{
		GlobalTimeout:  120 * time.Second,
		PerTypeTimeout: 90 * time.Second,
	}
}

// Orchestrator fans one generation request out into independent per-type
// model invocations and merges their outcomes. Per-type failures never
// escape it; the only error it returns is request validation.
type Orchestrator struct {
	client   ModelInvoker
	provider templates.Provider
	health   Admitter
	metrics  *telemetry.Metrics
	logger   *zap.Logger
	cfg      Config
}

// New creates an orchestrator. metrics may be nil.
func New(client ModelInvoker, provider templates.Provider, health Admitter, metrics *telemetry.Metrics, logger *zap.Logger, cfg Config) *Orchestrator {
	return &Orchestrator{
		client:   client,
		provider: provider,
		health:   health,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

type indexedOutcome struct {
	idx     int
	outcome documents.DocumentOutcome
}

// Orchestrate runs one validated request to completion. It always returns a
// result with exactly one outcome per requested type, in request order;
// "everything failed" is a normal result with AllFailed status, not an error.
func (o *Orchestrator) Orchestrate(ctx context.Context, req *documents.GenerationRequest) (*documents.GenerationResult, error) {
	if req == nil || len(req.Types) == 0 {
		return nil, &documents.ValidationError{Field: "document_types", Message: "must request at least one type"}
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, o.cfg.GlobalTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "orchestrate", trace.WithAttributes(
		attribute.String("request.id", req.ID.String()),
		attribute.Int("request.types", len(req.Types)),
	))
	defer span.End()

	switch o.health.Admit() {
	case llm.AdmitReject:
		o.logger.Warn("model endpoint known down, short-circuiting request",
			zap.String("request_id", req.ID.String()),
		)
		return o.shortCircuit(req, start), nil
	case llm.AdmitProbe:
		if _, err := o.client.Probe(ctx); err != nil {
			o.logger.Warn("recovery probe failed", zap.Error(err))
			return o.shortCircuit(req, start), nil
		}
		o.logger.Info("model endpoint recovered", zap.String("model_id", o.client.ModelID()))
	}

	deadline, _ := ctx.Deadline()
	results := make(chan indexedOutcome, len(req.Types))
	for i, docType := range req.Types {
		go func(idx int, t documents.DocumentType) {
			results <- indexedOutcome{idx: idx, outcome: o.generate(ctx, t, req, deadline)}
		}(i, docType)
	}

	// Collect until every worker reports or the global deadline fires.
	// Workers owning an expired context resolve on their own shortly after,
	// but the result is sealed here; their sends land in the buffered
	// channel and are discarded with it.
	outcomes := make([]documents.DocumentOutcome, len(req.Types))
	filled := make([]bool, len(req.Types))
	pending := len(req.Types)
	for pending > 0 {
		select {
		case r := <-results:
			outcomes[r.idx] = r.outcome
			filled[r.idx] = true
			pending--
		case <-ctx.Done():
			pending = 0
		}
	}
	for i := range outcomes {
		if !filled[i] {
			outcomes[i] = documents.DocumentOutcome{
				Type:    req.Types[i],
				Status:  documents.StatusTimedOut,
				Reason:  documents.ReasonTimeout,
				Elapsed: time.Since(start),
			}
		}
	}

	result := &documents.GenerationResult{
		RequestID: req.ID,
		Outcomes:  outcomes,
		Status:    documents.ComputeOverall(outcomes),
		ModelID:   o.client.ModelID(),
		Elapsed:   time.Since(start),
	}
	o.observe(result)

	span.SetAttributes(attribute.String("result.status", string(result.Status)))
	o.logger.Info("orchestration finished",
		zap.String("request_id", req.ID.String()),
		zap.String("status", string(result.Status)),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

// generate produces the outcome for a single document type: render the
// prompt, invoke the model, map the result. A template failure never reaches
// the model client.
func (o *Orchestrator) generate(ctx context.Context, docType documents.DocumentType, req *documents.GenerationRequest, deadline time.Time) documents.DocumentOutcome {
	start := time.Now()

	prompt, err := o.provider.Render(docType, req.InputText, req.ProjectName)
	if err != nil {
		o.logger.Error("prompt rendering failed",
			zap.String("document_type", string(docType)),
			zap.Error(err),
		)
		return documents.DocumentOutcome{
			Type:    docType,
			Status:  documents.StatusFailed,
			Reason:  documents.ReasonTemplateError,
			Elapsed: time.Since(start),
		}
	}

	callTimeout := o.cfg.PerTypeTimeout
	if remaining := time.Until(deadline); remaining < callTimeout {
		callTimeout = remaining
	}

	params := o.provider.Params(docType)
	text, err := o.client.Invoke(ctx, prompt, llm.InvokeOptions{
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		Timeout:     callTimeout,
	})
	if err != nil {
		status, reason := classify(err)
		return documents.DocumentOutcome{
			Type:    docType,
			Status:  status,
			Reason:  reason,
			Elapsed: time.Since(start),
		}
	}

	return documents.DocumentOutcome{
		Type:    docType,
		Status:  documents.StatusSucceeded,
		Content: text,
		Elapsed: time.Since(start),
	}
}

// shortCircuit resolves every requested type as unavailable without any
// network traffic.
func (o *Orchestrator) shortCircuit(req *documents.GenerationRequest, start time.Time) *documents.GenerationResult {
	outcomes := make([]documents.DocumentOutcome, len(req.Types))
	for i, t := range req.Types {
		outcomes[i] = documents.DocumentOutcome{
			Type:   t,
			Status: documents.StatusFailed,
			Reason: documents.ReasonServiceUnavailable,
		}
	}
	result := &documents.GenerationResult{
		RequestID: req.ID,
		Outcomes:  outcomes,
		Status:    documents.AllFailed,
		Elapsed:   time.Since(start),
	}
	o.observe(result)
	return result
}

func classify(err error) (documents.OutcomeStatus, documents.FailureReason) {
	var ie *llm.InvokeError
	if !errors.As(err, &ie) {
		return documents.StatusFailed, documents.ReasonInvalidResponse
	}
	switch ie.Kind {
	case llm.KindTimeout:
		return documents.StatusTimedOut, documents.ReasonTimeout
	case llm.KindConnectionRefused:
		return documents.StatusFailed, documents.ReasonConnectionRefused
	case llm.KindModelUnavailable:
		return documents.StatusFailed, documents.ReasonModelUnavailable
	default:
		return documents.StatusFailed, documents.ReasonInvalidResponse
	}
}

func (o *Orchestrator) observe(result *documents.GenerationResult) {
	if o.metrics == nil {
		return
	}
	for _, out := range result.Outcomes {
		o.metrics.ObserveDocument(string(out.Type), string(out.Status), out.Elapsed)
	}
	o.metrics.ObserveRequest(string(result.Status), result.Elapsed)
}
