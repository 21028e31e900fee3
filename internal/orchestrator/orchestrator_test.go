package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/documcp/api/internal/documents"
	"github.com/documcp/api/internal/llm"
	"github.com/documcp/api/internal/templates"
)

type fakeClient struct {
	calls    int32
	probes   int32
	invokeFn func(ctx context.Context, prompt string, opts llm.InvokeOptions) (string, error)
	probeFn  func(ctx context.Context) (string, error)
}

func (f *fakeClient) Invoke(ctx context.Context, prompt string, opts llm.InvokeOptions) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.invokeFn == nil {
		return "generated text", nil
	}
	return f.invokeFn(ctx, prompt, opts)
}

func (f *fakeClient) Probe(ctx context.Context) (string, error) {
	atomic.AddInt32(&f.probes, 1)
	if f.probeFn == nil {
		return "local-model", nil
	}
	return f.probeFn(ctx)
}

func (f *fakeClient) ModelID() string { return "local-model" }

type fakeAdmitter struct {
	admission llm.Admission
}

func (f *fakeAdmitter) Admit() llm.Admission { return f.admission }

type fakeProvider struct {
	renderFn func(docType documents.DocumentType, inputText, projectName string) (string, error)
}

func (f *fakeProvider) Render(docType documents.DocumentType, inputText, projectName string) (string, error) {
	if f.renderFn == nil {
		return "prompt for " + string(docType), nil
	}
	return f.renderFn(docType, inputText, projectName)
}

func (f *fakeProvider) Params(docType documents.DocumentType) templates.GenParams {
	return templates.GenParams{MaxTokens: 100, Temperature: 0.5}
}

func newTestOrchestrator(client ModelInvoker, provider templates.Provider, health Admitter, cfg Config) *Orchestrator {
	return New(client, provider, health, nil, zap.NewNop(), cfg)
}

func mustRequest(t *testing.T, types ...documents.DocumentType) *documents.GenerationRequest {
	t.Helper()
	req, err := documents.NewRequest("a task tracker for small teams", "tracker", types)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	return req
}

func TestOrchestrateAllSucceed(t *testing.T) {
	client := &fakeClient{}
	o := newTestOrchestrator(client, &fakeProvider{}, &fakeAdmitter{}, DefaultConfig())

	req := mustRequest(t, documents.TypeReadme, documents.TypeWhatIsThis)
	result, err := o.Orchestrate(context.Background(), req)
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}

	if result.Status != documents.AllSucceeded {
		t.Errorf("expected all_succeeded, got %s", result.Status)
	}
	if len(result.Outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(result.Outcomes))
	}
	if result.Outcomes[0].Type != documents.TypeReadme || result.Outcomes[1].Type != documents.TypeWhatIsThis {
		t.Error("outcomes must be in request order")
	}
	for _, out := range result.Outcomes {
		if out.Status != documents.StatusSucceeded {
			t.Errorf("%s: expected succeeded, got %s", out.Type, out.Status)
		}
		if out.Content == "" {
			t.Errorf("%s: content missing on success", out.Type)
		}
	}
	if client.calls != 2 {
		t.Errorf("expected 2 model calls, got %d", client.calls)
	}
}

func TestOrchestratePartialSuccessUnderMixedLatency(t *testing.T) {
	// what_is_this never resolves within the budget; readme answers fast.
	client := &fakeClient{
		invokeFn: func(ctx context.Context, prompt string, opts llm.InvokeOptions) (string, error) {
			if strings.Contains(prompt, "what_is_this") {
				<-ctx.Done()
				return "", &llm.InvokeError{Kind: llm.KindTimeout, Err: ctx.Err()}
			}
			return "readme text", nil
		},
	}
	cfg := Config{GlobalTimeout: 100 * time.Millisecond, PerTypeTimeout: 80 * time.Millisecond}
	o := newTestOrchestrator(client, &fakeProvider{}, &fakeAdmitter{}, cfg)

	req := mustRequest(t, documents.TypeReadme, documents.TypeWhatIsThis)
	result, err := o.Orchestrate(context.Background(), req)
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}

	if result.Status != documents.PartialSuccess {
		t.Fatalf("expected partial_success, got %s", result.Status)
	}
	if result.Outcomes[0].Status != documents.StatusSucceeded {
		t.Errorf("readme should succeed, got %s", result.Outcomes[0].Status)
	}
	if result.Outcomes[1].Status != documents.StatusTimedOut {
		t.Errorf("what_is_this should time out, got %s", result.Outcomes[1].Status)
	}
	if result.Outcomes[1].Reason != documents.ReasonTimeout {
		t.Errorf("expected timeout reason, got %s", result.Outcomes[1].Reason)
	}
}

func TestOrchestrateShortCircuitsWhenUnreachable(t *testing.T) {
	client := &fakeClient{}
	o := newTestOrchestrator(client, &fakeProvider{}, &fakeAdmitter{admission: llm.AdmitReject}, DefaultConfig())

	req := mustRequest(t, documents.TypePRD, documents.TypeReadme)
	result, err := o.Orchestrate(context.Background(), req)
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}

	if result.Status != documents.AllFailed {
		t.Errorf("expected all_failed, got %s", result.Status)
	}
	for _, out := range result.Outcomes {
		if out.Status != documents.StatusFailed || out.Reason != documents.ReasonServiceUnavailable {
			t.Errorf("%s: expected failed/service_unavailable, got %s/%s", out.Type, out.Status, out.Reason)
		}
	}
	if client.calls != 0 {
		t.Errorf("short-circuit must not touch the network, got %d calls", client.calls)
	}
	if client.probes != 0 {
		t.Errorf("reject admission must not probe, got %d probes", client.probes)
	}
}

func TestOrchestrateProbeFailureShortCircuits(t *testing.T) {
	client := &fakeClient{
		probeFn: func(ctx context.Context) (string, error) {
			return "", &llm.InvokeError{Kind: llm.KindConnectionRefused, Err: errors.New("still down")}
		},
	}
	o := newTestOrchestrator(client, &fakeProvider{}, &fakeAdmitter{admission: llm.AdmitProbe}, DefaultConfig())

	req := mustRequest(t, documents.TypeReadme)
	result, err := o.Orchestrate(context.Background(), req)
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}

	if result.Status != documents.AllFailed {
		t.Errorf("expected all_failed, got %s", result.Status)
	}
	if client.probes != 1 {
		t.Errorf("expected exactly one probe, got %d", client.probes)
	}
	if client.calls != 0 {
		t.Errorf("failed probe must not dispatch generations, got %d calls", client.calls)
	}
}

func TestOrchestrateProbeSuccessDispatches(t *testing.T) {
	client := &fakeClient{}
	o := newTestOrchestrator(client, &fakeProvider{}, &fakeAdmitter{admission: llm.AdmitProbe}, DefaultConfig())

	req := mustRequest(t, documents.TypeReadme)
	result, err := o.Orchestrate(context.Background(), req)
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}

	if result.Status != documents.AllSucceeded {
		t.Errorf("expected all_succeeded after recovered probe, got %s", result.Status)
	}
	if client.probes != 1 || client.calls != 1 {
		t.Errorf("expected 1 probe and 1 call, got %d/%d", client.probes, client.calls)
	}
}

func TestOrchestrateTemplateErrorSkipsModel(t *testing.T) {
	client := &fakeClient{}
	provider := &fakeProvider{
		renderFn: func(docType documents.DocumentType, inputText, projectName string) (string, error) {
			if docType == documents.TypePRD {
				return "", errors.New("template corrupted")
			}
			return "prompt", nil
		},
	}
	o := newTestOrchestrator(client, provider, &fakeAdmitter{}, DefaultConfig())

	req := mustRequest(t, documents.TypePRD, documents.TypeReadme)
	result, err := o.Orchestrate(context.Background(), req)
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}

	if result.Status != documents.PartialSuccess {
		t.Errorf("expected partial_success, got %s", result.Status)
	}
	if result.Outcomes[0].Status != documents.StatusFailed || result.Outcomes[0].Reason != documents.ReasonTemplateError {
		t.Errorf("prd: expected failed/template_error, got %s/%s", result.Outcomes[0].Status, result.Outcomes[0].Reason)
	}
	if result.Outcomes[1].Status != documents.StatusSucceeded {
		t.Errorf("readme should still succeed, got %s", result.Outcomes[1].Status)
	}
	// Only the readme generation reaches the model.
	if client.calls != 1 {
		t.Errorf("expected 1 model call, got %d", client.calls)
	}
}

func TestOrchestrateFailureIsolation(t *testing.T) {
	client := &fakeClient{
		invokeFn: func(ctx context.Context, prompt string, opts llm.InvokeOptions) (string, error) {
			if strings.Contains(prompt, "prd") {
				return "", &llm.InvokeError{Kind: llm.KindInvalidResponse, Err: errors.New("empty completion")}
			}
			return "text", nil
		},
	}
	o := newTestOrchestrator(client, &fakeProvider{}, &fakeAdmitter{}, DefaultConfig())

	req := mustRequest(t, documents.TypePRD, documents.TypeWhatIsThis, documents.TypeReadme)
	result, err := o.Orchestrate(context.Background(), req)
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}

	if result.Status != documents.PartialSuccess {
		t.Errorf("expected partial_success, got %s", result.Status)
	}
	if result.Outcomes[0].Reason != documents.ReasonInvalidResponse {
		t.Errorf("expected invalid_response for prd, got %s", result.Outcomes[0].Reason)
	}
	for _, out := range result.Outcomes[1:] {
		if out.Status != documents.StatusSucceeded {
			t.Errorf("%s: sibling failure leaked, got %s", out.Type, out.Status)
		}
	}
}

func TestOrchestrateRejectsEmptyTypeSet(t *testing.T) {
	o := newTestOrchestrator(&fakeClient{}, &fakeProvider{}, &fakeAdmitter{}, DefaultConfig())

	_, err := o.Orchestrate(context.Background(), &documents.GenerationRequest{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr *documents.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
}

func TestOrchestrateOutcomeCountMatchesRequest(t *testing.T) {
	client := &fakeClient{
		invokeFn: func(ctx context.Context, prompt string, opts llm.InvokeOptions) (string, error) {
			return "", &llm.InvokeError{Kind: llm.KindConnectionRefused, Err: errors.New("down")}
		},
	}
	o := newTestOrchestrator(client, &fakeProvider{}, &fakeAdmitter{}, DefaultConfig())

	req := mustRequest(t, documents.TypePRD, documents.TypeWhatIsThis, documents.TypeReadme)
	result, err := o.Orchestrate(context.Background(), req)
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}

	if len(result.Outcomes) != len(req.Types) {
		t.Fatalf("outcome count %d != requested %d", len(result.Outcomes), len(req.Types))
	}
	if result.Status != documents.AllFailed {
		t.Errorf("expected all_failed, got %s", result.Status)
	}
	for i, out := range result.Outcomes {
		if out.Type != req.Types[i] {
			t.Errorf("position %d: expected %s, got %s", i, req.Types[i], out.Type)
		}
	}
}
