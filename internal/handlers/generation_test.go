package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/documcp/api/internal/database"
	"github.com/documcp/api/internal/documents"
	"github.com/documcp/api/internal/llm"
	"github.com/documcp/api/internal/orchestrator"
	"github.com/documcp/api/internal/templates"
)

type stubClient struct{}

func (s *stubClient) Invoke(ctx context.Context, prompt string, opts llm.InvokeOptions) (string, error) {
	return "# Generated\n\ncontent", nil
}
func (s *stubClient) Probe(ctx context.Context) (string, error) { return "local-model", nil }
func (s *stubClient) ModelID() string                           { return "local-model" }

type readyAdmitter struct{}

func (readyAdmitter) Admit() llm.Admission { return llm.AdmitDispatch }

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	orch := orchestrator.New(&stubClient{}, templates.NewBuiltin(), readyAdmitter{}, nil, zap.NewNop(), orchestrator.DefaultConfig())
	h := NewGenerationHandler(orch, nil, nil, nil, zap.NewNop())

	router := gin.New()
	router.POST("/api/v1/generate", h.Generate)
	router.GET("/api/v1/types", h.ListTypes)
	router.GET("/api/v1/generations", h.RecentGenerations)
	return router
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGenerateSuccess(t *testing.T) {
	router := testRouter(t)

	w := postJSON(router, "/api/v1/generate",
		`{"input_text":"a task tracker for small teams","document_types":["readme","what_is_this"]}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp GenerateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Status != "all_succeeded" {
		t.Errorf("expected all_succeeded, got %s", resp.Status)
	}
	if len(resp.Outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(resp.Outcomes))
	}
	if resp.Outcomes[0].DocumentType != "readme" || resp.Outcomes[1].DocumentType != "what_is_this" {
		t.Error("outcomes must follow request order")
	}
	if resp.Outcomes[0].Content == "" {
		t.Error("succeeded outcome must carry content")
	}
}

func TestGenerateDefaultsToAllTypes(t *testing.T) {
	router := testRouter(t)

	w := postJSON(router, "/api/v1/generate", `{"input_text":"a chat app"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp GenerateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Outcomes) != 3 {
		t.Errorf("omitted type list should generate every type, got %d", len(resp.Outcomes))
	}
}

func TestGenerateRejectsMissingInput(t *testing.T) {
	router := testRouter(t)

	w := postJSON(router, "/api/v1/generate", `{"document_types":["readme"]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGenerateRejectsBlankInput(t *testing.T) {
	router := testRouter(t)

	w := postJSON(router, "/api/v1/generate", `{"input_text":"   ","document_types":["readme"]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "VALIDATION_FAILED") {
		t.Errorf("expected VALIDATION_FAILED code, got %s", w.Body.String())
	}
}

func TestGenerateRejectsUnknownType(t *testing.T) {
	router := testRouter(t)

	w := postJSON(router, "/api/v1/generate",
		`{"input_text":"a chat app","document_types":["readme","pitch_deck"]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown type must reject the whole request, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "pitch_deck") {
		t.Errorf("error should name the unknown type, got %s", w.Body.String())
	}
}

func TestListTypes(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/types", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	for _, name := range []string{"prd", "what_is_this", "readme"} {
		if !strings.Contains(w.Body.String(), name) {
			t.Errorf("type listing missing %s", name)
		}
	}
}

// blockingStore holds every RecordResult call until released, to observe
// whether responses wait on side effects.
type blockingStore struct {
	release  chan struct{}
	recorded chan struct{}
}

func (s *blockingStore) RecordResult(ctx context.Context, req *documents.GenerationRequest, result *documents.GenerationResult) error {
	<-s.release
	close(s.recorded)
	return nil
}

func (s *blockingStore) Recent(ctx context.Context, limit int) ([]database.GenerationLog, error) {
	return nil, nil
}

func TestGenerateRespondsBeforeSideEffects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &blockingStore{release: make(chan struct{}), recorded: make(chan struct{})}

	orch := orchestrator.New(&stubClient{}, templates.NewBuiltin(), readyAdmitter{}, nil, zap.NewNop(), orchestrator.DefaultConfig())
	h := &GenerationHandler{orch: orch, store: store, logger: zap.NewNop()}

	router := gin.New()
	router.POST("/api/v1/generate", h.Generate)

	// The store write is blocked; a synchronous finalize would hang here.
	w := postJSON(router, "/api/v1/generate", `{"input_text":"a chat app","document_types":["readme"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 before side effects complete, got %d", w.Code)
	}

	close(store.release)
	select {
	case <-store.recorded:
	case <-time.After(2 * time.Second):
		t.Fatal("audit log write never ran")
	}
}

func TestRecentGenerationsWithoutStore(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/generations", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a configured store, got %d", w.Code)
	}
}
