package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/biorag/engine/internal/handler"
	"github.com/biorag/engine/internal/model"
	"github.com/biorag/engine/internal/service"
)

type mockDB struct {
	err error
}

func (m *mockDB) Ping(ctx context.Context) error { return m.err }

type mockSessions struct {
	session *model.ChatSession
	err     error
}

func (m *mockSessions) CreateSession(ctx context.Context, pdfID string) (*model.ChatSession, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.session, nil
}

type mockAsker struct {
	result service.QuestionResult
	err    error
}

func (m *mockAsker) AskQuestionJSON(ctx context.Context, sessionID, question string) (service.QuestionResult, error) {
	return m.result, m.err
}

func (m *mockAsker) AskQuestionStream(ctx context.Context, sessionID, question string, emit func(service.SSEEvent) error) error {
	_ = emit(service.SSEEvent{Type: "start"})
	_ = emit(service.SSEEvent{Type: "end"})
	return m.err
}

type mockOntologyWorker struct{}

func (m *mockOntologyWorker) Ingest(ctx context.Context, ontologyType, sourceID, oboPath, embeddingModel string, autoEmbed bool) error {
	return nil
}
func (m *mockOntologyWorker) Status(ctx context.Context, ontologyType, sourceID string) (model.IngestionState, error) {
	return model.IngestionReady, nil
}

type mockOntologyEmbedder struct{}

func (m *mockOntologyEmbedder) EmbedUnifiedChunks(ctx context.Context, sourceType, sourceID, modelName string, batchSize int, force bool) (model.EmbeddingSummary, error) {
	return model.EmbeddingSummary{}, nil
}

type mockPDFWorker struct{}

func (m *mockPDFWorker) Ingest(ctx context.Context, pdfID, embeddingModel string, autoEmbed bool) error {
	return nil
}
func (m *mockPDFWorker) Status(ctx context.Context, pdfID string) (model.IngestionState, error) {
	return model.IngestionReady, nil
}

type mockPDFEmbedder struct{}

func (m *mockPDFEmbedder) EmbedPDF(ctx context.Context, pdfID, modelName, version string, batchSize int, force bool) (model.EmbeddingSummary, error) {
	return model.EmbeddingSummary{}, nil
}

type mockIngestionLister struct{}

func (m *mockIngestionLister) List(ctx context.Context, sourceTypePrefix string) ([]model.IngestionStatus, error) {
	return nil, nil
}
func (m *mockIngestionLister) GetStatus(ctx context.Context, sourceType, sourceID string) (*model.IngestionStatus, error) {
	return nil, nil
}

func newTestDeps() *Dependencies {
	return &Dependencies{
		DB:                 &mockDB{},
		FrontendURL:        "http://localhost:3000",
		Version:            "0.2.0",
		InternalAuthSecret: "test-secret-123",
		RAG: handler.RAGDeps{
			Sessions: &mockSessions{session: &model.ChatSession{ID: "11111111-1111-1111-1111-111111111111", PDFID: "22222222-2222-2222-2222-222222222222"}},
			Asker:    &mockAsker{result: service.QuestionResult{Answer: "because"}},
		},
		Ontology: handler.OntologyDeps{
			Worker:       &mockOntologyWorker{},
			Embedder:     &mockOntologyEmbedder{},
			Ingestions:   &mockIngestionLister{},
			DefaultModel: "text-embedding-004",
			DefaultBatch: 32,
		},
		PDF: handler.PDFDeps{
			Worker:       &mockPDFWorker{},
			Embedder:     &mockPDFEmbedder{},
			Ingestions:   &mockIngestionLister{},
			DefaultModel: "text-embedding-004",
			DefaultBatch: 32,
		},
	}
}

func TestHealth_IsPublic(t *testing.T) {
	r := New(newTestDeps())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
	if body["version"] != "0.2.0" {
		t.Errorf("version = %q, want %q", body["version"], "0.2.0")
	}
}

func TestHealth_DBDown(t *testing.T) {
	deps := newTestDeps()
	deps.DB = &mockDB{err: fmt.Errorf("connection refused")}
	r := New(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestOntologyIngestions_RequiresInternalAuth(t *testing.T) {
	r := New(newTestDeps())

	req := httptest.NewRequest(http.MethodGet, "/api/ontology/ingestions", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestOntologyIngestions_WithAuth(t *testing.T) {
	r := New(newTestDeps())

	req := httptest.NewRequest(http.MethodGet, "/api/ontology/ingestions", nil)
	req.Header.Set("X-Internal-Auth", "test-secret-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestCreateSession_WithAuth(t *testing.T) {
	r := New(newTestDeps())

	body := `{"pdfId":"22222222-2222-2222-2222-222222222222"}`
	req := httptest.NewRequest(http.MethodPost, "/api/rag/sessions", strings.NewReader(body))
	req.Header.Set("X-Internal-Auth", "test-secret-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d, body=%s", rec.Code, http.StatusCreated, rec.Body.String())
	}
}

func TestAskQuestion_RequiresAuth(t *testing.T) {
	r := New(newTestDeps())

	body := `{"question":"why?"}`
	req := httptest.NewRequest(http.MethodPost, "/api/rag/sessions/11111111-1111-1111-1111-111111111111/question", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAskQuestion_JSON(t *testing.T) {
	r := New(newTestDeps())

	body := `{"question":"why?"}`
	req := httptest.NewRequest(http.MethodPost, "/api/rag/sessions/11111111-1111-1111-1111-111111111111/question", strings.NewReader(body))
	req.Header.Set("X-Internal-Auth", "test-secret-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
}

func TestUnknownRoute_Returns404(t *testing.T) {
	r := New(newTestDeps())

	req := httptest.NewRequest(http.MethodGet, "/api/nonexistent", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["success"] != false {
		t.Error("expected success=false for 404")
	}
}

func TestInternalAuth_BadSecret_Returns401(t *testing.T) {
	r := New(newTestDeps())

	req := httptest.NewRequest(http.MethodGet, "/api/ontology/ingestions", nil)
	req.Header.Set("X-Internal-Auth", "wrong-secret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
