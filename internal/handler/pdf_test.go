package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/biorag/engine/internal/model"
)

type stubPDFWorker struct {
	state model.IngestionState
	err   error
}

func (s *stubPDFWorker) Ingest(ctx context.Context, pdfID, embeddingModel string, autoEmbed bool) error {
	return s.err
}

func (s *stubPDFWorker) Status(ctx context.Context, pdfID string) (model.IngestionState, error) {
	return s.state, nil
}

type stubPDFEmbedder struct {
	summary model.EmbeddingSummary
	err     error
}

func (s *stubPDFEmbedder) EmbedPDF(ctx context.Context, pdfID, modelName, version string, batchSize int, force bool) (model.EmbeddingSummary, error) {
	return s.summary, s.err
}

func TestGetPDFIngestion_InvalidID(t *testing.T) {
	deps := PDFDeps{Ingestions: &stubIngestionLister{}}

	req := httptest.NewRequest(http.MethodGet, "/api/pdf/ingestions/not-a-uuid", nil)
	req = withURLParams(req, map[string]string{"pdf_id": "not-a-uuid"})
	rec := httptest.NewRecorder()
	GetPDFIngestion(deps).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetPDFIngestion_ReturnsExistingStatus(t *testing.T) {
	deps := PDFDeps{Ingestions: &stubIngestionLister{status: &model.IngestionStatus{
		SourceType: "pdf", SourceID: validPDFID, State: model.IngestionReady,
	}}}

	req := httptest.NewRequest(http.MethodGet, "/api/pdf/ingestions/"+validPDFID, nil)
	req = withURLParams(req, map[string]string{"pdf_id": validPDFID})
	rec := httptest.NewRecorder()
	GetPDFIngestion(deps).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp model.IngestionStatus
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.State != model.IngestionReady {
		t.Errorf("state = %q, want %q", resp.State, model.IngestionReady)
	}
}

func TestTriggerPDFIngest_InvalidPDFID(t *testing.T) {
	deps := PDFDeps{Worker: &stubPDFWorker{}}

	req := httptest.NewRequest(http.MethodPost, "/api/pdf/ingestions", strings.NewReader(`{"pdfId":"nope"}`))
	rec := httptest.NewRecorder()
	TriggerPDFIngest(deps).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTriggerPDFIngest_OK(t *testing.T) {
	deps := PDFDeps{Worker: &stubPDFWorker{state: model.IngestionIndexing}, DefaultModel: "text-embedding-004"}

	body := fmt.Sprintf(`{"pdfId":%q,"autoEmbed":true}`, validPDFID)
	req := httptest.NewRequest(http.MethodPost, "/api/pdf/ingestions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	TriggerPDFIngest(deps).ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["state"] != string(model.IngestionIndexing) {
		t.Errorf("state = %v, want %q", resp["state"], model.IngestionIndexing)
	}
}

func TestTriggerPDFEmbed_OK(t *testing.T) {
	embedder := &stubPDFEmbedder{summary: model.EmbeddingSummary{Embedded: 12, Skipped: 3}}
	deps := PDFDeps{Embedder: embedder, DefaultModel: "text-embedding-004", DefaultBatch: 32}

	req := httptest.NewRequest(http.MethodPost, "/api/pdf/ingestions/"+validPDFID+"/embeddings", strings.NewReader(`{"force":true}`))
	req = withURLParams(req, map[string]string{"pdf_id": validPDFID})
	rec := httptest.NewRecorder()
	TriggerPDFEmbed(deps).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp model.EmbeddingSummary
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Embedded != 12 || resp.Skipped != 3 {
		t.Errorf("summary = %+v, want Embedded=12 Skipped=3", resp)
	}
}
