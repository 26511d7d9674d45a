package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/biorag/engine/internal/model"
)

// PDFWorker is the subset of worker.PDFWorker the trigger handler needs.
type PDFWorker interface {
	Ingest(ctx context.Context, pdfID, embeddingModel string, autoEmbed bool) error
	Status(ctx context.Context, pdfID string) (model.IngestionState, error)
}

// PDFEmbedder is the subset of EmbedderService the re-embed handler needs.
type PDFEmbedder interface {
	EmbedPDF(ctx context.Context, pdfID, modelName, version string, batchSize int, force bool) (model.EmbeddingSummary, error)
}

// PDFDeps bundles what the PDF ingestion endpoints need.
type PDFDeps struct {
	Worker       PDFWorker
	Embedder     PDFEmbedder
	Ingestions   IngestionLister
	DefaultModel string
	DefaultBatch int
}

// GetPDFIngestion handles GET /api/pdf/ingestions/{pdf_id}.
func GetPDFIngestion(deps PDFDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pdfID := chi.URLParam(r, "pdf_id")
		if !validateUUID(pdfID) {
			respondJSONError(w, http.StatusBadRequest, "invalid pdf_id")
			return
		}

		status, err := deps.Ingestions.GetStatus(r.Context(), "pdf", pdfID)
		if err != nil {
			respondRagErr(w, err)
			return
		}
		if status == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]any{
				"sourceType": "pdf",
				"sourceId":   pdfID,
				"state":      model.IngestionNotIndexed,
			})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(status)
	}
}

type triggerPDFIngestRequest struct {
	PDFID          string `json:"pdfId"`
	EmbeddingModel string `json:"embeddingModel"`
	AutoEmbed      bool   `json:"autoEmbed"`
}

// TriggerPDFIngest handles POST /api/pdf/ingestions.
func TriggerPDFIngest(deps PDFDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req triggerPDFIngestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if !validateUUID(req.PDFID) {
			respondJSONError(w, http.StatusBadRequest, "pdfId must be a valid UUID")
			return
		}

		embeddingModel := req.EmbeddingModel
		if embeddingModel == "" {
			embeddingModel = deps.DefaultModel
		}

		if err := deps.Worker.Ingest(r.Context(), req.PDFID, embeddingModel, req.AutoEmbed); err != nil {
			respondRagErr(w, err)
			return
		}

		state, err := deps.Worker.Status(r.Context(), req.PDFID)
		if err != nil {
			respondRagErr(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{
			"pdfId": req.PDFID,
			"state": state,
		})
	}
}

type triggerPDFEmbedRequest struct {
	EmbeddingModel string `json:"embeddingModel"`
	Version        string `json:"version"`
	Force          bool   `json:"force"`
	BatchSize      int    `json:"batchSize"`
}

// TriggerPDFEmbed handles POST /api/pdf/ingestions/{pdf_id}/embeddings.
func TriggerPDFEmbed(deps PDFDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pdfID := chi.URLParam(r, "pdf_id")
		if !validateUUID(pdfID) {
			respondJSONError(w, http.StatusBadRequest, "invalid pdf_id")
			return
		}

		var req triggerPDFEmbedRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		modelName := req.EmbeddingModel
		if modelName == "" {
			modelName = deps.DefaultModel
		}
		batchSize := req.BatchSize
		if batchSize <= 0 {
			batchSize = deps.DefaultBatch
		}

		summary, err := deps.Embedder.EmbedPDF(r.Context(), pdfID, modelName, req.Version, batchSize, req.Force)
		if err != nil {
			respondRagErr(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(summary)
	}
}
