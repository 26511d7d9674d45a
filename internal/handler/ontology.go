package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/biorag/engine/internal/model"
)

// OntologyWorker is the subset of worker.OntologyWorker the trigger handler
// needs.
type OntologyWorker interface {
	Ingest(ctx context.Context, ontologyType, sourceID, oboPath, embeddingModel string, autoEmbed bool) error
	Status(ctx context.Context, ontologyType, sourceID string) (model.IngestionState, error)
}

// OntologyEmbedder is the subset of EmbedderService the re-embed handler
// needs.
type OntologyEmbedder interface {
	EmbedUnifiedChunks(ctx context.Context, sourceType, sourceID, modelName string, batchSize int, force bool) (model.EmbeddingSummary, error)
}

// IngestionLister backs GET /api/ontology/ingestions.
type IngestionLister interface {
	List(ctx context.Context, sourceTypePrefix string) ([]model.IngestionStatus, error)
	GetStatus(ctx context.Context, sourceType, sourceID string) (*model.IngestionStatus, error)
}

// OntologyDeps bundles what the ontology ingestion endpoints need.
type OntologyDeps struct {
	Worker       OntologyWorker
	Embedder     OntologyEmbedder
	Ingestions   IngestionLister
	DefaultModel string
	DefaultBatch int
}

// ListOntologyIngestions handles GET /api/ontology/ingestions.
func ListOntologyIngestions(deps OntologyDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses, err := deps.Ingestions.List(r.Context(), "ontology_")
		if err != nil {
			respondRagErr(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(statuses)
	}
}

// GetOntologyIngestion handles GET /api/ontology/ingestions/{type}/{source_id}.
func GetOntologyIngestion(deps OntologyDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ontologyType := chi.URLParam(r, "type")
		sourceID := chi.URLParam(r, "source_id")
		sourceType := "ontology_" + ontologyType

		status, err := deps.Ingestions.GetStatus(r.Context(), sourceType, sourceID)
		if err != nil {
			respondRagErr(w, err)
			return
		}
		if status == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]any{
				"sourceType": sourceType,
				"sourceId":   sourceID,
				"state":      model.IngestionNotIndexed,
			})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(status)
	}
}

type triggerOntologyIngestRequest struct {
	Type           string `json:"type"`
	SourceID       string `json:"sourceId"`
	OboPath        string `json:"oboPath"`
	EmbeddingModel string `json:"embeddingModel"`
	AutoEmbed      bool   `json:"autoEmbed"`
}

// TriggerOntologyIngest handles POST /api/ontology/ingestions.
func TriggerOntologyIngest(deps OntologyDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req triggerOntologyIngestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Type == "" || req.SourceID == "" || req.OboPath == "" {
			respondJSONError(w, http.StatusBadRequest, "type, sourceId, and oboPath are required")
			return
		}

		embeddingModel := req.EmbeddingModel
		if embeddingModel == "" {
			embeddingModel = deps.DefaultModel
		}

		if err := deps.Worker.Ingest(r.Context(), req.Type, req.SourceID, req.OboPath, embeddingModel, req.AutoEmbed); err != nil {
			respondRagErr(w, err)
			return
		}

		state, err := deps.Worker.Status(r.Context(), req.Type, req.SourceID)
		if err != nil {
			respondRagErr(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{
			"type":     req.Type,
			"sourceId": req.SourceID,
			"state":    state,
		})
	}
}

type triggerOntologyEmbedRequest struct {
	EmbeddingModel string `json:"embeddingModel"`
	Force          bool   `json:"force"`
	BatchSize      int    `json:"batchSize"`
}

// TriggerOntologyEmbed handles POST /api/ontology/ingestions/{type}/{source_id}/embeddings.
func TriggerOntologyEmbed(deps OntologyDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ontologyType := chi.URLParam(r, "type")
		sourceID := chi.URLParam(r, "source_id")
		sourceType := "ontology_" + ontologyType

		var req triggerOntologyEmbedRequest
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

		summary, err := deps.Embedder.EmbedUnifiedChunks(r.Context(), sourceType, sourceID, modelName, batchSize, req.Force)
		if err != nil {
			respondRagErr(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(summary)
	}
}
