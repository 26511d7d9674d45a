package worker

import (
	"context"
	"fmt"

	"github.com/biorag/engine/internal/model"
)

// PDFIngestAdapter adapts PDFWorker's multi-parameter Ingest to
// service.PDFIngester's narrow (ctx, pdfID) signature by binding a fixed
// default embedding model and auto-embed flag, used by PipelineService's
// lazy ensure-indexed path (§C7). Explicit re-ingest requests that need to
// choose a model go through the ingestion HTTP handler and worker directly.
type PDFIngestAdapter struct {
	worker         *PDFWorker
	embeddingModel string
	autoEmbed      bool
}

// NewPDFIngestAdapter creates a PDFIngestAdapter.
func NewPDFIngestAdapter(w *PDFWorker, embeddingModel string, autoEmbed bool) *PDFIngestAdapter {
	return &PDFIngestAdapter{worker: w, embeddingModel: embeddingModel, autoEmbed: autoEmbed}
}

func (a *PDFIngestAdapter) Ingest(ctx context.Context, pdfID string) error {
	if err := a.worker.Ingest(ctx, pdfID, a.embeddingModel, a.autoEmbed); err != nil {
		return fmt.Errorf("worker.PDFIngestAdapter.Ingest: %w", err)
	}
	return nil
}

func (a *PDFIngestAdapter) Status(ctx context.Context, pdfID string) (model.IngestionState, error) {
	return a.worker.Status(ctx, pdfID)
}

// OntologyIngestAdapter adapts OntologyWorker's (ontologyType, sourceID,
// oboPath, embeddingModel, autoEmbed) Ingest to service.OntologyIngester's
// narrow (ctx, sourceID) signature. Each adapter is bound to one ontology
// kind and one canonical OBO file path at construction time, matching how
// PipelineService's lazy ensure-indexed call has no way to supply a file
// path of its own; explicit re-ingests with a caller-chosen file go through
// the ingestion HTTP handler and OntologyWorker directly.
type OntologyIngestAdapter struct {
	worker         *OntologyWorker
	ontologyType   string
	oboPath        string
	embeddingModel string
	autoEmbed      bool
}

// NewOntologyIngestAdapter creates an OntologyIngestAdapter for ontologyType,
// defaulting re-ingests to oboPath.
func NewOntologyIngestAdapter(w *OntologyWorker, ontologyType, oboPath, embeddingModel string, autoEmbed bool) *OntologyIngestAdapter {
	return &OntologyIngestAdapter{
		worker:         w,
		ontologyType:   ontologyType,
		oboPath:        oboPath,
		embeddingModel: embeddingModel,
		autoEmbed:      autoEmbed,
	}
}

func (a *OntologyIngestAdapter) Ingest(ctx context.Context, sourceID string) error {
	if err := a.worker.Ingest(ctx, a.ontologyType, sourceID, a.oboPath, a.embeddingModel, a.autoEmbed); err != nil {
		return fmt.Errorf("worker.OntologyIngestAdapter.Ingest: %w", err)
	}
	return nil
}

func (a *OntologyIngestAdapter) Status(ctx context.Context, sourceID string) (model.IngestionState, error) {
	return a.worker.Status(ctx, a.ontologyType, sourceID)
}
