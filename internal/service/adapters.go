package service

import (
	"context"
	"fmt"

	"github.com/biorag/engine/internal/model"
	"github.com/biorag/engine/internal/ragerr"
)

// Citation is the generic shape format_citation produces; Fields carries
// adapter-specific extras (e.g. page numbers for PDF, term_id for ontology).
type Citation struct {
	Type   string
	Label  string
	Fields map[string]any
}

// SourceAdapter is a plug-in per source type (C7): PDF or ontology kind.
// Adapters are registered into the unified pipeline at startup and must be
// safe for concurrent reads.
type SourceAdapter interface {
	Registration() string
	Ingest(ctx context.Context, sourceID string) (model.IngestionState, error)
	IndexStatus(ctx context.Context, sourceID string) (model.IngestionState, error)
	FormatCitation(metadata map[string]any) Citation
}

// AdapterRegistry is the process-global, immutable-after-init mapping of
// source_type -> SourceAdapter. It is the one permitted piece of mutable
// global state; callers populate it once at startup via Register.
type AdapterRegistry struct {
	adapters map[string]SourceAdapter
}

// NewAdapterRegistry creates an empty AdapterRegistry.
func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{adapters: make(map[string]SourceAdapter)}
}

// Register binds an adapter under its own Registration() key. Intended to
// run only during process startup, before concurrent reads begin.
func (r *AdapterRegistry) Register(adapter SourceAdapter) {
	r.adapters[adapter.Registration()] = adapter
}

// Get looks up the adapter for sourceType.
func (r *AdapterRegistry) Get(sourceType string) (SourceAdapter, error) {
	adapter, ok := r.adapters[sourceType]
	if !ok {
		return nil, ragerr.New(ragerr.InvalidArgument, "service.AdapterRegistry.Get", "no adapter registered for source_type %q", sourceType)
	}
	return adapter, nil
}

// PDFIngester triggers a PDF ingestion worker run and reports its current
// status, satisfying SourceAdapter for source_type "pdf".
type PDFIngester interface {
	Ingest(ctx context.Context, pdfID string) error
	Status(ctx context.Context, pdfID string) (model.IngestionState, error)
}

// PDFAdapter scopes searches by pdf_id.
type PDFAdapter struct {
	worker PDFIngester
}

// NewPDFAdapter creates a PDFAdapter.
func NewPDFAdapter(worker PDFIngester) *PDFAdapter {
	return &PDFAdapter{worker: worker}
}

func (a *PDFAdapter) Registration() string { return "pdf" }

func (a *PDFAdapter) Ingest(ctx context.Context, sourceID string) (model.IngestionState, error) {
	if err := a.worker.Ingest(ctx, sourceID); err != nil {
		return "", fmt.Errorf("service.PDFAdapter.Ingest: %w", err)
	}
	return a.worker.Status(ctx, sourceID)
}

func (a *PDFAdapter) IndexStatus(ctx context.Context, sourceID string) (model.IngestionState, error) {
	return a.worker.Status(ctx, sourceID)
}

func (a *PDFAdapter) FormatCitation(metadata map[string]any) Citation {
	fields := map[string]any{}
	if p, ok := metadata["pageStart"]; ok {
		fields["pageStart"] = p
	}
	if p, ok := metadata["pageEnd"]; ok {
		fields["pageEnd"] = p
	}
	if s, ok := metadata["sectionPath"]; ok {
		fields["sectionPath"] = s
	}
	label := "PDF excerpt"
	if section, ok := metadata["sectionPath"].(string); ok && section != "" {
		label = section
	}
	return Citation{Type: "pdf", Label: label, Fields: fields}
}

// OntologyIngester triggers an ontology ingestion worker run for a given
// ontology kind and reports its current status.
type OntologyIngester interface {
	Ingest(ctx context.Context, sourceID string) error
	Status(ctx context.Context, sourceID string) (model.IngestionState, error)
}

// OntologyAdapter scopes searches by (source_type="ontology_<kind>", source_id).
type OntologyAdapter struct {
	kind   string
	worker OntologyIngester
}

// NewOntologyAdapter creates an OntologyAdapter for the given ontology kind
// (e.g. "disease", "phenotype"); Registration returns "ontology_<kind>".
func NewOntologyAdapter(kind string, worker OntologyIngester) *OntologyAdapter {
	return &OntologyAdapter{kind: kind, worker: worker}
}

func (a *OntologyAdapter) Registration() string { return "ontology_" + a.kind }

func (a *OntologyAdapter) Ingest(ctx context.Context, sourceID string) (model.IngestionState, error) {
	if err := a.worker.Ingest(ctx, sourceID); err != nil {
		return "", fmt.Errorf("service.OntologyAdapter.Ingest: %w", err)
	}
	return a.worker.Status(ctx, sourceID)
}

func (a *OntologyAdapter) IndexStatus(ctx context.Context, sourceID string) (model.IngestionState, error) {
	return a.worker.Status(ctx, sourceID)
}

func (a *OntologyAdapter) FormatCitation(metadata map[string]any) Citation {
	fields := map[string]any{}
	termID, _ := metadata["termId"].(string)
	if termID != "" {
		fields["termId"] = termID
	}
	label := termID
	if name, ok := metadata["name"].(string); ok && name != "" {
		label = name
	}
	return Citation{Type: "ontology_" + a.kind, Label: label, Fields: fields}
}
