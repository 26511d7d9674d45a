package worker

import (
	"context"
	"fmt"

	"github.com/biorag/engine/internal/model"
)

// ScopeLock serializes concurrent re-ingests of the same (source_type,
// source_id) scope via the status row's advisory lock, per §4.9's
// concurrency note.
type ScopeLock interface {
	Lock(ctx context.Context, sourceType, sourceID string) (unlock func(), err error)
}

// StatusStore reads and writes the single IngestionStatus row per scope.
type StatusStore interface {
	GetStatus(ctx context.Context, sourceType, sourceID string) (*model.IngestionStatus, error)
	SetStatus(ctx context.Context, sourceType, sourceID string, state model.IngestionState, message model.StatusMessage) error
}

// OntologyWriter atomically replaces the term/relation/chunk rows for an
// ontology scope: delete-then-insert inside a single unit of work.
type OntologyWriter interface {
	ReplaceScope(ctx context.Context, ontologyType, sourceID string, terms []model.OntologyTerm, relations []model.OntologyTermRelation, chunks []model.UnifiedChunk) (deleted map[string]int, err error)
}

// OntologyEmbedder is the subset of EmbedderService the worker needs for
// auto-embed after a successful ingest.
type OntologyEmbedder interface {
	EmbedUnifiedChunks(ctx context.Context, sourceType, sourceID, modelName string, batchSize int, force bool) (model.EmbeddingSummary, error)
}

// OntologyWorker implements C9 for ontology sources: OBO parsing, two-phase
// transactional ingest, and the status FSM transitions. Grounded on
// ingest_ontology.py and the donor's per-scope processing guard.
type OntologyWorker struct {
	lock     ScopeLock
	status   StatusStore
	writer   OntologyWriter
	embedder OntologyEmbedder
}

// NewOntologyWorker creates an OntologyWorker.
func NewOntologyWorker(lock ScopeLock, status StatusStore, writer OntologyWriter, embedder OntologyEmbedder) *OntologyWorker {
	return &OntologyWorker{lock: lock, status: status, writer: writer, embedder: embedder}
}

// Ingest parses oboPath and replaces the (ontology_<ontologyType>, sourceID)
// scope's terms, relations, and unified chunks. When autoEmbed is set, it
// embeds the new chunks with force=true immediately after commit.
func (w *OntologyWorker) Ingest(ctx context.Context, ontologyType, sourceID, oboPath, embeddingModel string, autoEmbed bool) error {
	sourceType := "ontology_" + ontologyType

	unlock, err := w.lock.Lock(ctx, sourceType, sourceID)
	if err != nil {
		return fmt.Errorf("worker.OntologyWorker.Ingest: acquire lock: %w", err)
	}
	defer unlock()

	fileInfo, err := Fingerprint(oboPath)
	if err != nil {
		w.markError(ctx, sourceType, sourceID, err)
		return fmt.Errorf("worker.OntologyWorker.Ingest: %w", err)
	}

	oboTerms, err := ParseOboFile(oboPath)
	if err != nil {
		w.markError(ctx, sourceType, sourceID, err)
		return fmt.Errorf("worker.OntologyWorker.Ingest: %w", err)
	}

	terms := make([]model.OntologyTerm, 0, len(oboTerms))
	var relations []model.OntologyTermRelation
	chunks := make([]model.UnifiedChunk, 0, len(oboTerms))

	for _, t := range oboTerms {
		if t.ID == "" {
			continue
		}
		terms = append(terms, model.OntologyTerm{
			TermID:       t.ID,
			OntologyType: ontologyType,
			SourceID:     sourceID,
			Name:         t.Name,
			Definition:   t.Definition,
			Synonyms:     t.Synonyms,
			Xrefs:        t.Xrefs,
			TermMetadata: map[string]any{"parents": t.Parents},
		})
		for _, parent := range t.Parents {
			if parent == t.ID {
				continue // no self-edges
			}
			relations = append(relations, model.OntologyTermRelation{
				SourceID:     sourceID,
				OntologyType: ontologyType,
				ChildTermID:  t.ID,
				ParentTermID: parent,
				RelationType: "is_a",
			})
		}
		chunks = append(chunks, model.UnifiedChunk{
			ChunkID:    t.ID,
			SourceType: sourceType,
			SourceID:   sourceID,
			ChunkText:  FormatChunkText(t),
			ChunkMetadata: map[string]any{
				"termId":     t.ID,
				"name":       t.Name,
				"definition": t.Definition,
				"synonyms":   t.Synonyms,
				"parents":    t.Parents,
				"xrefs":      t.Xrefs,
			},
		})
	}

	deleted, err := w.writer.ReplaceScope(ctx, ontologyType, sourceID, terms, relations, chunks)
	if err != nil {
		w.markError(ctx, sourceType, sourceID, err)
		return fmt.Errorf("worker.OntologyWorker.Ingest: replace scope: %w", err)
	}

	if err := w.status.SetStatus(ctx, sourceType, sourceID, model.IngestionIndexing, model.StatusMessage{
		Stage:    "indexing",
		FileInfo: &fileInfo,
		Deleted:  deleted,
		Inserted: map[string]int{"terms": len(terms), "relations": len(relations), "chunks": len(chunks)},
	}); err != nil {
		return fmt.Errorf("worker.OntologyWorker.Ingest: set indexing status: %w", err)
	}

	if !autoEmbed {
		return w.status.SetStatus(ctx, sourceType, sourceID, model.IngestionReady, model.StatusMessage{
			Stage:    "awaiting_embeddings",
			FileInfo: &fileInfo,
		})
	}

	summary, err := w.embedder.EmbedUnifiedChunks(ctx, sourceType, sourceID, embeddingModel, 0, true)
	if err != nil {
		return w.status.SetStatus(ctx, sourceType, sourceID, model.IngestionError, model.StatusMessage{
			Stage:     "error",
			FileInfo:  &fileInfo,
			Embedding: &model.EmbeddingSummary{Error: err.Error()},
		})
	}

	return w.status.SetStatus(ctx, sourceType, sourceID, model.IngestionReady, model.StatusMessage{
		Stage:    "ready",
		FileInfo: &fileInfo,
		Embedding: &model.EmbeddingSummary{
			Embedded: summary.Embedded,
			Skipped:  summary.Skipped,
		},
	})
}

// Status returns the current ingestion state for a scope, NOT_INDEXED if
// no row exists yet.
func (w *OntologyWorker) Status(ctx context.Context, ontologyType, sourceID string) (model.IngestionState, error) {
	status, err := w.status.GetStatus(ctx, "ontology_"+ontologyType, sourceID)
	if err != nil {
		return "", fmt.Errorf("worker.OntologyWorker.Status: %w", err)
	}
	if status == nil {
		return model.IngestionNotIndexed, nil
	}
	return status.State, nil
}

func (w *OntologyWorker) markError(ctx context.Context, sourceType, sourceID string, cause error) {
	_ = w.status.SetStatus(ctx, sourceType, sourceID, model.IngestionError, model.StatusMessage{
		Stage:     "error",
		Embedding: &model.EmbeddingSummary{Error: cause.Error()},
	})
}
