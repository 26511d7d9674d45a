package worker

import (
	"context"
	"fmt"

	"github.com/biorag/engine/internal/model"
)

// PDFSource reads a PDFDocument's storage location and mime type.
type PDFSource interface {
	GetDocument(ctx context.Context, pdfID string) (*model.PDFDocument, error)
}

// PDFArtifactFingerprinter fingerprints the GCS object backing a PDF, since
// the artifact lives in object storage rather than the local filesystem.
type PDFArtifactFingerprinter interface {
	Fingerprint(ctx context.Context, gcsURI string) (model.FileInfo, error)
}

// PDFParser extracts text from a PDF (or falls back to plain text) addressed
// by its storage path and mime type.
type PDFParser interface {
	Extract(ctx context.Context, gcsURI, mimeType string) (*ParseResult, error)
}

// ParseResult mirrors service.ParseResult without importing the service
// package, keeping worker's dependency direction one-way (worker -> service
// would otherwise cycle with service -> worker callers in the adapters).
type ParseResult struct {
	Text  string
	Pages int
}

// Chunker splits extracted text into ordered PDFChunks.
type Chunker interface {
	Chunk(ctx context.Context, text, pdfID string) ([]model.PDFChunk, error)
}

// PDFWriter atomically replaces a PDF's chunk set: delete-then-insert inside
// a single unit of work, returning counts for the status payload.
type PDFWriter interface {
	ReplaceChunks(ctx context.Context, pdfID string, chunks []model.PDFChunk) (deleted, inserted int, err error)
}

// PDFEmbedder is the subset of EmbedderService the worker needs for
// auto-embed after a successful ingest.
type PDFEmbedder interface {
	EmbedPDF(ctx context.Context, pdfID, modelName, version string, batchSize int, force bool) (model.EmbeddingSummary, error)
}

// PDFWorker implements C9 for PDF sources: Document AI (or fallback) text
// extraction, chunking, and the two-phase transactional ingest, grounded on
// the donor's former PipelineService.ProcessDocument concurrency guard.
type PDFWorker struct {
	lock        ScopeLock
	status      StatusStore
	source      PDFSource
	fingerprint PDFArtifactFingerprinter
	parser      PDFParser
	chunker     Chunker
	writer      PDFWriter
	embedder    PDFEmbedder
}

// NewPDFWorker creates a PDFWorker.
func NewPDFWorker(
	lock ScopeLock,
	status StatusStore,
	source PDFSource,
	fingerprint PDFArtifactFingerprinter,
	parser PDFParser,
	chunker Chunker,
	writer PDFWriter,
	embedder PDFEmbedder,
) *PDFWorker {
	return &PDFWorker{
		lock:        lock,
		status:      status,
		source:      source,
		fingerprint: fingerprint,
		parser:      parser,
		chunker:     chunker,
		writer:      writer,
		embedder:    embedder,
	}
}

// Ingest parses pdfID's stored artifact and replaces its chunk set. When
// autoEmbed is set, it embeds the new chunks with force=true after commit.
func (w *PDFWorker) Ingest(ctx context.Context, pdfID, embeddingModel string, autoEmbed bool) error {
	const sourceType = "pdf"

	unlock, err := w.lock.Lock(ctx, sourceType, pdfID)
	if err != nil {
		return fmt.Errorf("worker.PDFWorker.Ingest: acquire lock: %w", err)
	}
	defer unlock()

	doc, err := w.source.GetDocument(ctx, pdfID)
	if err != nil {
		w.markError(ctx, pdfID, err)
		return fmt.Errorf("worker.PDFWorker.Ingest: get document: %w", err)
	}

	fileInfo, err := w.fingerprint.Fingerprint(ctx, doc.StoragePath)
	if err != nil {
		w.markError(ctx, pdfID, err)
		return fmt.Errorf("worker.PDFWorker.Ingest: fingerprint: %w", err)
	}

	parsed, err := w.parser.Extract(ctx, doc.StoragePath, doc.MimeType)
	if err != nil {
		w.markError(ctx, pdfID, err)
		return fmt.Errorf("worker.PDFWorker.Ingest: extract: %w", err)
	}

	chunks, err := w.chunker.Chunk(ctx, parsed.Text, pdfID)
	if err != nil {
		w.markError(ctx, pdfID, err)
		return fmt.Errorf("worker.PDFWorker.Ingest: chunk: %w", err)
	}

	deleted, inserted, err := w.writer.ReplaceChunks(ctx, pdfID, chunks)
	if err != nil {
		w.markError(ctx, pdfID, err)
		return fmt.Errorf("worker.PDFWorker.Ingest: replace chunks: %w", err)
	}

	if err := w.status.SetStatus(ctx, sourceType, pdfID, model.IngestionIndexing, model.StatusMessage{
		Stage:    "indexing",
		FileInfo: &fileInfo,
		Deleted:  map[string]int{"chunks": deleted},
		Inserted: map[string]int{"chunks": inserted},
	}); err != nil {
		return fmt.Errorf("worker.PDFWorker.Ingest: set indexing status: %w", err)
	}

	if !autoEmbed {
		return w.status.SetStatus(ctx, sourceType, pdfID, model.IngestionReady, model.StatusMessage{
			Stage:    "awaiting_embeddings",
			FileInfo: &fileInfo,
		})
	}

	summary, err := w.embedder.EmbedPDF(ctx, pdfID, embeddingModel, "", 0, true)
	if err != nil {
		return w.status.SetStatus(ctx, sourceType, pdfID, model.IngestionError, model.StatusMessage{
			Stage:     "error",
			FileInfo:  &fileInfo,
			Embedding: &model.EmbeddingSummary{Error: err.Error()},
		})
	}

	return w.status.SetStatus(ctx, sourceType, pdfID, model.IngestionReady, model.StatusMessage{
		Stage:    "ready",
		FileInfo: &fileInfo,
		Embedding: &model.EmbeddingSummary{
			Embedded: summary.Embedded,
			Skipped:  summary.Skipped,
		},
	})
}

// Status returns the current ingestion state for a PDF, NOT_INDEXED if no
// row exists yet.
func (w *PDFWorker) Status(ctx context.Context, pdfID string) (model.IngestionState, error) {
	status, err := w.status.GetStatus(ctx, "pdf", pdfID)
	if err != nil {
		return "", fmt.Errorf("worker.PDFWorker.Status: %w", err)
	}
	if status == nil {
		return model.IngestionNotIndexed, nil
	}
	return status.State, nil
}

func (w *PDFWorker) markError(ctx context.Context, pdfID string, cause error) {
	_ = w.status.SetStatus(ctx, "pdf", pdfID, model.IngestionError, model.StatusMessage{
		Stage:     "error",
		Embedding: &model.EmbeddingSummary{Error: cause.Error()},
	})
}
