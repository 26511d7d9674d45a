package service

import (
	"context"
	"fmt"

	"github.com/biorag/engine/internal/model"
	"github.com/biorag/engine/internal/ragerr"
)

// EmbeddingModelSpec is one entry of the process-global model registry.
type EmbeddingModelSpec struct {
	Dimensions       int
	DefaultVersion   string
	MaxBatchSize     int
	DefaultBatchSize int
}

// ModelRegistry is the per-process immutable mapping model_name -> spec
// that §4.6 requires. Populated once at startup; never mutated after.
type ModelRegistry map[string]EmbeddingModelSpec

// Lookup returns the spec for name, or InvalidArgument if unknown.
func (r ModelRegistry) Lookup(name string) (EmbeddingModelSpec, error) {
	spec, ok := r[name]
	if !ok {
		return EmbeddingModelSpec{}, ragerr.New(ragerr.InvalidArgument, "service.ModelRegistry.Lookup", "unknown embedding model %q", name)
	}
	return spec, nil
}

// EmbeddingClient embeds a batch of texts into vectors of a fixed
// dimensionality. The number of returned vectors must equal len(texts).
type EmbeddingClient interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// PDFChunkSource reads the ordered chunk set for a PDF and reports whether
// an existing embedding set already covers it at the requested version.
type PDFChunkSource interface {
	ListChunks(ctx context.Context, pdfID string) ([]model.PDFChunk, error)
	HasCompleteSet(ctx context.Context, pdfID, modelName, version string) (bool, error)
}

// PDFEmbeddingWriter atomically replaces a (pdf_id, model_name) embedding
// set and upserts the parent document's embedding_models entry.
type PDFEmbeddingWriter interface {
	ReplaceEmbeddings(ctx context.Context, pdfID, modelName, version string, dimensions int, rows []model.PDFEmbedding) error
}

// UnifiedChunkSource reads unified chunks for a scope, optionally only
// those lacking an embedding.
type UnifiedChunkSource interface {
	ListUnembedded(ctx context.Context, sourceType, sourceID, modelName string) ([]model.UnifiedChunk, error)
	ListAll(ctx context.Context, sourceType, sourceID string) ([]model.UnifiedChunk, error)
}

// UnifiedEmbeddingWriter writes embeddings for unified chunks in place,
// keyed by (chunk_id, model_name) since a chunk may carry vectors from more
// than one model concurrently.
type UnifiedEmbeddingWriter interface {
	WriteEmbeddings(ctx context.Context, chunkIDs []string, modelName, version string, vectors [][]float32) error
}

// EmbedderService implements C6: versioned batch embedding with idempotence
// and force-refresh, grounded on the donor's embedding_service.py and the
// donor's former EmbedderService batching/client shape.
type EmbedderService struct {
	registry   ModelRegistry
	client     EmbeddingClient
	pdfSource  PDFChunkSource
	pdfWriter  PDFEmbeddingWriter
	uniSource  UnifiedChunkSource
	uniWriter  UnifiedEmbeddingWriter
}

// NewEmbedderService creates an EmbedderService.
func NewEmbedderService(
	registry ModelRegistry,
	client EmbeddingClient,
	pdfSource PDFChunkSource,
	pdfWriter PDFEmbeddingWriter,
	uniSource UnifiedChunkSource,
	uniWriter UnifiedEmbeddingWriter,
) *EmbedderService {
	return &EmbedderService{
		registry:  registry,
		client:    client,
		pdfSource: pdfSource,
		pdfWriter: pdfWriter,
		uniSource: uniSource,
		uniWriter: uniWriter,
	}
}

func (s *EmbedderService) resolveBatchSize(spec EmbeddingModelSpec, requested int) (int, error) {
	if requested == 0 {
		return spec.DefaultBatchSize, nil
	}
	if requested <= 0 || requested > spec.MaxBatchSize {
		return 0, ragerr.New(ragerr.InvalidArgument, "service.Embedder", "batch_size %d out of range (0, %d]", requested, spec.MaxBatchSize)
	}
	return requested, nil
}

// EmbedPDF implements embed_pdf(pdf_id, model_name, version?, batch_size?, force?).
func (s *EmbedderService) EmbedPDF(ctx context.Context, pdfID, modelName, version string, batchSize int, force bool) (model.EmbeddingSummary, error) {
	spec, err := s.registry.Lookup(modelName)
	if err != nil {
		return model.EmbeddingSummary{}, err
	}
	if version == "" {
		version = spec.DefaultVersion
	}
	effectiveBatch, err := s.resolveBatchSize(spec, batchSize)
	if err != nil {
		return model.EmbeddingSummary{}, err
	}

	chunks, err := s.pdfSource.ListChunks(ctx, pdfID)
	if err != nil {
		return model.EmbeddingSummary{}, fmt.Errorf("service.Embedder.EmbedPDF: list chunks: %w", err)
	}

	if !force {
		complete, err := s.pdfSource.HasCompleteSet(ctx, pdfID, modelName, version)
		if err != nil {
			return model.EmbeddingSummary{}, fmt.Errorf("service.Embedder.EmbedPDF: check existing set: %w", err)
		}
		if complete {
			return model.EmbeddingSummary{Skipped: len(chunks)}, nil
		}
	}

	rows := make([]model.PDFEmbedding, 0, len(chunks))
	for start := 0; start < len(chunks); start += effectiveBatch {
		end := start + effectiveBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := s.client.EmbedBatch(ctx, texts)
		if err != nil {
			return model.EmbeddingSummary{}, fmt.Errorf("service.Embedder.EmbedPDF: embed batch: %w", err)
		}
		if len(vectors) != len(batch) {
			return model.EmbeddingSummary{}, ragerr.New(ragerr.ProviderProtocolError, "service.Embedder.EmbedPDF", "embedding client returned %d vectors for %d chunks", len(vectors), len(batch))
		}
		for i, c := range batch {
			rows = append(rows, model.PDFEmbedding{
				PDFID:        pdfID,
				ChunkID:      c.ID,
				ModelName:    modelName,
				ModelVersion: version,
				Dimensions:   spec.Dimensions,
				Vector:       vectors[i],
			})
		}
	}

	if err := s.pdfWriter.ReplaceEmbeddings(ctx, pdfID, modelName, version, spec.Dimensions, rows); err != nil {
		return model.EmbeddingSummary{}, fmt.Errorf("service.Embedder.EmbedPDF: replace embeddings: %w", err)
	}

	return model.EmbeddingSummary{Embedded: len(rows)}, nil
}

// EmbedUnifiedChunks implements embed_unified_chunks(source_type, source_id, model_name, batch_size?, force?).
func (s *EmbedderService) EmbedUnifiedChunks(ctx context.Context, sourceType, sourceID, modelName string, batchSize int, force bool) (model.EmbeddingSummary, error) {
	spec, err := s.registry.Lookup(modelName)
	if err != nil {
		return model.EmbeddingSummary{}, err
	}
	effectiveBatch, err := s.resolveBatchSize(spec, batchSize)
	if err != nil {
		return model.EmbeddingSummary{}, err
	}

	var chunks []model.UnifiedChunk
	var skipped int
	if force {
		chunks, err = s.uniSource.ListAll(ctx, sourceType, sourceID)
	} else {
		chunks, err = s.uniSource.ListUnembedded(ctx, sourceType, sourceID, modelName)
		if err == nil {
			all, allErr := s.uniSource.ListAll(ctx, sourceType, sourceID)
			if allErr == nil {
				skipped = len(all) - len(chunks)
				if skipped < 0 {
					skipped = 0
				}
			}
		}
	}
	if err != nil {
		return model.EmbeddingSummary{}, fmt.Errorf("service.Embedder.EmbedUnifiedChunks: list chunks: %w", err)
	}

	embedded := 0
	for start := 0; start < len(chunks); start += effectiveBatch {
		end := start + effectiveBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		chunkIDs := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.ChunkText
			chunkIDs[i] = c.ChunkID
		}
		vectors, err := s.client.EmbedBatch(ctx, texts)
		if err != nil {
			return model.EmbeddingSummary{}, fmt.Errorf("service.Embedder.EmbedUnifiedChunks: embed batch: %w", err)
		}
		if len(vectors) != len(batch) {
			return model.EmbeddingSummary{}, ragerr.New(ragerr.ProviderProtocolError, "service.Embedder.EmbedUnifiedChunks", "embedding client returned %d vectors for %d chunks", len(vectors), len(batch))
		}
		if err := s.uniWriter.WriteEmbeddings(ctx, chunkIDs, modelName, spec.DefaultVersion, vectors); err != nil {
			return model.EmbeddingSummary{}, fmt.Errorf("service.Embedder.EmbedUnifiedChunks: write embeddings: %w", err)
		}
		embedded += len(batch)
	}

	return model.EmbeddingSummary{Embedded: embedded, Skipped: skipped}, nil
}
