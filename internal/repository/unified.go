package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/biorag/engine/internal/model"
	"github.com/biorag/engine/internal/service"
)

// UnifiedRepo backs C1/C6 for non-PDF scopes (ontology sources): vector
// search and embedding read/write over unified_chunk_embeddings, keyed by
// (chunk_id, model_name) the same way ChunkRepo keys PDF embeddings by
// (pdf_id, model_name). Kept as a separate table rather than a single
// column because a chunk can be embedded by more than one model
// concurrently, mirroring PDFEmbedding's versioning.
type UnifiedRepo struct {
	pool *pgxpool.Pool
}

// NewUnifiedRepo creates a UnifiedRepo.
func NewUnifiedRepo(pool *pgxpool.Pool) *UnifiedRepo {
	return &UnifiedRepo{pool: pool}
}

var (
	_ service.VectorSearcher       = (*UnifiedRepo)(nil)
	_ service.UnifiedChunkSource   = (*UnifiedRepo)(nil)
	_ service.UnifiedEmbeddingWriter = (*UnifiedRepo)(nil)
)

// Query implements service.VectorSearcher for a (source_type, source_id)
// scope bound to a model name.
func (r *UnifiedRepo) Query(ctx context.Context, scope service.Scope, queryVector []float32, topK int) ([]service.VectorCandidate, error) {
	embedding := pgvector.NewVector(queryVector)
	rows, err := r.pool.Query(ctx, `
		SELECT e.chunk_id, e.embedding <-> $1::vector AS distance
		FROM unified_chunk_embeddings e
		JOIN unified_chunks c ON c.chunk_id = e.chunk_id
		WHERE c.source_type = $2 AND c.source_id = $3 AND e.model_name = $4
		ORDER BY e.embedding <-> $1::vector
		LIMIT $5`, embedding, scope.SourceType, scope.SourceID, scope.ModelName, topK)
	if err != nil {
		return nil, fmt.Errorf("repository.UnifiedRepo.Query: %w", err)
	}
	defer rows.Close()

	var out []service.VectorCandidate
	for rows.Next() {
		var c service.VectorCandidate
		if err := rows.Scan(&c.ChunkID, &c.Distance); err != nil {
			return nil, fmt.Errorf("repository.UnifiedRepo.Query: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}

// ListAll returns every unified chunk in scope, used by EmbedUnifiedChunks
// when force=true.
func (r *UnifiedRepo) ListAll(ctx context.Context, sourceType, sourceID string) ([]model.UnifiedChunk, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT chunk_id, source_type, source_id, chunk_text, created_at
		FROM unified_chunks WHERE source_type = $1 AND source_id = $2`, sourceType, sourceID)
	if err != nil {
		return nil, fmt.Errorf("repository.UnifiedRepo.ListAll: %w", err)
	}
	defer rows.Close()
	return scanUnifiedChunks(rows)
}

// ListUnembedded returns unified chunks in scope lacking an embedding row
// at modelName.
func (r *UnifiedRepo) ListUnembedded(ctx context.Context, sourceType, sourceID, modelName string) ([]model.UnifiedChunk, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.chunk_id, c.source_type, c.source_id, c.chunk_text, c.created_at
		FROM unified_chunks c
		LEFT JOIN unified_chunk_embeddings e ON e.chunk_id = c.chunk_id AND e.model_name = $3
		WHERE c.source_type = $1 AND c.source_id = $2 AND e.chunk_id IS NULL`, sourceType, sourceID, modelName)
	if err != nil {
		return nil, fmt.Errorf("repository.UnifiedRepo.ListUnembedded: %w", err)
	}
	defer rows.Close()
	return scanUnifiedChunks(rows)
}

func scanUnifiedChunks(rows pgx.Rows) ([]model.UnifiedChunk, error) {
	var chunks []model.UnifiedChunk
	for rows.Next() {
		var c model.UnifiedChunk
		if err := rows.Scan(&c.ChunkID, &c.SourceType, &c.SourceID, &c.ChunkText, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository.scanUnifiedChunks: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// WriteEmbeddings upserts (chunk_id, model_name) embedding rows.
func (r *UnifiedRepo) WriteEmbeddings(ctx context.Context, chunkIDs []string, modelName, version string, vectors [][]float32) error {
	if len(chunkIDs) != len(vectors) {
		return fmt.Errorf("repository.UnifiedRepo.WriteEmbeddings: chunkIDs (%d) != vectors (%d)", len(chunkIDs), len(vectors))
	}

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for i, id := range chunkIDs {
		batch.Queue(`
			INSERT INTO unified_chunk_embeddings (chunk_id, model_name, model_version, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (chunk_id, model_name) DO UPDATE SET embedding = $4, model_version = $3, created_at = $5`,
			id, modelName, version, pgvector.NewVector(vectors[i]), now,
		)
	}
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < len(chunkIDs); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("repository.UnifiedRepo.WriteEmbeddings: row %d: %w", i, err)
		}
	}
	return nil
}
