package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/biorag/engine/internal/model"
	"github.com/biorag/engine/internal/service"
)

// ChunkRepo persists PDF chunks and their per-model embeddings, and answers
// C1's vector search and the shared hydration lookup over the PDF scope.
// Grounded on the donor's ChunkRepo, generalized from a single embedding
// column to the versioned (pdf_id, model_name) embedding sets §4.6 requires.
type ChunkRepo struct {
	pool *pgxpool.Pool
}

// NewChunkRepo creates a ChunkRepo.
func NewChunkRepo(pool *pgxpool.Pool) *ChunkRepo {
	return &ChunkRepo{pool: pool}
}

// Compile-time checks.
var (
	_ service.VectorSearcher      = (*ChunkRepo)(nil)
	_ service.ChunkHydrator       = (*ChunkRepo)(nil)
	_ service.PDFChunkSource      = (*ChunkRepo)(nil)
	_ service.PDFEmbeddingWriter  = (*ChunkRepo)(nil)
)

// ReplaceChunks atomically replaces pdf_id's chunk set, returning the
// deleted and inserted row counts for the status payload.
func (r *ChunkRepo) ReplaceChunks(ctx context.Context, pdfID string, chunks []model.PDFChunk) (deleted, inserted int, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("repository.ChunkRepo.ReplaceChunks: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM pdf_chunks WHERE pdf_id = $1`, pdfID)
	if err != nil {
		return 0, 0, fmt.Errorf("repository.ChunkRepo.ReplaceChunks: delete: %w", err)
	}
	deleted = int(tag.RowsAffected())

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for i := range chunks {
		id := uuid.New().String()
		c := chunks[i]
		batch.Queue(`
			INSERT INTO pdf_chunks (id, pdf_id, chunk_index, text, content_hash, page_start, page_end, section_path, is_table, is_figure, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			id, pdfID, c.ChunkIndex, c.Text, c.ContentHash, c.PageStart, c.PageEnd, c.SectionPath, c.IsTable, c.IsFigure, now,
		)
	}
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < len(chunks); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return 0, 0, fmt.Errorf("repository.ChunkRepo.ReplaceChunks: insert chunk %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, 0, fmt.Errorf("repository.ChunkRepo.ReplaceChunks: close batch: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE pdf_documents SET chunk_count = $1 WHERE id = $2`, len(chunks), pdfID); err != nil {
		return 0, 0, fmt.Errorf("repository.ChunkRepo.ReplaceChunks: update chunk_count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("repository.ChunkRepo.ReplaceChunks: commit: %w", err)
	}

	return deleted, len(chunks), nil
}

// ListChunks returns pdf_id's chunks in index order.
func (r *ChunkRepo) ListChunks(ctx context.Context, pdfID string) ([]model.PDFChunk, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, pdf_id, chunk_index, text, content_hash, page_start, page_end, section_path, is_table, is_figure
		FROM pdf_chunks WHERE pdf_id = $1 ORDER BY chunk_index ASC`, pdfID)
	if err != nil {
		return nil, fmt.Errorf("repository.ChunkRepo.ListChunks: %w", err)
	}
	defer rows.Close()

	var chunks []model.PDFChunk
	for rows.Next() {
		var c model.PDFChunk
		if err := rows.Scan(&c.ID, &c.PDFID, &c.ChunkIndex, &c.Text, &c.ContentHash, &c.PageStart, &c.PageEnd, &c.SectionPath, &c.IsTable, &c.IsFigure); err != nil {
			return nil, fmt.Errorf("repository.ChunkRepo.ListChunks: scan: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// HasCompleteSet reports whether every chunk currently on pdf_id has an
// embedding row at (modelName, version).
func (r *ChunkRepo) HasCompleteSet(ctx context.Context, pdfID, modelName, version string) (bool, error) {
	var total, embedded int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM pdf_chunks WHERE pdf_id = $1`, pdfID).Scan(&total)
	if err != nil {
		return false, fmt.Errorf("repository.ChunkRepo.HasCompleteSet: count chunks: %w", err)
	}
	if total == 0 {
		return false, nil
	}
	err = r.pool.QueryRow(ctx, `
		SELECT count(*) FROM pdf_embeddings
		WHERE pdf_id = $1 AND model_name = $2 AND model_version = $3`, pdfID, modelName, version).Scan(&embedded)
	if err != nil {
		return false, fmt.Errorf("repository.ChunkRepo.HasCompleteSet: count embeddings: %w", err)
	}
	return embedded == total, nil
}

// ReplaceEmbeddings atomically replaces (pdf_id, model_name)'s embedding set
// and upserts the parent document's embedding_models entry.
func (r *ChunkRepo) ReplaceEmbeddings(ctx context.Context, pdfID, modelName, version string, dimensions int, rows []model.PDFEmbedding) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository.ChunkRepo.ReplaceEmbeddings: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM pdf_embeddings WHERE pdf_id = $1 AND model_name = $2`, pdfID, modelName); err != nil {
		return fmt.Errorf("repository.ChunkRepo.ReplaceEmbeddings: delete: %w", err)
	}

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO pdf_embeddings (pdf_id, chunk_id, model_name, model_version, dimensions, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			row.PDFID, row.ChunkID, row.ModelName, row.ModelVersion, row.Dimensions, pgvector.NewVector(row.Vector), now,
		)
	}
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < len(rows); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("repository.ChunkRepo.ReplaceEmbeddings: insert row %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("repository.ChunkRepo.ReplaceEmbeddings: close batch: %w", err)
	}

	entryJSON, err := json.Marshal(model.EmbeddingModelEntry{ModelName: modelName, Version: version, Dimensions: dimensions, EmbeddedAt: now})
	if err != nil {
		return fmt.Errorf("repository.ChunkRepo.ReplaceEmbeddings: marshal entry: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE pdf_documents
		SET embedding_models = COALESCE(embedding_models, '{}'::jsonb) || jsonb_build_object($2::text, $3::jsonb)
		WHERE id = $1`, pdfID, modelName, entryJSON); err != nil {
		return fmt.Errorf("repository.ChunkRepo.ReplaceEmbeddings: upsert embedding_models: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository.ChunkRepo.ReplaceEmbeddings: commit: %w", err)
	}
	return nil
}

// Query implements service.VectorSearcher for the PDF scope: nearest
// neighbors within (pdf_id, model_name).
func (r *ChunkRepo) Query(ctx context.Context, scope service.Scope, queryVector []float32, topK int) ([]service.VectorCandidate, error) {
	embedding := pgvector.NewVector(queryVector)
	rows, err := r.pool.Query(ctx, `
		SELECT chunk_id, embedding <-> $1::vector AS distance
		FROM pdf_embeddings
		WHERE pdf_id = $2 AND model_name = $3
		ORDER BY embedding <-> $1::vector
		LIMIT $4`, embedding, scope.SourceID, scope.ModelName, topK)
	if err != nil {
		return nil, fmt.Errorf("repository.ChunkRepo.Query: %w", err)
	}
	defer rows.Close()

	var out []service.VectorCandidate
	for rows.Next() {
		var c service.VectorCandidate
		if err := rows.Scan(&c.ChunkID, &c.Distance); err != nil {
			return nil, fmt.Errorf("repository.ChunkRepo.Query: scan: %w", err)
		}
		out = append(out, c)
	}

	slog.Debug("vector search complete", "source_id", scope.SourceID, "model", scope.ModelName, "results", len(out))
	return out, nil
}

// HydrateChunks implements service.ChunkHydrator: a single batched lookup
// across both pdf_chunks and unified_chunks, keyed by chunk_id.
func (r *ChunkRepo) HydrateChunks(ctx context.Context, chunkIDs []string) (map[string]service.ChunkMetadata, error) {
	out := make(map[string]service.ChunkMetadata, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return out, nil
	}

	pdfRows, err := r.pool.Query(ctx, `
		SELECT id, text, page_start, section_path, is_table, is_figure
		FROM pdf_chunks WHERE id = ANY($1)`, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("repository.ChunkRepo.HydrateChunks: pdf_chunks: %w", err)
	}
	for pdfRows.Next() {
		var id, text, section string
		var page int
		var isTable, isFigure bool
		if err := pdfRows.Scan(&id, &text, &page, &section, &isTable, &isFigure); err != nil {
			pdfRows.Close()
			return nil, fmt.Errorf("repository.ChunkRepo.HydrateChunks: scan pdf_chunks: %w", err)
		}
		p := page
		out[id] = service.ChunkMetadata{Text: text, Page: &p, Section: section, IsTable: isTable, IsFigure: isFigure}
	}
	pdfRows.Close()

	uniRows, err := r.pool.Query(ctx, `
		SELECT chunk_id, chunk_text FROM unified_chunks WHERE chunk_id = ANY($1)`, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("repository.ChunkRepo.HydrateChunks: unified_chunks: %w", err)
	}
	defer uniRows.Close()
	for uniRows.Next() {
		var id, text string
		if err := uniRows.Scan(&id, &text); err != nil {
			return nil, fmt.Errorf("repository.ChunkRepo.HydrateChunks: scan unified_chunks: %w", err)
		}
		if _, exists := out[id]; !exists {
			out[id] = service.ChunkMetadata{Text: text}
		}
	}

	return out, nil
}
