package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/biorag/engine/internal/model"
	"github.com/biorag/engine/internal/worker"
)

// PDFRepo implements worker.PDFSource: the parent PDFDocument row a worker
// reads to locate and fingerprint the stored artifact.
type PDFRepo struct {
	pool *pgxpool.Pool
}

// NewPDFRepo creates a PDFRepo.
func NewPDFRepo(pool *pgxpool.Pool) *PDFRepo {
	return &PDFRepo{pool: pool}
}

var _ worker.PDFSource = (*PDFRepo)(nil)

// Create inserts a new PDFDocument row. EmbeddingModels starts empty: a
// freshly ingested document has no embedding sets yet, those are added by
// ReplaceEmbeddings as (model_name -> entry) merges once C6 runs.
func (r *PDFRepo) Create(ctx context.Context, doc *model.PDFDocument) error {
	doc.CreatedAt = time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO pdf_documents (id, filename, storage_path, mime_type, chunk_count, embedding_models, created_at)
		VALUES ($1, $2, $3, $4, $5, '{}'::jsonb, $6)`,
		doc.ID, doc.Filename, doc.StoragePath, doc.MimeType, doc.ChunkCount, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository.PDFRepo.Create: %w", err)
	}
	return nil
}

// GetDocument loads a PDFDocument by ID.
func (r *PDFRepo) GetDocument(ctx context.Context, pdfID string) (*model.PDFDocument, error) {
	var doc model.PDFDocument
	var modelsJSON []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, filename, storage_path, mime_type, chunk_count, embedding_models, created_at
		FROM pdf_documents WHERE id = $1`, pdfID,
	).Scan(&doc.ID, &doc.Filename, &doc.StoragePath, &doc.MimeType, &doc.ChunkCount, &modelsJSON, &doc.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("repository.PDFRepo.GetDocument: pdf %s not found", pdfID)
		}
		return nil, fmt.Errorf("repository.PDFRepo.GetDocument: %w", err)
	}
	if len(modelsJSON) > 0 {
		var entries map[string]model.EmbeddingModelEntry
		if err := json.Unmarshal(modelsJSON, &entries); err == nil {
			for _, e := range entries {
				doc.EmbeddingModels = append(doc.EmbeddingModels, e)
			}
		}
	}
	return &doc, nil
}
