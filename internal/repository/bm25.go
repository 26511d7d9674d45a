package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/biorag/engine/internal/service"
)

// BM25Repository implements service.LexicalSearcher (C2) using PostgreSQL
// full-text search. Relies on GIN indexes over pdf_chunks.content_tsv and
// unified_chunks.search_vector. Grounded on the donor's BM25Repository
// ts_rank_cd wiring, generalized from a single table to the two-table scope
// split §4.2/§9 OQ2 requires.
type BM25Repository struct {
	pool *pgxpool.Pool
}

// NewBM25Repository creates a BM25Repository.
func NewBM25Repository(pool *pgxpool.Pool) *BM25Repository {
	return &BM25Repository{pool: pool}
}

// Compile-time check.
var _ service.LexicalSearcher = (*BM25Repository)(nil)

// Query finds chunks matching queryText within scope. For a PDF scope it
// joins pdf_chunks and breaks rank ties by chunk_index ASC; for a unified
// scope (no PDF join available) it breaks ties by chunk_id ASC per OQ2.
func (r *BM25Repository) Query(ctx context.Context, scope service.Scope, queryText string, topK int) ([]service.LexicalCandidate, error) {
	var rows interface {
		Next() bool
		Scan(dest ...any) error
		Close()
		Err() error
	}

	if scope.SourceType == "pdf" {
		pgxRows, err := r.pool.Query(ctx, `
			SELECT id, text, ts_rank_cd(content_tsv, plainto_tsquery('english', $1)) AS rank
			FROM pdf_chunks
			WHERE pdf_id = $2 AND content_tsv @@ plainto_tsquery('english', $1)
			ORDER BY rank DESC, chunk_index ASC
			LIMIT $3`, queryText, scope.SourceID, topK)
		if err != nil {
			return nil, fmt.Errorf("repository.BM25Repository.Query: pdf: %w", err)
		}
		rows = pgxRows
	} else {
		pgxRows, err := r.pool.Query(ctx, `
			SELECT chunk_id, chunk_text, ts_rank_cd(search_vector, plainto_tsquery('english', $1)) AS rank
			FROM unified_chunks
			WHERE source_type = $2 AND source_id = $3 AND search_vector @@ plainto_tsquery('english', $1)
			ORDER BY rank DESC, chunk_id ASC
			LIMIT $4`, queryText, scope.SourceType, scope.SourceID, topK)
		if err != nil {
			return nil, fmt.Errorf("repository.BM25Repository.Query: unified: %w", err)
		}
		rows = pgxRows
	}
	defer rows.Close()

	var out []service.LexicalCandidate
	for rows.Next() {
		var c service.LexicalCandidate
		if err := rows.Scan(&c.ChunkID, &c.Snippet, &c.Rank); err != nil {
			return nil, fmt.Errorf("repository.BM25Repository.Query: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.BM25Repository.Query: %w", err)
	}

	slog.Debug("lexical search complete", "source_type", scope.SourceType, "source_id", scope.SourceID, "results", len(out))
	return out, nil
}
