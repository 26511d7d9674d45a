package repository

import (
	"context"
	"fmt"

	"github.com/biorag/engine/internal/service"
)

// ScopedVectorSearcher implements service.VectorSearcher by routing a scope
// to its backing embedding table: ChunkRepo for "pdf", UnifiedRepo for every
// other source_type. Mirrors BM25Repository's own scope dispatch (§9 OQ2)
// rather than teaching ChunkRepo/UnifiedRepo about each other's tables.
type ScopedVectorSearcher struct {
	pdf      *ChunkRepo
	unified  *UnifiedRepo
}

// NewScopedVectorSearcher creates a ScopedVectorSearcher.
func NewScopedVectorSearcher(pdf *ChunkRepo, unified *UnifiedRepo) *ScopedVectorSearcher {
	return &ScopedVectorSearcher{pdf: pdf, unified: unified}
}

var _ service.VectorSearcher = (*ScopedVectorSearcher)(nil)

// Query dispatches to the PDF or unified embedding table by scope.SourceType.
func (s *ScopedVectorSearcher) Query(ctx context.Context, scope service.Scope, queryVector []float32, topK int) ([]service.VectorCandidate, error) {
	if scope.SourceType == "pdf" {
		out, err := s.pdf.Query(ctx, scope, queryVector, topK)
		if err != nil {
			return nil, fmt.Errorf("repository.ScopedVectorSearcher.Query: %w", err)
		}
		return out, nil
	}
	out, err := s.unified.Query(ctx, scope, queryVector, topK)
	if err != nil {
		return nil, fmt.Errorf("repository.ScopedVectorSearcher.Query: %w", err)
	}
	return out, nil
}
