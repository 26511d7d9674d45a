package service

import (
	"context"

	"github.com/biorag/engine/internal/ragerr"
)

// VectorCandidate is one nearest-neighbor hit from the vector index.
type VectorCandidate struct {
	ChunkID  string
	Distance float64
}

// VectorSearcher performs k-NN search over per-scope embeddings (C1).
// scope is either a PDF bound to a model name, or a (source_type, source_id)
// pair bound to the unified store; implementations decide how to read Scope.
type VectorSearcher interface {
	Query(ctx context.Context, scope Scope, queryVector []float32, topK int) ([]VectorCandidate, error)
}

// Scope names the corpus a query or ingestion targets.
type Scope struct {
	SourceType string
	SourceID   string
	// ModelName binds the scope to an embedding model; both the PDF
	// embedding rows and the unified store's embeddings are filtered on it.
	ModelName string
}

// VectorSearchService is the default C1 implementation, delegating to a
// pgvector-backed VectorSearcher. top_k <= 0 returns an empty list without
// issuing a query; an empty query vector is InvalidArgument.
type VectorSearchService struct {
	searcher VectorSearcher
}

// NewVectorSearchService creates a VectorSearchService.
func NewVectorSearchService(searcher VectorSearcher) *VectorSearchService {
	return &VectorSearchService{searcher: searcher}
}

// Query returns the top_k nearest neighbors to queryVector in scope.
func (s *VectorSearchService) Query(ctx context.Context, scope Scope, queryVector []float32, topK int) ([]VectorCandidate, error) {
	if topK <= 0 {
		return nil, nil
	}
	if len(queryVector) == 0 {
		return nil, ragerr.New(ragerr.InvalidArgument, "service.VectorSearch.Query", "empty query vector")
	}
	return s.searcher.Query(ctx, scope, queryVector, topK)
}
