package service

import "context"

// LexicalCandidate is one full-text search hit. Rank is a non-negative
// float; negative ranks are clamped to 0 by HybridSearchService when merging.
type LexicalCandidate struct {
	ChunkID string
	Snippet string
	Rank    float64
}

// LexicalSearcher performs full-text search over a scope's lexical index (C2).
// For a PDF scope the repository joins chunk_index and breaks rank ties by
// chunk_index ASC; for a unified scope it reads the precomputed search_vector
// column directly and breaks ties by chunk_id ASC (no PDF join is possible).
type LexicalSearcher interface {
	Query(ctx context.Context, scope Scope, queryText string, topK int) ([]LexicalCandidate, error)
}

// LexicalSearchService is the default C2 implementation. Empty query_text
// yields an empty result, not an error.
type LexicalSearchService struct {
	searcher LexicalSearcher
}

// NewLexicalSearchService creates a LexicalSearchService.
func NewLexicalSearchService(searcher LexicalSearcher) *LexicalSearchService {
	return &LexicalSearchService{searcher: searcher}
}

// Query returns up to top_k lexical hits ranked by score.
func (s *LexicalSearchService) Query(ctx context.Context, scope Scope, queryText string, topK int) ([]LexicalCandidate, error) {
	if queryText == "" || topK <= 0 {
		return nil, nil
	}
	return s.searcher.Query(ctx, scope, queryText, topK)
}
