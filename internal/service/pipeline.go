package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/biorag/engine/internal/model"
)

// PipelineOptions are the recognized overrides from §4.8's option table.
// Pointer fields distinguish "not set" (nil) from an explicit zero value so
// the three-tier resolution order can apply only what was actually given.
type PipelineOptions struct {
	VectorTopK   *int
	LexicalTopK  *int
	MaxResults   *int
	VectorWeight *float64
	RerankTopK   *int
	ApplyMMR     *bool
	MMRLambda    *float64
	ContextBoost *float64
}

// resolvedOptions is PipelineOptions after all three tiers are merged, with
// defaults filled in for any option never set at any tier.
type resolvedOptions struct {
	VectorTopK   int
	LexicalTopK  int
	MaxResults   int
	VectorWeight float64
	RerankTopK   int
	ApplyMMR     bool
	MMRLambda    float64
	ContextBoost float64
}

func defaultPipelineOptions() resolvedOptions {
	return resolvedOptions{
		VectorTopK:   40,
		LexicalTopK:  40,
		MaxResults:   20,
		VectorWeight: 0.5,
		RerankTopK:   10,
		ApplyMMR:     false,
		MMRLambda:    0.5,
		ContextBoost: 1.0,
	}
}

func mergeOptions(base resolvedOptions, override PipelineOptions) resolvedOptions {
	if override.VectorTopK != nil {
		base.VectorTopK = *override.VectorTopK
	}
	if override.LexicalTopK != nil {
		base.LexicalTopK = *override.LexicalTopK
	}
	if override.MaxResults != nil {
		base.MaxResults = *override.MaxResults
	}
	if override.VectorWeight != nil {
		base.VectorWeight = *override.VectorWeight
	}
	if override.RerankTopK != nil {
		base.RerankTopK = *override.RerankTopK
	}
	if override.ApplyMMR != nil {
		base.ApplyMMR = *override.ApplyMMR
	}
	if override.MMRLambda != nil {
		base.MMRLambda = *override.MMRLambda
	}
	if override.ContextBoost != nil {
		base.ContextBoost = *override.ContextBoost
	}
	return base
}

// QueryEmbedder embeds a single query string for the vector side of a
// hybrid search.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// PipelineChunk is one retrieved-and-ranked chunk returned by Search,
// carrying both its final rank and the boost (if any) applied to it.
type PipelineChunk struct {
	ChunkID        string
	Text           string
	RetrieverScore float64
	RerankScore    float64
	CombinedScore  float64
	Source         string
	Boosted        bool
	Metadata       map[string]any
}

// SearchResult is §4.8's {chunks[], metadata} contract.
type SearchResult struct {
	Chunks   []PipelineChunk
	Metadata HybridMetrics
}

// SearchCache caches a full Search result by (sourceType, sourceID, query),
// letting repeated identical questions against the same scope skip the
// hybrid-search/rerank round trip entirely. cache.QueryCache satisfies this.
type SearchCache interface {
	Get(sourceType, sourceID, query string) (*SearchResult, bool)
	Set(sourceType, sourceID, query string, result *SearchResult)
}

// PipelineService is C8: the façade composing hybrid search (C3), reranking
// with optional MMR (C5/C4), and source adapters (C7). Grounded on the
// donor's former PipelineService composition shape and unified_pipeline.py.
type PipelineService struct {
	adapters     *AdapterRegistry
	hybrid       *HybridSearchService
	reranker     *RerankerService
	queryEmbed   QueryEmbedder
	globalConfig resolvedOptions
	perSource    map[string]PipelineOptions
	resultCache  SearchCache
}

// SetResultCache installs a SearchCache. Optional; nil (the default) means
// every Search call runs the full retrieval path.
func (p *PipelineService) SetResultCache(c SearchCache) {
	p.resultCache = c
}

// NewPipelineService creates a PipelineService. perSourceOverrides maps a
// source_type (e.g. "pdf", "ontology_disease") to its configuration tier.
func NewPipelineService(
	adapters *AdapterRegistry,
	hybrid *HybridSearchService,
	reranker *RerankerService,
	queryEmbed QueryEmbedder,
	globalOverrides PipelineOptions,
	perSourceOverrides map[string]PipelineOptions,
) *PipelineService {
	return &PipelineService{
		adapters:     adapters,
		hybrid:       hybrid,
		reranker:     reranker,
		queryEmbed:   queryEmbed,
		globalConfig: mergeOptions(defaultPipelineOptions(), globalOverrides),
		perSource:    perSourceOverrides,
	}
}

// EnsureIndexReady implements ensure_index_ready: if the adapter reports
// NOT_INDEXED, triggers ingestion and returns the resulting status.
func (p *PipelineService) EnsureIndexReady(ctx context.Context, sourceType, sourceID string) (model.IngestionState, error) {
	adapter, err := p.adapters.Get(sourceType)
	if err != nil {
		return "", err
	}
	status, err := adapter.IndexStatus(ctx, sourceID)
	if err != nil {
		return "", fmt.Errorf("service.Pipeline.EnsureIndexReady: %w", err)
	}
	if status != model.IngestionNotIndexed {
		return status, nil
	}
	status, err = adapter.Ingest(ctx, sourceID)
	if err != nil {
		return "", fmt.Errorf("service.Pipeline.EnsureIndexReady: ingest: %w", err)
	}
	return status, nil
}

// Search implements §4.8's search contract. If the source is NOT_INDEXED,
// ingestion is triggered and the call returns without running a search.
func (p *PipelineService) Search(ctx context.Context, sourceType, sourceID, query, queryContext string, overrides PipelineOptions) (SearchResult, model.IngestionState, error) {
	adapter, err := p.adapters.Get(sourceType)
	if err != nil {
		return SearchResult{}, "", err
	}

	status, err := adapter.IndexStatus(ctx, sourceID)
	if err != nil {
		return SearchResult{}, "", fmt.Errorf("service.Pipeline.Search: index status: %w", err)
	}
	if status == model.IngestionNotIndexed {
		status, err = adapter.Ingest(ctx, sourceID)
		if err != nil {
			return SearchResult{}, "", fmt.Errorf("service.Pipeline.Search: ingest: %w", err)
		}
		return SearchResult{}, status, nil
	}

	if p.resultCache != nil {
		if cached, ok := p.resultCache.Get(sourceType, sourceID, query); ok {
			return *cached, status, nil
		}
	}

	base := p.globalConfig
	if perSource, ok := p.perSource[sourceType]; ok {
		base = mergeOptions(base, perSource)
	}
	opts := mergeOptions(base, overrides)

	embedding, err := p.queryEmbed.EmbedQuery(ctx, query)
	if err != nil {
		return SearchResult{}, "", fmt.Errorf("service.Pipeline.Search: embed query: %w", err)
	}

	scope := Scope{SourceType: sourceType, SourceID: sourceID}
	hybridResults, metrics, err := p.hybrid.Query(ctx, scope, embedding, query, opts.VectorTopK, opts.LexicalTopK, opts.MaxResults, opts.VectorWeight)
	if err != nil {
		return SearchResult{}, "", fmt.Errorf("service.Pipeline.Search: hybrid query: %w", err)
	}

	lowerContext := strings.ToLower(queryContext)
	boosted := make([]bool, len(hybridResults))
	retrieverScores := make([]float64, len(hybridResults))
	for i, r := range hybridResults {
		score := r.Score
		if opts.ContextBoost > 1 && lowerContext != "" && leadingTermsPresent(r.Text, lowerContext) {
			score *= opts.ContextBoost
			boosted[i] = true
		}
		retrieverScores[i] = score
	}

	candidates := make([]RerankCandidate, len(hybridResults))
	for i, r := range hybridResults {
		candidates[i] = RerankCandidate{
			ChunkID:        r.ChunkID,
			Text:           r.Text,
			RetrieverScore: retrieverScores[i],
		}
	}

	reranked, err := p.rerank(ctx, query, candidates, opts.RerankTopK, opts.ApplyMMR, opts.MMRLambda)
	if err != nil {
		return SearchResult{}, "", fmt.Errorf("service.Pipeline.Search: rerank: %w", err)
	}

	boostedByID := make(map[string]bool, len(hybridResults))
	sourceByID := make(map[string]string, len(hybridResults))
	for i, r := range hybridResults {
		boostedByID[r.ChunkID] = boosted[i]
		sourceByID[r.ChunkID] = r.Source
	}

	chunks := make([]PipelineChunk, len(reranked))
	for i, r := range reranked {
		chunks[i] = PipelineChunk{
			ChunkID:        r.ChunkID,
			Text:           r.Text,
			RetrieverScore: r.RetrieverScore,
			RerankScore:    r.RerankScore,
			CombinedScore:  r.CombinedScore,
			Source:         sourceByID[r.ChunkID],
			Boosted:        boostedByID[r.ChunkID],
		}
	}

	result := SearchResult{Chunks: chunks, Metadata: metrics}
	if p.resultCache != nil {
		p.resultCache.Set(sourceType, sourceID, query, &result)
	}
	return result, status, nil
}

// rerank delegates to the configured RerankerService, or falls back to
// truncating by retriever score when no cross-encoder is deployed (§9: C5
// is optional; a missing reranker degrades gracefully rather than failing
// the whole search).
func (p *PipelineService) rerank(ctx context.Context, query string, candidates []RerankCandidate, topK int, applyMMR bool, lambda float64) ([]RerankedResult, error) {
	if p.reranker != nil {
		return p.reranker.Rerank(ctx, query, candidates, topK, applyMMR, lambda)
	}
	sorted := make([]RerankCandidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RetrieverScore > sorted[j].RetrieverScore })
	if topK > 0 && len(sorted) > topK {
		sorted = sorted[:topK]
	}
	results := make([]RerankedResult, len(sorted))
	for i, c := range sorted {
		results[i] = RerankedResult{
			ChunkID: c.ChunkID, Text: c.Text, RetrieverScore: c.RetrieverScore,
			RerankScore: c.RetrieverScore, CombinedScore: c.RetrieverScore, Rank: i,
		}
	}
	return results, nil
}

// leadingTermsPresent reports whether any of text's first 10 lowercased
// terms occurs in lowerContext, per §4.8's context-boost rule.
func leadingTermsPresent(text, lowerContext string) bool {
	terms := strings.Fields(strings.ToLower(text))
	if len(terms) > 10 {
		terms = terms[:10]
	}
	for _, t := range terms {
		if t != "" && strings.Contains(lowerContext, t) {
			return true
		}
	}
	return false
}
