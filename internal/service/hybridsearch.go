package service

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
)

// HybridResult is one merged candidate from C3's hybrid merge.
type HybridResult struct {
	ChunkID        string
	Text           string
	Score          float64
	Source         string // "vector", "lexical", or "both"
	VectorDistance *float64
	LexicalRank    *float64
	Page           *int
	Section        string
	IsTable        bool
	IsFigure       bool
}

// HybridMetrics summarizes how a hybrid query behaved.
type HybridMetrics struct {
	VectorCandidates  int
	LexicalCandidates int
	OverlapCount      int
	FinalCount        int
}

// ChunkMetadata is the text/positional metadata hydrated for a merged chunk.
type ChunkMetadata struct {
	Text    string
	Page    *int
	Section string
	IsTable bool
	IsFigure bool
}

// ChunkHydrator performs the single batched metadata lookup keyed by chunk_id
// required by step 8 of the merge algorithm.
type ChunkHydrator interface {
	HydrateChunks(ctx context.Context, chunkIDs []string) (map[string]ChunkMetadata, error)
}

// HybridSearchService composes C1 + C2 with the §4.3 weighted-normalization
// merge. Concurrency shape (parallel vector+lexical fetch via errgroup) is
// grounded on the donor's RetrieverService.retrieveWithVec; the merge math
// itself replaces the donor's Reciprocal-Rank-Fusion with the exact formula
// spec §4.3 requires.
type HybridSearchService struct {
	vector   VectorSearcher
	lexical  LexicalSearcher
	hydrator ChunkHydrator
}

// NewHybridSearchService creates a HybridSearchService.
func NewHybridSearchService(vector VectorSearcher, lexical LexicalSearcher, hydrator ChunkHydrator) *HybridSearchService {
	return &HybridSearchService{vector: vector, lexical: lexical, hydrator: hydrator}
}

type candidate struct {
	chunkID        string
	vectorDistance *float64
	lexicalRank    *float64
	vectorScore    float64
	lexicalScore   float64
	combinedScore  float64
}

// Query runs the C3 contract: merges vector and lexical candidates with
// weighted normalization and returns the top max_results.
func (s *HybridSearchService) Query(
	ctx context.Context,
	scope Scope,
	embedding []float32,
	queryText string,
	vectorTopK, lexicalTopK, maxResults int,
	vectorWeight float64,
) ([]HybridResult, HybridMetrics, error) {
	if maxResults <= 0 {
		return nil, HybridMetrics{}, nil
	}

	w := clamp(vectorWeight, 0, 1)

	var vectorResults []VectorCandidate
	var lexicalResults []LexicalCandidate

	g, gCtx := errgroup.WithContext(ctx)
	if vectorTopK > 0 {
		g.Go(func() error {
			var err error
			vectorResults, err = s.vector.Query(gCtx, scope, embedding, vectorTopK)
			return err
		})
	}
	if lexicalTopK > 0 {
		g.Go(func() error {
			var err error
			lexicalResults, err = s.lexical.Query(gCtx, scope, queryText, lexicalTopK)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, HybridMetrics{}, fmt.Errorf("service.HybridSearch.Query: %w", err)
	}

	candidates := make(map[string]*candidate)
	lexicalSnippets := make(map[string]string)
	var vectorScores, lexicalScores []float64

	for _, r := range vectorResults {
		c, ok := candidates[r.ChunkID]
		if !ok {
			c = &candidate{chunkID: r.ChunkID}
			candidates[r.ChunkID] = c
		}
		d := r.Distance
		c.vectorDistance = &d
		score := 1.0 / (1.0 + d)
		c.vectorScore = score
		vectorScores = append(vectorScores, score)
	}

	for _, r := range lexicalResults {
		c, ok := candidates[r.ChunkID]
		if !ok {
			c = &candidate{chunkID: r.ChunkID}
			candidates[r.ChunkID] = c
		}
		rank := r.Rank
		c.lexicalRank = &rank
		score := math.Max(rank, 0)
		c.lexicalScore = score
		lexicalSnippets[r.ChunkID] = r.Snippet
		lexicalScores = append(lexicalScores, score)
	}

	maxVector := maxOf(vectorScores)
	maxLexical := maxOf(lexicalScores)
	hasVector := maxVector > 0
	hasLexical := maxLexical > 0

	wv := 0.0
	if hasVector {
		wv = w
	}
	wl := 0.0
	if hasLexical {
		wl = 1 - w
	}
	weightTotal := wv + wl
	if weightTotal == 0 {
		weightTotal = 1
	}

	for _, c := range candidates {
		vectorComponent := 0.0
		if hasVector && maxVector > 0 {
			vectorComponent = c.vectorScore / maxVector
		}
		lexicalComponent := 0.0
		if hasLexical && maxLexical > 0 {
			lexicalComponent = c.lexicalScore / maxLexical
		}
		c.combinedScore = (wv*vectorComponent + wl*lexicalComponent) / weightTotal
	}

	sorted := make([]*candidate, 0, len(candidates))
	for _, c := range candidates {
		sorted = append(sorted, c)
	}
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.combinedScore != b.combinedScore {
			return a.combinedScore > b.combinedScore
		}
		ar, br := 0.0, 0.0
		if a.lexicalRank != nil {
			ar = *a.lexicalRank
		}
		if b.lexicalRank != nil {
			br = *b.lexicalRank
		}
		if ar != br {
			return ar > br
		}
		ad, bd := math.Inf(1), math.Inf(1)
		if a.vectorDistance != nil {
			ad = *a.vectorDistance
		}
		if b.vectorDistance != nil {
			bd = *b.vectorDistance
		}
		return ad < bd
	})

	if len(sorted) > maxResults {
		sorted = sorted[:maxResults]
	}

	chunkIDs := make([]string, len(sorted))
	for i, c := range sorted {
		chunkIDs[i] = c.chunkID
	}
	metadataMap, err := s.hydrator.HydrateChunks(ctx, chunkIDs)
	if err != nil {
		return nil, HybridMetrics{}, fmt.Errorf("service.HybridSearch.Query: hydrate: %w", err)
	}

	results := make([]HybridResult, 0, len(sorted))
	for _, c := range sorted {
		meta, ok := metadataMap[c.chunkID]
		text := ""
		var page *int
		section := ""
		isTable, isFigure := false, false
		if ok {
			text = meta.Text
			page = meta.Page
			section = meta.Section
			isTable = meta.IsTable
			isFigure = meta.IsFigure
		}
		if text == "" {
			text = lexicalSnippets[c.chunkID]
		}
		if text == "" {
			continue
		}

		source := "lexical"
		switch {
		case c.vectorDistance != nil && c.lexicalRank != nil:
			source = "both"
		case c.vectorDistance != nil:
			source = "vector"
		}

		results = append(results, HybridResult{
			ChunkID:        c.chunkID,
			Text:           text,
			Score:          c.combinedScore,
			Source:         source,
			VectorDistance: c.vectorDistance,
			LexicalRank:    c.lexicalRank,
			Page:           page,
			Section:        section,
			IsTable:        isTable,
			IsFigure:       isFigure,
		})
	}

	vectorIDs := make(map[string]struct{}, len(vectorResults))
	for _, r := range vectorResults {
		vectorIDs[r.ChunkID] = struct{}{}
	}
	overlap := 0
	for _, r := range lexicalResults {
		if _, ok := vectorIDs[r.ChunkID]; ok {
			overlap++
		}
	}

	metrics := HybridMetrics{
		VectorCandidates:  len(vectorResults),
		LexicalCandidates: len(lexicalResults),
		OverlapCount:      overlap,
		FinalCount:        len(results),
	}

	return results, metrics, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxOf(vs []float64) float64 {
	m := 0.0
	for _, v := range vs {
		if v > m {
			m = v
		}
	}
	return m
}
