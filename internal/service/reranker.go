package service

import (
	"context"
	"fmt"
	"sort"
)

// RerankCandidate is one item eligible for cross-encoder reranking.
type RerankCandidate struct {
	ChunkID        string
	Text           string
	RetrieverScore float64
	Embedding      []float32
}

// RerankedResult is a RerankCandidate after scoring, MMR, and final ordering.
type RerankedResult struct {
	ChunkID        string
	Text           string
	RetrieverScore float64
	RerankScore    float64
	CombinedScore  float64
	MMRScore       *float64
	ModelName      string
	Rank           int
}

// CrossEncoder scores (query, text) pairs. Implementations call an external
// reranker model; a single call scores the whole batch.
type CrossEncoder interface {
	ModelName() string
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// RerankerService implements C5: cross-encoder scoring optionally followed
// by MMR diversification, grounded on the donor's reranker.py.
type RerankerService struct {
	encoder CrossEncoder
	mmr     *MMRService
}

// NewRerankerService creates a RerankerService.
func NewRerankerService(encoder CrossEncoder, mmr *MMRService) *RerankerService {
	return &RerankerService{encoder: encoder, mmr: mmr}
}

// Rerank scores candidates against query, then either diversifies with MMR
// (when applyMMR is true) or sorts by rerank score and truncates to topK.
func (s *RerankerService) Rerank(
	ctx context.Context,
	query string,
	candidates []RerankCandidate,
	topK int,
	applyMMR bool,
	lambda float64,
) ([]RerankedResult, error) {
	if topK <= 0 || len(candidates) == 0 {
		return []RerankedResult{}, nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}
	scores, err := s.encoder.Score(ctx, query, texts)
	if err != nil {
		return nil, fmt.Errorf("service.Reranker.Rerank: %w", err)
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("service.Reranker.Rerank: encoder returned %d scores for %d candidates", len(scores), len(candidates))
	}

	if applyMMR {
		mmrCandidates := make([]MMRCandidate, len(candidates))
		for i, c := range candidates {
			mmrCandidates[i] = MMRCandidate{ChunkID: c.ChunkID, Score: scores[i], Embedding: c.Embedding}
		}
		selected := s.mmr.Diversify(mmrCandidates, topK, lambda)

		byID := make(map[string]RerankCandidate, len(candidates))
		rerankScoreByID := make(map[string]float64, len(candidates))
		for i, c := range candidates {
			byID[c.ChunkID] = c
			rerankScoreByID[c.ChunkID] = scores[i]
		}

		results := make([]RerankedResult, 0, len(selected))
		for i, sel := range selected {
			c := byID[sel.ChunkID]
			mmrScore := sel.MMRScore
			results = append(results, RerankedResult{
				ChunkID:        c.ChunkID,
				Text:           c.Text,
				RetrieverScore: c.RetrieverScore,
				RerankScore:    rerankScoreByID[sel.ChunkID],
				CombinedScore:  mmrScore,
				MMRScore:       &mmrScore,
				ModelName:      s.encoder.ModelName(),
				Rank:           i,
			})
		}
		return results, nil
	}

	results := make([]RerankedResult, len(candidates))
	for i, c := range candidates {
		results[i] = RerankedResult{
			ChunkID:        c.ChunkID,
			Text:           c.Text,
			RetrieverScore: c.RetrieverScore,
			RerankScore:    scores[i],
			CombinedScore:  scores[i],
			ModelName:      s.encoder.ModelName(),
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].RerankScore > results[j].RerankScore
	})
	if len(results) > topK {
		results = results[:topK]
	}
	for i := range results {
		results[i].Rank = i
	}
	return results, nil
}
