package service

import "math"

// MMRCandidate is one item eligible for diversified selection. Embedding
// must be non-empty for every candidate passed to Diversify.
type MMRCandidate struct {
	ChunkID   string
	Score     float64
	Embedding []float32
	// MMRScore is the selection value computed by Diversify: the raw Score
	// for the first pick, lambda*Score-(1-lambda)*maxSim for every pick
	// after. Zero on candidates that were never passed through Diversify.
	MMRScore float64
}

// MMRService implements C4's greedy maximal-marginal-relevance selection,
// grounded on the donor's mmr_diversifier.py.
type MMRService struct{}

// NewMMRService creates an MMRService.
func NewMMRService() *MMRService {
	return &MMRService{}
}

// Diversify greedily selects up to topK candidates, trading relevance
// against redundancy with the selected set. lambda is clamped to [0,1];
// lambda=1 is pure relevance, lambda=0 is pure diversity. top_k<=0 or an
// empty candidate list returns an empty slice.
func (s *MMRService) Diversify(candidates []MMRCandidate, topK int, lambda float64) []MMRCandidate {
	if topK <= 0 || len(candidates) == 0 {
		return []MMRCandidate{}
	}
	lambda = clamp(lambda, 0, 1)

	remaining := make([]MMRCandidate, len(candidates))
	copy(remaining, candidates)

	selected := make([]MMRCandidate, 0, topK)

	bestIdx := 0
	for i, c := range remaining {
		if c.Score > remaining[bestIdx].Score {
			bestIdx = i
		}
		_ = i
	}
	first := remaining[bestIdx]
	first.MMRScore = first.Score
	selected = append(selected, first)
	remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)

	for len(selected) < topK && len(remaining) > 0 {
		bestIdx = -1
		bestValue := math.Inf(-1)
		for i, c := range remaining {
			maxSim := maxSimilarity(c.Embedding, selected)
			value := lambda*c.Score - (1-lambda)*maxSim
			if value > bestValue {
				bestValue = value
				bestIdx = i
			}
		}
		pick := remaining[bestIdx]
		pick.MMRScore = bestValue
		selected = append(selected, pick)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}

func maxSimilarity(embedding []float32, selected []MMRCandidate) float64 {
	max := 0.0
	for _, s := range selected {
		sim := cosineSimilarity(embedding, s.Embedding)
		if sim > max {
			max = sim
		}
	}
	return max
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
