package service

import (
	"context"
	"testing"
)

type fakeCrossEncoder struct {
	name   string
	scores []float64
	err    error
}

func (f *fakeCrossEncoder) ModelName() string { return f.name }

func (f *fakeCrossEncoder) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

func TestReranker_EmptyOrZeroTopK(t *testing.T) {
	svc := NewRerankerService(&fakeCrossEncoder{}, NewMMRService())

	got, err := svc.Rerank(context.Background(), "q", nil, 5, false, 0.5)
	if err != nil {
		t.Fatalf("Rerank() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}

	got, err = svc.Rerank(context.Background(), "q", []RerankCandidate{{ChunkID: "a"}}, 0, false, 0.5)
	if err != nil {
		t.Fatalf("Rerank() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want empty for topK=0", got)
	}
}

func TestReranker_SortsByScoreDescending(t *testing.T) {
	encoder := &fakeCrossEncoder{name: "test-model", scores: []float64{0.2, 0.9, 0.5}}
	svc := NewRerankerService(encoder, NewMMRService())

	candidates := []RerankCandidate{
		{ChunkID: "low", RetrieverScore: 0.1},
		{ChunkID: "high", RetrieverScore: 0.1},
		{ChunkID: "mid", RetrieverScore: 0.1},
	}

	got, err := svc.Rerank(context.Background(), "q", candidates, 10, false, 0.5)
	if err != nil {
		t.Fatalf("Rerank() error: %v", err)
	}
	if len(got) != 3 || got[0].ChunkID != "high" || got[1].ChunkID != "mid" || got[2].ChunkID != "low" {
		t.Fatalf("order = %+v, want [high mid low]", got)
	}
	if got[0].ModelName != "test-model" {
		t.Errorf("ModelName = %q, want %q", got[0].ModelName, "test-model")
	}
	if got[0].Rank != 0 || got[2].Rank != 2 {
		t.Errorf("ranks not assigned correctly: %+v", got)
	}
}

func TestReranker_TruncatesToTopK(t *testing.T) {
	encoder := &fakeCrossEncoder{scores: []float64{0.1, 0.9, 0.5}}
	svc := NewRerankerService(encoder, NewMMRService())

	candidates := []RerankCandidate{{ChunkID: "a"}, {ChunkID: "b"}, {ChunkID: "c"}}
	got, err := svc.Rerank(context.Background(), "q", candidates, 1, false, 0.5)
	if err != nil {
		t.Fatalf("Rerank() error: %v", err)
	}
	if len(got) != 1 || got[0].ChunkID != "b" {
		t.Fatalf("got %+v, want single highest-scoring candidate b", got)
	}
}

func TestReranker_AppliesMMRWhenRequested(t *testing.T) {
	encoder := &fakeCrossEncoder{scores: []float64{0.9, 0.85, 0.4}}
	svc := NewRerankerService(encoder, NewMMRService())

	candidates := []RerankCandidate{
		{ChunkID: "best", Embedding: []float32{1, 0}},
		{ChunkID: "dup", Embedding: []float32{1, 0}},
		{ChunkID: "diverse", Embedding: []float32{0, 1}},
	}

	got, err := svc.Rerank(context.Background(), "q", candidates, 2, true, 0.0)
	if err != nil {
		t.Fatalf("Rerank() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ChunkID != "best" {
		t.Fatalf("first pick = %q, want %q", got[0].ChunkID, "best")
	}
	if got[1].ChunkID != "diverse" {
		t.Errorf("second pick = %q, want %q (MMR should avoid the near-duplicate)", got[1].ChunkID, "diverse")
	}
	if got[0].MMRScore == nil || *got[0].MMRScore != 0.9 {
		t.Errorf("first pick MMRScore = %v, want 0.9 (raw relevance)", got[0].MMRScore)
	}
	if got[1].MMRScore == nil || *got[1].MMRScore != 0 {
		t.Errorf("second pick MMRScore = %v, want 0 (lambda=0: diverse has zero similarity to best, so the penalty term is 0)", got[1].MMRScore)
	}
	if got[0].CombinedScore != 0.9 || got[1].CombinedScore != 0 {
		t.Errorf("CombinedScore = [%v %v], want [0.9 0] (must track the MMR selection value, not the raw encoder score)", got[0].CombinedScore, got[1].CombinedScore)
	}
}

func TestReranker_PropagatesEncoderError(t *testing.T) {
	svc := NewRerankerService(&fakeCrossEncoder{err: context.DeadlineExceeded}, NewMMRService())

	_, err := svc.Rerank(context.Background(), "q", []RerankCandidate{{ChunkID: "a"}}, 5, false, 0.5)
	if err == nil {
		t.Fatal("expected error from encoder failure, got nil")
	}
}

func TestReranker_MismatchedScoreCountErrors(t *testing.T) {
	svc := NewRerankerService(&fakeCrossEncoder{scores: []float64{0.1}}, NewMMRService())

	_, err := svc.Rerank(context.Background(), "q", []RerankCandidate{{ChunkID: "a"}, {ChunkID: "b"}}, 5, false, 0.5)
	if err == nil {
		t.Fatal("expected error for score/candidate count mismatch, got nil")
	}
}
