package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/biorag/engine/internal/model"
)

func setupOntologyRepo(t *testing.T) (*OntologyRepo, func()) {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, dbURL, 5)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	migrationSQL, err := os.ReadFile("../../migrations/001_initial_schema.up.sql")
	if err != nil {
		pool.Close()
		t.Fatalf("read migration: %v", err)
	}
	for attempt := 0; attempt < 5; attempt++ {
		_, err = pool.Exec(ctx, string(migrationSQL))
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempt+1) * time.Second)
	}
	if err != nil {
		pool.Close()
		t.Fatalf("setup schema after retries: %v", err)
	}

	return NewOntologyRepo(pool), func() { pool.Close() }
}

func TestOntologyRepo_ReplaceScope(t *testing.T) {
	repo, cleanup := setupOntologyRepo(t)
	defer cleanup()

	ctx := context.Background()
	sourceID := uuid.New().String()

	terms := []model.OntologyTerm{
		{TermID: "T1", OntologyType: "go", SourceID: sourceID, Name: "apoptosis", Synonyms: []string{"programmed cell death"}},
		{TermID: "T2", OntologyType: "go", SourceID: sourceID, Name: "cell death"},
	}
	relations := []model.OntologyTermRelation{
		{SourceID: sourceID, OntologyType: "go", ChildTermID: "T1", ParentTermID: "T2", RelationType: "is_a"},
	}
	chunks := []model.UnifiedChunk{
		{ChunkID: uuid.New().String(), SourceType: "ontology_go", SourceID: sourceID, ChunkText: "apoptosis: programmed cell death"},
		{ChunkID: uuid.New().String(), SourceType: "ontology_go", SourceID: sourceID, ChunkText: "cell death: the cessation of cell function"},
	}

	deleted, err := repo.ReplaceScope(ctx, "go", sourceID, terms, relations, chunks)
	if err != nil {
		t.Fatalf("ReplaceScope() error: %v", err)
	}
	if deleted["terms"] != 0 || deleted["relations"] != 0 || deleted["chunks"] != 0 {
		t.Errorf("deleted = %+v, want all zero on first ingest", deleted)
	}

	var termCount int
	if err := repo.pool.QueryRow(ctx, `SELECT count(*) FROM ontology_terms WHERE ontology_type = 'go' AND source_id = $1`, sourceID).Scan(&termCount); err != nil {
		t.Fatalf("count terms: %v", err)
	}
	if termCount != 2 {
		t.Errorf("termCount = %d, want 2", termCount)
	}

	// Replacing again should report the previous counts as deleted.
	deleted, err = repo.ReplaceScope(ctx, "go", sourceID, terms[:1], nil, chunks[:1])
	if err != nil {
		t.Fatalf("ReplaceScope() second call error: %v", err)
	}
	if deleted["terms"] != 2 {
		t.Errorf("deleted[terms] = %d, want 2", deleted["terms"])
	}
	if deleted["relations"] != 1 {
		t.Errorf("deleted[relations] = %d, want 1", deleted["relations"])
	}
	if deleted["chunks"] != 2 {
		t.Errorf("deleted[chunks] = %d, want 2", deleted["chunks"])
	}
}

func TestOntologyRepo_ReplaceScope_Empty(t *testing.T) {
	repo, cleanup := setupOntologyRepo(t)
	defer cleanup()

	sourceID := uuid.New().String()
	deleted, err := repo.ReplaceScope(context.Background(), "hp", sourceID, nil, nil, nil)
	if err != nil {
		t.Fatalf("ReplaceScope(empty) should succeed: %v", err)
	}
	if deleted["terms"] != 0 {
		t.Errorf("deleted[terms] = %d, want 0", deleted["terms"])
	}
}
