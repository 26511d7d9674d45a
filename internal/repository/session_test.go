package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/biorag/engine/internal/model"
)

func setupSessionRepo(t *testing.T) (*SessionRepo, *PDFRepo, func()) {
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

	return NewSessionRepo(pool), NewPDFRepo(pool), func() { pool.Close() }
}

func TestSessionRepo_CreateAndGetSession(t *testing.T) {
	repo, pdfRepo, cleanup := setupSessionRepo(t)
	defer cleanup()

	ctx := context.Background()
	doc := createTestPDF(t, pdfRepo)

	session, err := repo.CreateSession(ctx, doc.ID)
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}
	if session.TotalMessages != 0 {
		t.Errorf("TotalMessages = %d, want 0", session.TotalMessages)
	}

	loaded, err := repo.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession() error: %v", err)
	}
	if loaded.PDFID != doc.ID {
		t.Errorf("PDFID = %s, want %s", loaded.PDFID, doc.ID)
	}
}

func TestSessionRepo_RunLifecycle(t *testing.T) {
	repo, pdfRepo, cleanup := setupSessionRepo(t)
	defer cleanup()

	ctx := context.Background()
	doc := createTestPDF(t, pdfRepo)
	session, err := repo.CreateSession(ctx, doc.ID)
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}

	run, err := repo.StartRun(ctx, session.ID, doc.ID, "rag_workflow", "what is apoptosis?", nil)
	if err != nil {
		t.Fatalf("StartRun() error: %v", err)
	}
	if run.Status != model.RunRunning {
		t.Errorf("Status = %q, want %q", run.Status, model.RunRunning)
	}

	if err := repo.FinishRun(ctx, run.ID, model.RunSucceeded, "", 420, []string{"retrieval", "generator"}); err != nil {
		t.Fatalf("FinishRun() error: %v", err)
	}
}

func TestSessionRepo_AppendMessage(t *testing.T) {
	repo, pdfRepo, cleanup := setupSessionRepo(t)
	defer cleanup()

	ctx := context.Background()
	doc := createTestPDF(t, pdfRepo)
	session, err := repo.CreateSession(ctx, doc.ID)
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}

	msg := model.Message{
		SessionID: session.ID,
		Type:      model.MessageUserQuestion,
		Content:   "what is apoptosis?",
	}
	if err := repo.AppendMessage(ctx, msg); err != nil {
		t.Fatalf("AppendMessage() error: %v", err)
	}

	answer := model.Message{
		SessionID: session.ID,
		Type:      model.MessageAIResponse,
		Content:   "programmed cell death",
		Citations: []model.Citation{{ChunkID: "c1", SourceType: "pdf", SourceID: doc.ID, Label: "p.1"}},
		RetrievalStats: &model.RetrievalStats{VectorCandidates: 5, LexicalCandidates: 5, OverlapCount: 2, FinalCount: 8},
	}
	if err := repo.AppendMessage(ctx, answer); err != nil {
		t.Fatalf("AppendMessage() second call error: %v", err)
	}

	loaded, err := repo.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession() error: %v", err)
	}
	if loaded.TotalMessages != 2 {
		t.Errorf("TotalMessages = %d, want 2", loaded.TotalMessages)
	}
}
