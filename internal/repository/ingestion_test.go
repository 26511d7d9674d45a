package repository

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/biorag/engine/internal/model"
)

func setupIngestionRepo(t *testing.T) (*IngestionRepo, func()) {
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

	return NewIngestionRepo(pool), func() { pool.Close() }
}

func TestIngestionRepo_GetStatus_NotIndexed(t *testing.T) {
	repo, cleanup := setupIngestionRepo(t)
	defer cleanup()

	status, err := repo.GetStatus(context.Background(), "pdf", uuid.New().String())
	if err != nil {
		t.Fatalf("GetStatus() error: %v", err)
	}
	if status != nil {
		t.Errorf("status = %+v, want nil for an un-ingested scope", status)
	}
}

func TestIngestionRepo_SetStatus_RoundTrip(t *testing.T) {
	repo, cleanup := setupIngestionRepo(t)
	defer cleanup()

	ctx := context.Background()
	sourceID := uuid.New().String()
	msg := model.StatusMessage{Stage: "parsing"}

	if err := repo.SetStatus(ctx, "pdf", sourceID, model.IngestionIndexing, msg); err != nil {
		t.Fatalf("SetStatus() error: %v", err)
	}

	status, err := repo.GetStatus(ctx, "pdf", sourceID)
	if err != nil {
		t.Fatalf("GetStatus() error: %v", err)
	}
	if status == nil {
		t.Fatal("expected non-nil status after SetStatus")
	}
	if status.State != model.IngestionIndexing {
		t.Errorf("State = %q, want %q", status.State, model.IngestionIndexing)
	}
	var decoded model.StatusMessage
	if err := json.Unmarshal(status.Message, &decoded); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if decoded.Stage != "parsing" {
		t.Errorf("Stage = %q, want %q", decoded.Stage, "parsing")
	}

	// A second SetStatus overwrites the single row rather than inserting a new one.
	if err := repo.SetStatus(ctx, "pdf", sourceID, model.IngestionReady, model.StatusMessage{Stage: "done"}); err != nil {
		t.Fatalf("SetStatus() second call error: %v", err)
	}
	status, err = repo.GetStatus(ctx, "pdf", sourceID)
	if err != nil {
		t.Fatalf("GetStatus() error: %v", err)
	}
	if status.State != model.IngestionReady {
		t.Errorf("State = %q, want %q", status.State, model.IngestionReady)
	}
}

func TestIngestionRepo_Lock_ReleasesAndReacquires(t *testing.T) {
	repo, cleanup := setupIngestionRepo(t)
	defer cleanup()

	ctx := context.Background()
	sourceID := uuid.New().String()

	unlock, err := repo.Lock(ctx, "pdf", sourceID)
	if err != nil {
		t.Fatalf("Lock() error: %v", err)
	}
	unlock()

	// Lock should be re-acquirable once released.
	unlock2, err := repo.Lock(ctx, "pdf", sourceID)
	if err != nil {
		t.Fatalf("Lock() second acquisition error: %v", err)
	}
	unlock2()
}
