package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/biorag/engine/internal/model"
)

func setupJobRepo(t *testing.T) (*JobRepo, func()) {
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

	return NewJobRepo(pool, nil), func() { pool.Close() }
}

func TestJobRepo_EnqueueClaimComplete(t *testing.T) {
	repo, cleanup := setupJobRepo(t)
	defer cleanup()

	ctx := context.Background()
	sourceID := uuid.New().String()

	job, err := repo.Enqueue(ctx, "pdf", sourceID, "test-model", 5)
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if job.Status != model.JobPending {
		t.Errorf("Status = %q, want %q", job.Status, model.JobPending)
	}

	claimed, err := repo.Claim(ctx, "worker-1")
	if err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected a claimed job")
	}
	if claimed.ID != job.ID {
		t.Errorf("claimed.ID = %s, want %s", claimed.ID, job.ID)
	}
	if claimed.Status != model.JobRunning {
		t.Errorf("claimed.Status = %q, want %q", claimed.Status, model.JobRunning)
	}
	if claimed.WorkerID != "worker-1" {
		t.Errorf("claimed.WorkerID = %q, want %q", claimed.WorkerID, "worker-1")
	}

	if err := repo.Complete(ctx, job.ID, "worker-1", true, "", false, 0); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	jobs, err := repo.List(ctx, []model.JobStatus{model.JobSucceeded}, 10)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	found := false
	for _, j := range jobs {
		if j.ID == job.ID {
			found = true
		}
	}
	if !found {
		t.Error("expected completed job in SUCCEEDED list")
	}
}

func TestJobRepo_Complete_WrongWorkerRejected(t *testing.T) {
	repo, cleanup := setupJobRepo(t)
	defer cleanup()

	ctx := context.Background()
	sourceID := uuid.New().String()

	job, err := repo.Enqueue(ctx, "pdf", sourceID, "test-model", 0)
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if _, err := repo.Claim(ctx, "worker-a"); err != nil {
		t.Fatalf("Claim() error: %v", err)
	}

	if err := repo.Complete(ctx, job.ID, "worker-b", true, "", false, 0); err == nil {
		t.Error("expected error completing a job owned by a different worker")
	}
}

func TestJobRepo_Claim_NoneAvailable(t *testing.T) {
	repo, cleanup := setupJobRepo(t)
	defer cleanup()

	// Drain any pending jobs left by other tests sharing this database, then
	// confirm Claim reports none available.
	for {
		j, err := repo.Claim(context.Background(), "drain-worker")
		if err != nil {
			t.Fatalf("Claim() error during drain: %v", err)
		}
		if j == nil {
			break
		}
		_ = repo.Complete(context.Background(), j.ID, "drain-worker", true, "", false, 0)
	}

	j, err := repo.Claim(context.Background(), "worker-x")
	if err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if j != nil {
		t.Errorf("expected nil claim, got %+v", j)
	}
}

func TestJobRepo_Complete_RetryableRequeuesUntilCeiling(t *testing.T) {
	repo, cleanup := setupJobRepo(t)
	defer cleanup()

	ctx := context.Background()
	sourceID := uuid.New().String()

	job, err := repo.Enqueue(ctx, "pdf", sourceID, "test-model", 0)
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	const maxRetries = 2
	for i := 0; i < maxRetries; i++ {
		claimed, err := repo.Claim(ctx, "retry-worker")
		if err != nil {
			t.Fatalf("Claim() error: %v", err)
		}
		if claimed == nil || claimed.ID != job.ID {
			t.Fatalf("expected to reclaim job %s, got %+v", job.ID, claimed)
		}
		if err := repo.Complete(ctx, job.ID, "retry-worker", false, "transient failure", true, maxRetries); err != nil {
			t.Fatalf("Complete() error on retry %d: %v", i, err)
		}
	}

	jobs, err := repo.List(ctx, []model.JobStatus{model.JobPending}, 50)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	found := false
	for _, j := range jobs {
		if j.ID == job.ID {
			found = true
			if j.RetryCount != maxRetries {
				t.Errorf("RetryCount = %d, want %d after %d retryable failures", j.RetryCount, maxRetries, maxRetries)
			}
		}
	}
	if !found {
		t.Fatal("expected job back in PENDING after a retryable failure under the ceiling")
	}

	claimed, err := repo.Claim(ctx, "retry-worker-final")
	if err != nil {
		t.Fatalf("Claim() error: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("expected final claim of job %s, got %+v", job.ID, claimed)
	}
	if err := repo.Complete(ctx, job.ID, "retry-worker-final", false, "transient failure", true, maxRetries); err != nil {
		t.Fatalf("Complete() error on ceiling failure: %v", err)
	}

	jobs, err = repo.List(ctx, []model.JobStatus{model.JobFailed}, 50)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	found = false
	for _, j := range jobs {
		if j.ID == job.ID {
			found = true
		}
	}
	if !found {
		t.Error("expected job to be terminally FAILED once retry_count reaches the ceiling")
	}
}

func TestJobRepo_Summary(t *testing.T) {
	repo, cleanup := setupJobRepo(t)
	defer cleanup()

	ctx := context.Background()
	sourceID := uuid.New().String()

	if _, err := repo.Enqueue(ctx, "pdf", sourceID, "test-model", 0); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	summary, err := repo.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary() error: %v", err)
	}
	if summary.TotalJobs == 0 {
		t.Error("expected at least one job in summary")
	}
	if summary.ByStatus[model.JobPending] == 0 {
		t.Error("expected at least one pending job counted")
	}
}
