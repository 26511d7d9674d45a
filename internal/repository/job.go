package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/biorag/engine/internal/model"
)

// JobNotifier announces newly enqueued embedding jobs to waiting workers.
// Postgres remains the source of truth for job state; the notifier is a
// latency optimization only, never load-bearing for correctness.
type JobNotifier interface {
	Notify(ctx context.Context, jobID string) error
}

// JobRepo is the embedding job queue backing the `jobs` CLI surface and
// the C6 background embedding workers, grounded on the original
// `job_cli.py`'s summary/list queries and the donor repository package's
// CAS claim idiom.
type JobRepo struct {
	pool     *pgxpool.Pool
	notifier JobNotifier
}

// NewJobRepo creates a JobRepo. notifier may be nil to skip the pub/sub
// fast-path notification entirely.
func NewJobRepo(pool *pgxpool.Pool, notifier JobNotifier) *JobRepo {
	return &JobRepo{pool: pool, notifier: notifier}
}

// Enqueue inserts a pending embedding job and, if a notifier is configured,
// best-effort announces it; a notify failure never fails the enqueue.
func (r *JobRepo) Enqueue(ctx context.Context, sourceType, sourceID, modelName string, priority int) (*model.EmbeddingJob, error) {
	job := &model.EmbeddingJob{
		ID:         uuid.New().String(),
		SourceType: sourceType,
		SourceID:   sourceID,
		ModelName:  modelName,
		Status:     model.JobPending,
		Priority:   priority,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO embedding_jobs (id, source_type, source_id, model_name, status, priority, retry_count, progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7, $7)`,
		job.ID, job.SourceType, job.SourceID, job.ModelName, job.Status, job.Priority, job.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("repository.JobRepo.Enqueue: %w", err)
	}

	if r.notifier != nil {
		_ = r.notifier.Notify(ctx, job.ID)
	}

	return job, nil
}

// Claim performs the compare-and-set (status=PENDING -> RUNNING, worker_id=self)
// on the oldest, highest-priority pending job, returning nil if none is available.
func (r *JobRepo) Claim(ctx context.Context, workerID string) (*model.EmbeddingJob, error) {
	var j model.EmbeddingJob
	err := r.pool.QueryRow(ctx, `
		UPDATE embedding_jobs
		SET status = $1, worker_id = $2, updated_at = $3
		WHERE id = (
			SELECT id FROM embedding_jobs
			WHERE status = $4
			ORDER BY priority DESC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, source_type, source_id, model_name, status, priority, retry_count, worker_id, progress, created_at, updated_at`,
		model.JobRunning, workerID, time.Now().UTC(), model.JobPending,
	).Scan(&j.ID, &j.SourceType, &j.SourceID, &j.ModelName, &j.Status, &j.Priority, &j.RetryCount, &j.WorkerID, &j.Progress, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("repository.JobRepo.Claim: %w", err)
	}
	return &j, nil
}

// Complete marks a job SUCCEEDED, or handles a failure per spec.md:260:
// increments retry_count and, when retryable and the new retry_count is at
// most maxRetries, re-queues the job to PENDING (clearing worker_id so any worker can claim
// it again); otherwise marks it terminally FAILED. Re-checks that workerID
// still owns the row before updating.
func (r *JobRepo) Complete(ctx context.Context, jobID, workerID string, succeeded bool, errMessage string, retryable bool, maxRetries int) error {
	now := time.Now().UTC()

	if succeeded {
		tag, err := r.pool.Exec(ctx, `
			UPDATE embedding_jobs SET status = $1, error_log = '', progress = 1, updated_at = $2
			WHERE id = $3 AND worker_id = $4`, model.JobSucceeded, now, jobID, workerID)
		if err != nil {
			return fmt.Errorf("repository.JobRepo.Complete: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("repository.JobRepo.Complete: job %s not owned by worker %s", jobID, workerID)
		}
		return nil
	}

	var tag pgconn.CommandTag
	var err error
	if retryable {
		tag, err = r.pool.Exec(ctx, `
			UPDATE embedding_jobs
			SET retry_count = retry_count + 1,
			    status = CASE WHEN retry_count + 1 <= $1 THEN $2 ELSE $3 END,
			    worker_id = CASE WHEN retry_count + 1 <= $1 THEN NULL ELSE worker_id END,
			    progress = CASE WHEN retry_count + 1 <= $1 THEN 0 ELSE 1 END,
			    error_log = $4,
			    updated_at = $5
			WHERE id = $6 AND worker_id = $7`,
			maxRetries, model.JobPending, model.JobFailed, errMessage, now, jobID, workerID)
	} else {
		tag, err = r.pool.Exec(ctx, `
			UPDATE embedding_jobs
			SET retry_count = retry_count + 1, status = $1, error_log = $2, progress = 1, updated_at = $3
			WHERE id = $4 AND worker_id = $5`, model.JobFailed, errMessage, now, jobID, workerID)
	}
	if err != nil {
		return fmt.Errorf("repository.JobRepo.Complete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repository.JobRepo.Complete: job %s not owned by worker %s", jobID, workerID)
	}
	return nil
}

// JobQueueSummary mirrors job_cli.py's `summary` command output.
type JobQueueSummary struct {
	TotalJobs      int
	ByStatus       map[model.JobStatus]int
	OldestPending  *model.EmbeddingJob
	ActiveWorkers  []string
}

// Summary computes the queue summary shown by `jobs summary`.
func (r *JobRepo) Summary(ctx context.Context) (JobQueueSummary, error) {
	summary := JobQueueSummary{ByStatus: make(map[model.JobStatus]int)}

	rows, err := r.pool.Query(ctx, `SELECT status, count(*) FROM embedding_jobs GROUP BY status`)
	if err != nil {
		return summary, fmt.Errorf("repository.JobRepo.Summary: by status: %w", err)
	}
	for rows.Next() {
		var status model.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return summary, fmt.Errorf("repository.JobRepo.Summary: scan: %w", err)
		}
		summary.ByStatus[status] = count
		summary.TotalJobs += count
	}
	rows.Close()

	var pending model.EmbeddingJob
	err = r.pool.QueryRow(ctx, `
		SELECT id, source_type, source_id, model_name, status, priority, retry_count, created_at, updated_at
		FROM embedding_jobs WHERE status = $1 ORDER BY created_at ASC LIMIT 1`, model.JobPending,
	).Scan(&pending.ID, &pending.SourceType, &pending.SourceID, &pending.ModelName, &pending.Status, &pending.Priority, &pending.RetryCount, &pending.CreatedAt, &pending.UpdatedAt)
	if err == nil {
		summary.OldestPending = &pending
	} else if err != pgx.ErrNoRows {
		return summary, fmt.Errorf("repository.JobRepo.Summary: oldest pending: %w", err)
	}

	workerRows, err := r.pool.Query(ctx, `
		SELECT DISTINCT worker_id FROM embedding_jobs WHERE status = $1 AND worker_id IS NOT NULL AND worker_id != ''`, model.JobRunning)
	if err != nil {
		return summary, fmt.Errorf("repository.JobRepo.Summary: active workers: %w", err)
	}
	defer workerRows.Close()
	for workerRows.Next() {
		var w string
		if err := workerRows.Scan(&w); err != nil {
			return summary, fmt.Errorf("repository.JobRepo.Summary: scan worker: %w", err)
		}
		summary.ActiveWorkers = append(summary.ActiveWorkers, w)
	}

	return summary, nil
}

// List returns recent jobs, optionally filtered by status, newest first.
func (r *JobRepo) List(ctx context.Context, statuses []model.JobStatus, limit int) ([]model.EmbeddingJob, error) {
	var rows pgx.Rows
	var err error
	if len(statuses) > 0 {
		rows, err = r.pool.Query(ctx, `
			SELECT id, source_type, source_id, model_name, status, priority, retry_count, COALESCE(worker_id, ''), progress, COALESCE(error_log, ''), created_at, updated_at
			FROM embedding_jobs WHERE status = ANY($1) ORDER BY created_at DESC LIMIT $2`, statuses, limit)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT id, source_type, source_id, model_name, status, priority, retry_count, COALESCE(worker_id, ''), progress, COALESCE(error_log, ''), created_at, updated_at
			FROM embedding_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("repository.JobRepo.List: %w", err)
	}
	defer rows.Close()

	var jobs []model.EmbeddingJob
	for rows.Next() {
		var j model.EmbeddingJob
		if err := rows.Scan(&j.ID, &j.SourceType, &j.SourceID, &j.ModelName, &j.Status, &j.Priority, &j.RetryCount, &j.WorkerID, &j.Progress, &j.ErrorLog, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository.JobRepo.List: scan: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}
