package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/biorag/engine/internal/model"
	"github.com/biorag/engine/internal/ragerr"
)

// JobClaimer is the subset of repository.JobRepo a queue worker needs to
// pull and settle work.
type JobClaimer interface {
	Claim(ctx context.Context, workerID string) (*model.EmbeddingJob, error)
	Complete(ctx context.Context, jobID, workerID string, succeeded bool, errMessage string, retryable bool, maxRetries int) error
}

// JobEmbedder dispatches one claimed job to the embedder by source type:
// "pdf" goes through EmbedPDF, everything else is treated as a unified
// ontology scope and goes through EmbedUnifiedChunks.
type JobEmbedder interface {
	EmbedPDF(ctx context.Context, pdfID, modelName, version string, batchSize int, force bool) (model.EmbeddingSummary, error)
	EmbedUnifiedChunks(ctx context.Context, sourceType, sourceID, modelName string, batchSize int, force bool) (model.EmbeddingSummary, error)
}

// JobQueueWorker is the background consumer of §5's embedding submission
// pool: a small fixed set of goroutines poll JobRepo for PENDING work,
// bounded by the embedding provider's own rate limit rather than by
// request concurrency.
type JobQueueWorker struct {
	jobs         JobClaimer
	embedder     JobEmbedder
	pollInterval time.Duration
	maxRetries   int
}

// NewJobQueueWorker creates a JobQueueWorker. maxRetries bounds how many
// times a job failing with a ragerr.Transient error is re-queued to PENDING
// before it is marked terminally FAILED; a non-Transient failure is never
// retried regardless of maxRetries.
func NewJobQueueWorker(jobs JobClaimer, embedder JobEmbedder, pollInterval time.Duration, maxRetries int) *JobQueueWorker {
	return &JobQueueWorker{jobs: jobs, embedder: embedder, pollInterval: pollInterval, maxRetries: maxRetries}
}

// Run starts poolSize poller goroutines, each identified by a distinct
// workerID, and blocks until ctx is cancelled.
func (w *JobQueueWorker) Run(ctx context.Context, poolSize int, workerIDPrefix string) {
	if poolSize <= 0 {
		poolSize = 1
	}
	done := make(chan struct{}, poolSize)
	for i := 0; i < poolSize; i++ {
		workerID := fmt.Sprintf("%s-%d", workerIDPrefix, i)
		go func() {
			w.poll(ctx, workerID)
			done <- struct{}{}
		}()
	}
	for i := 0; i < poolSize; i++ {
		<-done
	}
}

func (w *JobQueueWorker) poll(ctx context.Context, workerID string) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := w.jobs.Claim(ctx, workerID)
			if err != nil {
				log.Printf("worker.JobQueueWorker(%s): claim: %v", workerID, err)
				continue
			}
			if job == nil {
				continue
			}
			w.process(ctx, workerID, job)
		}
	}
}

func (w *JobQueueWorker) process(ctx context.Context, workerID string, job *model.EmbeddingJob) {
	var err error
	if job.SourceType == "pdf" {
		_, err = w.embedder.EmbedPDF(ctx, job.SourceID, job.ModelName, "", 0, false)
	} else {
		_, err = w.embedder.EmbedUnifiedChunks(ctx, job.SourceType, job.SourceID, job.ModelName, 0, false)
	}

	errMsg := ""
	if err != nil && !errors.Is(err, context.Canceled) {
		errMsg = err.Error()
	}
	retryable := err != nil && errors.Is(err, ragerr.Transient)
	if completeErr := w.jobs.Complete(ctx, job.ID, workerID, err == nil, errMsg, retryable, w.maxRetries); completeErr != nil {
		log.Printf("worker.JobQueueWorker(%s): complete job %s: %v", workerID, job.ID, completeErr)
	}
}
