package model

import "time"

// JobStatus is an EmbeddingJob's queue state.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
)

// EmbeddingJob is a queue record for a background embedding run. Workers
// claim a job with a compare-and-set on (status=PENDING -> RUNNING,
// worker_id=self) and must re-check ownership before updating progress.
type EmbeddingJob struct {
	ID         string    `json:"id"`
	SourceType string    `json:"sourceType"`
	SourceID   string    `json:"sourceId"`
	ModelName  string    `json:"modelName"`
	Status     JobStatus `json:"status"`
	Priority   int       `json:"priority"`
	RetryCount int       `json:"retryCount"`
	WorkerID   string    `json:"workerId,omitempty"`
	Progress   float64   `json:"progress"`
	ErrorLog   string    `json:"errorLog,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
