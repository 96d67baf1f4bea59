// Package models holds the records shared by the import pipeline and its store.
package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an import job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusRetryWait JobStatus = "retry_wait"
	JobStatusFailed    JobStatus = "failed"
)

// ClaimableStatuses are the states a worker may move to running.
// Failed rows are only claimable while attempts remain.
var ClaimableStatuses = []JobStatus{JobStatusQueued, JobStatusRetryWait, JobStatusFailed}

// DefaultMaxAttempts is used when a job is enqueued without an explicit limit.
const DefaultMaxAttempts = 5

// ImportJob is one unit of work in the import queue. Rows are never deleted.
type ImportJob struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	SourceFileID uuid.UUID  `json:"source_file_id"`
	WorkoutID    *uuid.UUID `json:"workout_id"`
	Attempt      int        `json:"attempt"`
	MaxAttempts  int        `json:"max_attempts"`
	Status       JobStatus  `json:"status"`
	Priority     int        `json:"priority"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	LockedBy     *string    `json:"locked_by"`
	LockedAt     *time.Time `json:"locked_at"`
	StartedAt    *time.Time `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`
	ErrorMessage *string    `json:"error_message"`
	Output       *JobOutput `json:"output"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// JobOutput is the result envelope recorded on a succeeded job.
type JobOutput struct {
	WorkoutID uuid.UUID `json:"workout_id"`
	FileID    uuid.UUID `json:"file_id"`
	ParsedExt string    `json:"parsed_ext"`
}

// NewImportJob creates a queued job for a source file, runnable immediately.
func NewImportJob(userID, sourceFileID uuid.UUID, maxAttempts int) *ImportJob {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	now := time.Now()
	return &ImportJob{
		ID:           uuid.New(),
		UserID:       userID,
		SourceFileID: sourceFileID,
		MaxAttempts:  maxAttempts,
		Status:       JobStatusQueued,
		ScheduledAt:  now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// WithPriority sets the claim priority. Higher runs first.
func (j *ImportJob) WithPriority(p int) *ImportJob {
	j.Priority = p
	return j
}

// Exhausted reports whether the job has used all of its attempts.
func (j *ImportJob) Exhausted() bool {
	return j.Attempt >= j.MaxAttempts
}
