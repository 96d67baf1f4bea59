package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"workout-import/internal/metrics"
	"workout-import/internal/models"
)

const (
	// RetryBaseDelay is the wait after the first failed attempt. It doubles
	// with every further attempt up to RetryMaxDelay.
	RetryBaseDelay = 60 * time.Second
	RetryMaxDelay  = 30 * time.Minute

	// MaxErrorMessageLen is the number of characters of an error kept on a job.
	MaxErrorMessageLen = 500
)

// ErrLockLost is returned when finalizing a job that is no longer running
// under the caller's lock, e.g. because the reaper released it.
var ErrLockLost = errors.New("import job lock lost")

const importJobColumns = `id, user_id, source_file_id, workout_id, attempt, max_attempts, status, priority,
	scheduled_at, locked_by, locked_at, started_at, finished_at, error_message, output, created_at, updated_at`

// claimableWhere matches rows a worker may move to running. Failed rows stay
// claimable only while attempts remain.
const claimableWhere = `status IN ('queued', 'retry_wait', 'failed')
	  AND (status != 'failed' OR attempt < max_attempts)
	  AND scheduled_at <= ?`

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// RetryDelay returns the backoff applied after the given (1-based) attempt
// failed: 60s, 120s, 240s, ... capped at 30 minutes.
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := RetryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= RetryMaxDelay {
			return RetryMaxDelay
		}
	}
	return delay
}

// EnqueueImportJob adds a job to the import queue
func (d *DB) EnqueueImportJob(job *models.ImportJob) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpEnqueueImportJob))
	defer timer.ObserveDuration()

	if err := insertImportJob(d.db, job); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpEnqueueImportJob).Inc()
		return err
	}

	metrics.QueueEnqueueTotal.WithLabelValues(metrics.QueueTypeImportJob).Inc()
	return nil
}

func insertImportJob(ex execer, job *models.ImportJob) error {
	query := `
		INSERT INTO import_jobs (
			id, user_id, source_file_id, workout_id, attempt, max_attempts, status, priority,
			scheduled_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := ex.Exec(query,
		job.ID, job.UserID, job.SourceFileID, job.WorkoutID, job.Attempt, job.MaxAttempts,
		string(job.Status), job.Priority, job.ScheduledAt.Unix(), job.CreatedAt.Unix(), job.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to enqueue import job: %w", err)
	}
	return nil
}

// ClaimImportJobs claims up to limit ready jobs for workerID.
//
// Candidates are read without a lock, ordered by priority, then scheduled_at,
// then created_at. Each one is then claimed with a conditional UPDATE that
// only matches while the row is still claimable. A candidate another worker
// took in the meantime is skipped silently, so concurrent invocations never
// run the same job twice.
func (d *DB) ClaimImportJobs(workerID string, limit int) ([]*models.ImportJob, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpClaimImportJobs))
	defer timer.ObserveDuration()

	now := time.Now()
	ids, err := d.claimCandidates(now, limit)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpClaimImportJobs).Inc()
		return nil, err
	}

	claimed := make([]*models.ImportJob, 0, len(ids))
	for _, id := range ids {
		job, err := d.tryClaimImportJob(id, workerID, now)
		if err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpClaimImportJobs).Inc()
			return claimed, err
		}
		if job == nil {
			continue // lost the race
		}
		claimed = append(claimed, job)
	}

	return claimed, nil
}

func (d *DB) claimCandidates(now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id
		FROM import_jobs
		WHERE ` + claimableWhere + `
		ORDER BY priority DESC, scheduled_at ASC, created_at ASC, rowid ASC
		LIMIT ?
	`

	rows, err := d.db.Query(query, now.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select import job candidates: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan import job candidate: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate import job candidates: %w", err)
	}
	return ids, nil
}

// tryClaimImportJob returns nil without error when the row was no longer claimable.
func (d *DB) tryClaimImportJob(id uuid.UUID, workerID string, now time.Time) (*models.ImportJob, error) {
	query := `
		UPDATE import_jobs
		SET status = 'running',
		    started_at = ?,
		    attempt = attempt + 1,
		    locked_by = ?,
		    locked_at = ?,
		    updated_at = ?
		WHERE id = ?
		  AND ` + claimableWhere + `
		RETURNING ` + importJobColumns

	ts := now.Unix()
	job, err := scanImportJob(d.db.QueryRow(query, ts, workerID, ts, ts, id, ts))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim import job: %w", err)
	}
	return job, nil
}

// CompleteImportJob marks a running job as succeeded and records its output.
func (d *DB) CompleteImportJob(job *models.ImportJob, output models.JobOutput) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpCompleteImportJob))
	defer timer.ObserveDuration()

	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("failed to marshal job output: %w", err)
	}

	now := time.Now().Unix()
	query := `
		UPDATE import_jobs
		SET status = 'succeeded',
		    workout_id = ?,
		    finished_at = ?,
		    error_message = NULL,
		    output = ?,
		    updated_at = ?
		WHERE id = ? AND status = 'running' AND locked_by IS ?
	`

	result, err := d.db.Exec(query, output.WorkoutID, now, string(data), now, job.ID, job.LockedBy)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpCompleteImportJob).Inc()
		return fmt.Errorf("failed to complete import job: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrLockLost
	}

	job.Status = models.JobStatusSucceeded
	job.WorkoutID = &output.WorkoutID
	job.Output = &output
	job.ErrorMessage = nil
	finished := time.Unix(now, 0)
	job.FinishedAt = &finished
	return nil
}

// RetryImportJob records a failed attempt. While attempts remain the job goes
// to retry_wait with an exponential backoff; otherwise it becomes terminally
// failed. The resulting status is returned.
func (d *DB) RetryImportJob(job *models.ImportJob, errMsg string) (models.JobStatus, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpRetryImportJob))
	defer timer.ObserveDuration()

	msg := truncateRunes(errMsg, MaxErrorMessageLen)
	now := time.Now()

	var (
		query  string
		args   []any
		status models.JobStatus
	)
	if job.Attempt < job.MaxAttempts {
		status = models.JobStatusRetryWait
		next := now.Add(RetryDelay(job.Attempt))
		query = `
			UPDATE import_jobs
			SET status = 'retry_wait',
			    scheduled_at = ?,
			    error_message = ?,
			    updated_at = ?
			WHERE id = ? AND status = 'running' AND locked_by IS ?
		`
		args = []any{next.Unix(), msg, now.Unix(), job.ID, job.LockedBy}
		job.ScheduledAt = time.Unix(next.Unix(), 0)
	} else {
		status = models.JobStatusFailed
		query = `
			UPDATE import_jobs
			SET status = 'failed',
			    finished_at = ?,
			    error_message = ?,
			    updated_at = ?
			WHERE id = ? AND status = 'running' AND locked_by IS ?
		`
		args = []any{now.Unix(), msg, now.Unix(), job.ID, job.LockedBy}
		finished := time.Unix(now.Unix(), 0)
		job.FinishedAt = &finished
	}

	result, err := d.db.Exec(query, args...)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpRetryImportJob).Inc()
		return "", fmt.Errorf("failed to release import job: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return "", ErrLockLost
	}

	job.Status = status
	job.ErrorMessage = &msg
	metrics.QueueRetryTotal.WithLabelValues(metrics.QueueTypeImportJob, strconv.Itoa(job.Attempt)).Inc()
	return status, nil
}

// ReapedJob describes a running job released by ReapStaleImportJobs.
type ReapedJob struct {
	ID           uuid.UUID
	SourceFileID uuid.UUID
	Status       models.JobStatus
}

// ReapStaleImportJobs releases jobs that have been running for longer than
// olderThan, typically because their worker died. Jobs with attempts left are
// rescheduled immediately; the rest become failed and their source file is
// marked as errored.
func (d *DB) ReapStaleImportJobs(olderThan time.Duration) ([]ReapedJob, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpReapImportJobs))
	defer timer.ObserveDuration()

	reaped, err := d.reapStaleImportJobs(olderThan)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpReapImportJobs).Inc()
		return nil, err
	}

	if len(reaped) > 0 {
		metrics.QueueReapedTotal.WithLabelValues(metrics.QueueTypeImportJob).Add(float64(len(reaped)))
	}
	return reaped, nil
}

func (d *DB) reapStaleImportJobs(olderThan time.Duration) ([]ReapedJob, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	threshold := time.Now().Add(-olderThan).Unix()

	query := `
		UPDATE import_jobs
		SET status = CASE WHEN attempt >= max_attempts THEN 'failed' ELSE 'retry_wait' END,
		    finished_at = CASE WHEN attempt >= max_attempts THEN ? ELSE finished_at END,
		    scheduled_at = ?,
		    error_message = 'lock expired after ' || ? || 's while running',
		    locked_by = NULL,
		    locked_at = NULL,
		    updated_at = ?
		WHERE status = 'running' AND locked_at < ?
		RETURNING id, source_file_id, status
	`

	rows, err := tx.Query(query, now, now, int64(olderThan.Seconds()), now, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to reap stale import jobs: %w", err)
	}

	var reaped []ReapedJob
	for rows.Next() {
		var r ReapedJob
		var status string
		if err := rows.Scan(&r.ID, &r.SourceFileID, &status); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan reaped import job: %w", err)
		}
		r.Status = models.JobStatus(status)
		reaped = append(reaped, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate reaped import jobs: %w", err)
	}
	rows.Close()

	for _, r := range reaped {
		if r.Status != models.JobStatusFailed {
			continue
		}
		if err := setSourceFileStatus(tx, r.SourceFileID, models.FileStatusError, nil); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return reaped, nil
}

// GetImportJob returns a job by id, or ErrNotFound.
func (d *DB) GetImportJob(id uuid.UUID) (*models.ImportJob, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetImportJob))
	defer timer.ObserveDuration()

	query := `SELECT ` + importJobColumns + ` FROM import_jobs WHERE id = ?`

	job, err := scanImportJob(d.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetImportJob).Inc()
		return nil, fmt.Errorf("failed to get import job: %w", err)
	}
	return job, nil
}

// ListImportJobs returns the most recently created jobs, newest first.
// An empty status matches every status.
func (d *DB) ListImportJobs(status models.JobStatus, limit int) ([]*models.ImportJob, error) {
	query := `
		SELECT ` + importJobColumns + `
		FROM import_jobs
		WHERE (? = '' OR status = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := d.db.Query(query, string(status), string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list import jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.ImportJob
	for rows.Next() {
		job, err := scanImportJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate import jobs: %w", err)
	}
	return jobs, nil
}

// CountImportJobsByStatus returns the number of jobs per status.
func (d *DB) CountImportJobsByStatus() (map[string]int, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpCountImportJobs))
	defer timer.ObserveDuration()

	rows, err := d.db.Query(`SELECT status, COUNT(*) FROM import_jobs GROUP BY status`)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpCountImportJobs).Inc()
		return nil, fmt.Errorf("failed to count import jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan import job count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate import job counts: %w", err)
	}
	return counts, nil
}

// GetReadyImportJobCount returns the number of jobs claimable right now.
func (d *DB) GetReadyImportJobCount() (int, error) {
	query := `SELECT COUNT(*) FROM import_jobs WHERE ` + claimableWhere

	var count int
	if err := d.db.QueryRow(query, time.Now().Unix()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get ready import job count: %w", err)
	}
	return count, nil
}

func scanImportJob(s rowScanner) (*models.ImportJob, error) {
	var (
		job                               models.ImportJob
		status                            string
		scheduledAt, createdAt, updatedAt int64
		lockedAt, startedAt, finishedAt   *int64
		output                            *string
	)

	err := s.Scan(
		&job.ID,
		&job.UserID,
		&job.SourceFileID,
		&job.WorkoutID,
		&job.Attempt,
		&job.MaxAttempts,
		&status,
		&job.Priority,
		&scheduledAt,
		&job.LockedBy,
		&lockedAt,
		&startedAt,
		&finishedAt,
		&job.ErrorMessage,
		&output,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = models.JobStatus(status)
	job.ScheduledAt = time.Unix(scheduledAt, 0)
	job.LockedAt = timeFromUnix(lockedAt)
	job.StartedAt = timeFromUnix(startedAt)
	job.FinishedAt = timeFromUnix(finishedAt)
	job.CreatedAt = time.Unix(createdAt, 0)
	job.UpdatedAt = time.Unix(updatedAt, 0)

	if output != nil && *output != "" {
		var out models.JobOutput
		if err := json.Unmarshal([]byte(*output), &out); err != nil {
			return nil, fmt.Errorf("failed to decode job output: %w", err)
		}
		job.Output = &out
	}

	return &job, nil
}

// truncateRunes shortens s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
