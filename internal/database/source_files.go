package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"workout-import/internal/metrics"
	"workout-import/internal/models"
)

const sourceFileColumns = `id, user_id, storage_bucket, storage_path, filename, extension, size_bytes,
	workout_id, status, processed_at, created_at`

// CreateSourceFile inserts an uploaded file record
func (d *DB) CreateSourceFile(f *models.SourceFile) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpCreateSourceFile))
	defer timer.ObserveDuration()

	if err := insertSourceFile(d.db, f); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpCreateSourceFile).Inc()
		return err
	}
	return nil
}

// CreateUpload stores a new source file together with the job that imports
// it, in one transaction.
func (d *DB) CreateUpload(f *models.SourceFile, job *models.ImportJob) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpEnqueueImportJob))
	defer timer.ObserveDuration()

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertSourceFile(tx, f); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpEnqueueImportJob).Inc()
		return err
	}
	if err := insertImportJob(tx, job); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpEnqueueImportJob).Inc()
		return err
	}

	if err := tx.Commit(); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpEnqueueImportJob).Inc()
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	metrics.QueueEnqueueTotal.WithLabelValues(metrics.QueueTypeImportJob).Inc()
	return nil
}

func insertSourceFile(ex execer, f *models.SourceFile) error {
	query := `
		INSERT INTO source_files (
			id, user_id, storage_bucket, storage_path, filename, extension, size_bytes,
			workout_id, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := ex.Exec(query,
		f.ID, f.UserID, f.StorageBucket, f.StoragePath, f.Filename, f.Extension, f.SizeBytes,
		f.WorkoutID, string(f.Status), f.CreatedAt.Unix(), f.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to create source file: %w", err)
	}
	return nil
}

// GetSourceFile returns a source file by id, or ErrNotFound.
func (d *DB) GetSourceFile(id uuid.UUID) (*models.SourceFile, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetSourceFile))
	defer timer.ObserveDuration()

	var (
		f           models.SourceFile
		extension   *string
		status      string
		processedAt *int64
		createdAt   int64
	)

	query := `SELECT ` + sourceFileColumns + ` FROM source_files WHERE id = ?`
	err := d.db.QueryRow(query, id).Scan(
		&f.ID, &f.UserID, &f.StorageBucket, &f.StoragePath, &f.Filename, &extension, &f.SizeBytes,
		&f.WorkoutID, &status, &processedAt, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetSourceFile).Inc()
		return nil, fmt.Errorf("failed to get source file: %w", err)
	}

	if extension != nil {
		f.Extension = *extension
	}
	f.Status = models.FileStatus(status)
	f.ProcessedAt = timeFromUnix(processedAt)
	f.CreatedAt = time.Unix(createdAt, 0)
	return &f, nil
}

// SetSourceFileStatus moves a file through its processing lifecycle. Reaching
// ready also stamps processed_at.
func (d *DB) SetSourceFileStatus(id uuid.UUID, status models.FileStatus) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpSetSourceFileStatus))
	defer timer.ObserveDuration()

	var processedAt *time.Time
	if status == models.FileStatusReady {
		now := time.Now()
		processedAt = &now
	}

	if err := setSourceFileStatus(d.db, id, status, processedAt); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpSetSourceFileStatus).Inc()
		return err
	}
	return nil
}

func setSourceFileStatus(ex execer, id uuid.UUID, status models.FileStatus, processedAt *time.Time) error {
	query := `
		UPDATE source_files
		SET status = ?,
		    processed_at = COALESCE(?, processed_at),
		    updated_at = ?
		WHERE id = ?
	`
	result, err := ex.Exec(query, string(status), unixPtr(processedAt), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to set source file status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
