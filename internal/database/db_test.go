package database

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"workout-import/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUpload inserts a source file and its queued job.
func createTestUpload(t *testing.T, db *DB, filename string, configure func(*models.ImportJob)) (*models.SourceFile, *models.ImportJob) {
	t.Helper()

	userID := uuid.New()
	file := models.NewSourceFile(userID, "uploads", userID.String()+"/"+filename, filename, 1024)
	job := models.NewImportJob(userID, file.ID, models.DefaultMaxAttempts)
	if configure != nil {
		configure(job)
	}

	if err := db.CreateUpload(file, job); err != nil {
		t.Fatalf("Failed to create upload: %v", err)
	}
	return file, job
}

// backdate makes a job runnable now regardless of its backoff.
func backdate(t *testing.T, db *DB, id uuid.UUID) {
	t.Helper()
	if _, err := db.db.Exec(`UPDATE import_jobs SET scheduled_at = ? WHERE id = ?`, time.Now().Add(-time.Hour).Unix(), id); err != nil {
		t.Fatalf("Failed to backdate job: %v", err)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := t.TempDir() + "/test.db"

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := db.Init(); err != nil {
		t.Fatalf("Failed to re-apply schema: %v", err)
	}
	if err := db.Health(); err != nil {
		t.Errorf("Expected healthy database, got %v", err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	db.Close()
}

func TestCreateUploadAndGetSourceFile(t *testing.T) {
	db := setupTestDB(t)

	file, job := createTestUpload(t, db, "morning.FIT", nil)

	got, err := db.GetSourceFile(file.ID)
	if err != nil {
		t.Fatalf("Failed to get source file: %v", err)
	}
	if got.Extension != "fit" {
		t.Errorf("Expected extension fit, got %q", got.Extension)
	}
	if got.Status != models.FileStatusPending {
		t.Errorf("Expected status pending, got %s", got.Status)
	}
	if got.WorkoutID != nil {
		t.Errorf("Expected no workout yet, got %v", got.WorkoutID)
	}

	stored, err := db.GetImportJob(job.ID)
	if err != nil {
		t.Fatalf("Failed to get import job: %v", err)
	}
	if stored.SourceFileID != file.ID {
		t.Errorf("Expected source file %s, got %s", file.ID, stored.SourceFileID)
	}
	if stored.Status != models.JobStatusQueued || stored.Attempt != 0 {
		t.Errorf("Expected queued job with 0 attempts, got %s/%d", stored.Status, stored.Attempt)
	}
}

func TestGetMissingRows(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.GetImportJob(uuid.New()); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound for job, got %v", err)
	}
	if _, err := db.GetSourceFile(uuid.New()); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound for file, got %v", err)
	}
	if _, err := db.GetWorkout(uuid.New()); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound for workout, got %v", err)
	}
	if _, err := db.GetPreviewStream(uuid.New()); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound for preview, got %v", err)
	}
}

func TestSetSourceFileStatus(t *testing.T) {
	db := setupTestDB(t)
	file, _ := createTestUpload(t, db, "a.gpx", nil)

	if err := db.SetSourceFileStatus(file.ID, models.FileStatusProcessing); err != nil {
		t.Fatalf("Failed to set status: %v", err)
	}
	got, _ := db.GetSourceFile(file.ID)
	if got.Status != models.FileStatusProcessing || got.ProcessedAt != nil {
		t.Errorf("Expected processing without processed_at, got %s/%v", got.Status, got.ProcessedAt)
	}

	if err := db.SetSourceFileStatus(file.ID, models.FileStatusReady); err != nil {
		t.Fatalf("Failed to set status: %v", err)
	}
	got, _ = db.GetSourceFile(file.ID)
	if got.Status != models.FileStatusReady || got.ProcessedAt == nil {
		t.Errorf("Expected ready with processed_at, got %s/%v", got.Status, got.ProcessedAt)
	}

	if err := db.SetSourceFileStatus(uuid.New(), models.FileStatusError); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound for unknown file, got %v", err)
	}
}
