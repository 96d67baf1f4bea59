package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tormoder/fit"

	"workout-import/internal/blobstore"
	"workout-import/internal/config"
	"workout-import/internal/database"
	"workout-import/internal/decode"
	"workout-import/internal/models"
)

var testStart = time.Date(2025, 3, 14, 7, 30, 0, 0, time.UTC)

func setupWorkerTest(t *testing.T) (*Worker, *database.DB) {
	t.Helper()

	db, err := database.Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	blobs, err := blobstore.Open(blobstore.BackendFS, t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open blob store: %v", err)
	}
	t.Cleanup(func() { blobs.Close() })

	return NewWorker(db, blobs, testConfig()), db
}

func testConfig() *config.Config {
	return &config.Config{
		UploadBucket:     "uploads",
		WorkerID:         "test-worker",
		BatchSize:        3,
		PollInterval:     10 * time.Millisecond,
		JobTimeout:       time.Minute,
		StaleLockTimeout: 15 * time.Minute,
		MaxAttempts:      5,
		PreviewMaxPoints: 100,
	}
}

// buildRunFIT encodes a 40 minute, 8042 m run sampled every 10 seconds.
func buildRunFIT(t *testing.T) []byte {
	t.Helper()

	file, err := fit.NewFile(fit.FileTypeActivity, fit.NewHeader(fit.V20, true))
	if err != nil {
		t.Fatalf("Failed to create FIT file: %v", err)
	}
	activity, err := file.Activity()
	if err != nil {
		t.Fatalf("Failed to get activity: %v", err)
	}

	session := fit.NewSessionMsg()
	session.Timestamp = testStart.Add(40 * time.Minute)
	session.StartTime = testStart
	session.Sport = fit.SportRunning
	session.SubSport = fit.SubSportGeneric
	session.TotalTimerTime = 2400 * 1000
	session.TotalElapsedTime = 2400 * 1000
	session.TotalDistance = 8042 * 100
	activity.Sessions = append(activity.Sessions, session)

	for i := 0; i <= 240; i++ {
		r := fit.NewRecordMsg()
		r.Timestamp = testStart.Add(time.Duration(i*10) * time.Second)
		r.Speed = 3350
		r.HeartRate = 150
		r.Distance = uint32(float64(i) / 240 * 8042 * 100)
		r.PositionLat = fit.NewLatitude(715000000 + int32(i*100))
		r.PositionLong = fit.NewLongitude(362000000)
		activity.Records = append(activity.Records, r)
	}

	var buf bytes.Buffer
	if err := fit.Encode(&buf, file, binary.LittleEndian); err != nil {
		t.Fatalf("Failed to encode FIT file: %v", err)
	}
	return buf.Bytes()
}

func enqueue(t *testing.T, w *Worker, filename string, data []byte) (*models.SourceFile, *models.ImportJob) {
	t.Helper()

	file, job, err := w.Enqueue(context.Background(), uuid.New(), filename, data)
	if err != nil {
		t.Fatalf("Failed to enqueue upload: %v", err)
	}
	return file, job
}

func getJob(t *testing.T, db *database.DB, id uuid.UUID) *models.ImportJob {
	t.Helper()

	job, err := db.GetImportJob(id)
	if err != nil {
		t.Fatalf("Failed to get import job: %v", err)
	}
	return job
}

func getFile(t *testing.T, db *database.DB, id uuid.UUID) *models.SourceFile {
	t.Helper()

	file, err := db.GetSourceFile(id)
	if err != nil {
		t.Fatalf("Failed to get source file: %v", err)
	}
	return file
}

func TestRunOnceIdle(t *testing.T) {
	worker, _ := setupWorkerTest(t)

	result, err := worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("Failed to run worker: %v", err)
	}
	if result.Processed != 0 {
		t.Errorf("Expected 0 processed, got %d", result.Processed)
	}
	if result.Claimed == nil || result.Succeeded == nil || result.Failed == nil {
		t.Error("Expected empty, non-nil id lists")
	}
}

func TestRunOnceImportsFIT(t *testing.T) {
	worker, db := setupWorkerTest(t)

	file, job := enqueue(t, worker, "Morning Run.FIT", buildRunFIT(t))

	result, err := worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("Failed to run worker: %v", err)
	}
	if result.Processed != 1 || len(result.Claimed) != 1 || len(result.Succeeded) != 1 || len(result.Failed) != 0 {
		t.Fatalf("Expected one succeeded job, got %+v", result)
	}
	if result.Succeeded[0] != job.ID {
		t.Errorf("Expected succeeded job %s, got %s", job.ID, result.Succeeded[0])
	}

	got := getJob(t, db, job.ID)
	if got.Status != models.JobStatusSucceeded {
		t.Errorf("Expected status succeeded, got %s", got.Status)
	}
	if got.Attempt != 1 {
		t.Errorf("Expected attempt 1, got %d", got.Attempt)
	}
	if got.Output == nil {
		t.Fatal("Expected job output")
	}
	if got.Output.FileID != file.ID || got.Output.ParsedExt != "fit" {
		t.Errorf("Unexpected job output: %+v", got.Output)
	}
	if got.WorkoutID == nil || *got.WorkoutID != got.Output.WorkoutID {
		t.Errorf("Expected job workout_id to match output, got %v", got.WorkoutID)
	}

	f := getFile(t, db, file.ID)
	if f.Status != models.FileStatusReady {
		t.Errorf("Expected file status ready, got %s", f.Status)
	}
	if f.ProcessedAt == nil {
		t.Error("Expected processed_at to be set")
	}

	workout, err := db.GetWorkout(got.Output.WorkoutID)
	if err != nil {
		t.Fatalf("Failed to get workout: %v", err)
	}
	m := workout.Metrics
	if m.Name != "Бег 8 км" {
		t.Errorf("Expected name 'Бег 8 км', got %q", m.Name)
	}
	if m.Sport != models.SportRun {
		t.Errorf("Expected sport run, got %s", m.Sport)
	}
	if m.DistanceM == nil || *m.DistanceM != 8042 {
		t.Errorf("Expected distance 8042, got %v", m.DistanceM)
	}
	if m.AvgSpeedKmh == nil || *m.AvgSpeedKmh != 12.06 {
		t.Errorf("Expected 12.06 km/h, got %v", m.AvgSpeedKmh)
	}
	if m.AvgPaceSPerKm == nil || *m.AvgPaceSPerKm != 298 {
		t.Errorf("Expected pace 298, got %v", m.AvgPaceSPerKm)
	}
	if m.HasGPS == nil || !*m.HasGPS {
		t.Errorf("Expected has_gps true, got %v", m.HasGPS)
	}
	if m.LocalDate == nil || *m.LocalDate != "2025-03-14" {
		t.Errorf("Expected local date 2025-03-14, got %v", m.LocalDate)
	}
	if workout.Source != "fit" {
		t.Errorf("Expected source fit, got %s", workout.Source)
	}

	preview, err := db.GetPreviewStream(workout.ID)
	if err != nil {
		t.Fatalf("Failed to get preview stream: %v", err)
	}
	// 241 samples with a limit of 100 keep every third one.
	if preview.PointsCount != 81 || len(preview.Series.TimeS) != 81 {
		t.Errorf("Expected 81 preview points, got %d", preview.PointsCount)
	}
	if preview.Series.TimeS[1] != 30 {
		t.Errorf("Expected second point at 30s, got %d", preview.Series.TimeS[1])
	}
	if p := preview.Series.PaceSPerKm[0]; p == nil || *p != 299 {
		t.Errorf("Expected first pace 299, got %v", p)
	}
	if hr := preview.Series.HR[0]; hr == nil || *hr != 150 {
		t.Errorf("Expected first HR 150, got %v", hr)
	}
}

func TestRerunReusesWorkout(t *testing.T) {
	worker, db := setupWorkerTest(t)

	file, first := enqueue(t, worker, "run.fit", buildRunFIT(t))
	if _, err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("Failed to run worker: %v", err)
	}

	second := models.NewImportJob(file.UserID, file.ID, 5)
	if err := db.EnqueueImportJob(second); err != nil {
		t.Fatalf("Failed to enqueue second job: %v", err)
	}
	result, err := worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("Failed to run worker: %v", err)
	}
	if len(result.Succeeded) != 1 {
		t.Fatalf("Expected second job to succeed, got %+v", result)
	}

	a := getJob(t, db, first.ID)
	b := getJob(t, db, second.ID)
	if a.Output.WorkoutID != b.Output.WorkoutID {
		t.Errorf("Expected the same workout, got %s and %s", a.Output.WorkoutID, b.Output.WorkoutID)
	}

	count, err := db.CountWorkoutsForFile(file.ID)
	if err != nil {
		t.Fatalf("Failed to count workouts: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 workout for file, got %d", count)
	}
}

func TestUndecodableFileIsRetried(t *testing.T) {
	worker, db := setupWorkerTest(t)

	_, job := enqueue(t, worker, "broken.fit", []byte("definitely not a fit file"))

	result, err := worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("Failed to run worker: %v", err)
	}
	if len(result.Failed) != 1 || result.Failed[0] != job.ID {
		t.Fatalf("Expected job to be reported failed, got %+v", result)
	}

	got := getJob(t, db, job.ID)
	if got.Status != models.JobStatusRetryWait {
		t.Errorf("Expected status retry_wait, got %s", got.Status)
	}
	if got.ErrorMessage == nil || !strings.Contains(*got.ErrorMessage, "failed to decode fit file") {
		t.Errorf("Expected decode error message, got %v", got.ErrorMessage)
	}
	wait := time.Until(got.ScheduledAt)
	if wait < 50*time.Second || wait > 61*time.Second {
		t.Errorf("Expected retry in about 60s, got %s", wait)
	}
	if got.LockedBy == nil || *got.LockedBy != "test-worker" {
		t.Errorf("Expected locked_by to record the last worker, got %v", got.LockedBy)
	}
}

func TestExhaustedJobFailsFile(t *testing.T) {
	worker, db := setupWorkerTest(t)
	worker.config.MaxAttempts = 1

	file, job := enqueue(t, worker, "notes.txt", []byte("hello"))

	if _, err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("Failed to run worker: %v", err)
	}

	got := getJob(t, db, job.ID)
	if got.Status != models.JobStatusFailed {
		t.Errorf("Expected status failed, got %s", got.Status)
	}
	if got.FinishedAt == nil {
		t.Error("Expected finished_at to be set")
	}
	if got.ErrorMessage == nil || !strings.Contains(*got.ErrorMessage, decode.ErrUnsupportedFormat.Error()) {
		t.Errorf("Expected unsupported format error, got %v", got.ErrorMessage)
	}

	if f := getFile(t, db, file.ID); f.Status != models.FileStatusError {
		t.Errorf("Expected file status error, got %s", f.Status)
	}

	// Nothing is left to claim.
	result, err := worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("Failed to run worker: %v", err)
	}
	if result.Processed != 0 {
		t.Errorf("Expected failed job to stay put, got %+v", result)
	}
}

func TestMissingBlobIsRetried(t *testing.T) {
	worker, db := setupWorkerTest(t)

	userID := uuid.New()
	file := models.NewSourceFile(userID, "uploads", userID.String()+"/gone.fit", "gone.fit", 10)
	job := models.NewImportJob(userID, file.ID, 5)
	if err := db.CreateUpload(file, job); err != nil {
		t.Fatalf("Failed to create upload: %v", err)
	}

	if _, err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("Failed to run worker: %v", err)
	}

	got := getJob(t, db, job.ID)
	if got.Status != models.JobStatusRetryWait {
		t.Errorf("Expected status retry_wait, got %s", got.Status)
	}
	if got.ErrorMessage == nil || !strings.Contains(*got.ErrorMessage, blobstore.ErrNotFound.Error()) {
		t.Errorf("Expected blob not found error, got %v", got.ErrorMessage)
	}
}

type panicStore struct {
	blobstore.Store
}

func (panicStore) Get(ctx context.Context, bucket, objectPath string) ([]byte, error) {
	panic("disk on fire")
}

func TestPanicIsRecovered(t *testing.T) {
	worker, db := setupWorkerTest(t)
	_, job := enqueue(t, worker, "run.fit", buildRunFIT(t))

	worker.blobs = panicStore{Store: worker.blobs}

	result, err := worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("Failed to run worker: %v", err)
	}
	if len(result.Failed) != 1 {
		t.Fatalf("Expected one failed job, got %+v", result)
	}

	got := getJob(t, db, job.ID)
	if got.Status != models.JobStatusRetryWait {
		t.Errorf("Expected status retry_wait, got %s", got.Status)
	}
	if got.ErrorMessage == nil || !strings.Contains(*got.ErrorMessage, "disk on fire") {
		t.Errorf("Expected panic message, got %v", got.ErrorMessage)
	}
}

type slowStore struct {
	blobstore.Store
}

func (slowStore) Get(ctx context.Context, bucket, objectPath string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestJobTimeout(t *testing.T) {
	worker, db := setupWorkerTest(t)
	_, job := enqueue(t, worker, "run.fit", buildRunFIT(t))

	worker.blobs = slowStore{Store: worker.blobs}
	worker.config.JobTimeout = 50 * time.Millisecond

	if _, err := worker.RunOnce(context.Background()); err != nil {
		t.Fatalf("Failed to run worker: %v", err)
	}

	got := getJob(t, db, job.ID)
	if got.Status != models.JobStatusRetryWait {
		t.Errorf("Expected status retry_wait, got %s", got.Status)
	}
	if got.ErrorMessage == nil || !strings.Contains(*got.ErrorMessage, context.DeadlineExceeded.Error()) {
		t.Errorf("Expected deadline error, got %v", got.ErrorMessage)
	}
}

func TestBatchSizeIsHonoured(t *testing.T) {
	worker, _ := setupWorkerTest(t)
	worker.config.BatchSize = 2

	for i := 0; i < 3; i++ {
		enqueue(t, worker, "run.fit", buildRunFIT(t))
	}

	result, err := worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("Failed to run worker: %v", err)
	}
	if len(result.Claimed) != 2 || len(result.Succeeded) != 2 {
		t.Errorf("Expected 2 jobs claimed and succeeded, got %+v", result)
	}

	result, err = worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("Failed to run worker: %v", err)
	}
	if len(result.Succeeded) != 1 {
		t.Errorf("Expected the last job on the second run, got %+v", result)
	}
}

func TestEnqueueRequiresFilename(t *testing.T) {
	worker, _ := setupWorkerTest(t)

	if _, _, err := worker.Enqueue(context.Background(), uuid.New(), "", []byte("x")); err == nil {
		t.Error("Expected error for empty filename")
	}
}

func TestStart_Cancellation(t *testing.T) {
	worker, db := setupWorkerTest(t)
	_, job := enqueue(t, worker, "run.fit", buildRunFIT(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- worker.Start(ctx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for getJob(t, db, job.ID).Status != models.JobStatusSucceeded {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for the worker loop to process the job")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Worker did not stop after cancellation")
	}
}
