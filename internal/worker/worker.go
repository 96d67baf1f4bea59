package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"workout-import/internal/assemble"
	"workout-import/internal/blobstore"
	"workout-import/internal/config"
	"workout-import/internal/database"
	"workout-import/internal/decode"
	"workout-import/internal/metrics"
	"workout-import/internal/models"
)

// Worker claims import jobs and turns their source files into workouts
type Worker struct {
	db     *database.DB
	blobs  blobstore.Store
	config *config.Config
	logger *slog.Logger
}

// Result summarises one invocation
type Result struct {
	Processed int         `json:"processed"`
	Claimed   []uuid.UUID `json:"claimed"`
	Succeeded []uuid.UUID `json:"succeeded"`
	Failed    []uuid.UUID `json:"failed"`
}

// imported is what a successful pipeline run hands back for finalizing.
type imported struct {
	output models.JobOutput
	format decode.Format
	sport  models.Sport
}

// NewWorker creates a new import worker
func NewWorker(db *database.DB, blobs blobstore.Store, cfg *config.Config) *Worker {
	return &Worker{
		db:     db,
		blobs:  blobs,
		config: cfg,
		logger: slog.Default(),
	}
}

// Enqueue stores an uploaded file and queues an import job for it.
func (w *Worker) Enqueue(ctx context.Context, userID uuid.UUID, filename string, data []byte) (*models.SourceFile, *models.ImportJob, error) {
	return w.EnqueueWithPriority(ctx, userID, filename, data, 0)
}

// EnqueueWithPriority is Enqueue for a job that should be claimed ahead of
// (positive) or after (negative) normal uploads.
func (w *Worker) EnqueueWithPriority(ctx context.Context, userID uuid.UUID, filename string, data []byte, priority int) (*models.SourceFile, *models.ImportJob, error) {
	if filename == "" {
		return nil, nil, errors.New("filename is required")
	}

	fileID := uuid.New()
	objectPath := path.Join(userID.String(), fileID.String(), path.Base(filename))
	if err := w.blobs.Put(ctx, w.config.UploadBucket, objectPath, data); err != nil {
		return nil, nil, fmt.Errorf("failed to store upload: %w", err)
	}

	file := models.NewSourceFile(userID, w.config.UploadBucket, objectPath, filename, int64(len(data)))
	file.ID = fileID
	job := models.NewImportJob(userID, file.ID, w.config.MaxAttempts).WithPriority(priority)
	if err := w.db.CreateUpload(file, job); err != nil {
		return nil, nil, err
	}

	w.logger.Info("Queued import job",
		"job_id", job.ID,
		"file_id", file.ID,
		"filename", filename,
		"priority", priority,
		"size_bytes", file.SizeBytes)
	return file, job, nil
}

// Start reaps stale locks and runs an invocation every POLL_INTERVAL until ctx
// is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting import worker",
		"worker_id", w.config.WorkerID,
		"batch_size", w.config.BatchSize,
		"poll_interval", w.config.PollInterval)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		w.Reap()
		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.Error("Import worker invocation failed", "error", err)
		}

		select {
		case <-ctx.Done():
			w.logger.Info("Stopping import worker")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Reap releases jobs whose lock is older than STALE_LOCK_TIMEOUT.
func (w *Worker) Reap() []database.ReapedJob {
	reaped, err := w.db.ReapStaleImportJobs(w.config.StaleLockTimeout)
	if err != nil {
		w.logger.Error("Failed to reap stale import jobs", "error", err)
		return nil
	}
	for _, r := range reaped {
		w.logger.Warn("Released stale import job",
			"job_id", r.ID,
			"file_id", r.SourceFileID,
			"status", r.Status)
	}
	return reaped
}

// RunOnce claims up to BATCH_SIZE jobs and processes them one after another.
// Job failures are recorded on the job rows; only a failure to claim is
// returned as an error.
func (w *Worker) RunOnce(ctx context.Context) (*Result, error) {
	metrics.WorkerActive.Inc()
	defer metrics.WorkerActive.Dec()

	jobs, err := w.db.ClaimImportJobs(w.config.WorkerID, w.config.BatchSize)
	if err != nil {
		metrics.WorkerPollCyclesTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("failed to claim import jobs: %w", err)
	}

	result := &Result{
		Claimed:   []uuid.UUID{},
		Succeeded: []uuid.UUID{},
		Failed:    []uuid.UUID{},
	}
	if len(jobs) == 0 {
		metrics.WorkerPollCyclesTotal.WithLabelValues(metrics.OutcomeIdle).Inc()
		return result, nil
	}
	metrics.WorkerPollCyclesTotal.WithLabelValues(metrics.OutcomeJobsClaimed).Inc()

	for _, job := range jobs {
		result.Claimed = append(result.Claimed, job.ID)
		metrics.QueueItemAge.WithLabelValues(metrics.QueueTypeImportJob).Observe(time.Since(job.ScheduledAt).Seconds())
	}

	for _, job := range jobs {
		if w.processJob(ctx, job) {
			result.Succeeded = append(result.Succeeded, job.ID)
		} else {
			result.Failed = append(result.Failed, job.ID)
		}
		result.Processed++
	}

	w.logger.Info("Import invocation finished",
		"claimed", len(result.Claimed),
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed))
	return result, nil
}

// processJob runs the pipeline for one claimed job and finalizes it. It
// reports whether the job succeeded.
func (w *Worker) processJob(ctx context.Context, job *models.ImportJob) bool {
	start := time.Now()
	w.logger.Info("Processing import job",
		"job_id", job.ID,
		"file_id", job.SourceFileID,
		"attempt", job.Attempt)

	out, err := w.runPipeline(ctx, job)
	if err != nil {
		w.fail(job, err, start)
		return false
	}

	if err := w.db.CompleteImportJob(job, out.output); err != nil {
		// The workout is written; a lost lock means the reaper already handed
		// the job to someone else, who will rewrite the same row.
		w.logger.Error("Failed to complete import job",
			"job_id", job.ID,
			"workout_id", out.output.WorkoutID,
			"error", err)
		metrics.QueueProcessingDuration.WithLabelValues(metrics.QueueTypeImportJob, metrics.ResultFailed).Observe(time.Since(start).Seconds())
		return false
	}

	if err := w.db.SetSourceFileStatus(job.SourceFileID, models.FileStatusReady); err != nil {
		w.logger.Error("Failed to mark source file ready", "file_id", job.SourceFileID, "error", err)
	}

	duration := time.Since(start)
	metrics.QueueProcessingDuration.WithLabelValues(metrics.QueueTypeImportJob, metrics.ResultSuccess).Observe(duration.Seconds())
	metrics.QueueDequeueTotal.WithLabelValues(metrics.QueueTypeImportJob, metrics.ResultSuccess).Inc()
	metrics.WorkoutsImportedTotal.WithLabelValues(string(out.format), string(out.sport)).Inc()

	w.logger.Info("Import job succeeded",
		"job_id", job.ID,
		"file_id", job.SourceFileID,
		"workout_id", out.output.WorkoutID,
		"duration_ms", duration.Milliseconds())
	return true
}

// fail records a failed attempt. A job out of attempts takes its source file
// to the error state with it.
func (w *Worker) fail(job *models.ImportJob, jobErr error, start time.Time) {
	w.logger.Error("Import job failed",
		"job_id", job.ID,
		"file_id", job.SourceFileID,
		"attempt", job.Attempt,
		"error", jobErr)

	metrics.QueueProcessingDuration.WithLabelValues(metrics.QueueTypeImportJob, metrics.ResultFailed).Observe(time.Since(start).Seconds())

	status, err := w.db.RetryImportJob(job, jobErr.Error())
	if err != nil {
		w.logger.Error("Failed to release import job", "job_id", job.ID, "error", err)
		return
	}

	if status != models.JobStatusFailed {
		metrics.QueueDequeueTotal.WithLabelValues(metrics.QueueTypeImportJob, metrics.ResultRetry).Inc()
		w.logger.Info("Import job scheduled for retry",
			"job_id", job.ID,
			"attempt", job.Attempt,
			"scheduled_at", job.ScheduledAt)
		return
	}

	metrics.QueueDequeueTotal.WithLabelValues(metrics.QueueTypeImportJob, metrics.ResultFailed).Inc()
	if err := w.db.SetSourceFileStatus(job.SourceFileID, models.FileStatusError); err != nil {
		w.logger.Error("Failed to mark source file errored", "file_id", job.SourceFileID, "error", err)
	}
}

// runPipeline downloads, decodes and materializes the job's source file under
// JOB_TIMEOUT. Panics are turned into errors so they are retried like any
// other failure.
func (w *Worker) runPipeline(ctx context.Context, job *models.ImportJob) (out *imported, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Recovered panic in import job", "job_id", job.ID, "panic", r, "stack", string(debug.Stack()))
			out, err = nil, fmt.Errorf("panic while processing job: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	file, err := w.db.GetSourceFile(job.SourceFileID)
	if err != nil {
		return nil, fmt.Errorf("failed to load source file: %w", err)
	}
	if err := w.db.SetSourceFileStatus(file.ID, models.FileStatusProcessing); err != nil {
		return nil, fmt.Errorf("failed to mark source file processing: %w", err)
	}

	data, err := w.blobs.Get(ctx, file.StorageBucket, file.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to download source file: %w", err)
	}

	ext := file.ParseExt()
	decodeStart := time.Now()
	parsed, err := decode.Decode(ext, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s file: %w", ext, err)
	}
	metrics.DecodeDuration.WithLabelValues(string(parsed.Format)).Observe(time.Since(decodeStart).Seconds())

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("job deadline exceeded after decode: %w", err)
	}

	m := assemble.Build(parsed)

	workoutID, err := w.db.EnsureWorkout(file, ext)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure workout: %w", err)
	}
	if err := w.db.UpdateWorkoutMetrics(workoutID, &m); err != nil {
		return nil, fmt.Errorf("failed to update workout: %w", err)
	}

	w.writePreview(file.UserID, workoutID, parsed.Streams)

	return &imported{
		output: models.JobOutput{
			WorkoutID: workoutID,
			FileID:    file.ID,
			ParsedExt: ext,
		},
		format: parsed.Format,
		sport:  m.Sport,
	}, nil
}

// writePreview stores the chart stream for a workout. Failures are logged and
// counted but never fail the job.
func (w *Worker) writePreview(userID, workoutID uuid.UUID, s *decode.Streams) {
	if s.Len() == 0 {
		return
	}

	p := &models.PreviewStream{
		WorkoutID: workoutID,
		UserID:    userID,
		Series:    BuildPreview(s, w.config.PreviewMaxPoints),
	}
	p.PointsCount = len(p.Series.TimeS)

	if err := w.db.UpsertPreviewStream(p); err != nil {
		metrics.PreviewUpsertFailuresTotal.Inc()
		w.logger.Warn("Failed to upsert preview stream", "workout_id", workoutID, "error", err)
		return
	}
	metrics.PreviewPointsCount.Observe(float64(p.PointsCount))
}
