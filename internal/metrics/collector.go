package metrics

import (
	"context"
	"log/slog"
	"time"
)

// DB interface for queue depth queries
type DB interface {
	CountImportJobsByStatus() (map[string]int, error)
	GetReadyImportJobCount() (int, error)
}

// statuses is every import job status, so gauges for emptied statuses drop to zero.
var statuses = []string{"queued", "running", "succeeded", "retry_wait", "failed"}

// StartQueueDepthCollector starts a background goroutine that periodically
// collects queue depth metrics from the database
func StartQueueDepthCollector(ctx context.Context, db DB, interval time.Duration) {
	logger := slog.Default()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect once immediately
	collectQueueDepths(db, logger)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Queue depth collector stopping")
			return
		case <-ticker.C:
			collectQueueDepths(db, logger)
		}
	}
}

func collectQueueDepths(db DB, logger *slog.Logger) {
	if counts, err := db.CountImportJobsByStatus(); err != nil {
		logger.Error("Failed to count import jobs by status", "error", err)
	} else {
		total := 0
		for _, status := range statuses {
			QueueDepthByStatus.WithLabelValues(QueueTypeImportJob, status).Set(float64(counts[status]))
			total += counts[status]
		}
		QueueDepthTotal.WithLabelValues(QueueTypeImportJob).Set(float64(total))
	}

	if ready, err := db.GetReadyImportJobCount(); err != nil {
		logger.Error("Failed to get ready import job count", "error", err)
	} else {
		QueueDepthReady.WithLabelValues(QueueTypeImportJob).Set(float64(ready))
	}
}
