package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"workout-import/internal/metrics"
	"workout-import/internal/models"
)

// UpsertPreviewStream writes the chart preview for a workout, replacing any
// previous one.
func (d *DB) UpsertPreviewStream(p *models.PreviewStream) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpUpsertPreviewStream))
	defer timer.ObserveDuration()

	data, err := json.Marshal(p.Series)
	if err != nil {
		return fmt.Errorf("failed to marshal preview series: %w", err)
	}

	query := `
		INSERT INTO workout_streams_preview (workout_id, user_id, points_count, s, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(workout_id) DO UPDATE SET
			user_id = excluded.user_id,
			points_count = excluded.points_count,
			s = excluded.s,
			updated_at = excluded.updated_at
	`

	_, err = d.db.Exec(query, p.WorkoutID, p.UserID, p.PointsCount, string(data), time.Now().Unix())
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpsertPreviewStream).Inc()
		return fmt.Errorf("failed to upsert preview stream: %w", err)
	}
	return nil
}

// GetPreviewStream returns the preview for a workout, or ErrNotFound.
func (d *DB) GetPreviewStream(workoutID uuid.UUID) (*models.PreviewStream, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetPreviewStream))
	defer timer.ObserveDuration()

	var (
		p         models.PreviewStream
		data      string
		updatedAt int64
	)
	err := d.db.QueryRow(`
		SELECT workout_id, user_id, points_count, s, updated_at
		FROM workout_streams_preview WHERE workout_id = ?
	`, workoutID).Scan(&p.WorkoutID, &p.UserID, &p.PointsCount, &data, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetPreviewStream).Inc()
		return nil, fmt.Errorf("failed to get preview stream: %w", err)
	}

	if err := json.Unmarshal([]byte(data), &p.Series); err != nil {
		return nil, fmt.Errorf("failed to decode preview series: %w", err)
	}
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}
