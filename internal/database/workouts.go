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

// EnsureWorkout returns the workout linked to the file, creating a placeholder
// workout (sport "other") and linking it when there is none. Running it again
// for the same file returns the same id.
func (d *DB) EnsureWorkout(f *models.SourceFile, source string) (uuid.UUID, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpEnsureWorkout))
	defer timer.ObserveDuration()

	id, err := d.ensureWorkout(f, source)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpEnsureWorkout).Inc()
		return uuid.Nil, err
	}
	f.WorkoutID = &id
	return id, nil
}

func (d *DB) ensureWorkout(f *models.SourceFile, source string) (uuid.UUID, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Read inside the transaction so a concurrent link is seen.
	var existing *uuid.UUID
	err = tx.QueryRow(`SELECT workout_id FROM source_files WHERE id = ?`, f.ID).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to read source file workout: %w", err)
	}
	if existing != nil {
		return *existing, nil
	}

	id := uuid.New()
	now := time.Now().Unix()
	_, err = tx.Exec(`
		INSERT INTO workouts (
			id, user_id, source, sport, uploaded_at, storage_path, filename, size_bytes,
			created_at, updated_at
		) VALUES (?, ?, ?, 'other', ?, ?, ?, ?, ?, ?)
	`, id, f.UserID, source, now, f.StoragePath, f.Filename, f.SizeBytes, now, now)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create workout: %w", err)
	}

	_, err = tx.Exec(`UPDATE source_files SET workout_id = ?, updated_at = ? WHERE id = ?`, id, now, f.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to link source file to workout: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

// UpdateWorkoutMetrics overwrites every computed column of a workout in a
// single statement. Nil fields are written as NULL.
func (d *DB) UpdateWorkoutMetrics(id uuid.UUID, m *models.WorkoutMetrics) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpUpdateWorkoutMetrics))
	defer timer.ObserveDuration()

	deviceInfo, err := jsonOrNull(m.DeviceInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal device info: %w", err)
	}
	fitSummary, err := jsonOrNull(m.FitSummary)
	if err != nil {
		return fmt.Errorf("failed to marshal fit summary: %w", err)
	}

	sport := m.Sport
	if sport == "" {
		sport = models.SportOther
	}

	query := `
		UPDATE workouts
		SET name = ?,
		    sport = ?,
		    sub_sport = ?,
		    start_time = ?,
		    local_date = ?,
		    duration_sec = ?,
		    moving_time_sec = ?,
		    distance_m = ?,
		    elev_gain_m = ?,
		    elev_loss_m = ?,
		    avg_speed_kmh = ?,
		    avg_pace_s_per_km = ?,
		    avg_hr = ?,
		    max_hr = ?,
		    avg_cadence_spm = ?,
		    avg_cadence_rpm = ?,
		    avg_power_w = ?,
		    max_power_w = ?,
		    np_power_w = ?,
		    calories_kcal = ?,
		    ef = ?,
		    pa_hr_pct = ?,
		    has_gps = ?,
		    laps_count = ?,
		    device_info = ?,
		    fit_summary = ?,
		    updated_at = ?
		WHERE id = ?
	`

	result, err := d.db.Exec(query,
		m.Name, string(sport), m.SubSport, unixPtr(m.StartTime), m.LocalDate,
		m.DurationSec, m.MovingTimeSec, m.DistanceM, m.ElevGainM, m.ElevLossM,
		m.AvgSpeedKmh, m.AvgPaceSPerKm, m.AvgHR, m.MaxHR, m.AvgCadenceSpm, m.AvgCadenceRpm,
		m.AvgPowerW, m.MaxPowerW, m.NPPowerW, m.CaloriesKcal, m.EF, m.PaHrPct,
		m.HasGPS, m.LapsCount, deviceInfo, fitSummary, time.Now().Unix(), id,
	)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpdateWorkoutMetrics).Inc()
		return fmt.Errorf("failed to update workout metrics: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetWorkout returns a workout by id, or ErrNotFound.
func (d *DB) GetWorkout(id uuid.UUID) (*models.Workout, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetWorkout))
	defer timer.ObserveDuration()

	var (
		w                                models.Workout
		sport                            string
		startTime                        *int64
		uploadedAt, createdAt, updatedAt int64
		storagePath, filename            *string
		sizeBytes                        *int64
		deviceInfo, fitSummary           *string
	)
	m := &w.Metrics

	err := d.db.QueryRow(`
		SELECT id, user_id, source, name, sport, sub_sport, start_time, local_date,
		       duration_sec, moving_time_sec, distance_m, elev_gain_m, elev_loss_m,
		       avg_speed_kmh, avg_pace_s_per_km, avg_hr, max_hr, avg_cadence_spm, avg_cadence_rpm,
		       avg_power_w, max_power_w, np_power_w, calories_kcal, ef, pa_hr_pct,
		       has_gps, laps_count, device_info, fit_summary,
		       uploaded_at, storage_path, filename, size_bytes, created_at, updated_at
		FROM workouts WHERE id = ?
	`, id).Scan(
		&w.ID, &w.UserID, &w.Source, &m.Name, &sport, &m.SubSport, &startTime, &m.LocalDate,
		&m.DurationSec, &m.MovingTimeSec, &m.DistanceM, &m.ElevGainM, &m.ElevLossM,
		&m.AvgSpeedKmh, &m.AvgPaceSPerKm, &m.AvgHR, &m.MaxHR, &m.AvgCadenceSpm, &m.AvgCadenceRpm,
		&m.AvgPowerW, &m.MaxPowerW, &m.NPPowerW, &m.CaloriesKcal, &m.EF, &m.PaHrPct,
		&m.HasGPS, &m.LapsCount, &deviceInfo, &fitSummary,
		&uploadedAt, &storagePath, &filename, &sizeBytes, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetWorkout).Inc()
		return nil, fmt.Errorf("failed to get workout: %w", err)
	}

	m.Sport = models.Sport(sport)
	m.StartTime = timeFromUnix(startTime)
	if deviceInfo != nil {
		m.DeviceInfo = &models.DeviceInfo{}
		if err := json.Unmarshal([]byte(*deviceInfo), m.DeviceInfo); err != nil {
			return nil, fmt.Errorf("failed to decode device info: %w", err)
		}
	}
	if fitSummary != nil {
		m.FitSummary = &models.FitSummary{}
		if err := json.Unmarshal([]byte(*fitSummary), m.FitSummary); err != nil {
			return nil, fmt.Errorf("failed to decode fit summary: %w", err)
		}
	}
	if storagePath != nil {
		w.StoragePath = *storagePath
	}
	if filename != nil {
		w.Filename = *filename
	}
	if sizeBytes != nil {
		w.SizeBytes = *sizeBytes
	}
	w.UploadedAt = time.Unix(uploadedAt, 0)
	w.CreatedAt = time.Unix(createdAt, 0)
	w.UpdatedAt = time.Unix(updatedAt, 0)
	return &w, nil
}

// CountWorkoutsForFile returns how many workouts are linked to the file. Used
// to check the one-file-one-workout invariant.
func (d *DB) CountWorkoutsForFile(fileID uuid.UUID) (int, error) {
	var n int
	err := d.db.QueryRow(`
		SELECT COUNT(*) FROM workouts w
		JOIN source_files f ON f.workout_id = w.id
		WHERE f.id = ?
	`, fileID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count workouts for file: %w", err)
	}
	return n, nil
}

func jsonOrNull[T any](v *T) (*string, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}
