package models

import (
	"time"

	"github.com/google/uuid"
)

// PreviewStream is the downsampled chart data for a workout. One row per workout.
type PreviewStream struct {
	WorkoutID   uuid.UUID
	UserID      uuid.UUID
	PointsCount int
	Series      PreviewSeries
	UpdatedAt   time.Time
}

// PreviewSeries holds parallel arrays. TimeS is never null; nil entries in the
// value arrays are gaps.
type PreviewSeries struct {
	TimeS      []int  `json:"time_s"`
	PaceSPerKm []*int `json:"pace_s_per_km"`
	HR         []*int `json:"hr"`
}
