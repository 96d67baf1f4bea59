package models

import (
	"time"

	"github.com/google/uuid"
)

// Sport is the normalised sport vocabulary. It is never empty on a stored workout.
type Sport string

const (
	SportRun      Sport = "run"
	SportRide     Sport = "ride"
	SportWalk     Sport = "walk"
	SportHike     Sport = "hike"
	SportSwim     Sport = "swim"
	SportRow      Sport = "row"
	SportStrength Sport = "strength"
	SportYoga     Sport = "yoga"
	SportAerobics Sport = "aerobics"
	SportCrossfit Sport = "crossfit"
	SportPilates  Sport = "pilates"
	SportOther    Sport = "other"
)

// HasPace reports whether pace (s/km) is a meaningful display metric for the sport.
func (s Sport) HasPace() bool {
	return s == SportRun || s == SportWalk || s == SportHike
}

// Workout is a persisted activity. A row is created lazily by the first job
// that processes a file and updated in place afterwards.
type Workout struct {
	ID          uuid.UUID      `json:"id"`
	UserID      uuid.UUID      `json:"user_id"`
	Source      string         `json:"source"`
	UploadedAt  time.Time      `json:"uploaded_at"`
	StoragePath string         `json:"storage_path"`
	Filename    string         `json:"filename"`
	SizeBytes   int64          `json:"size_bytes"`
	Metrics     WorkoutMetrics `json:"metrics"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// WorkoutMetrics is the full set of computed columns. It is always written as a
// whole, so a retried job overwrites whatever an earlier attempt left behind.
type WorkoutMetrics struct {
	Name          string      `json:"name"`
	StartTime     *time.Time  `json:"start_time"`
	LocalDate     *string     `json:"local_date"`
	DurationSec   *int        `json:"duration_sec"`
	MovingTimeSec *int        `json:"moving_time_sec"`
	DistanceM     *int        `json:"distance_m"`
	ElevGainM     *int        `json:"elev_gain_m"`
	ElevLossM     *int        `json:"elev_loss_m"`
	AvgSpeedKmh   *float64    `json:"avg_speed_kmh"`
	AvgPaceSPerKm *int        `json:"avg_pace_s_per_km"`
	AvgHR         *int        `json:"avg_hr"`
	MaxHR         *int        `json:"max_hr"`
	AvgCadenceSpm *int        `json:"avg_cadence_spm"`
	AvgCadenceRpm *int        `json:"avg_cadence_rpm"`
	AvgPowerW     *int        `json:"avg_power_w"`
	MaxPowerW     *int        `json:"max_power_w"`
	NPPowerW      *int        `json:"np_power_w"`
	CaloriesKcal  *int        `json:"calories_kcal"`
	EF            *float64    `json:"ef"`
	PaHrPct       *float64    `json:"pa_hr_pct"`
	Sport         Sport       `json:"sport"`
	SubSport      *string     `json:"sub_sport"`
	HasGPS        *bool       `json:"has_gps"`
	LapsCount     *int        `json:"laps_count"`
	DeviceInfo    *DeviceInfo `json:"device_info"`
	FitSummary    *FitSummary `json:"fit_summary"`
}

// DeviceInfo describes the recording device, taken from the last device_info message.
type DeviceInfo struct {
	Manufacturer    *string  `json:"manufacturer"`
	Product         *int     `json:"product"`
	SerialNumber    *int64   `json:"serial_number"`
	SoftwareVersion *float64 `json:"software_version"`
}

// FitSummary records which message kinds and channels a FIT file contained.
type FitSummary struct {
	Sessions bool `json:"sessions"`
	Laps     int  `json:"laps"`
	Records  int  `json:"records"`
	HasPower bool `json:"has_power"`
	HasHR    bool `json:"has_hr"`
	HasAlt   bool `json:"has_alt"`
}
