// Package decode turns uploaded activity files into a ParsedActivity.
//
// The format is chosen from the file extension only; content is never sniffed
// except for entry names inside a ZIP container.
package decode

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"workout-import/internal/models"
)

var (
	// ErrUnsupportedFormat is returned for extensions without a decoder.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrNoActivity is returned when a file decodes but holds nothing usable.
	ErrNoActivity = errors.New("no activity data in file")
)

// Format identifies which decoder produced a ParsedActivity.
type Format string

const (
	FormatFIT Format = "fit"
	FormatGPX Format = "gpx"
	FormatTCX Format = "tcx"
)

// ParsedActivity is the common result of every decoder. Scalars are nil when
// the source did not provide them and they could not be derived. Streams is
// only set for formats carrying per-sample telemetry (FIT); GPX and TCX are
// treated as map-only tracks.
type ParsedActivity struct {
	Format Format

	StartTime     *time.Time
	DurationSec   *int
	MovingTimeSec *int
	DistanceM     *int
	ElevGainM     *int
	ElevLossM     *int
	AvgSpeedMs    *float64
	AvgHR         *int
	MaxHR         *int
	AvgPowerW     *int
	MaxPowerW     *int
	NPPowerW      *int
	AvgCadenceSpm *int
	AvgCadenceRpm *int
	CaloriesKcal  *int
	PaHrPct       *float64

	Sport      models.Sport
	SubSport   *string
	HasGPS     *bool
	LapsCount  *int
	DeviceInfo *models.DeviceInfo
	FitSummary *models.FitSummary

	Streams *Streams
}

// Streams are aligned per-sample arrays. TimeS is seconds since the first
// sample; missing readings are stored as zero.
type Streams struct {
	TimeS    []float64
	SpeedMs  []float64
	HR       []float64
	Power    []float64
	Altitude []float64
	Cadence  []float64
}

// Len returns the number of samples.
func (s *Streams) Len() int {
	if s == nil {
		return 0
	}
	return len(s.TimeS)
}

// Decode parses data according to ext (fit, gpx, tcx or zip, case-insensitive).
func Decode(ext string, data []byte) (*ParsedActivity, error) {
	if len(data) == 0 {
		return nil, ErrNoActivity
	}

	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "fit":
		return decodeFIT(data)
	case "gpx", "tcx":
		return decodeXML(data)
	case "zip":
		return decodeZIP(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func intPtr(v int) *int { return &v }
func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool { return &v }
func timePtr(v time.Time) *time.Time { return &v }
