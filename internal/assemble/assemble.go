// Package assemble merges decoder output into the persisted workout field set.
package assemble

import (
	"math"

	"workout-import/internal/decode"
	"workout-import/internal/models"
)

// Build derives the display fields (km/h, pace, efficiency factor, name) and
// copies everything else straight from the parsed activity.
func Build(p *decode.ParsedActivity) models.WorkoutMetrics {
	m := models.WorkoutMetrics{
		StartTime:     p.StartTime,
		DurationSec:   p.DurationSec,
		MovingTimeSec: p.MovingTimeSec,
		DistanceM:     p.DistanceM,
		ElevGainM:     p.ElevGainM,
		ElevLossM:     p.ElevLossM,
		AvgHR:         p.AvgHR,
		MaxHR:         p.MaxHR,
		AvgCadenceSpm: p.AvgCadenceSpm,
		AvgCadenceRpm: p.AvgCadenceRpm,
		AvgPowerW:     p.AvgPowerW,
		MaxPowerW:     p.MaxPowerW,
		NPPowerW:      p.NPPowerW,
		CaloriesKcal:  p.CaloriesKcal,
		PaHrPct:       p.PaHrPct,
		Sport:         p.Sport,
		SubSport:      p.SubSport,
		HasGPS:        p.HasGPS,
		LapsCount:     p.LapsCount,
		DeviceInfo:    p.DeviceInfo,
		FitSummary:    p.FitSummary,
	}
	if m.Sport == "" {
		m.Sport = models.SportOther
	}

	if p.StartTime != nil {
		d := p.StartTime.UTC().Format("2006-01-02")
		m.LocalDate = &d
	}

	if v := p.AvgSpeedMs; v != nil && *v > 0 && !math.IsInf(*v, 0) {
		kmh := roundTo(*v*3.6, 2)
		m.AvgSpeedKmh = &kmh

		if m.Sport.HasPace() {
			pace := int(math.Round(1000 / *v))
			m.AvgPaceSPerKm = &pace
		}
		if p.AvgHR != nil && *p.AvgHR > 0 {
			ef := roundTo(*v/float64(*p.AvgHR), 3)
			m.EF = &ef
		}
	}

	m.Name = Name(m.Sport, m.DistanceM, m.SubSport, m.HasGPS, m.StartTime)
	return m
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
