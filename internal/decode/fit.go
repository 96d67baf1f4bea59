package decode

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/tormoder/fit"

	"workout-import/internal/models"
	"workout-import/internal/series"
)

// runCadenceDoubling is the threshold below which a running cadence is taken
// to be strides per minute and doubled into steps per minute.
const runCadenceDoubling = 120

func decodeFIT(data []byte) (*ParsedActivity, error) {
	decoded, err := fit.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode FIT file: %w", err)
	}

	activity, err := decoded.Activity()
	if err != nil {
		return nil, fmt.Errorf("FIT file is not an activity: %w", err)
	}

	var session *fit.SessionMsg
	if len(activity.Sessions) > 0 {
		session = activity.Sessions[0]
	}
	if session == nil && len(activity.Records) == 0 {
		return nil, ErrNoActivity
	}

	rs := collectRecords(activity.Records)

	p := &ParsedActivity{
		Format:    FormatFIT,
		Sport:     models.SportOther,
		LapsCount: intPtr(len(activity.Laps)),
	}

	if session != nil {
		applySession(p, session)
	}
	applyRecords(p, rs)

	if !rs.firstTS.IsZero() && p.StartTime == nil {
		p.StartTime = timePtr(rs.firstTS.UTC())
	}

	if rs.n > 0 {
		p.HasGPS = boolPtr(rs.hasGPS)
		p.Streams = &rs.streams
	}

	if len(activity.DeviceInfos) > 0 {
		p.DeviceInfo = deviceInfo(activity.DeviceInfos[len(activity.DeviceInfos)-1])
	}

	p.FitSummary = &models.FitSummary{
		Sessions: session != nil,
		Laps:     len(activity.Laps),
		Records:  rs.n,
		HasPower: rs.powerCount > 0 && rs.maxPower > 0,
		HasHR:    rs.hrCount > 0,
		HasAlt:   rs.altCount > 0,
	}

	normaliseCadence(p, rs)

	return p, nil
}

func applySession(p *ParsedActivity, s *fit.SessionMsg) {
	if t := validTime(s.StartTime); !t.IsZero() {
		p.StartTime = timePtr(t.UTC())
	}

	if d := s.GetTotalTimerTimeScaled(); positive(d) {
		p.DurationSec = intPtr(int(math.Round(d)))
	} else if d := s.GetTotalElapsedTimeScaled(); positive(d) {
		p.DurationSec = intPtr(int(math.Round(d)))
	}

	if d := s.GetTotalDistanceScaled(); isFinite(d) && d >= 0 {
		p.DistanceM = intPtr(int(math.Round(d)))
	}

	if v := s.GetEnhancedAvgSpeedScaled(); isFinite(v) && v >= 0 {
		p.AvgSpeedMs = floatPtr(v)
	} else if v := s.GetAvgSpeedScaled(); isFinite(v) && v >= 0 {
		p.AvgSpeedMs = floatPtr(v)
	}

	if s.TotalCalories != math.MaxUint16 {
		p.CaloriesKcal = intPtr(int(s.TotalCalories))
	}
	if s.AvgHeartRate != math.MaxUint8 && s.AvgHeartRate > 0 {
		p.AvgHR = intPtr(int(s.AvgHeartRate))
	}
	if s.MaxHeartRate != math.MaxUint8 && s.MaxHeartRate > 0 {
		p.MaxHR = intPtr(int(s.MaxHeartRate))
	}
	if s.AvgPower != math.MaxUint16 {
		p.AvgPowerW = intPtr(int(s.AvgPower))
	}
	if s.MaxPower != math.MaxUint16 {
		p.MaxPowerW = intPtr(int(s.MaxPower))
	}

	sport := enumName(s.Sport.String(), "sport_")
	sub := ""
	if s.SubSport != fit.SubSportInvalid {
		sub = enumName(s.SubSport.String(), "sub_sport_")
		p.SubSport = &sub
	}

	p.Sport = MapSport(sport)
	if p.Sport == models.SportOther && sub != "" {
		// Strength, yoga and pilates are sub-sports of "training" in FIT.
		p.Sport = MapSport(sub)
	}
}

// applyRecords fills whatever the session did not provide and computes the
// series-derived metrics.
func applyRecords(p *ParsedActivity, rs *recordSet) {
	if rs.n == 0 {
		return
	}
	st := &rs.streams

	if p.DurationSec == nil && rs.n > 1 {
		p.DurationSec = intPtr(int(math.Round(st.TimeS[rs.n-1] - st.TimeS[0])))
	}
	if p.DistanceM == nil && rs.maxDistance > 0 {
		p.DistanceM = intPtr(int(math.Round(rs.maxDistance)))
	}
	if p.AvgSpeedMs == nil {
		if p.DistanceM != nil && p.DurationSec != nil && *p.DurationSec > 0 {
			p.AvgSpeedMs = floatPtr(float64(*p.DistanceM) / float64(*p.DurationSec))
		} else if v, ok := series.Mean(st.SpeedMs, nil); ok {
			p.AvgSpeedMs = floatPtr(v)
		}
	}

	if p.AvgHR == nil && rs.hrCount > 0 {
		if v, ok := series.Mean(st.HR, series.Positive); ok {
			p.AvgHR = intPtr(int(math.Round(v)))
		}
	}
	if p.MaxHR == nil && rs.hrCount > 0 {
		if v, ok := series.Max(st.HR); ok && v > 0 {
			p.MaxHR = intPtr(int(math.Round(v)))
		}
	}
	if p.AvgPowerW == nil && rs.powerCount > 0 {
		p.AvgPowerW = intPtr(int(math.Round(rs.powerSum / float64(rs.powerCount))))
	}
	if p.MaxPowerW == nil && rs.powerCount > 0 {
		p.MaxPowerW = intPtr(int(math.Round(rs.maxPower)))
	}

	if v, ok := series.MovingTime(st.SpeedMs, st.TimeS, series.DefaultMovingThreshold); ok {
		p.MovingTimeSec = intPtr(v)
	}
	if rs.altCount > 0 {
		if up, down, ok := series.ElevationGainLoss(st.Altitude, st.TimeS); ok {
			p.ElevGainM = intPtr(up)
			p.ElevLossM = intPtr(down)
		}
	}
	if rs.powerCount > 0 && rs.maxPower > 0 {
		if v, ok := series.NormalizedPower(st.Power, st.TimeS); ok {
			p.NPPowerW = intPtr(v)
		}
	}
	if rs.hrCount > 0 {
		if v, ok := series.PaHrDecoupling(st.SpeedMs, st.HR, st.TimeS); ok {
			p.PaHrPct = floatPtr(v)
		}
	}
}

// normaliseCadence reports running cadence in steps per minute and cycling
// cadence in revolutions per minute. Other sports carry no cadence.
func normaliseCadence(p *ParsedActivity, rs *recordSet) {
	if rs.cadCount == 0 {
		return
	}
	avg, ok := series.Mean(rs.streams.Cadence, series.Positive)
	if !ok {
		return
	}
	switch p.Sport {
	case models.SportRun:
		if avg < runCadenceDoubling {
			avg *= 2
		}
		p.AvgCadenceSpm = intPtr(int(math.Round(avg)))
	case models.SportRide:
		p.AvgCadenceRpm = intPtr(int(math.Round(avg)))
	}
}

type recordSet struct {
	streams Streams
	n       int
	firstTS time.Time

	hasGPS      bool
	maxDistance float64
	hrCount     int
	cadCount    int
	altCount    int
	powerCount  int
	powerSum    float64
	maxPower    float64
}

func collectRecords(records []*fit.RecordMsg) *recordSet {
	rs := &recordSet{}
	lastAlt := math.NaN()

	for _, r := range records {
		if r == nil {
			continue
		}
		ts := validTime(r.Timestamp)
		if ts.IsZero() {
			continue
		}
		if rs.firstTS.IsZero() {
			rs.firstTS = ts
		}
		rs.n++

		st := &rs.streams
		st.TimeS = append(st.TimeS, ts.Sub(rs.firstTS).Seconds())

		speed := r.GetEnhancedSpeedScaled()
		if !isFinite(speed) || speed < 0 {
			speed = r.GetSpeedScaled()
		}
		if !isFinite(speed) || speed < 0 {
			speed = 0
		}
		st.SpeedMs = append(st.SpeedMs, speed)

		hr := 0.0
		if r.HeartRate != math.MaxUint8 {
			hr = float64(r.HeartRate)
			rs.hrCount++
		}
		st.HR = append(st.HR, hr)

		cad := 0.0
		if r.Cadence != math.MaxUint8 {
			cad = float64(r.Cadence)
			rs.cadCount++
		}
		st.Cadence = append(st.Cadence, cad)

		power := 0.0
		if r.Power != math.MaxUint16 {
			power = float64(r.Power)
			rs.powerCount++
			rs.powerSum += power
			rs.maxPower = math.Max(rs.maxPower, power)
		}
		st.Power = append(st.Power, power)

		// Missing altitude repeats the previous reading so gaps never count
		// as climbing or descending.
		if alt, ok := recordAltitude(r); ok {
			lastAlt = alt
			rs.altCount++
		}
		st.Altitude = append(st.Altitude, lastAlt)

		if d := r.GetDistanceScaled(); isFinite(d) && d > rs.maxDistance {
			rs.maxDistance = d
		}
		if validPosition(r.PositionLat, r.PositionLong) {
			rs.hasGPS = true
		}
	}

	backfillLeading(rs.streams.Altitude)
	if rs.altCount == 0 {
		rs.streams.Altitude = nil
	}

	return rs
}

func recordAltitude(r *fit.RecordMsg) (float64, bool) {
	if r.EnhancedAltitude != math.MaxUint32 {
		return float64(r.EnhancedAltitude)/5 - 500, true
	}
	if r.Altitude != math.MaxUint16 {
		return float64(r.Altitude)/5 - 500, true
	}
	return 0, false
}

// backfillLeading replaces NaNs before the first valid value with that value.
func backfillLeading(xs []float64) {
	first := -1
	for i, v := range xs {
		if !math.IsNaN(v) {
			first = i
			break
		}
	}
	if first <= 0 {
		return
	}
	for i := 0; i < first; i++ {
		xs[i] = xs[first]
	}
}

func validPosition(lat fit.Latitude, lng fit.Longitude) bool {
	la, lo := lat.Semicircles(), lng.Semicircles()
	if la == math.MaxInt32 || lo == math.MaxInt32 {
		return false
	}
	return la != 0 || lo != 0
}

func deviceInfo(d *fit.DeviceInfoMsg) *models.DeviceInfo {
	if d == nil {
		return nil
	}
	info := &models.DeviceInfo{}
	if uint16(d.Manufacturer) != math.MaxUint16 {
		m := enumName(d.Manufacturer.String(), "manufacturer_")
		info.Manufacturer = &m
	}
	if d.Product != math.MaxUint16 {
		v := int(d.Product)
		info.Product = &v
	}
	if d.SerialNumber != 0 && d.SerialNumber != math.MaxUint32 {
		v := int64(d.SerialNumber)
		info.SerialNumber = &v
	}
	if d.SoftwareVersion != math.MaxUint16 {
		v := float64(d.SoftwareVersion) / 100
		info.SoftwareVersion = &v
	}
	return info
}

func validTime(t time.Time) time.Time {
	if t.IsZero() || fit.IsBaseTime(t) {
		return time.Time{}
	}
	return t
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func positive(v float64) bool {
	return isFinite(v) && v > 0
}
