package worker

import (
	"math"

	"workout-import/internal/decode"
	"workout-import/internal/models"
	"workout-import/internal/series"
)

type previewPoint struct {
	pace *int
	hr   *int
}

// BuildPreview converts decoded streams into the chart series: whole seconds,
// pace in s/km (null when standing still) and heart rate (null when absent),
// downsampled to at most maxPoints points.
func BuildPreview(s *decode.Streams, maxPoints int) models.PreviewSeries {
	n := s.Len()
	times := make([]int, n)
	points := make([]previewPoint, n)
	for i := 0; i < n; i++ {
		times[i] = int(math.Round(s.TimeS[i]))
		if i < len(s.SpeedMs) && s.SpeedMs[i] > 0 {
			pace := int(math.Round(1000 / s.SpeedMs[i]))
			points[i].pace = &pace
		}
		if i < len(s.HR) && s.HR[i] > 0 {
			hr := int(math.Round(s.HR[i]))
			points[i].hr = &hr
		}
	}

	times, points = series.Downsample(times, points, maxPoints)

	out := models.PreviewSeries{
		TimeS:      times,
		PaceSPerKm: make([]*int, len(points)),
		HR:         make([]*int, len(points)),
	}
	for i, p := range points {
		out.PaceSPerKm[i] = p.pace
		out.HR[i] = p.hr
	}
	return out
}
