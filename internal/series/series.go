// Package series holds the pure numeric functions used to derive workout
// aggregates from per-sample streams. Every function is a single O(n) pass.
// Time arrays are seconds, monotonically non-decreasing.
package series

import (
	"math"
)

const (
	// DefaultMovingThreshold is the speed (m/s) above which a sample counts as moving.
	DefaultMovingThreshold = 0.5

	// DefaultMaxPoints is the default preview point limit.
	DefaultMaxPoints = 1500

	elevationNoiseFloor = 0.5
	elevationSpikeLimit = 20.0

	npWindowSeconds = 30.0

	decouplingMinDuration   = 600.0
	decouplingMinHalfSample = 30
)

// MovingTime sums the time deltas of samples whose speed exceeds threshold.
// It reports false when the arrays are empty or of different lengths.
func MovingTime(speed, t []float64, threshold float64) (int, bool) {
	if len(speed) == 0 || len(speed) != len(t) {
		return 0, false
	}
	moving := 0.0
	for i := 1; i < len(speed); i++ {
		if speed[i] > threshold {
			moving += math.Max(0, t[i]-t[i-1])
		}
	}
	return int(math.Round(moving)), true
}

// ElevationGainLoss accumulates climb and descent from consecutive altitude
// deltas. Deltas under 0.5 m are noise and deltas over 20 m are sensor spikes;
// both contribute nothing.
func ElevationGainLoss(altitude, t []float64) (up, down int, ok bool) {
	if len(altitude) == 0 || len(altitude) != len(t) {
		return 0, 0, false
	}
	var gain, loss float64
	for i := 1; i < len(altitude); i++ {
		d := altitude[i] - altitude[i-1]
		ad := math.Abs(d)
		if ad < elevationNoiseFloor || ad > elevationSpikeLimit || !isFinite(d) {
			continue
		}
		if d > 0 {
			gain += d
		} else {
			loss += ad
		}
	}
	return int(math.Round(gain)), int(math.Round(loss)), true
}

// NormalizedPower computes NP from a trailing 30 s time-weighted rolling
// average: the fourth root of the mean of its fourth powers, rounded.
func NormalizedPower(power, t []float64) (int, bool) {
	if len(power) == 0 || len(power) != len(t) {
		return 0, false
	}

	// The window holds the contributions of samples (i0, i], each weighted by
	// the time since its predecessor.
	var (
		i0    int
		sumP  float64
		wSum  float64
		sum4  float64
		count int
	)
	for i := range power {
		if i > 0 {
			dt := math.Max(0, t[i]-t[i-1])
			sumP += finiteOrZero(power[i]) * dt
			wSum += dt
		}
		for i0 < i && t[i]-t[i0] > npWindowSeconds {
			dt0 := math.Max(0, t[i0+1]-t[i0])
			sumP -= finiteOrZero(power[i0+1]) * dt0
			wSum -= dt0
			i0++
		}
		if wSum > 1e-9 {
			p30 := sumP / wSum
			sum4 += math.Pow(p30, 4)
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return int(math.Round(math.Pow(sum4/float64(count), 0.25))), true
}

// PaHrDecoupling compares the speed:heart-rate ratio of the two temporal
// halves of an activity and returns the efficiency lost in the second half
// as a percentage, rounded to two decimals. A positive value means the same
// speed cost more heart beats later on. This is (1 - second/first) * 100,
// the negation of the (second/first - 1) * 100 form, so values are sign-flipped
// against figures computed that way.
//
// It needs at least ten minutes of data and 30 samples with a heart rate in
// each half.
func PaHrDecoupling(speed, hr, t []float64) (float64, bool) {
	if len(speed) == 0 || len(speed) != len(hr) || len(hr) != len(t) {
		return 0, false
	}
	t0, tEnd := t[0], t[len(t)-1]
	if tEnd-t0 < decouplingMinDuration {
		return 0, false
	}
	tMid := t0 + (tEnd-t0)/2

	var s1, h1, s2, h2 float64
	var n1, n2 int
	for i := range t {
		sp, h := speed[i], hr[i]
		if !isFinite(sp) || !isFinite(h) || h <= 0 {
			continue
		}
		if t[i] <= tMid {
			s1 += sp
			h1 += h
			n1++
		} else {
			s2 += sp
			h2 += h
			n2++
		}
	}
	if n1 < decouplingMinHalfSample || n2 < decouplingMinHalfSample {
		return 0, false
	}

	first := (s1 / float64(n1)) / (h1 / float64(n1))
	second := (s2 / float64(n2)) / (h2 / float64(n2))
	if !isFinite(first) || !isFinite(second) || first <= 0 {
		return 0, false
	}
	return round2((1 - second/first) * 100), true
}

// Downsample keeps every ceil(n/maxPoints)-th pair when the input exceeds
// maxPoints and passes it through otherwise. Mismatched inputs yield empty output.
func Downsample[T any](t []int, v []T, maxPoints int) ([]int, []T) {
	if len(t) == 0 || len(t) != len(v) {
		return []int{}, []T{}
	}
	if maxPoints <= 0 || len(t) <= maxPoints {
		return t, v
	}
	step := (len(t) + maxPoints - 1) / maxPoints
	ts := make([]int, 0, len(t)/step+1)
	vs := make([]T, 0, len(t)/step+1)
	for i := 0; i < len(t); i += step {
		ts = append(ts, t[i])
		vs = append(vs, v[i])
	}
	return ts, vs
}

// Mean returns the average of the finite values in xs for which keep is true.
func Mean(xs []float64, keep func(float64) bool) (float64, bool) {
	var sum float64
	var n int
	for _, x := range xs {
		if !isFinite(x) || (keep != nil && !keep(x)) {
			continue
		}
		sum += x
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// Max returns the largest finite value in xs.
func Max(xs []float64) (float64, bool) {
	best, found := 0.0, false
	for _, x := range xs {
		if !isFinite(x) {
			continue
		}
		if !found || x > best {
			best, found = x, true
		}
	}
	return best, found
}

// Positive reports whether x is greater than zero. Used as a Mean filter.
func Positive(x float64) bool { return x > 0 }

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteOrZero(v float64) float64 {
	if !isFinite(v) {
		return 0
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
