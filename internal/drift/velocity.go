package drift

import (
	"math"

	"vibesrails/internal/metrics"
)

// Velocity levels.
const (
	LevelNormal   = "normal"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

// Trend directions.
const (
	TrendAccelerating = "accelerating"
	TrendStable       = "stable"
	TrendDecelerating = "decelerating"
)

const (
	// NormalMax and WarningMax are inclusive upper bounds of each level.
	NormalMax  = 5.0
	WarningMax = 15.0

	// HighVelocity is the pair velocity above which a pair counts as high.
	HighVelocity = 10.0

	// TrendThreshold is the velocity difference that marks a trend change.
	TrendThreshold = 2.0

	// ReviewThreshold is the consecutive-high count that requires review.
	ReviewThreshold = 3
)

// MetricWeight is one weighted metric of the velocity score.
type MetricWeight struct {
	Metric string
	Weight float64
}

var metricWeights = []MetricWeight{
	{"import_count", 0.15},
	{"class_count", 0.15},
	{"function_count", 0.20},
	{"dependency_count", 0.15},
	{"complexity_avg", 0.20},
	{"public_api_surface", 0.15},
}

// MetricWeights returns the velocity weights. They sum to 1.0.
func MetricWeights() []MetricWeight {
	out := make([]MetricWeight, len(metricWeights))
	copy(out, metricWeights)
	return out
}

// MetricDelta compares one metric across two snapshots.
type MetricDelta struct {
	Previous  float64 `json:"previous" yaml:"previous"`
	Current   float64 `json:"current" yaml:"current"`
	ChangePct float64 `json:"change_pct" yaml:"change_pct"`
}

// ChangePct is |current-previous| / max(previous, 1) * 100. Growth and
// shrinkage weigh the same.
func ChangePct(previous, current float64) float64 {
	return math.Abs(current-previous) / math.Max(previous, 1) * 100
}

// PairVelocity scores the change from older to newer and returns the rounded
// score with per-metric deltas.
func PairVelocity(older, newer metrics.ProjectMetrics) (float64, map[string]MetricDelta) {
	deltas := make(map[string]MetricDelta, len(metricWeights))
	score := 0.0
	for _, w := range metricWeights {
		prev, cur := older.Value(w.Metric), newer.Value(w.Metric)
		pct := ChangePct(prev, cur)
		score += w.Weight * pct
		deltas[w.Metric] = MetricDelta{
			Previous:  prev,
			Current:   cur,
			ChangePct: metrics.Round(pct, 2),
		}
	}
	return metrics.Round(score, 2), deltas
}

// ClassifyVelocity maps a velocity score to a level. Bounds are inclusive.
func ClassifyVelocity(score float64) string {
	switch {
	case score <= NormalMax:
		return LevelNormal
	case score <= WarningMax:
		return LevelWarning
	default:
		return LevelCritical
	}
}

// ClassifyTrend compares the newest pair velocity with the one before it.
func ClassifyTrend(newer, older float64) string {
	diff := newer - older
	switch {
	case diff > TrendThreshold:
		return TrendAccelerating
	case diff < -TrendThreshold:
		return TrendDecelerating
	default:
		return TrendStable
	}
}

// CountConsecutiveHigh counts leading pair velocities (newest first) above
// HighVelocity, stopping at the first that is not.
func CountConsecutiveHigh(velocities []float64) int {
	n := 0
	for _, v := range velocities {
		if v <= HighVelocity {
			break
		}
		n++
	}
	return n
}
