package session

import (
	"math"

	"vibesrails/internal/metrics"
)

// Entropy levels.
const (
	LevelSafe     = "safe"
	LevelWarning  = "warning"
	LevelElevated = "elevated"
	LevelCritical = "critical"
)

// Factor caps: each input reaches its full weight at these values.
const (
	DurationCapMinutes = 60.0
	FilesCap           = 20.0
	ViolationsCap      = 10.0
	ChangesCap         = 500.0
)

// Factor weights. They sum to 1.0.
const (
	DurationWeight   = 0.3
	FilesWeight      = 0.2
	ViolationsWeight = 0.3
	ChangesWeight    = 0.2
)

// CalculateEntropy scores a session in [0, 1], rounded to 4 decimals.
func CalculateEntropy(durationMinutes float64, files, violations, changesLOC int) float64 {
	score := factor(durationMinutes, DurationCapMinutes)*DurationWeight +
		factor(float64(files), FilesCap)*FilesWeight +
		factor(float64(violations), ViolationsCap)*ViolationsWeight +
		factor(float64(changesLOC), ChangesCap)*ChangesWeight
	return metrics.Round(score, 4)
}

func factor(v, limit float64) float64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	return math.Min(1.0, v/limit)
}

// ClassifyEntropy maps a score to a level. Lower bounds are inclusive.
func ClassifyEntropy(score float64) string {
	switch {
	case score < 0.3:
		return LevelSafe
	case score < 0.6:
		return LevelWarning
	case score < 0.8:
		return LevelElevated
	default:
		return LevelCritical
	}
}
