package matching

import "math"

const (
	// DefaultThreshold is the Stage 1 Euclidean distance an averaged match must stay below.
	DefaultThreshold = 0.6

	// DefaultCrossValidationThreshold is the Stage 2 cosine similarity under which a match is vetoed.
	DefaultCrossValidationThreshold = 0.5

	// maxTopK caps how many of an identity's closest samples are averaged.
	maxTopK = 3
)

// Config holds the only tunable thresholds of the engine. Both defaults are
// uncalibrated and should be re-derived against a labeled validation set.
type Config struct {
	Threshold                float64 `json:"threshold"`
	CrossValidationThreshold float64 `json:"cross_validation_threshold"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		Threshold:                DefaultThreshold,
		CrossValidationThreshold: DefaultCrossValidationThreshold,
	}
}

// withDefaults replaces unusable values by defaults.
func (c Config) withDefaults() Config {
	if !validThreshold(c.Threshold) {
		c.Threshold = DefaultThreshold
	}
	if math.IsNaN(c.CrossValidationThreshold) || c.CrossValidationThreshold <= 0 || c.CrossValidationThreshold > 1 {
		c.CrossValidationThreshold = DefaultCrossValidationThreshold
	}
	return c
}

func validThreshold(t float64) bool {
	return t > 0 && !math.IsNaN(t) && !math.IsInf(t, 0)
}
