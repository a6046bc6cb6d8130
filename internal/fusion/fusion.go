// Package fusion merges the deterministic sub-score with the qualitative
// judgment score into a single per-turn score. Fuse is a pure function of
// its inputs so the weighting policy is testable in isolation.
package fusion

import "math"

// Confidence tags how much the two evaluation phases agree.
type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

const (
	DefaultWeightDeterministic = 0.6
	DefaultTolerance           = 0.2
)

// Config is the weighting policy. WeightDeterministic is the fraction of the
// final score attributable to the deterministic component; any value in
// [0,1] is honored, zero included (pure judgment weighting). Out-of-range
// values select the default.
type Config struct {
	WeightDeterministic float64
	ConfidenceTolerance float64
}

func (c Config) withDefaults() Config {
	if c.WeightDeterministic < 0 || c.WeightDeterministic > 1 {
		c.WeightDeterministic = DefaultWeightDeterministic
	}
	if c.ConfidenceTolerance <= 0 {
		c.ConfidenceTolerance = DefaultTolerance
	}
	return c
}

// Score is the fused per-turn result.
type Score struct {
	Value               float64    `json:"value"`
	WeightDeterministic float64    `json:"weight_deterministic"`
	Confidence          Confidence `json:"confidence"`
	Degraded            bool       `json:"degraded"`
}

// Fuse combines the deterministic sub-score with an optional judgment score.
// A nil judgment means the judgment phase failed: the deterministic score is
// used as-is, confidence is forced low and the turn is marked degraded.
func Fuse(deterministic float64, judgment *float64, cfg Config) Score {
	cfg = cfg.withDefaults()
	deterministic = clamp(deterministic)

	if judgment == nil {
		return Score{
			Value:               deterministic,
			WeightDeterministic: cfg.WeightDeterministic,
			Confidence:          ConfidenceLow,
			Degraded:            true,
		}
	}

	j := clamp(*judgment)
	w := cfg.WeightDeterministic

	confidence := ConfidenceLow
	if math.Abs(deterministic-j) <= cfg.ConfidenceTolerance {
		confidence = ConfidenceHigh
	}

	return Score{
		Value:               clamp(w*deterministic + (1-w)*j),
		WeightDeterministic: w,
		Confidence:          confidence,
	}
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
