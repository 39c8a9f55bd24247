package eval

import "github.com/danielpatrickdp/arbiter/internal/signature"

// #region eval-config
// EvalConfig holds dimension weights and flag thresholds.
type EvalConfig struct {
	Weights          map[Dimension]float64
	NoDeltaCap       float64 // overall ceiling when the signature is missing
	LowAccuracy      float64 // accuracy below this flags LOW_ACCURACY
	SmoothSubstance  float64 // substance below this ...
	SmoothAlliance   float64 // ... with alliance at or above this flags SMOOTH_EMPTY
	InflatedOmega    float64 // stated Ω at or above this with hedging is inflated
	BatchConcurrency int
}

// DefaultEvalConfig returns the standard weights and thresholds.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		Weights: map[Dimension]float64{
			Accuracy:     0.25,
			Usefulness:   0.25,
			OmegaHonesty: 0.15,
			Substance:    0.20,
			Alliance:     0.15,
		},
		NoDeltaCap:       0.54,
		LowAccuracy:      0.3,
		SmoothSubstance:  0.35,
		SmoothAlliance:   0.5,
		InflatedOmega:    0.85,
		BatchConcurrency: 8,
	}
}

// #endregion eval-config

// #region dimension
// Dimension is one scored aspect of a response.
type Dimension string

const (
	Accuracy     Dimension = "accuracy"
	Usefulness   Dimension = "usefulness"
	OmegaHonesty Dimension = "omega_honesty"
	Substance    Dimension = "substance"
	Alliance     Dimension = "alliance"
)

// Dimensions lists every dimension in report order.
var Dimensions = []Dimension{Accuracy, Usefulness, OmegaHonesty, Substance, Alliance}

// Score captures a single dimension result.
type Score struct {
	Dimension  Dimension `json:"dimension"`
	Value      float64   `json:"value"`
	Confidence float64   `json:"confidence"`
	Signals    []string  `json:"signals,omitempty"`
}

// #endregion dimension

// #region grade-flag
// Grade buckets the overall score.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// Grades lists grades best first.
var Grades = []Grade{GradeA, GradeB, GradeC, GradeD, GradeF}

// GradeFor maps an overall score to its grade.
func GradeFor(overall float64) Grade {
	switch {
	case overall >= 0.85:
		return GradeA
	case overall >= 0.70:
		return GradeB
	case overall >= 0.55:
		return GradeC
	case overall >= 0.40:
		return GradeD
	}
	return GradeF
}

// Flag marks a specific failure pattern.
type Flag string

const (
	FlagNoDelta       Flag = "NO_DELTA"
	FlagLowAccuracy   Flag = "LOW_ACCURACY"
	FlagSmoothEmpty   Flag = "SMOOTH_EMPTY"
	FlagInflatedOmega Flag = "INFLATED_OMEGA"
)

// Flags lists every flag in reporting order.
var Flags = []Flag{FlagNoDelta, FlagLowAccuracy, FlagSmoothEmpty, FlagInflatedOmega}

// #endregion grade-flag

// #region eval-result
// Result is the output of Evaluate.
type Result struct {
	Overall   float64          `json:"overall"`
	Grade     Grade            `json:"grade"`
	Scores    []Score          `json:"scores"`
	Flags     []Flag           `json:"flags,omitempty"`
	Signature signature.Report `json:"signature"`
}

// Score returns the value of dimension d.
func (r Result) Score(d Dimension) float64 {
	for _, s := range r.Scores {
		if s.Dimension == d {
			return s.Value
		}
	}
	return 0
}

// Has reports whether flag f was raised.
func (r Result) Has(f Flag) bool {
	for _, x := range r.Flags {
		if x == f {
			return true
		}
	}
	return false
}

// Passed reports a grade of C or better with a valid signature.
func (r Result) Passed() bool {
	return !r.Has(FlagNoDelta) && (r.Grade == GradeA || r.Grade == GradeB || r.Grade == GradeC)
}

// #endregion eval-result
