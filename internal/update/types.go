package update

import "github.com/danielpatrickdp/arbiter/internal/metrics"

// #region update-context
// UpdateContext carries per-turn context into the pure update function.
type UpdateContext struct {
	TurnID string
	Text   string
}

// #endregion update-context

// #region signals
// Signals carries textual turn signals that drive metric deltas. Magnitudes are in [0,1].
type Signals struct {
	Distress        float64 `json:"distress"`
	Rapport         float64 `json:"rapport"`
	Repetition      float64 `json:"repetition"` // keyword overlap with the previous user message
	TopicShift      float64 `json:"topic_shift"`
	Interrupt       float64 `json:"interrupt"`
	Brevity         float64 `json:"brevity"`
	LengthStability float64 `json:"length_stability"` // 1 = same length as the previous message, .5 = no previous
	Crisis          bool    `json:"crisis"`
}

// #endregion signals

// #region decision
// Decision records what the update function decided.
type Decision struct {
	Action string // "commit" | "no_op"
	Reason string
}

// #endregion decision

// #region metrics
// Metrics captures telemetry from an update cycle.
type Metrics struct {
	MaxDelta     float64 // largest bounded change, rhythm scaled to [0,1]
	FieldsHit    []string
	Deltas       []metrics.Delta
	UpdateTimeMs int64
}

// #endregion metrics

// #region update-config
// UpdateConfig holds gain and decay parameters for the update function.
type UpdateConfig struct {
	MaxDelta   float64 // per-field bound per turn; rhythm uses MaxDelta * RhythmMax
	DecayRate  float64 // undriven fields relax toward neutral by this fraction
	RhythmGain float64 // rhythm units per unit of length (in)stability
}

// DefaultUpdateConfig returns the standard per-turn bounds.
func DefaultUpdateConfig() UpdateConfig {
	return UpdateConfig{
		MaxDelta:   0.15,
		DecayRate:  0.1,
		RhythmGain: 20,
	}
}

// #endregion update-config

// #region update-result
// UpdateResult bundles everything returned by Update().
type UpdateResult struct {
	Snapshot metrics.Snapshot
	Decision Decision
	Metrics  Metrics
}

// #endregion update-result
