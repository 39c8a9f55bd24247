package gate

import (
	"fmt"

	"github.com/danielpatrickdp/arbiter/internal/metrics"
	"github.com/danielpatrickdp/arbiter/internal/update"
)

// #region check
// Check returns an error wrapping ErrOutOfDomain when m has a bad field.
func Check(m metrics.Snapshot) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrOutOfDomain, err)
	}
	return nil
}

// #endregion check

// #region gate
// Gate guards the metrics boundary: snapshots entering the pipeline and updates leaving it.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	if config.Policy == "" {
		config.Policy = PolicyClamp
	}
	return &Gate{config: config}
}

// Policy returns the configured boundary policy.
func (g *Gate) Policy() Policy {
	return g.config.Policy
}

// Admit applies the policy to an incoming snapshot. Under reject the error wraps ErrOutOfDomain.
func (g *Gate) Admit(m metrics.Snapshot) (GateDecision, error) {
	err := Check(m)
	if err == nil {
		return GateDecision{Action: "commit", Reason: "in domain", Snapshot: m, SoftScore: 1}, nil
	}

	veto := VetoSignal{Type: VetoOutOfDomain, Reason: err.Error()}
	if g.config.Policy == PolicyReject {
		return GateDecision{
			Action:      "reject",
			Reason:      fmt.Sprintf("hard veto: %s", veto.Reason),
			Vetoed:      true,
			VetoSignals: []VetoSignal{veto},
			Snapshot:    m,
		}, fmt.Errorf("admit snapshot: %w", err)
	}
	return GateDecision{
		Action:      "clamp",
		Reason:      fmt.Sprintf("clamped: %s", veto.Reason),
		VetoSignals: []VetoSignal{veto},
		Snapshot:    m.Clamp(),
	}, nil
}

// Evaluate decides whether a proposed update may be committed.
func (g *Gate) Evaluate(old, proposed metrics.Snapshot, um update.Metrics) GateDecision {
	var vetoes []VetoSignal

	// 1. Proposed snapshot must be in domain
	if err := Check(proposed); err != nil {
		vetoes = append(vetoes, VetoSignal{Type: VetoOutOfDomain, Reason: err.Error()})
	}

	// 2. No field may move past the per-turn bound
	if d := metrics.MaxAbsDelta(old, proposed); d > g.config.MaxDelta+1e-9 {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoDeltaBound,
			Reason: fmt.Sprintf("max delta %.4f exceeds bound %.4f", d, g.config.MaxDelta),
		})
	}

	if len(vetoes) > 0 {
		return GateDecision{
			Action:      "reject",
			Reason:      fmt.Sprintf("hard veto: %s", vetoes[0].Reason),
			Vetoed:      true,
			VetoSignals: vetoes,
			Snapshot:    old,
		}
	}

	softScore := computeSoftScore(um, g.config.MaxDelta)
	return GateDecision{
		Action:    "commit",
		Reason:    fmt.Sprintf("passed gate: soft_score=%.4f", softScore),
		Snapshot:  proposed,
		SoftScore: softScore,
	}
}

// #endregion gate

// #region helpers
// computeSoftScore rewards small, focused updates. Logged, never blocking.
func computeSoftScore(um update.Metrics, bound float64) float64 {
	var score float64

	// Delta stability component (weight 0.6)
	switch {
	case um.MaxDelta == 0:
		score += 0.6
	case bound > 0 && um.MaxDelta < bound:
		score += 0.6 * (1 - um.MaxDelta/bound)
	}

	// Fields hit component: fewer fields driven = more focused (weight 0.4)
	switch n := len(um.FieldsHit); {
	case n == 0:
		score += 0.4
	case n <= 2:
		score += 0.3
	case n <= 4:
		score += 0.15
	}
	return score
}

// #endregion helpers
