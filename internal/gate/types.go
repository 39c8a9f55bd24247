package gate

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/arbiter/internal/metrics"
)

// ErrOutOfDomain marks a snapshot with a NaN, infinite or out-of-range field.
var ErrOutOfDomain = errors.New("metrics out of domain")

// #region policy
// Policy decides what happens to an out-of-domain snapshot at the boundary.
type Policy string

const (
	PolicyClamp  Policy = "clamp"
	PolicyReject Policy = "reject"
)

// ParsePolicy accepts "clamp" or "reject"; empty means clamp.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyClamp:
		return PolicyClamp, nil
	case PolicyReject:
		return PolicyReject, nil
	}
	return "", fmt.Errorf("unknown gate policy %q", s)
}

// #endregion policy

// #region veto-type
// VetoType enumerates hard veto categories.
type VetoType string

const (
	VetoOutOfDomain VetoType = "out_of_domain"
	VetoDeltaBound  VetoType = "delta_bound"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected hard veto condition.
type VetoSignal struct {
	Type   VetoType
	Reason string
}

// #endregion veto-signal

// #region gate-config
// GateConfig holds the boundary policy and update bounds.
type GateConfig struct {
	Policy   Policy
	MaxDelta float64 // largest unit-scaled change a single update may commit
}

// DefaultGateConfig returns the clamp policy with the standard per-turn bound.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		Policy:   PolicyClamp,
		MaxDelta: 0.15,
	}
}

// #endregion gate-config

// #region gate-decision
// GateDecision is the output of the gate evaluation.
type GateDecision struct {
	Action      string // "commit" | "clamp" | "reject"
	Reason      string
	Vetoed      bool
	VetoSignals []VetoSignal     // non-empty if vetoed
	Snapshot    metrics.Snapshot // what was admitted
	SoftScore   float64          // 0-1 stability score (for logging)
}

// #endregion gate-decision
