package ritual

import (
	"github.com/danielpatrickdp/arbiter/internal/audit"
	"github.com/danielpatrickdp/arbiter/internal/metrics"
	"github.com/danielpatrickdp/arbiter/internal/phase"
	"github.com/danielpatrickdp/arbiter/internal/voice"
)

// #region config
// MachineConfig holds the auto-trigger thresholds.
type MachineConfig struct {
	PhoenixChaos float64 // chaos above this resets
	PhoenixDrift float64 // drift above this together with low trust resets
	PhoenixTrust float64
	ShatterDrift float64

	// Council fires when StressCount or more of these hold.
	StressPain    float64 // pain >=
	StressChaos   float64 // chaos >=
	StressDrift   float64 // drift >=
	StressClarity float64 // clarity <=
	StressTrust   float64 // trust <=
	StressCount   int
}

// DefaultMachineConfig returns the standard trigger thresholds.
func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		PhoenixChaos:  0.8,
		PhoenixDrift:  0.6,
		PhoenixTrust:  0.5,
		ShatterDrift:  0.8,
		StressPain:    0.6,
		StressChaos:   0.6,
		StressDrift:   0.5,
		StressClarity: 0.4,
		StressTrust:   0.4,
		StressCount:   3,
	}
}

// #endregion config

// #region machine
// Machine decides which ritual, if any, a snapshot calls for and applies it.
type Machine struct {
	config MachineConfig
}

// NewMachine creates a ritual machine.
func NewMachine(config MachineConfig) *Machine {
	return &Machine{config: config}
}

// Result is the outcome of executing a ritual.
type Result struct {
	Ritual      Name             `json:"ritual"`
	Before      metrics.Snapshot `json:"before"`
	After       metrics.Snapshot `json:"after"`
	Phase       phase.Phase      `json:"phase"`
	ForcedVoice voice.ID         `json:"forced_voice,omitempty"`
	Panel       []voice.ID       `json:"panel,omitempty"` // council only
}

// Check returns the highest-priority auto-triggered ritual for m.
func (mc *Machine) Check(m metrics.Snapshot) (Ritual, bool) {
	c := mc.config
	if m.Chaos > c.PhoenixChaos || (m.Drift > c.PhoenixDrift && m.Trust < c.PhoenixTrust) {
		return catalog[Phoenix], true
	}
	if m.Drift > c.ShatterDrift {
		return catalog[Shatter], true
	}
	if mc.stressed(m) >= c.StressCount {
		return catalog[Council], true
	}
	return Ritual{}, false
}

func (mc *Machine) stressed(m metrics.Snapshot) int {
	c := mc.config
	n := 0
	for _, hit := range []bool{
		m.Pain >= c.StressPain,
		m.Chaos >= c.StressChaos,
		m.Drift >= c.StressDrift,
		m.Clarity <= c.StressClarity,
		m.Trust <= c.StressTrust,
	} {
		if hit {
			n++
		}
	}
	return n
}

// Execute applies r to m and records a ritual_execution entry on rec (nil rec skips recording).
func (mc *Machine) Execute(r Ritual, m metrics.Snapshot, rec audit.Recorder) Result {
	after := r.Transform(m).Clamp()
	res := Result{
		Ritual:      r.Name,
		Before:      m,
		After:       after,
		Phase:       r.Phase,
		ForcedVoice: r.ForcedVoice,
	}
	if r.Name == Council {
		res.Panel = append([]voice.ID(nil), voice.Order...)
	}

	if rec != nil {
		details := map[string]any{
			audit.DetailRitual: string(r.Name),
			"phase":            string(r.Phase),
		}
		if r.ForcedVoice != "" {
			details["forced_voice"] = string(r.ForcedVoice)
		}
		rec.Append(audit.Entry{
			Type:    audit.RitualExecution,
			Actor:   "ritual",
			Details: details,
			Delta:   &audit.Delta{Before: m, After: after},
		})
	}
	return res
}

// Invoke runs the named ritual, including the ones never auto-triggered.
func (mc *Machine) Invoke(name Name, m metrics.Snapshot, rec audit.Recorder) (Result, error) {
	r, err := Get(name)
	if err != nil {
		return Result{}, err
	}
	return mc.Execute(r, m, rec), nil
}

// #endregion machine
