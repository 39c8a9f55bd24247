package voice

import (
	"fmt"

	"github.com/danielpatrickdp/arbiter/internal/metrics"
)

// #region threshold-rule
// ThresholdRule selects which activation rule Sibyl uses.
type ThresholdRule string

const (
	// RuleEchoMirror activates on a looping conversation that has lost attunement.
	RuleEchoMirror ThresholdRule = "echo_mirror"
	// RuleTransition activates on a painful context switch inside a trusting relationship.
	RuleTransition ThresholdRule = "transition"
)

// ParseThresholdRule validates a configured rule name. Empty means RuleEchoMirror.
func ParseThresholdRule(s string) (ThresholdRule, error) {
	switch ThresholdRule(s) {
	case "", RuleEchoMirror:
		return RuleEchoMirror, nil
	case RuleTransition:
		return RuleTransition, nil
	}
	return "", fmt.Errorf("unknown sibyl rule %q", s)
}

// #endregion threshold-rule

// #region engine-config
// EngineConfig holds arbitration tuning.
type EngineConfig struct {
	Inertia     float64 // bonus added to the currently active voice
	SibylRule   ThresholdRule
	Preferences map[ID]float64 // default weights, overridden per call by Input.Preferences
}

// DefaultEngineConfig returns the standard arbitration settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Inertia:   0.2,
		SibylRule: RuleEchoMirror,
	}
}

// #endregion engine-config

// #region engine-types
// Input is everything the engine reads for one selection.
type Input struct {
	Metrics     metrics.Snapshot
	Preferences map[ID]float64
	Current     ID // active voice for hysteresis; empty = none
	Forced      ID // set by a ritual; bypasses scoring
}

// Candidate is one voice's scoring record.
type Candidate struct {
	Voice    ID      `json:"voice"`
	Eligible bool    `json:"eligible"`
	Base     float64 `json:"base"`
	Adjusted float64 `json:"adjusted"`
}

// Selection is the engine's decision.
type Selection struct {
	Voice      ID          `json:"voice"`
	Score      float64     `json:"score"`
	Forced     bool        `json:"forced"`
	Candidates []Candidate `json:"candidates"`
}

// #endregion engine-types

// #region engine
// Engine scores and selects a voice.
type Engine struct {
	config EngineConfig
}

// NewEngine creates an engine. An invalid Sibyl rule falls back to RuleEchoMirror.
func NewEngine(config EngineConfig) *Engine {
	if config.SibylRule != RuleTransition {
		config.SibylRule = RuleEchoMirror
	}
	return &Engine{config: config}
}

// Select returns the winning voice for in. It always returns one of the nine voices.
func (e *Engine) Select(in Input) Selection {
	if in.Forced != "" {
		if _, ok := registry[in.Forced]; ok {
			return Selection{Voice: in.Forced, Forced: true}
		}
	}

	m := in.Metrics
	candidates := make([]Candidate, 0, len(Order))
	best := Candidate{Voice: Iskra}
	found := false

	for _, id := range Order {
		base, eligible := e.base(id, m)
		weight := e.weight(id, in.Preferences)
		c := Candidate{Voice: id, Base: base}
		if eligible && (weight > 0 || id == Iskra) {
			if weight < 0 {
				weight = 0
			}
			c.Eligible = true
			c.Adjusted = base * weight
			if id == in.Current {
				c.Adjusted += e.config.Inertia
			}
			if !found || c.Adjusted > best.Adjusted {
				best = c
				found = true
			}
		}
		candidates = append(candidates, c)
	}

	return Selection{Voice: best.Voice, Score: best.Adjusted, Candidates: candidates}
}

func (e *Engine) weight(id ID, prefs map[ID]float64) float64 {
	if w, ok := prefs[id]; ok {
		return w
	}
	if w, ok := e.config.Preferences[id]; ok {
		return w
	}
	return 1.0
}

// base returns the unweighted score and whether the voice's gate is open.
func (e *Engine) base(id ID, m metrics.Snapshot) (float64, bool) {
	switch id {
	case Kain:
		return m.Pain * 3.0, m.Pain >= 0.3
	case Huyndun:
		return m.Chaos * 3.0, m.Chaos >= 0.4
	case Iskriv:
		return m.Drift * 3.5, m.Drift >= 0.2
	case Sam:
		return (1 - m.Clarity) * 2.0, m.Clarity < 0.6
	case Anhantra:
		return (1-m.Trust)*2.5 + m.SilenceMass*2.0, true
	case Maki:
		return m.Trust + m.Pain, m.Trust > 0.8 && m.Pain > 0.3
	case Pino:
		return 1.5, m.Pain < 0.3 && m.Chaos < 0.4
	case Sibyl:
		return e.sibyl(m)
	case Iskra:
		score := 1.0
		if m.Rhythm > 60 && m.Trust > 0.7 {
			score += 0.5
		}
		return score, true
	}
	return 0, false
}

func (e *Engine) sibyl(m metrics.Snapshot) (float64, bool) {
	if e.config.SibylRule == RuleTransition {
		return m.Pain + m.Trust + m.CtxSwitch*2.0,
			m.CtxSwitch >= 0.5 && m.Pain >= 0.3 && m.Trust >= 0.5
	}
	return (m.Echo + (1 - m.MirrorSync)) * 1.5, m.Echo > 0.6 && m.MirrorSync < 0.5
}

// #endregion engine
