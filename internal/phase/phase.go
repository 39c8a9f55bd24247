package phase

import "github.com/danielpatrickdp/arbiter/internal/metrics"

// #region phase-type
// Phase is the discrete situational label derived from metrics.
type Phase string

const (
	Darkness    Phase = "darkness"
	Dissolution Phase = "dissolution"
	Silence     Phase = "silence"
	Echo        Phase = "echo"
	Transition  Phase = "transition"
	Experiment  Phase = "experiment"
	Realization Phase = "realization"
	Clarity     Phase = "clarity"
)

// All lists every phase in rule priority order.
var All = []Phase{Darkness, Dissolution, Silence, Echo, Transition, Experiment, Realization, Clarity}

// #endregion phase-type

// #region rules
// Rule pairs a phase with its trigger predicate.
type Rule struct {
	Phase Phase
	Match func(metrics.Snapshot) bool
}

// rules are evaluated top to bottom; the first match wins. The last rule always matches.
var rules = []Rule{
	{Darkness, func(m metrics.Snapshot) bool { return m.Pain > 0.7 && m.Chaos > 0.6 }},
	{Dissolution, func(m metrics.Snapshot) bool { return m.Chaos > 0.8 }},
	{Silence, func(m metrics.Snapshot) bool { return m.Trust < 0.4 || m.SilenceMass > 0.6 }},
	{Echo, func(m metrics.Snapshot) bool { return m.Echo > 0.6 || m.Drift > 0.5 }},
	{Transition, func(m metrics.Snapshot) bool { return m.Drift > 0.3 && m.Clarity < 0.5 }},
	{Experiment, func(m metrics.Snapshot) bool {
		return m.Chaos >= 0.4 && m.Chaos <= 0.7 && m.Trust > 0.7 && m.Pain < 0.3
	}},
	{Realization, func(m metrics.Snapshot) bool {
		return m.Clarity > 0.8 && m.Trust > 0.8 && m.Rhythm > 70
	}},
	{Clarity, func(metrics.Snapshot) bool { return true }},
}

// Rules returns a copy of the ordered rule table.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// #endregion rules

// #region classify
// Classify returns the active phase for m. It never fails.
func Classify(m metrics.Snapshot) Phase {
	for _, r := range rules {
		if r.Match(m) {
			return r.Phase
		}
	}
	return Clarity
}

// Change records a phase change between two turns.
type Change struct {
	From Phase `json:"from"`
	To   Phase `json:"to"`
}

// Changed reports whether the phase moved.
func (c Change) Changed() bool {
	return c.From != "" && c.From != c.To
}

// #endregion classify

// #region instructions
var instructions = map[Phase]string{
	Darkness:    "Stay present with the pain. Short sentences, no fixes, no silver linings.",
	Dissolution: "Structure is breaking down. Let it, name what falls apart, and keep one anchor visible.",
	Silence:     "Say less. Leave room. Ask at most one gentle question.",
	Echo:        "The conversation is looping. Name the repetition and offer one new angle.",
	Transition:  "Something is shifting. Mark what is ending and what might be starting.",
	Experiment:  "Play is safe here. Try an unusual framing, and keep it light.",
	Realization: "Insight is available. Reflect it back crisply and point to the next step.",
	Clarity:     "Answer directly and concretely.",
}

// Instruction returns the prompt instruction for p.
func Instruction(p Phase) string {
	if s, ok := instructions[p]; ok {
		return s
	}
	return instructions[Clarity]
}

// #endregion instructions
