package audit

import (
	"time"

	"github.com/danielpatrickdp/arbiter/internal/metrics"
)

// #region entry-type
// Type categorizes an audit entry.
type Type string

const (
	MetricChange     Type = "metric_change"
	VoiceSelection   Type = "voice_selection"
	RitualExecution  Type = "ritual_execution"
	PhaseTransition  Type = "phase_transition"
	DeltaViolation   Type = "delta_violation"
	EvaluationResult Type = "evaluation_result"
	SystemEvent      Type = "system_event"
)

// Types lists every entry type.
var Types = []Type{
	MetricChange, VoiceSelection, RitualExecution, PhaseTransition,
	DeltaViolation, EvaluationResult, SystemEvent,
}

// clone copies the details map and delta so a holder of the copy cannot reach the stored entry.
// Detail values are shared; they are scalars or slices nobody writes to.
func (e Entry) clone() Entry {
	if e.Details != nil {
		details := make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			details[k] = v
		}
		e.Details = details
	}
	if e.Delta != nil {
		d := *e.Delta
		e.Delta = &d
	}
	return e
}

// #endregion entry-type

// #region severity
// Severity orders entries by importance.
type Severity string

const (
	Info     Severity = "info"
	Warning  Severity = "warning"
	Critical Severity = "critical"
)

// Rank returns a comparable ordinal; unknown severities rank as info.
func (s Severity) Rank() int {
	switch s {
	case Warning:
		return 1
	case Critical:
		return 2
	}
	return 0
}

// #endregion severity

// #region entry
// Delta is the before/after pair attached to state-changing entries.
type Delta struct {
	Before metrics.Snapshot `json:"before"`
	After  metrics.Snapshot `json:"after"`
}

// Entry is an immutable audit record.
type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      Type           `json:"type"`
	Severity  Severity       `json:"severity"`
	Actor     string         `json:"actor"`
	Details   map[string]any `json:"details,omitempty"`
	Delta     *Delta         `json:"delta,omitempty"`
}

// #endregion entry

// #region auto-severity
// Detail keys read by the severity rules.
const (
	DetailGrade  = "grade"
	DetailRitual = "ritual"
)

// assignSeverity applies the magnitude and outcome rules to an entry that has none.
func assignSeverity(e Entry) Severity {
	switch e.Type {
	case MetricChange:
		if e.Delta != nil {
			d := metrics.MaxAbsDelta(e.Delta.Before, e.Delta.After)
			switch {
			case d >= 0.5:
				return Critical
			case d >= 0.3:
				return Warning
			}
		}
	case EvaluationResult:
		if g, ok := e.Details[DetailGrade].(string); ok && (g == "D" || g == "F") {
			return Warning
		}
	case DeltaViolation:
		return Warning
	case RitualExecution:
		if r, ok := e.Details[DetailRitual].(string); ok && r == "phoenix" {
			return Warning
		}
	}
	return Info
}

// #endregion auto-severity
