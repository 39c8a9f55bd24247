package logging

import (
	"time"

	"github.com/danielpatrickdp/arbiter/internal/metrics"
	"github.com/danielpatrickdp/arbiter/internal/update"
)

// #region turn-entry
// TurnEntry is a single row in the turn_log table.
type TurnEntry struct {
	TurnID     string
	SessionID  string
	VersionID  string // session version written by this turn; empty if nothing was persisted
	RecordJSON string
	Decision   string // "commit" | "clamp" | "reject" | "no_op"
	Reason     string
	CreatedAt  time.Time
}

// #endregion turn-entry

// #region turn-record
// TurnRecord captures the complete pipeline inputs and outputs for a single turn.
// Serialized as JSON into turn_log.record_json for deterministic replay.
type TurnRecord struct {
	TurnID    string `json:"turn_id"`
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
	Response  string `json:"response"`
	Previous  string `json:"previous,omitempty"` // prior user message the signals compared against

	// Exact signals as detected at runtime
	Signals update.Signals `json:"signals"`

	Before metrics.Snapshot `json:"before"`
	After  metrics.Snapshot `json:"after"`

	// Arbitration outputs
	Phase    string `json:"phase"`
	Playbook string `json:"playbook"`
	Voice    string `json:"voice"`
	Ritual   string `json:"ritual,omitempty"`
	Invoked  bool   `json:"ritual_invoked,omitempty"` // ritual was requested, not auto-triggered

	// Gate output
	GateAction    string  `json:"gate_action"`
	GateSoftScore float64 `json:"gate_soft_score"`
	GateReason    string  `json:"gate_reason"`

	// Evaluation of the accepted response
	Grade    string   `json:"grade"`
	Overall  float64  `json:"overall"`
	Flags    []string `json:"flags,omitempty"`
	Attempts int      `json:"attempts"`
	Enforced bool     `json:"signature_enforced"`
}

// #endregion turn-record
