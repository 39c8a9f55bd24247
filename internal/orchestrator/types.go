package orchestrator

// #region imports
import (
	"time"

	"github.com/danielpatrickdp/arbiter/internal/audit"
	"github.com/danielpatrickdp/arbiter/internal/eval"
	"github.com/danielpatrickdp/arbiter/internal/gate"
	"github.com/danielpatrickdp/arbiter/internal/metrics"
	"github.com/danielpatrickdp/arbiter/internal/phase"
	"github.com/danielpatrickdp/arbiter/internal/playbook"
	"github.com/danielpatrickdp/arbiter/internal/ritual"
	"github.com/danielpatrickdp/arbiter/internal/signature"
	"github.com/danielpatrickdp/arbiter/internal/state"
	"github.com/danielpatrickdp/arbiter/internal/update"
	"github.com/danielpatrickdp/arbiter/internal/voice"
)

// #endregion

// #region strategy-id

// StrategyID identifies a corrective prompting strategy for a regeneration.
type StrategyID string

const (
	StrategyDefault   StrategyID = "default"
	StrategyGround    StrategyID = "ground"    // cite or verify
	StrategyConcrete  StrategyID = "concrete"  // numbers, steps, specifics
	StrategyCalibrate StrategyID = "calibrate" // honest confidence
	StrategyDirect    StrategyID = "direct"    // answer the question, no service phrases
	StrategyPlain     StrategyID = "plain"     // no self-limitation boilerplate
)

// #endregion

// #region failure-type

// FailureType categorizes why a generated response should not be accepted as is.
type FailureType string

const (
	FailureNone       FailureType = "none"
	FailureEmpty      FailureType = "empty"
	FailureRepetition FailureType = "repetition"
	FailureRefusal    FailureType = "refusal"
	FailureDeflection FailureType = "deflection"
	FailureEcho       FailureType = "echo" // restates the prompt
	FailureLowGrade   FailureType = "low_grade"
)

// #endregion

// #region strategy-config

// StrategyConfig defines how a strategy modifies the generation request.
type StrategyConfig struct {
	ID             StrategyID
	PromptModifier string // prefix added to the prompt, empty = none
}

// #endregion

// #region attempt

// Attempt records one generation attempt within a turn.
type Attempt struct {
	Strategy  StrategyID
	Response  string // after signature enforcement
	Raw       string // as returned by the generator
	LatencyMs int64
	Failure   FailureType
	Retry     bool // assessment asked for a regeneration
	Eval      eval.Result
	Signature signature.Result
	Fallback  bool // produced by the echo generator after a generation error
}

// #endregion

// #region outcome-record

// OutcomeRecord is a single row for turn_outcomes.
type OutcomeRecord struct {
	TurnID     string
	SessionID  string
	Playbook   playbook.Playbook
	Voice      voice.ID
	StrategyID StrategyID
	AttemptNum int
	Grade      eval.Grade
	Overall    float64
	Flags      []eval.Flag
	Failure    FailureType
	Accepted   bool
	CreatedAt  time.Time
}

// #endregion

// #region request

// Request is one user turn.
type Request struct {
	SessionID string
	Text      string
	Ritual    ritual.Name // invoke this ritual instead of the automatic check; empty = check
}

// #endregion

// #region plan

// Plan is the arbitration decision for a turn, produced before generation.
type Plan struct {
	TurnID     string
	Before     metrics.Snapshot // seed after the gate
	Metrics    metrics.Snapshot // after update and ritual
	Meta       metrics.Meta
	Signals    update.Signals
	Update     update.UpdateResult
	Gate       gate.GateDecision // admission of the seed
	UpdateGate gate.GateDecision // admission of the proposed update
	Phase      phase.Phase
	Playbook   playbook.Classification
	Config     playbook.Config
	Selection  voice.Selection
	Voice      voice.ID
	Guarded    bool // crisis guard overrode the selection
	Ritual     *ritual.Result
	Persona    string
}

// #endregion

// #region turn-result

// TurnResult is everything a caller sees after a turn.
type TurnResult struct {
	Plan
	Response string
	Eval     eval.Result
	Attempts []Attempt
	Accepted int // index into Attempts
	Drift    audit.DriftReport
	Session  state.Session
	Duration time.Duration
}

// #endregion
