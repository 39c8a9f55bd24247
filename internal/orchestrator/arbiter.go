package orchestrator

// #region imports
import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/arbiter/internal/audit"
	"github.com/danielpatrickdp/arbiter/internal/eval"
	"github.com/danielpatrickdp/arbiter/internal/gate"
	"github.com/danielpatrickdp/arbiter/internal/metrics"
	"github.com/danielpatrickdp/arbiter/internal/patterns"
	"github.com/danielpatrickdp/arbiter/internal/phase"
	"github.com/danielpatrickdp/arbiter/internal/playbook"
	"github.com/danielpatrickdp/arbiter/internal/ritual"
	"github.com/danielpatrickdp/arbiter/internal/signals"
	"github.com/danielpatrickdp/arbiter/internal/signature"
	"github.com/danielpatrickdp/arbiter/internal/state"
	"github.com/danielpatrickdp/arbiter/internal/update"
	"github.com/danielpatrickdp/arbiter/internal/voice"
)

// #endregion

// #region arbiter-config

// ArbiterConfig holds the configuration of every stage.
type ArbiterConfig struct {
	Gate        gate.GateConfig
	Update      update.UpdateConfig
	Signals     signals.ProducerConfig
	Voice       voice.EngineConfig
	Ritual      ritual.MachineConfig
	Eval        eval.EvalConfig
	Preferences map[voice.ID]float64 // global weights; session weights override per voice
}

// DefaultArbiterConfig returns the defaults of every stage.
func DefaultArbiterConfig() ArbiterConfig {
	return ArbiterConfig{
		Gate:    gate.DefaultGateConfig(),
		Update:  update.DefaultUpdateConfig(),
		Signals: signals.DefaultProducerConfig(),
		Voice:   voice.DefaultEngineConfig(),
		Ritual:  ritual.DefaultMachineConfig(),
		Eval:    eval.DefaultEvalConfig(),
	}
}

// #endregion

// #region arbiter

// Arbiter runs the synchronous stages of a turn. It holds no per-session state; the caller
// passes the session and owns the result.
type Arbiter struct {
	config     ArbiterConfig
	rec        audit.Recorder
	gate       *gate.Gate
	producer   *signals.Producer
	classifier *playbook.Classifier
	voices     *voice.Engine
	rituals    *ritual.Machine
	enforcer   *signature.Enforcer
	evaluator  *eval.Evaluator
	now        func() time.Time
}

// NewArbiter wires every stage against one pattern table and one recorder. nil tables use
// patterns.Default(); a nil rec records nothing.
func NewArbiter(config ArbiterConfig, tables *patterns.Table, rec audit.Recorder) *Arbiter {
	if tables == nil {
		tables = patterns.Default()
	}
	cc := playbook.DefaultClassifierConfig()
	cc.Tables = tables
	return &Arbiter{
		config:     config,
		rec:        rec,
		gate:       gate.NewGate(config.Gate),
		producer:   signals.NewProducer(tables, config.Signals),
		classifier: playbook.NewClassifier(cc),
		voices:     voice.NewEngine(config.Voice),
		rituals:    ritual.NewMachine(config.Ritual),
		enforcer:   signature.NewEnforcer(rec),
		evaluator:  eval.NewEvaluator(eval.NewEngineWith(config.Eval, tables), rec),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (a *Arbiter) record(e audit.Entry) {
	if a.rec != nil {
		a.rec.Append(e)
	}
}

// #endregion

// #region plan

// Plan runs gate, signals, update, phase, playbook, voice and ritual for one user message.
// invoke names a ritual to run instead of the automatic check. Only the gate (under the
// reject policy) and an unknown ritual name return errors.
func (a *Arbiter) Plan(sess state.Session, text string, invoke ritual.Name) (Plan, error) {
	p := Plan{TurnID: uuid.NewString()}

	// 1. Seed admission
	admitted, err := a.gate.Admit(sess.Metrics)
	p.Gate = admitted
	if err != nil {
		a.record(audit.Entry{
			Type:     audit.SystemEvent,
			Severity: audit.Critical,
			Actor:    "gate",
			Details:  map[string]any{"action": admitted.Action, "reason": admitted.Reason},
		})
		return p, fmt.Errorf("admit session %s: %w", sess.ID, err)
	}
	if admitted.Action == "clamp" {
		a.record(audit.Entry{
			Type:     audit.SystemEvent,
			Severity: audit.Warning,
			Actor:    "gate",
			Details:  map[string]any{"action": admitted.Action, "reason": admitted.Reason},
		})
	}
	seed := admitted.Snapshot
	p.Before = seed

	// 2. Signals and bounded update
	p.Signals = a.producer.Produce(signals.ProduceInput{Text: text, Previous: sess.LastUser()})
	p.Update = update.Update(seed, update.UpdateContext{TurnID: p.TurnID, Text: text}, p.Signals, a.config.Update)
	p.UpdateGate = a.gate.Evaluate(seed, p.Update.Snapshot, p.Update.Metrics)
	m := p.UpdateGate.Snapshot
	if p.UpdateGate.Vetoed {
		a.record(audit.Entry{
			Type:     audit.SystemEvent,
			Severity: audit.Warning,
			Actor:    "gate",
			Details:  map[string]any{"action": p.UpdateGate.Action, "reason": p.UpdateGate.Reason},
		})
	} else {
		a.record(audit.Entry{
			Type:  audit.MetricChange,
			Actor: "update",
			Details: map[string]any{
				"decision":   p.Update.Decision.Action,
				"fields_hit": p.Update.Metrics.FieldsHit,
				"soft_score": p.UpdateGate.SoftScore,
			},
			Delta: &audit.Delta{Before: seed, After: m},
		})
	}

	// 3. Phase
	p.Phase = phase.Classify(m)
	if ch := (phase.Change{From: sess.Phase, To: p.Phase}); ch.Changed() {
		a.record(audit.Entry{
			Type:    audit.PhaseTransition,
			Actor:   "phase",
			Details: map[string]any{"from": string(ch.From), "to": string(ch.To)},
		})
	}

	// 4. Playbook
	p.Playbook = a.classifier.Classify(text, sess.History, m)
	p.Config = playbook.ConfigFor(p.Playbook.Playbook)
	pbEntry := audit.Entry{
		Type:  audit.SystemEvent,
		Actor: "playbook",
		Details: map[string]any{
			"playbook":   string(p.Playbook.Playbook),
			"risk":       string(p.Playbook.Risk),
			"stakes":     string(p.Playbook.Stakes),
			"confidence": p.Playbook.Confidence,
			"reason":     p.Playbook.Reason,
		},
	}
	if p.Playbook.Playbook == playbook.Crisis {
		pbEntry.Severity = audit.Warning
	}
	a.record(pbEntry)

	// 5. Voice, with the crisis guard
	p.Selection = a.voices.Select(voice.Input{
		Metrics:     m,
		Preferences: a.preferences(sess),
		Current:     sess.Voice,
		Forced:      sess.ForcedVoice,
	})
	p.Voice = p.Selection.Voice
	if p.Playbook.Playbook == playbook.Crisis && !contains(p.Config.RequiredVoices, p.Voice) {
		p.Voice = voice.Anhantra
		p.Guarded = true
	}
	vEntry := audit.Entry{
		Type:  audit.VoiceSelection,
		Actor: "voice",
		Details: map[string]any{
			"voice":  string(p.Voice),
			"score":  p.Selection.Score,
			"forced": p.Selection.Forced,
		},
	}
	if p.Guarded {
		vEntry.Severity = audit.Warning
		vEntry.Details["guarded"] = true
		vEntry.Details["selected"] = string(p.Selection.Voice)
	}
	a.record(vEntry)

	// 6. Ritual
	var res *ritual.Result
	if invoke != "" {
		r, err := a.rituals.Invoke(invoke, m, a.rec)
		if err != nil {
			return p, fmt.Errorf("invoke ritual %q: %w", invoke, err)
		}
		res = &r
	} else if r, ok := a.rituals.Check(m); ok {
		out := a.rituals.Execute(r, m, a.rec)
		res = &out
	}
	if res != nil {
		p.Ritual = res
		m = res.After
		p.Phase = res.Phase
	}

	p.Metrics = m
	p.Meta = metrics.ComputeMeta(m)
	p.Persona = voice.Persona(p.Voice)
	return p, nil
}

// preferences merges the configured weights with the session's own.
func (a *Arbiter) preferences(sess state.Session) map[voice.ID]float64 {
	if len(sess.Preferences) == 0 {
		return a.config.Preferences
	}
	out := make(map[voice.ID]float64, len(a.config.Preferences)+len(sess.Preferences))
	for id, w := range a.config.Preferences {
		out[id] = w
	}
	for id, w := range sess.Preferences {
		out[id] = w
	}
	return out
}

func contains(ids []voice.ID, id voice.ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// #endregion

// #region respond

// Respond enforces the signature block (when enforce is set) and evaluates the result.
// topic is the user message the delta line refers to.
func (a *Arbiter) Respond(p Plan, topic, raw string, enforce bool) (signature.Result, eval.Result) {
	var sig signature.Result
	if enforce {
		sig = a.enforcer.Enforce(raw, signature.Context{Voice: p.Voice, Topic: topic})
	} else {
		sig = signature.Result{Text: raw, Fields: signature.Validate(raw).Fields}
	}
	return sig, a.evaluator.Evaluate(sig.Text, eval.Context{Query: topic})
}

// #endregion

// #region advance

// Advance returns the session after a completed turn: committed metrics, voice and phase,
// both messages appended and the ritual's forced voice carried to the next turn.
func (a *Arbiter) Advance(sess state.Session, p Plan, text, response string, historyLimit int) state.Session {
	next := sess
	next.Metrics = p.Metrics
	next.Voice = p.Voice
	next.Phase = p.Phase
	next.ForcedVoice = ""
	if p.Ritual != nil {
		next.ForcedVoice = p.Ritual.ForcedVoice
	}
	next.Turn++

	at := a.now()
	next.History = append([]playbook.Message(nil), sess.History...)
	next.Append(playbook.Message{Role: playbook.RoleUser, Text: text, At: at}, historyLimit)
	next.Append(playbook.Message{Role: playbook.RoleAssistant, Text: response, At: at}, historyLimit)
	return next
}

// #endregion
