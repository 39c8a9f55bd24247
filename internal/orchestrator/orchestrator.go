package orchestrator

// #region imports
import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/arbiter/internal/audit"
	"github.com/danielpatrickdp/arbiter/internal/codec"
	"github.com/danielpatrickdp/arbiter/internal/config"
	"github.com/danielpatrickdp/arbiter/internal/gate"
	"github.com/danielpatrickdp/arbiter/internal/logging"
	"github.com/danielpatrickdp/arbiter/internal/patterns"
	"github.com/danielpatrickdp/arbiter/internal/phase"
	"github.com/danielpatrickdp/arbiter/internal/playbook"
	"github.com/danielpatrickdp/arbiter/internal/state"
	"github.com/danielpatrickdp/arbiter/internal/telemetry"
)

// #endregion

// #region config

// Config holds pipeline behavior around the arbitration stages.
type Config struct {
	// Enabled is the kill switch: when false every turn gets exactly one attempt with the
	// default strategy.
	Enabled         bool
	Arbiter         ArbiterConfig
	AlwaysEnforce   bool // enforce the signature even when the playbook does not require it
	FallbackOnError bool
	MaxRetries      int
	HistoryLimit    int
	MaxBudget       time.Duration // 0 = playbook budget only
	DriftWindow     int           // recent assistant replies scanned for drift, including this one
}

// DefaultConfig mirrors config.Default.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		Arbiter:         DefaultArbiterConfig(),
		AlwaysEnforce:   true,
		FallbackOnError: true,
		MaxRetries:      DefaultMaxRetries,
		HistoryLimit:    20,
		DriftWindow:     5,
	}
}

// FromConfig maps the file/env configuration onto the pipeline.
func FromConfig(c config.Config) Config {
	cfg := DefaultConfig()
	cfg.Enabled = c.Enabled
	cfg.Arbiter.Gate = gate.GateConfig{Policy: c.GatePolicy(), MaxDelta: c.Gate.MaxDelta}
	cfg.Arbiter.Voice.SibylRule = c.SibylRule()
	cfg.Arbiter.Voice.Inertia = c.Voice.Inertia
	cfg.Arbiter.Preferences = c.Preferences()
	cfg.AlwaysEnforce = c.Signature.AlwaysEnforce
	cfg.FallbackOnError = c.Pipeline.FallbackOnError
	cfg.MaxRetries = c.Pipeline.MaxRetries
	cfg.HistoryLimit = c.Pipeline.HistoryLimit
	cfg.MaxBudget = c.Pipeline.MaxBudget
	return cfg
}

// #endregion

// #region deps

// Deps are the collaborators of an Orchestrator. Only Store is required.
type Deps struct {
	Store     state.SessionStore
	Generator codec.Generator     // nil = codec.EchoGenerator
	Log       *audit.Log          // nil = a default-capacity log
	Memory    *OutcomeMemory      // nil = no strategy learning
	TurnDB    *sql.DB             // turn_log provenance; nil = not written
	Telemetry *telemetry.Recorder // nil = no turn duration metric
	Logger    *zap.Logger         // nil = no-op
	Tables    *patterns.Table     // nil = patterns.Default()
}

// #endregion

// #region orchestrator-struct

// Orchestrator runs the full turn pipeline against a session store and a generator.
// Turns of one session are serialized; different sessions run independently.
type Orchestrator struct {
	config   Config
	arbiter  *Arbiter
	selector *StrategySelector
	retry    *RetryEngine
	store    state.SessionStore
	gen      codec.Generator
	fallback codec.Generator
	log      *audit.Log
	memory   *OutcomeMemory
	turnDB   *sql.DB
	tel      *telemetry.Recorder
	logger   *zap.Logger
	tables   *patterns.Table

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// #endregion

// #region constructor

// New creates a fully wired orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.New("new orchestrator: session store is required")
	}
	if deps.Generator == nil {
		deps.Generator = codec.EchoGenerator{}
	}
	if deps.Log == nil {
		deps.Log = audit.NewLog(audit.DefaultLogConfig())
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if deps.Tables == nil {
		deps.Tables = patterns.Default()
	}
	if deps.TurnDB != nil {
		if err := logging.MigrateTurns(deps.TurnDB); err != nil {
			return nil, fmt.Errorf("new orchestrator: %w", err)
		}
	}

	selector := NewStrategySelector(deps.Memory)
	return &Orchestrator{
		config:   cfg,
		arbiter:  NewArbiter(cfg.Arbiter, deps.Tables, deps.Log),
		selector: selector,
		retry:    NewRetryEngine(selector, cfg.MaxRetries),
		store:    deps.Store,
		gen:      deps.Generator,
		fallback: codec.EchoGenerator{},
		log:      deps.Log,
		memory:   deps.Memory,
		turnDB:   deps.TurnDB,
		tel:      deps.Telemetry,
		logger:   deps.Logger.Named("pipeline"),
		tables:   deps.Tables,
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

// Enabled returns whether regeneration is active.
func (o *Orchestrator) Enabled() bool {
	return o.config.Enabled
}

// Log returns the audit log every stage writes to.
func (o *Orchestrator) Log() *audit.Log {
	return o.log
}

// Arbiter returns the stage runner, for callers that replay without generation.
func (o *Orchestrator) Arbiter() *Arbiter {
	return o.arbiter
}

func (o *Orchestrator) lock(sessionID string) func() {
	o.mu.Lock()
	l, ok := o.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[sessionID] = l
	}
	o.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// #endregion

// #region turn

// Turn runs one user message through the pipeline and persists the new session version.
func (o *Orchestrator) Turn(ctx context.Context, req Request) (TurnResult, error) {
	start := time.Now()
	unlock := o.lock(req.SessionID)
	defer unlock()

	sess, err := o.store.Load(ctx, req.SessionID)
	switch {
	case errors.Is(err, state.ErrNotFound):
		sess = state.NewSession(req.SessionID)
	case err != nil:
		return TurnResult{}, fmt.Errorf("load session %s: %w", req.SessionID, err)
	}

	plan, err := o.arbiter.Plan(sess, req.Text, req.Ritual)
	if err != nil {
		o.logger.Warn("plan failed", zap.String("session", req.SessionID), zap.Error(err))
		return TurnResult{}, err
	}
	o.logger.Debug("plan",
		zap.String("turn", plan.TurnID),
		zap.String("phase", string(plan.Phase)),
		zap.String("playbook", string(plan.Playbook.Playbook)),
		zap.String("voice", string(plan.Voice)),
		zap.Float64("score", plan.Selection.Score),
		zap.Bool("guarded", plan.Guarded),
	)

	// Generation with regeneration
	strategy := Strategies[StrategyDefault]
	if o.config.Enabled {
		strategy = o.selector.SelectInitial(plan.Playbook.Playbook)
	}
	enforce := o.config.AlwaysEnforce || plan.Config.SignatureMandatory

	var attempts []Attempt
	for {
		att, err := o.attempt(ctx, plan, req.Text, strategy, enforce)
		if err != nil {
			return TurnResult{}, err
		}
		attempts = append(attempts, att)
		o.logger.Debug("attempt",
			zap.String("strategy", string(att.Strategy)),
			zap.String("grade", string(att.Eval.Grade)),
			zap.Float64("overall", att.Eval.Overall),
			zap.String("failure", string(att.Failure)),
		)
		if !o.config.Enabled {
			break
		}
		retry, next := o.retry.ShouldRetry(attempts)
		if !retry {
			break
		}
		o.logger.Info("retry", zap.String("strategy", string(next.ID)), zap.String("failure", string(att.Failure)))
		strategy = *next
	}
	accepted := BestAttempt(attempts)
	final := attempts[accepted]

	// Drift over the recent replies, this one included
	drift := audit.AnalyzeDriftWith(o.tables, plan.Metrics, o.recentReplies(sess, final.Response))
	if drift.Level == audit.DriftModerate || drift.Level == audit.DriftSevere {
		o.log.Append(audit.Entry{
			Type:     audit.SystemEvent,
			Severity: audit.Warning,
			Actor:    "drift",
			Details: map[string]any{
				"level":          string(drift.Level),
				"score":          drift.Score,
				"recommendation": drift.Recommendation,
			},
		})
	}

	o.log.Append(audit.Entry{
		Type:  audit.SystemEvent,
		Actor: "pipeline",
		Details: map[string]any{
			"turn_id":    plan.TurnID,
			"session_id": req.SessionID,
			"playbook":   string(plan.Playbook.Playbook),
			"voice":      string(plan.Voice),
			"attempts":   len(attempts),
			"strategy":   string(final.Strategy),
			"grade":      string(final.Eval.Grade),
		},
	})

	// Persist
	next := o.arbiter.Advance(sess, plan, req.Text, final.Response, o.config.HistoryLimit)
	saved, err := o.store.Save(ctx, next)
	if err != nil {
		return TurnResult{}, fmt.Errorf("save session %s: %w", req.SessionID, err)
	}

	o.recordOutcomes(plan, req.SessionID, attempts, accepted)
	o.recordTurn(plan, sess, saved, req.Text, req.Ritual != "", final, len(attempts))

	duration := time.Since(start)
	if o.tel != nil {
		o.tel.RecordTurn(ctx, duration, string(plan.Playbook.Playbook))
	}
	o.logger.Info("turn",
		zap.String("session", req.SessionID),
		zap.String("version", saved.VersionID),
		zap.String("voice", string(plan.Voice)),
		zap.String("grade", string(final.Eval.Grade)),
		zap.Int("attempts", len(attempts)),
		zap.Duration("duration", duration),
	)

	return TurnResult{
		Plan:     plan,
		Response: final.Response,
		Eval:     final.Eval,
		Attempts: attempts,
		Accepted: accepted,
		Drift:    drift,
		Session:  saved,
		Duration: duration,
	}, nil
}

// #endregion

// #region attempt

// attempt generates once under the playbook budget, enforces and evaluates.
func (o *Orchestrator) attempt(ctx context.Context, p Plan, text string, s StrategyConfig, enforce bool) (Attempt, error) {
	req := codec.GenerateRequest{
		Prompt:           s.PromptModifier + text,
		Persona:          p.Persona,
		PhaseInstruction: phase.Instruction(p.Phase),
		Playbook:         string(p.Playbook.Playbook),
		Voice:            string(p.Voice),
	}

	budget := p.Config.Budget
	if o.config.MaxBudget > 0 && (budget == 0 || budget > o.config.MaxBudget) {
		budget = o.config.MaxBudget
	}
	gctx, cancel := ctx, context.CancelFunc(func() {})
	if budget > 0 {
		gctx, cancel = context.WithTimeout(ctx, budget)
	}
	res, err := o.gen.Generate(gctx, req)
	cancel()

	att := Attempt{Strategy: s.ID}
	if err != nil {
		// a cancelled caller is never papered over
		if !o.config.FallbackOnError || ctx.Err() != nil {
			return att, fmt.Errorf("generate: %w", err)
		}
		o.logger.Warn("generation failed, using echo fallback", zap.Error(err))
		o.log.Append(audit.Entry{
			Type:     audit.SystemEvent,
			Severity: audit.Warning,
			Actor:    "generator",
			Details:  map[string]any{"error": err.Error(), "fallback": true},
		})
		res, err = o.fallback.Generate(ctx, req)
		if err != nil {
			return att, fmt.Errorf("fallback generate: %w", err)
		}
		att.Fallback = true
	}

	att.Raw = res.Text
	att.LatencyMs = res.LatencyMs
	att.Signature, att.Eval = o.arbiter.Respond(p, text, res.Text, enforce)
	att.Response = att.Signature.Text
	as := Assess(o.tables, text, res.Text, att.Eval)
	att.Failure = as.Failure
	att.Retry = as.ShouldRetry
	return att, nil
}

// recentReplies returns up to DriftWindow assistant texts ending with current.
func (o *Orchestrator) recentReplies(sess state.Session, current string) []string {
	window := o.config.DriftWindow
	if window < 1 {
		window = 1
	}
	var out []string
	for i := len(sess.History) - 1; i >= 0 && len(out) < window-1; i-- {
		if sess.History[i].Role == playbook.RoleAssistant {
			out = append(out, sess.History[i].Text)
		}
	}
	// oldest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return append(out, current)
}

// #endregion

// #region record

// recordOutcomes persists every attempt. Failures are logged, never returned.
func (o *Orchestrator) recordOutcomes(p Plan, sessionID string, attempts []Attempt, accepted int) {
	if o.memory == nil {
		return
	}
	now := time.Now()
	for i, a := range attempts {
		rec := OutcomeRecord{
			TurnID:     p.TurnID,
			SessionID:  sessionID,
			Playbook:   p.Playbook.Playbook,
			Voice:      p.Voice,
			StrategyID: a.Strategy,
			AttemptNum: i,
			Grade:      a.Eval.Grade,
			Overall:    a.Eval.Overall,
			Flags:      a.Eval.Flags,
			Failure:    a.Failure,
			Accepted:   i == accepted,
			CreatedAt:  now,
		}
		if err := o.memory.RecordOutcome(rec); err != nil {
			o.logger.Warn("record outcome failed", zap.String("turn", p.TurnID), zap.Error(err))
		}
	}
}

// recordTurn writes the turn_log provenance row.
func (o *Orchestrator) recordTurn(p Plan, prev, saved state.Session, text string, invoked bool, final Attempt, attempts int) {
	if o.turnDB == nil {
		return
	}
	rec := logging.TurnRecord{
		TurnID:        p.TurnID,
		SessionID:     saved.ID,
		Prompt:        text,
		Response:      final.Raw,
		Previous:      prev.LastUser(),
		Signals:       p.Signals,
		Before:        p.Before,
		After:         p.Metrics,
		Phase:         string(p.Phase),
		Playbook:      string(p.Playbook.Playbook),
		Voice:         string(p.Voice),
		GateAction:    p.UpdateGate.Action,
		GateSoftScore: p.UpdateGate.SoftScore,
		GateReason:    p.UpdateGate.Reason,
		Grade:         string(final.Eval.Grade),
		Overall:       final.Eval.Overall,
		Attempts:      attempts,
		Enforced:      final.Signature.WasEnforced,
	}
	if p.Ritual != nil {
		rec.Ritual = string(p.Ritual.Ritual)
		rec.Invoked = invoked
	}
	for _, f := range final.Eval.Flags {
		rec.Flags = append(rec.Flags, string(f))
	}
	if err := logging.LogRecord(o.turnDB, saved.VersionID, p.UpdateGate.Action, p.UpdateGate.Reason, rec); err != nil {
		o.logger.Warn("log turn failed", zap.String("turn", p.TurnID), zap.Error(err))
	}
}

// #endregion
