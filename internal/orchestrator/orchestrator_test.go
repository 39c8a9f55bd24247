package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/danielpatrickdp/arbiter/internal/audit"
	"github.com/danielpatrickdp/arbiter/internal/codec"
	"github.com/danielpatrickdp/arbiter/internal/gate"
	"github.com/danielpatrickdp/arbiter/internal/logging"
	"github.com/danielpatrickdp/arbiter/internal/metrics"
	"github.com/danielpatrickdp/arbiter/internal/playbook"
	"github.com/danielpatrickdp/arbiter/internal/ritual"
	"github.com/danielpatrickdp/arbiter/internal/signature"
	"github.com/danielpatrickdp/arbiter/internal/state"
	"github.com/danielpatrickdp/arbiter/internal/voice"
)

const fence = "```"

const upgradeBody = "According to the documentation [1], we can upgrade in three steps:\n\n" +
	"1. Run go get for the 2 modules you named.\n" +
	"2. Rebuild with Go 1.22.\n" +
	"3. Run the test suite; I checked this on 1.22 last week.\n\n" +
	fence + "sh\ngo test ./...\n" + fence

const upgradeReply = upgradeBody + "\n\n" +
	"∆DΩΛ\n" +
	"∆: Laid out the upgrade path.\n" +
	"D: Checked the release notes in the documentation.\n" +
	"Ω: 0.75 (medium)\n" +
	"Λ: Run step 1 and share the output."

const upgradeQuestion = "How do I upgrade the go modules in my project?"

// scriptedGenerator replies from a fixed script; the last reply repeats.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   []codec.GenerateRequest
}

func (g *scriptedGenerator) Generate(ctx context.Context, req codec.GenerateRequest) (codec.GenerateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if g.err != nil {
		return codec.GenerateResult{}, g.err
	}
	i := len(g.calls) - 1
	if i >= len(g.replies) {
		i = len(g.replies) - 1
	}
	return codec.GenerateResult{Text: g.replies[i], LatencyMs: 5}, nil
}

type harness struct {
	orch  *Orchestrator
	store *state.Store
	mem   *OutcomeMemory
	gen   *scriptedGenerator
}

func newHarness(t *testing.T, cfg Config, gen *scriptedGenerator) harness {
	t.Helper()
	store, err := state.NewStore(filepath.Join(t.TempDir(), "arbiter.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	mem, err := NewOutcomeMemory(store.DB())
	if err != nil {
		t.Fatal(err)
	}
	orch, err := New(cfg, Deps{
		Store:     store,
		Generator: gen,
		Log:       audit.NewLog(audit.LogConfig{Capacity: 500}),
		Memory:    mem,
		TurnDB:    store.DB(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return harness{orch: orch, store: store, mem: mem, gen: gen}
}

func firstIndex(entries []audit.Entry, match func(audit.Entry) bool) int {
	for i, e := range entries {
		if match(e) {
			return i
		}
	}
	return -1
}

func ofType(t audit.Type) func(audit.Entry) bool {
	return func(e audit.Entry) bool { return e.Type == t }
}

func byActor(t audit.Type, actor string) func(audit.Entry) bool {
	return func(e audit.Entry) bool { return e.Type == t && e.Actor == actor }
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(DefaultConfig(), Deps{}); err == nil {
		t.Fatal("expected an error without a session store")
	}
}

func TestTurnAuditStreamFollowsPipelineOrder(t *testing.T) {
	h := newHarness(t, DefaultConfig(), &scriptedGenerator{replies: []string{upgradeBody}})

	res, err := h.orch.Turn(context.Background(), Request{SessionID: "s1", Text: upgradeQuestion})
	if err != nil {
		t.Fatal(err)
	}
	if !signature.Validate(res.Response).Valid() {
		t.Fatalf("response must carry a valid signature block:\n%s", res.Response)
	}

	entries := h.orch.Log().Entries()
	order := []struct {
		name  string
		match func(audit.Entry) bool
	}{
		{"metric_change", ofType(audit.MetricChange)},
		{"playbook", byActor(audit.SystemEvent, "playbook")},
		{"voice_selection", ofType(audit.VoiceSelection)},
		{"delta_violation", ofType(audit.DeltaViolation)},
		{"evaluation_result", ofType(audit.EvaluationResult)},
		{"pipeline", byActor(audit.SystemEvent, "pipeline")},
	}
	prev := -1
	for _, o := range order {
		i := firstIndex(entries, o.match)
		if i < 0 {
			t.Fatalf("no %s entry in %d entries", o.name, len(entries))
		}
		if i <= prev {
			t.Fatalf("%s at %d, expected after %d", o.name, i, prev)
		}
		prev = i
	}

	if i := firstIndex(entries, ofType(audit.PhaseTransition)); i >= 0 {
		mc := firstIndex(entries, ofType(audit.MetricChange))
		pb := firstIndex(entries, byActor(audit.SystemEvent, "playbook"))
		if i < mc || i > pb {
			t.Errorf("phase_transition at %d, expected between %d and %d", i, mc, pb)
		}
	}
}

func TestTurnPersistsSessionAndProvenance(t *testing.T) {
	h := newHarness(t, DefaultConfig(), &scriptedGenerator{replies: []string{upgradeReply}})
	ctx := context.Background()

	first, err := h.orch.Turn(ctx, Request{SessionID: "s1", Text: upgradeQuestion})
	if err != nil {
		t.Fatal(err)
	}
	second, err := h.orch.Turn(ctx, Request{SessionID: "s1", Text: "Thanks, that makes sense. Which Go version do you recommend?"})
	if err != nil {
		t.Fatal(err)
	}

	if second.Session.ParentID != first.Session.VersionID {
		t.Errorf("parent: got %q, want %q", second.Session.ParentID, first.Session.VersionID)
	}
	loaded, err := h.store.Load(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Turn != 2 {
		t.Errorf("turn: got %d, want 2", loaded.Turn)
	}
	if len(loaded.History) != 4 {
		t.Fatalf("history: got %d messages, want 4", len(loaded.History))
	}
	if loaded.History[0].Role != playbook.RoleUser || loaded.History[1].Role != playbook.RoleAssistant {
		t.Errorf("history roles: %q, %q", loaded.History[0].Role, loaded.History[1].Role)
	}
	if loaded.Voice != second.Voice || loaded.Phase != second.Phase {
		t.Errorf("session voice/phase: got %s/%s, want %s/%s", loaded.Voice, loaded.Phase, second.Voice, second.Phase)
	}
	if loaded.Metrics != second.Metrics {
		t.Errorf("committed metrics differ from the plan")
	}

	turns, err := logging.LoadTurns(ctx, h.store.DB(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Fatalf("turn_log: got %d records, want 2", len(turns))
	}
	if turns[1].Previous != upgradeQuestion {
		t.Errorf("previous: got %q", turns[1].Previous)
	}
	if turns[0].Response != upgradeReply || turns[0].Voice != string(first.Voice) {
		t.Errorf("record does not match the turn: %+v", turns[0])
	}

	recs, err := h.mem.Recent(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Errorf("outcomes: got %d, want 2", len(recs))
	}
}

func TestTurnRetriesDeflection(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"How can I help you today?", upgradeReply}}
	h := newHarness(t, DefaultConfig(), gen)

	res, err := h.orch.Turn(context.Background(), Request{SessionID: "s1", Text: upgradeQuestion})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Attempts) != 2 {
		t.Fatalf("attempts: got %d, want 2", len(res.Attempts))
	}
	if res.Attempts[0].Failure != FailureDeflection {
		t.Errorf("first failure: got %q", res.Attempts[0].Failure)
	}
	if res.Accepted != 1 || res.Response != upgradeReply {
		t.Errorf("expected the second attempt to be accepted, got %d", res.Accepted)
	}
	if !strings.HasPrefix(gen.calls[1].Prompt, Strategies[StrategyDirect].PromptModifier) {
		t.Errorf("retry prompt: got %q", gen.calls[1].Prompt)
	}

	recs, err := h.mem.Recent(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || !recs[0].Accepted || recs[1].Accepted {
		t.Errorf("outcome rows: %+v", recs)
	}
}

func TestTurnStopsAfterMaxRetries(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"How can I help you today?"}}
	h := newHarness(t, DefaultConfig(), gen)

	res, err := h.orch.Turn(context.Background(), Request{SessionID: "s1", Text: upgradeQuestion})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Attempts) != DefaultMaxRetries+1 {
		t.Fatalf("attempts: got %d, want %d", len(res.Attempts), DefaultMaxRetries+1)
	}
	seen := map[StrategyID]bool{}
	for _, a := range res.Attempts {
		if seen[a.Strategy] {
			t.Errorf("strategy %q used twice", a.Strategy)
		}
		seen[a.Strategy] = true
	}
}

func TestTurnKillSwitchSkipsRetries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	gen := &scriptedGenerator{replies: []string{"How can I help you today?", upgradeReply}}
	h := newHarness(t, cfg, gen)

	res, err := h.orch.Turn(context.Background(), Request{SessionID: "s1", Text: upgradeQuestion})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Attempts) != 1 {
		t.Fatalf("attempts: got %d, want 1", len(res.Attempts))
	}
	if res.Attempts[0].Strategy != StrategyDefault {
		t.Errorf("strategy: got %q", res.Attempts[0].Strategy)
	}
	// still classified and audited
	if firstIndex(h.orch.Log().Entries(), ofType(audit.VoiceSelection)) < 0 {
		t.Error("voice selection must be audited when disabled")
	}
}

func TestTurnGenerationFailure(t *testing.T) {
	boom := errors.New("model offline")

	t.Run("fallback", func(t *testing.T) {
		h := newHarness(t, DefaultConfig(), &scriptedGenerator{err: boom})
		res, err := h.orch.Turn(context.Background(), Request{SessionID: "s1", Text: upgradeQuestion})
		if err != nil {
			t.Fatal(err)
		}
		for i, a := range res.Attempts {
			if !a.Fallback {
				t.Errorf("attempt %d not marked as fallback", i)
			}
		}
		if !signature.Validate(res.Response).Valid() {
			t.Errorf("fallback response must still carry a signature")
		}
		if firstIndex(h.orch.Log().Entries(), byActor(audit.SystemEvent, "generator")) < 0 {
			t.Error("expected a generator system_event")
		}
	})

	t.Run("propagate", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.FallbackOnError = false
		h := newHarness(t, cfg, &scriptedGenerator{err: boom})
		_, err := h.orch.Turn(context.Background(), Request{SessionID: "s1", Text: upgradeQuestion})
		if !errors.Is(err, boom) {
			t.Fatalf("expected the generator error, got %v", err)
		}
		if _, err := h.store.Load(context.Background(), "s1"); !errors.Is(err, state.ErrNotFound) {
			t.Errorf("a failed turn must not persist, got %v", err)
		}
	})
}

func TestTurnCrisisGuard(t *testing.T) {
	h := newHarness(t, DefaultConfig(), &scriptedGenerator{replies: []string{upgradeReply}})

	res, err := h.orch.Turn(context.Background(), Request{SessionID: "s1", Text: "I want to end it all and I can't breathe"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Playbook.Playbook != playbook.Crisis {
		t.Fatalf("playbook: got %s, want crisis", res.Playbook.Playbook)
	}
	if !contains(playbook.ConfigFor(playbook.Crisis).RequiredVoices, res.Voice) {
		t.Fatalf("crisis voice %s not in the required set", res.Voice)
	}
	if res.Guarded {
		if res.Voice != voice.Anhantra {
			t.Errorf("guarded voice: got %s, want ANHANTRA", res.Voice)
		}
		i := firstIndex(h.orch.Log().Entries(), ofType(audit.VoiceSelection))
		if h.orch.Log().Entries()[i].Severity != audit.Warning {
			t.Error("guarded selection must be a warning")
		}
	}
}

func TestTurnRitualForcesNextVoice(t *testing.T) {
	h := newHarness(t, DefaultConfig(), &scriptedGenerator{replies: []string{upgradeReply}})
	ctx := context.Background()

	first, err := h.orch.Turn(ctx, Request{SessionID: "s1", Text: upgradeQuestion, Ritual: ritual.Watch})
	if err != nil {
		t.Fatal(err)
	}
	if first.Ritual == nil || first.Ritual.Ritual != ritual.Watch {
		t.Fatalf("ritual: got %+v", first.Ritual)
	}
	if first.Session.ForcedVoice != voice.Sam {
		t.Fatalf("forced voice: got %q, want SAM", first.Session.ForcedVoice)
	}

	second, err := h.orch.Turn(ctx, Request{SessionID: "s1", Text: "Which Go version should I pick?"})
	if err != nil {
		t.Fatal(err)
	}
	if !second.Selection.Forced || second.Voice != voice.Sam {
		t.Errorf("second turn: forced=%v voice=%s", second.Selection.Forced, second.Voice)
	}
	if second.Session.ForcedVoice != "" {
		t.Errorf("forced voice must be consumed, got %q", second.Session.ForcedVoice)
	}

	_, err = h.orch.Turn(ctx, Request{SessionID: "s1", Text: "ok", Ritual: "levitate"})
	if !errors.Is(err, ritual.ErrUnknownRitual) {
		t.Errorf("unknown ritual: got %v", err)
	}
}

func TestTurnSeedPolicy(t *testing.T) {
	bad := state.NewSession("s1")
	bad.Metrics = metrics.Neutral()
	bad.Metrics.Pain = 1.7

	t.Run("clamp", func(t *testing.T) {
		h := newHarness(t, DefaultConfig(), &scriptedGenerator{replies: []string{upgradeReply}})
		if _, err := h.store.Save(context.Background(), bad); err != nil {
			t.Fatal(err)
		}
		res, err := h.orch.Turn(context.Background(), Request{SessionID: "s1", Text: upgradeQuestion})
		if err != nil {
			t.Fatal(err)
		}
		if res.Gate.Action != "clamp" || res.Before.Pain != 1 {
			t.Errorf("seed: action %q pain %.2f", res.Gate.Action, res.Before.Pain)
		}
		i := firstIndex(h.orch.Log().Entries(), byActor(audit.SystemEvent, "gate"))
		if i < 0 || h.orch.Log().Entries()[i].Severity != audit.Warning {
			t.Error("expected a gate warning")
		}
	})

	t.Run("reject", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Arbiter.Gate.Policy = gate.PolicyReject
		h := newHarness(t, cfg, &scriptedGenerator{replies: []string{upgradeReply}})
		if _, err := h.store.Save(context.Background(), bad); err != nil {
			t.Fatal(err)
		}
		_, err := h.orch.Turn(context.Background(), Request{SessionID: "s1", Text: upgradeQuestion})
		if !errors.Is(err, gate.ErrOutOfDomain) {
			t.Fatalf("expected ErrOutOfDomain, got %v", err)
		}
	})
}

func TestTurnSerializesPerSession(t *testing.T) {
	h := newHarness(t, DefaultConfig(), &scriptedGenerator{replies: []string{upgradeReply}})
	ctx := context.Background()

	const perSession = 4
	var wg sync.WaitGroup
	errs := make(chan error, 3*perSession)
	for _, id := range []string{"a", "b", "c"} {
		for i := 0; i < perSession; i++ {
			wg.Add(1)
			go func(id string, i int) {
				defer wg.Done()
				if _, err := h.orch.Turn(ctx, Request{SessionID: id, Text: fmt.Sprintf("question %d about go modules", i)}); err != nil {
					errs <- err
				}
			}(id, i)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	for _, id := range []string{"a", "b", "c"} {
		sess, err := h.store.Load(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if sess.Turn != perSession {
			t.Errorf("session %s: turn %d, want %d", id, sess.Turn, perSession)
		}
	}
}
