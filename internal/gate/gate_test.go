package gate

import (
	"errors"
	"math"
	"testing"

	"github.com/danielpatrickdp/arbiter/internal/metrics"
	"github.com/danielpatrickdp/arbiter/internal/update"
)

func TestCheckAcceptsNeutral(t *testing.T) {
	if err := Check(metrics.Neutral()); err != nil {
		t.Fatalf("neutral should be in domain: %v", err)
	}
}

func TestCheckRejectsOutOfDomain(t *testing.T) {
	cases := map[string]func(*metrics.Snapshot){
		"nan":          func(m *metrics.Snapshot) { m.Trust = math.NaN() },
		"inf":          func(m *metrics.Snapshot) { m.Chaos = math.Inf(1) },
		"negative":     func(m *metrics.Snapshot) { m.Pain = -0.1 },
		"over one":     func(m *metrics.Snapshot) { m.Drift = 1.2 },
		"rhythm range": func(m *metrics.Snapshot) { m.Rhythm = 101 },
	}
	for name, mutate := range cases {
		m := metrics.Neutral()
		mutate(&m)
		err := Check(m)
		if !errors.Is(err, ErrOutOfDomain) {
			t.Errorf("%s: expected ErrOutOfDomain, got %v", name, err)
		}
	}
}

func TestAdmitClampPolicy(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	m := metrics.Neutral()
	m.Pain = 1.4
	m.Trust = math.NaN()

	decision, err := g.Admit(m)

	if err != nil {
		t.Fatalf("clamp policy should not error: %v", err)
	}
	if decision.Action != "clamp" {
		t.Fatalf("expected clamp, got %s", decision.Action)
	}
	if decision.Snapshot.Pain != 1 || decision.Snapshot.Trust != metrics.Neutral().Trust {
		t.Fatalf("unexpected clamped snapshot: %+v", decision.Snapshot)
	}
	if len(decision.VetoSignals) != 1 || decision.VetoSignals[0].Type != VetoOutOfDomain {
		t.Fatalf("expected one out_of_domain signal, got %v", decision.VetoSignals)
	}
}

func TestAdmitRejectPolicy(t *testing.T) {
	g := NewGate(GateConfig{Policy: PolicyReject, MaxDelta: 0.15})
	m := metrics.Neutral()
	m.Echo = -1

	decision, err := g.Admit(m)

	if !errors.Is(err, ErrOutOfDomain) {
		t.Fatalf("expected ErrOutOfDomain, got %v", err)
	}
	if decision.Action != "reject" || !decision.Vetoed {
		t.Fatalf("expected vetoed reject, got %s", decision.Action)
	}
}

func TestAdmitInDomain(t *testing.T) {
	g := NewGate(GateConfig{Policy: PolicyReject})
	decision, err := g.Admit(metrics.Neutral())
	if err != nil || decision.Action != "commit" {
		t.Fatalf("expected commit, got %s (%v)", decision.Action, err)
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": PolicyClamp, "clamp": PolicyClamp, "reject": PolicyReject} {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("ignore"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestGateCommitOnBoundedUpdate(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	old := metrics.Neutral()
	res := update.Update(old, update.UpdateContext{}, update.Signals{Distress: 1}, update.DefaultUpdateConfig())

	decision := g.Evaluate(old, res.Snapshot, res.Metrics)

	if decision.Action != "commit" {
		t.Fatalf("expected commit, got %s: %s", decision.Action, decision.Reason)
	}
	if decision.SoftScore <= 0 || decision.SoftScore > 1 {
		t.Fatalf("soft score out of range: %f", decision.SoftScore)
	}
}

func TestGateRejectOnLargeJump(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	old := metrics.Neutral()
	proposed := old
	proposed.Pain = 0.9

	decision := g.Evaluate(old, proposed, update.Metrics{MaxDelta: 0.8})

	if decision.Action != "reject" {
		t.Fatalf("expected reject, got %s", decision.Action)
	}
	if decision.VetoSignals[0].Type != VetoDeltaBound {
		t.Fatalf("expected delta_bound veto, got %s", decision.VetoSignals[0].Type)
	}
	if decision.Snapshot != old {
		t.Fatal("rejected update must keep the old snapshot")
	}
}

func TestGateNoChangeScoresFull(t *testing.T) {
	g := NewGate(DefaultGateConfig())
	old := metrics.Neutral()

	decision := g.Evaluate(old, old, update.Metrics{})

	if decision.SoftScore != 1 {
		t.Fatalf("expected soft score 1, got %f", decision.SoftScore)
	}
}
