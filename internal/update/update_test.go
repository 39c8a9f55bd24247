package update

import (
	"math"
	"math/rand"
	"testing"

	"github.com/danielpatrickdp/arbiter/internal/metrics"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestUpdateNoOp(t *testing.T) {
	old := metrics.Neutral()

	result := Update(old, UpdateContext{TurnID: "turn-1", Text: "hello"}, Signals{}, DefaultUpdateConfig())

	if result.Decision.Action != "no_op" {
		t.Fatalf("expected no_op, got %s", result.Decision.Action)
	}
	if result.Snapshot != old {
		t.Fatalf("snapshot changed: %+v", result.Snapshot)
	}
	if result.Metrics.MaxDelta != 0 || len(result.Metrics.Deltas) != 0 {
		t.Fatalf("expected zero delta, got %f (%d fields)", result.Metrics.MaxDelta, len(result.Metrics.Deltas))
	}
}

func TestUpdateDeterministic(t *testing.T) {
	old := metrics.Neutral()
	sig := Signals{Distress: 0.4, Rapport: 0.5, TopicShift: 0.2, LengthStability: 0.8}

	r1 := Update(old, UpdateContext{TurnID: "turn-1"}, sig, DefaultUpdateConfig())
	r2 := Update(old, UpdateContext{TurnID: "turn-1"}, sig, DefaultUpdateConfig())

	if r1.Snapshot != r2.Snapshot {
		t.Fatalf("non-deterministic update: %+v vs %+v", r1.Snapshot, r2.Snapshot)
	}
	if r1.Decision != r2.Decision {
		t.Fatalf("non-deterministic decision: %v vs %v", r1.Decision, r2.Decision)
	}
}

func TestUpdateDistress(t *testing.T) {
	old := metrics.Neutral()

	result := Update(old, UpdateContext{}, Signals{Distress: 1}, DefaultUpdateConfig())

	if result.Decision.Action != "commit" {
		t.Fatalf("expected commit, got %s", result.Decision.Action)
	}
	if !near(result.Snapshot.Pain, 0.25) {
		t.Fatalf("expected pain 0.25, got %f", result.Snapshot.Pain)
	}
	if !near(result.Snapshot.Clarity, 0.6) {
		t.Fatalf("expected clarity 0.6, got %f", result.Snapshot.Clarity)
	}
}

func TestUpdateBoundsDelta(t *testing.T) {
	old := metrics.Neutral()

	// crisis plus full distress drives pain by 0.3, bounded to 0.15
	result := Update(old, UpdateContext{}, Signals{Distress: 1, Crisis: true}, DefaultUpdateConfig())

	if !near(result.Snapshot.Pain, 0.25) {
		t.Fatalf("expected bounded pain 0.25, got %f", result.Snapshot.Pain)
	}
	if !near(result.Snapshot.Chaos, 0.45) {
		t.Fatalf("expected chaos 0.45, got %f", result.Snapshot.Chaos)
	}
}

func TestUpdateDecaysTowardNeutral(t *testing.T) {
	old := metrics.Neutral()
	old.Pain = 0.9
	old.Echo = 0.1

	result := Update(old, UpdateContext{}, Signals{}, DefaultUpdateConfig())

	if !near(result.Snapshot.Pain, 0.82) {
		t.Fatalf("expected pain to decay to 0.82, got %f", result.Snapshot.Pain)
	}
	if !near(result.Snapshot.Echo, 0.12) {
		t.Fatalf("expected echo to rise to 0.12, got %f", result.Snapshot.Echo)
	}
}

func TestUpdateClampsToDomain(t *testing.T) {
	old := metrics.Neutral()
	old.Pain = 1

	result := Update(old, UpdateContext{}, Signals{Distress: 1}, DefaultUpdateConfig())

	if result.Snapshot.Pain != 1 {
		t.Fatalf("expected pain clamped at 1, got %f", result.Snapshot.Pain)
	}
}

func TestUpdateRhythmScaledBound(t *testing.T) {
	old := metrics.Neutral()

	result := Update(old, UpdateContext{}, Signals{LengthStability: 1}, UpdateConfig{MaxDelta: 0.15, RhythmGain: 30})

	if !near(result.Snapshot.Rhythm, 65) {
		t.Fatalf("expected rhythm 65, got %f", result.Snapshot.Rhythm)
	}
}

func TestUpdateNeverExceedsBound(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	config := DefaultUpdateConfig()

	for i := 0; i < 500; i++ {
		old := metrics.Snapshot{
			Trust: rng.Float64(), Clarity: rng.Float64(), Pain: rng.Float64(), Drift: rng.Float64(),
			Chaos: rng.Float64(), Echo: rng.Float64(), SilenceMass: rng.Float64(), MirrorSync: rng.Float64(),
			Interrupt: rng.Float64(), CtxSwitch: rng.Float64(), Rhythm: rng.Float64() * metrics.RhythmMax,
		}
		sig := Signals{
			Distress: rng.Float64(), Rapport: rng.Float64(), Repetition: rng.Float64(),
			TopicShift: rng.Float64(), Interrupt: rng.Float64(), Brevity: rng.Float64(),
			LengthStability: rng.Float64(), Crisis: rng.Intn(2) == 0,
		}

		result := Update(old, UpdateContext{}, sig, config)

		if result.Metrics.MaxDelta > config.MaxDelta+1e-9 {
			t.Fatalf("case %d: delta %f exceeds bound", i, result.Metrics.MaxDelta)
		}
		if err := result.Snapshot.Validate(); err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
	}
}
