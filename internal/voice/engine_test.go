package voice

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/arbiter/internal/metrics"
)

func neutralWith(f func(*metrics.Snapshot)) metrics.Snapshot {
	m := metrics.Neutral()
	f(&m)
	return m
}

func TestSelectHighPainPicksKain(t *testing.T) {
	e := NewEngine(DefaultEngineConfig())
	sel := e.Select(Input{Metrics: neutralWith(func(m *metrics.Snapshot) { m.Pain = 0.8 })})

	assert.Equal(t, Kain, sel.Voice)
	assert.InDelta(t, 2.4, sel.Score, 1e-9)
	assert.Len(t, sel.Candidates, len(Order))
}

func TestSelectNeutralPicksPino(t *testing.T) {
	e := NewEngine(DefaultEngineConfig())
	sel := e.Select(Input{Metrics: metrics.Neutral()})
	assert.Equal(t, Pino, sel.Voice)
}

func TestSelectTable(t *testing.T) {
	cases := []struct {
		name string
		in   metrics.Snapshot
		want ID
	}{
		{"chaos", neutralWith(func(m *metrics.Snapshot) { m.Chaos = 0.9 }), Huyndun},
		{"drift", neutralWith(func(m *metrics.Snapshot) { m.Drift = 0.6 }), Iskriv},
		{"low clarity", neutralWith(func(m *metrics.Snapshot) { m.Clarity = 0.1; m.Pain = 0.35; m.Trust = 0.9 }), Sam},
		{"withdrawn", neutralWith(func(m *metrics.Snapshot) { m.Trust = 0.1; m.SilenceMass = 0.8; m.Pain = 0.3 }), Anhantra},
		{"integration", neutralWith(func(m *metrics.Snapshot) { m.Trust = 0.95; m.Pain = 0.31; m.Clarity = 0.9 }), Maki},
		{"sibyl loop", neutralWith(func(m *metrics.Snapshot) { m.Echo = 0.9; m.MirrorSync = 0.1; m.Pain = 0.35 }), Sibyl},
	}
	e := NewEngine(DefaultEngineConfig())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, e.Select(Input{Metrics: tc.in}).Voice)
		})
	}
}

func TestSibylTransitionRule(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.SibylRule = RuleTransition
	e := NewEngine(cfg)

	m := neutralWith(func(m *metrics.Snapshot) { m.CtxSwitch = 0.9; m.Pain = 0.3; m.Trust = 0.9 })
	sel := e.Select(Input{Metrics: m})
	assert.Equal(t, Sibyl, sel.Voice)
	assert.InDelta(t, 0.3+0.9+1.8, sel.Score, 1e-9)

	// echo/mirror conditions do nothing under the transition rule
	loop := neutralWith(func(m *metrics.Snapshot) { m.Echo = 0.9; m.MirrorSync = 0.1; m.Pain = 0.35 })
	assert.NotEqual(t, Sibyl, e.Select(Input{Metrics: loop}).Voice)
}

func TestParseThresholdRule(t *testing.T) {
	r, err := ParseThresholdRule("")
	require.NoError(t, err)
	assert.Equal(t, RuleEchoMirror, r)

	r, err = ParseThresholdRule("transition")
	require.NoError(t, err)
	assert.Equal(t, RuleTransition, r)

	_, err = ParseThresholdRule("coin_flip")
	assert.Error(t, err)
}

func TestPreferenceZeroSuppresses(t *testing.T) {
	e := NewEngine(DefaultEngineConfig())
	m := neutralWith(func(m *metrics.Snapshot) { m.Pain = 0.8 })
	sel := e.Select(Input{Metrics: m, Preferences: map[ID]float64{Kain: 0}})

	assert.NotEqual(t, Kain, sel.Voice)
	for _, c := range sel.Candidates {
		if c.Voice == Kain {
			assert.False(t, c.Eligible)
		}
	}
}

func TestPreferenceMultiplier(t *testing.T) {
	e := NewEngine(DefaultEngineConfig())
	sel := e.Select(Input{Metrics: metrics.Neutral(), Preferences: map[ID]float64{Iskra: 2.0}})
	assert.Equal(t, Iskra, sel.Voice)
	assert.InDelta(t, 2.0, sel.Score, 1e-9)
}

func TestInertiaKeepsCurrentVoice(t *testing.T) {
	e := NewEngine(DefaultEngineConfig())
	// Kain 0.45*3 = 1.35, Anhantra 0.95; Iskra 1.0
	m := neutralWith(func(m *metrics.Snapshot) { m.Pain = 0.45 })

	assert.Equal(t, Kain, e.Select(Input{Metrics: m}).Voice)

	m2 := neutralWith(func(m *metrics.Snapshot) { m.Pain = 0.35; m.Clarity = 0.5 })
	// Kain 1.05, Sam 1.0, Iskra 1.0; Sam with inertia 1.2 beats Kain
	assert.Equal(t, Kain, e.Select(Input{Metrics: m2}).Voice)
	assert.Equal(t, Sam, e.Select(Input{Metrics: m2, Current: Sam}).Voice)
}

func TestForcedBypassesScoring(t *testing.T) {
	e := NewEngine(DefaultEngineConfig())
	sel := e.Select(Input{Metrics: neutralWith(func(m *metrics.Snapshot) { m.Pain = 0.9 }), Forced: Huyndun})
	assert.Equal(t, Huyndun, sel.Voice)
	assert.True(t, sel.Forced)
}

func TestTieResolvesByOrder(t *testing.T) {
	e := NewEngine(DefaultEngineConfig())
	// Kain and Huyndun both score 1.5
	m := neutralWith(func(m *metrics.Snapshot) { m.Pain = 0.5; m.Chaos = 0.5 })
	assert.Equal(t, Kain, e.Select(Input{Metrics: m}).Voice)
}

func TestParse(t *testing.T) {
	for in, want := range map[string]ID{
		"kain": Kain, "HUNDUN": Huyndun, "huyndun": Huyndun, "⟡": Iskra, " sibyl ": Sibyl,
	} {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := Parse("nobody")
	assert.Error(t, err)
}

func TestPersonaCoverage(t *testing.T) {
	for _, id := range Order {
		info, ok := Lookup(id)
		require.True(t, ok, id)
		assert.NotEmpty(t, info.Persona)
		assert.NotEmpty(t, Symbol(id))
	}
	assert.Equal(t, Persona(Iskra), Persona(ID("ghost")))
}

func TestSelectAlwaysReturnsKnownVoice(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)
	e := NewEngine(DefaultEngineConfig())

	properties.Property("winner is a registered voice and never a zero-weight non-default", prop.ForAll(
		func(v []float64, weights []float64) bool {
			m := metrics.Snapshot{
				Trust: v[0], Clarity: v[1], Pain: v[2], Drift: v[3], Chaos: v[4],
				Echo: v[5], SilenceMass: v[6], MirrorSync: v[7], Interrupt: v[8], CtxSwitch: v[9],
				Rhythm: v[10] * 100,
			}
			prefs := make(map[ID]float64, len(Order))
			for i, id := range Order {
				prefs[id] = weights[i]
			}
			sel := e.Select(Input{Metrics: m, Preferences: prefs})
			if _, ok := Lookup(sel.Voice); !ok {
				return false
			}
			return sel.Voice == Iskra || prefs[sel.Voice] > 0
		},
		gen.SliceOfN(11, gen.Float64Range(0, 1)),
		gen.SliceOfN(len(Order), gen.Float64Range(-0.5, 2)),
	))

	properties.TestingRun(t)
}
