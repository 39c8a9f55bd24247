package ritual

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/arbiter/internal/audit"
	"github.com/danielpatrickdp/arbiter/internal/metrics"
	"github.com/danielpatrickdp/arbiter/internal/phase"
	"github.com/danielpatrickdp/arbiter/internal/voice"
)

func TestCheckPriority(t *testing.T) {
	mc := NewMachine(DefaultMachineConfig())

	cases := []struct {
		name   string
		mutate func(*metrics.Snapshot)
		want   Name
		fired  bool
	}{
		{"neutral", func(*metrics.Snapshot) {}, "", false},
		{"chaos resets", func(m *metrics.Snapshot) { m.Chaos = 0.85 }, Phoenix, true},
		{"chaos beats drift", func(m *metrics.Snapshot) { m.Chaos = 0.9; m.Drift = 0.9 }, Phoenix, true},
		{"drift with low trust resets", func(m *metrics.Snapshot) { m.Drift = 0.7; m.Trust = 0.4 }, Phoenix, true},
		{"drift alone below shatter", func(m *metrics.Snapshot) { m.Drift = 0.7 }, "", false},
		{"high drift shatters", func(m *metrics.Snapshot) { m.Drift = 0.85 }, Shatter, true},
		{"three stressed metrics", func(m *metrics.Snapshot) { m.Pain = 0.6; m.Clarity = 0.4; m.Trust = 0.4 }, Council, true},
		{"two stressed metrics", func(m *metrics.Snapshot) { m.Pain = 0.7; m.Clarity = 0.3 }, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := metrics.Neutral()
			tc.mutate(&m)
			r, ok := mc.Check(m)
			assert.Equal(t, tc.fired, ok)
			assert.Equal(t, tc.want, r.Name)
		})
	}
}

func TestShatterClamps(t *testing.T) {
	mc := NewMachine(DefaultMachineConfig())
	r, err := Get(Shatter)
	require.NoError(t, err)

	in := metrics.Neutral()
	in.Clarity = 0.8
	in.Chaos = 0.6
	in.Pain = 0.75
	in.Drift = 0.9
	in.Trust = 0.42
	out := mc.Execute(r, in, nil).After

	assert.InDelta(t, 0.5, out.Clarity, 1e-9)
	assert.InDelta(t, 0.7, out.Chaos, 1e-9)
	assert.InDelta(t, 0.8, out.Pain, 1e-9)
	assert.Zero(t, out.Drift)
	assert.Equal(t, 0.42, out.Trust)
	assert.Equal(t, in.Rhythm, out.Rhythm)

	in.Clarity = 0.2
	in.Chaos = 0.1
	out = mc.Execute(r, in, nil).After
	assert.InDelta(t, 0.3, out.Clarity, 1e-9)
	assert.InDelta(t, 0.3, out.Chaos, 1e-9)
}

func TestPhoenixIsConstant(t *testing.T) {
	mc := NewMachine(DefaultMachineConfig())
	r, _ := Get(Phoenix)

	a := metrics.Snapshot{Chaos: 1, Drift: 1, Rhythm: 3}
	b := metrics.Snapshot{Trust: 1, Clarity: 1, Rhythm: 99}
	ra := mc.Execute(r, a, nil)
	rb := mc.Execute(r, b, nil)

	if diff := cmp.Diff(ra.After, rb.After); diff != "" {
		t.Fatalf("phoenix output depends on input (-a +b):\n%s", diff)
	}
	assert.Equal(t, metrics.Neutral(), ra.After)
	assert.Equal(t, phase.Clarity, ra.Phase)
	assert.Equal(t, voice.Iskra, ra.ForcedVoice)
}

func TestExecuteRecordsAudit(t *testing.T) {
	mc := NewMachine(DefaultMachineConfig())
	log := audit.NewLog(audit.DefaultLogConfig())

	before := metrics.Neutral()
	before.Chaos = 0.9
	r, ok := mc.Check(before)
	require.True(t, ok)
	mc.Execute(r, before, log)

	council, _ := Get(Council)
	res := mc.Execute(council, before, log)
	assert.Equal(t, voice.Order, res.Panel)
	assert.Empty(t, res.ForcedVoice)

	entries := log.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, audit.RitualExecution, entries[0].Type)
	assert.Equal(t, audit.Warning, entries[0].Severity)
	assert.Equal(t, "phoenix", entries[0].Details[audit.DetailRitual])
	require.NotNil(t, entries[0].Delta)
	assert.Equal(t, before, entries[0].Delta.Before)
	assert.Equal(t, metrics.Neutral(), entries[0].Delta.After)
	assert.Equal(t, audit.Info, entries[1].Severity)
}

func TestInvoke(t *testing.T) {
	mc := NewMachine(DefaultMachineConfig())

	res, err := mc.Invoke(Anchor, metrics.Neutral(), nil)
	require.NoError(t, err)
	assert.Equal(t, voice.Anhantra, res.ForcedVoice)
	assert.InDelta(t, 0.0, res.After.Drift, 1e-9)
	assert.InDelta(t, 0.85, res.After.Trust, 1e-9)

	_, err = mc.Invoke("summon", metrics.Neutral(), nil)
	assert.True(t, errors.Is(err, ErrUnknownRitual))
}

func TestNamesResolve(t *testing.T) {
	for _, n := range Names() {
		r, err := Get(n)
		require.NoError(t, err, n)
		assert.Equal(t, n, r.Name)
		assert.NotEmpty(t, r.Description)
	}
}

func TestTransformsStayInDomain(t *testing.T) {
	mc := NewMachine(DefaultMachineConfig())
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("every ritual output validates", prop.ForAll(
		func(vals []float64, rhythm float64) bool {
			m := metrics.Snapshot{
				Trust: vals[0], Clarity: vals[1], Pain: vals[2], Drift: vals[3], Chaos: vals[4],
				Echo: vals[5], SilenceMass: vals[6], MirrorSync: vals[7], Interrupt: vals[8],
				CtxSwitch: vals[9], Rhythm: rhythm,
			}
			for _, n := range Names() {
				res, err := mc.Invoke(n, m, nil)
				if err != nil || res.After.Validate() != nil {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(10, gen.Float64Range(0, 1)),
		gen.Float64Range(0, metrics.RhythmMax),
	))

	properties.TestingRun(t)
}
