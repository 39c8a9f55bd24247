package metrics

import (
	"fmt"
	"math"
)

// #region snapshot
// Snapshot is the per-session affect state. Unit fields live in [0,1],
// Rhythm lives in [0,100].
type Snapshot struct {
	Trust       float64 `json:"trust" yaml:"trust"`
	Clarity     float64 `json:"clarity" yaml:"clarity"`
	Pain        float64 `json:"pain" yaml:"pain"`
	Drift       float64 `json:"drift" yaml:"drift"`
	Chaos       float64 `json:"chaos" yaml:"chaos"`
	Echo        float64 `json:"echo" yaml:"echo"`
	SilenceMass float64 `json:"silence_mass" yaml:"silence_mass"`
	MirrorSync  float64 `json:"mirror_sync" yaml:"mirror_sync"`
	Interrupt   float64 `json:"interrupt" yaml:"interrupt"`
	CtxSwitch   float64 `json:"ctx_switch" yaml:"ctx_switch"`
	Rhythm      float64 `json:"rhythm" yaml:"rhythm"`
}

// RhythmMax is the upper bound of the rhythm domain.
const RhythmMax = 100.0

// Neutral returns the fixed baseline used for new sessions and full resets.
func Neutral() Snapshot {
	return Snapshot{
		Trust:       0.7,
		Clarity:     0.7,
		Pain:        0.1,
		Drift:       0.1,
		Chaos:       0.3,
		Echo:        0.3,
		SilenceMass: 0.1,
		MirrorSync:  0.7,
		Interrupt:   0.1,
		CtxSwitch:   0.1,
		Rhythm:      50,
	}
}

// #endregion snapshot

// #region fields
// Field is a named reading from a snapshot.
type Field struct {
	Name  string
	Value float64
	Max   float64
}

// Fields returns every field in declaration order.
func (s Snapshot) Fields() []Field {
	return []Field{
		{"trust", s.Trust, 1},
		{"clarity", s.Clarity, 1},
		{"pain", s.Pain, 1},
		{"drift", s.Drift, 1},
		{"chaos", s.Chaos, 1},
		{"echo", s.Echo, 1},
		{"silence_mass", s.SilenceMass, 1},
		{"mirror_sync", s.MirrorSync, 1},
		{"interrupt", s.Interrupt, 1},
		{"ctx_switch", s.CtxSwitch, 1},
		{"rhythm", s.Rhythm, RhythmMax},
	}
}

// Map returns the snapshot as a name→value map, used for audit details and CEL input.
func (s Snapshot) Map() map[string]float64 {
	out := make(map[string]float64, 11)
	for _, f := range s.Fields() {
		out[f.Name] = f.Value
	}
	return out
}

// pointers returns addressable fields in the same order as Fields.
func (s *Snapshot) pointers() []*float64 {
	return []*float64{
		&s.Trust, &s.Clarity, &s.Pain, &s.Drift, &s.Chaos, &s.Echo,
		&s.SilenceMass, &s.MirrorSync, &s.Interrupt, &s.CtxSwitch, &s.Rhythm,
	}
}

// #endregion fields

// #region clamp
// Clamp returns a copy with every field forced into its domain.
// NaN is replaced by the neutral value for that field.
func (s Snapshot) Clamp() Snapshot {
	out := s
	neutral := Neutral()
	ptrs := out.pointers()
	base := neutral.pointers()
	for i, f := range s.Fields() {
		v := f.Value
		if math.IsNaN(v) {
			v = *base[i]
		}
		*ptrs[i] = clampRange(v, 0, f.Max)
	}
	return out
}

// Validate reports the first field outside its domain.
func (s Snapshot) Validate() error {
	for _, f := range s.Fields() {
		if math.IsNaN(f.Value) || math.IsInf(f.Value, 0) {
			return fmt.Errorf("%s is not a finite number", f.Name)
		}
		if f.Value < 0 || f.Value > f.Max {
			return fmt.Errorf("%s=%.4f outside [0,%g]", f.Name, f.Value, f.Max)
		}
	}
	return nil
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp01 clamps v into [0,1].
func Clamp01(v float64) float64 {
	return clampRange(v, 0, 1)
}

// #endregion clamp

// #region diff
// Delta is a per-field change between two snapshots.
type Delta struct {
	Name   string  `json:"name"`
	Before float64 `json:"before"`
	After  float64 `json:"after"`
}

// Change returns After - Before.
func (d Delta) Change() float64 {
	return d.After - d.Before
}

// Diff returns the fields that differ between a and b.
func Diff(a, b Snapshot) []Delta {
	af := a.Fields()
	bf := b.Fields()
	var out []Delta
	for i := range af {
		if af[i].Value != bf[i].Value {
			out = append(out, Delta{Name: af[i].Name, Before: af[i].Value, After: bf[i].Value})
		}
	}
	return out
}

// MaxAbsDelta returns the largest unit-scaled absolute change between a and b.
// Rhythm is divided by RhythmMax before comparison.
func MaxAbsDelta(a, b Snapshot) float64 {
	af := a.Fields()
	bf := b.Fields()
	var max float64
	for i := range af {
		d := math.Abs(bf[i].Value-af[i].Value) / af[i].Max
		if d > max {
			max = d
		}
	}
	return max
}

// #endregion diff
