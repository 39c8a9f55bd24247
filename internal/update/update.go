package update

import (
	"fmt"
	"math"
	"time"

	"github.com/danielpatrickdp/arbiter/internal/metrics"
)

// #region update-function
// Update is a pure function that computes the next snapshot from the current one and
// this turn's signals. Driven fields move by a bounded delta; undriven fields decay
// toward the neutral baseline.
func Update(old metrics.Snapshot, ctx UpdateContext, sig Signals, config UpdateConfig) UpdateResult {
	start := time.Now()

	crisis := 0.0
	if sig.Crisis {
		crisis = 1
	}

	// Raw drive per field; zero means undriven.
	drive := map[string]float64{
		"pain":         0.15*sig.Distress + 0.15*crisis,
		"clarity":      -0.1*sig.Distress - 0.1*sig.TopicShift + 0.05*sig.Rapport,
		"trust":        0.1*sig.Rapport - 0.05*sig.Interrupt,
		"mirror_sync":  0.1*sig.Rapport - 0.1*sig.TopicShift,
		"echo":         0.15 * sig.Repetition,
		"ctx_switch":   0.15 * sig.TopicShift,
		"drift":        0.1 * sig.TopicShift,
		"interrupt":    0.15 * sig.Interrupt,
		"silence_mass": 0.15 * sig.Brevity,
		"chaos":        0.05*sig.Distress + 0.05*sig.Interrupt + 0.05*sig.TopicShift + 0.1*crisis,
	}
	if sig.LengthStability > 0 {
		drive["rhythm"] = config.RhythmGain * (sig.LengthStability - 0.5) * 2
	}

	neutral := metrics.Neutral().Map()
	next := make(map[string]float64, len(neutral))
	var hit []string

	for _, f := range old.Fields() {
		d := drive[f.Name]
		if d == 0 && config.DecayRate > 0 {
			d = (neutral[f.Name] - f.Value) * config.DecayRate
		} else if d != 0 {
			hit = append(hit, f.Name)
		}

		bound := config.MaxDelta * f.Max
		d = math.Max(-bound, math.Min(bound, d))
		next[f.Name] = f.Value + d
	}

	snap := fromMap(next).Clamp()
	deltas := metrics.Diff(old, snap)
	maxDelta := metrics.MaxAbsDelta(old, snap)

	decision := Decision{Action: "no_op", Reason: "no metric change"}
	if maxDelta > 0 {
		decision = Decision{
			Action: "commit",
			Reason: fmt.Sprintf("turn %s: fields driven: %v, max delta: %.4f", ctx.TurnID, hit, maxDelta),
		}
	}

	return UpdateResult{
		Snapshot: snap,
		Decision: decision,
		Metrics: Metrics{
			MaxDelta:     maxDelta,
			FieldsHit:    hit,
			Deltas:       deltas,
			UpdateTimeMs: time.Since(start).Milliseconds(),
		},
	}
}

// #endregion update-function

// #region helpers
func fromMap(m map[string]float64) metrics.Snapshot {
	return metrics.Snapshot{
		Trust:       m["trust"],
		Clarity:     m["clarity"],
		Pain:        m["pain"],
		Drift:       m["drift"],
		Chaos:       m["chaos"],
		Echo:        m["echo"],
		SilenceMass: m["silence_mass"],
		MirrorSync:  m["mirror_sync"],
		Interrupt:   m["interrupt"],
		CtxSwitch:   m["ctx_switch"],
		Rhythm:      m["rhythm"],
	}
}

// #endregion helpers
