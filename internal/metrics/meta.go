package metrics

// #region meta
// Meta holds composites derived from a snapshot. It has no state of its own.
type Meta struct {
	Integrity    float64 `json:"integrity"`
	Resonance    float64 `json:"resonance"`
	Fractality   float64 `json:"fractality"`
	AIndex       float64 `json:"a_index"`
	Truthfulness float64 `json:"truthfulness"`
	Groundedness float64 `json:"groundedness"`
	Resolution   float64 `json:"resolution"`
	Civility     float64 `json:"civility"`
	CDIndex      float64 `json:"cd_index"`
}

// Composite-desiderata weights.
const (
	cdTruthfulness = 0.30
	cdGroundedness = 0.25
	cdResolution   = 0.25
	cdCivility     = 0.20
)

// ComputeMeta derives every composite from s.
func ComputeMeta(s Snapshot) Meta {
	integrity := (s.Trust + s.Clarity + (1 - s.Drift)) / 3
	resonance := (s.MirrorSync + (1 - s.Echo) + (1 - s.Chaos)) / 3

	truth := 1 - s.Drift
	grounded := (s.Clarity + (1 - s.Chaos)) / 2
	resolution := (s.Clarity + (1 - s.CtxSwitch)) / 2
	civility := (s.Trust + (1 - s.Pain*0.5)) / 2

	return Meta{
		Integrity:  integrity,
		Resonance:  resonance,
		Fractality: integrity * resonance * 2.0,
		AIndex: 0.25*s.Trust + 0.20*s.Clarity + 0.15*(1-s.Pain) +
			0.15*(1-s.Drift) + 0.10*(1-s.Chaos) + 0.15*s.MirrorSync,
		Truthfulness: truth,
		Groundedness: grounded,
		Resolution:   resolution,
		Civility:     civility,
		CDIndex: cdTruthfulness*truth + cdGroundedness*grounded +
			cdResolution*resolution + cdCivility*civility,
	}
}

// #endregion meta
