package audit

import (
	"fmt"

	"github.com/danielpatrickdp/arbiter/internal/metrics"
	"github.com/danielpatrickdp/arbiter/internal/patterns"
	"github.com/danielpatrickdp/arbiter/internal/voice"
)

// #region drift-types
// DriftLevel is the qualitative drift classification.
type DriftLevel string

const (
	DriftStable   DriftLevel = "stable"
	DriftMild     DriftLevel = "mild"
	DriftModerate DriftLevel = "moderate"
	DriftSevere   DriftLevel = "severe"
)

// Indicator is one triggered drift signal.
type Indicator struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// SycophancyHit is a flattering phrase found in a recent response.
type SycophancyHit struct {
	Index   int    `json:"index"` // position in the recent window
	Pattern string `json:"pattern"`
}

// DriftReport is the outcome of AnalyzeDrift.
type DriftReport struct {
	Level          DriftLevel      `json:"level"`
	Score          int             `json:"score"`
	Indicators     []Indicator     `json:"indicators"`
	Sycophancy     []SycophancyHit `json:"sycophancy"`
	Recommendation string          `json:"recommendation"`
	AffectedVoices []voice.ID      `json:"affected_voices"`
}

// #endregion drift-types

// #region analyze
var recommendations = map[DriftLevel]string{
	DriftStable:   "No action needed.",
	DriftMild:     "Watch the next few turns; favor concrete answers over agreement.",
	DriftModerate: "Re-anchor on the user's actual question and let the conscience voice audit the last replies.",
	DriftSevere:   "Stop and reset: run the anchor or phoenix ritual before continuing.",
}

// AnalyzeDrift inspects m and an optional window of recent response texts.
func AnalyzeDrift(m metrics.Snapshot, recent []string) DriftReport {
	return AnalyzeDriftWith(patterns.Default(), m, recent)
}

// AnalyzeDriftWith is AnalyzeDrift against a specific pattern table.
func AnalyzeDriftWith(tables *patterns.Table, m metrics.Snapshot, recent []string) DriftReport {
	var indicators []Indicator
	affected := make(map[voice.ID]bool)

	check := func(name string, value, threshold float64, above bool, v voice.ID) {
		if (above && value > threshold) || (!above && value < threshold) {
			indicators = append(indicators, Indicator{Name: name, Value: value, Threshold: threshold})
			affected[v] = true
		}
	}
	check("drift_high", m.Drift, 0.3, true, voice.Iskriv)
	check("mirror_sync_low", m.MirrorSync, 0.4, false, voice.Iskra)
	check("echo_high", m.Echo, 0.6, true, voice.Iskriv)
	check("clarity_low", m.Clarity, 0.4, false, voice.Sam)
	check("trust_low", m.Trust, 0.5, false, voice.Anhantra)

	group := tables.Group(patterns.Sycophancy)
	var hits []SycophancyHit
	for i, text := range recent {
		for _, p := range group.Matches(text) {
			hits = append(hits, SycophancyHit{Index: i, Pattern: p})
		}
	}
	if len(hits) > 0 {
		affected[voice.Pino] = true
	}

	score := len(indicators) + (len(hits)+1)/2
	level := DriftSevere
	switch {
	case score == 0:
		level = DriftStable
	case score == 1:
		level = DriftMild
	case score <= 3:
		level = DriftModerate
	}

	var voices []voice.ID
	for _, id := range voice.Order {
		if affected[id] {
			voices = append(voices, id)
		}
	}

	return DriftReport{
		Level:          level,
		Score:          score,
		Indicators:     indicators,
		Sycophancy:     hits,
		Recommendation: recommendations[level],
		AffectedVoices: voices,
	}
}

// String renders a one-line summary.
func (r DriftReport) String() string {
	return fmt.Sprintf("drift=%s score=%d indicators=%d sycophancy=%d", r.Level, r.Score, len(r.Indicators), len(r.Sycophancy))
}

// #endregion analyze
