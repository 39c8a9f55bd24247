package playbook

import (
	"fmt"
	"math"
	"strings"

	"github.com/danielpatrickdp/arbiter/internal/metrics"
	"github.com/danielpatrickdp/arbiter/internal/patterns"
	"github.com/danielpatrickdp/arbiter/internal/voice"
)

// #region classifier-config

// ClassifierConfig holds tuning for playbook classification.
type ClassifierConfig struct {
	Tables           *patterns.Table // nil = patterns.Default()
	HistoryWindow    int             // number of prior user messages that carry over
	ContinuityWeight float64         // weight applied to hits from history
}

// DefaultClassifierConfig returns sensible defaults.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		HistoryWindow:    2,
		ContinuityWeight: 0.5,
	}
}

// #endregion

// #region classifier

// Classifier maps a turn onto a playbook.
type Classifier struct {
	config ClassifierConfig
	tables *patterns.Table
}

// NewClassifier creates a classifier.
func NewClassifier(config ClassifierConfig) *Classifier {
	tables := config.Tables
	if tables == nil {
		tables = patterns.Default()
	}
	return &Classifier{config: config, tables: tables}
}

// scored is the fixed comparison order for non-crisis playbooks.
var scored = []Playbook{FactVerification, EmotionalSupport, Council}

// Classify returns the playbook decision for text. It never fails; contradictory
// signals degrade to Routine with reduced confidence.
func (c *Classifier) Classify(text string, history []Message, m metrics.Snapshot) Classification {
	if matches := c.tables.Group(patterns.Crisis).Matches(text); len(matches) > 0 {
		return Classification{
			Playbook:        Crisis,
			Risk:            RiskCritical,
			Stakes:          StakesHigh,
			SuggestedVoices: suggested(Crisis),
			Confidence:      0.95,
			Reason:          fmt.Sprintf("crisis pattern: %s", matches[0]),
			Hits:            map[string]int{patterns.Crisis: len(matches)},
		}
	}

	hits := map[string]int{
		patterns.Deliberation: c.tables.Group(patterns.Deliberation).Hits(text),
		patterns.Verification: c.tables.Group(patterns.Verification).Hits(text),
		patterns.Distress:     c.tables.Group(patterns.Distress).Hits(text),
	}

	scores := map[Playbook]float64{
		FactVerification: float64(hits[patterns.Verification]),
		EmotionalSupport: float64(hits[patterns.Distress]),
		Council:          float64(hits[patterns.Deliberation]),
	}
	for _, prev := range c.recentUser(history) {
		w := c.config.ContinuityWeight
		scores[FactVerification] += w * float64(c.tables.Group(patterns.Verification).Hits(prev.Text))
		scores[EmotionalSupport] += w * float64(c.tables.Group(patterns.Distress).Hits(prev.Text))
		scores[Council] += w * float64(c.tables.Group(patterns.Deliberation).Hits(prev.Text))
	}

	riskSignals := metricRiskSignals(m)
	if hits[patterns.Distress] > 0 && m.Pain > 0.7 {
		scores[EmotionalSupport]++
	}

	risk := RiskLow
	switch {
	case len(riskSignals) >= 2:
		risk = RiskHigh
	case len(riskSignals) == 1:
		risk = RiskMedium
	}

	totalHits := hits[patterns.Deliberation] + hits[patterns.Verification] + hits[patterns.Distress]
	stakes := StakesLow
	switch {
	case hits[patterns.Deliberation] >= 2 || risk == RiskHigh:
		stakes = StakesHigh
	case totalHits > 0 || len(riskSignals) > 0:
		stakes = StakesMedium
	}

	pb, confidence, reason := pick(scores)
	return Classification{
		Playbook:        pb,
		Risk:            risk,
		Stakes:          stakes,
		SuggestedVoices: suggested(pb),
		Confidence:      confidence,
		Reason:          reason,
		Hits:            hits,
		RiskSignals:     riskSignals,
	}
}

// #endregion

// #region helpers

func (c *Classifier) recentUser(history []Message) []Message {
	var out []Message
	for i := len(history) - 1; i >= 0 && len(out) < c.config.HistoryWindow; i-- {
		if strings.EqualFold(history[i].Role, RoleUser) {
			out = append(out, history[i])
		}
	}
	return out
}

func metricRiskSignals(m metrics.Snapshot) []string {
	var out []string
	if m.Trust < 0.4 {
		out = append(out, "low_trust")
	}
	if m.Pain > 0.7 {
		out = append(out, "high_pain")
	}
	if m.Drift > 0.6 {
		out = append(out, "high_drift")
	}
	if m.Chaos > 0.7 {
		out = append(out, "high_chaos")
	}
	return out
}

// pick chooses the highest score. A tie at the top degrades to Routine.
func pick(scores map[Playbook]float64) (Playbook, float64, string) {
	var top, second float64
	winner := Routine
	for _, pb := range scored {
		s := scores[pb]
		switch {
		case s > top:
			second = top
			top = s
			winner = pb
		case s > second:
			second = s
		}
	}

	if top == 0 {
		return Routine, 0.7, "no playbook signals"
	}
	if top == second {
		return Routine, 0.4, "ambiguous: tied playbook signals"
	}
	confidence := math.Min(0.95, 0.5+0.15*(top-second))
	return winner, confidence, fmt.Sprintf("%s score %.2f over %.2f", winner, top, second)
}

func suggested(pb Playbook) []voice.ID {
	cfg := ConfigFor(pb)
	out := make([]voice.ID, 0, len(cfg.RequiredVoices)+len(cfg.OptionalVoices))
	out = append(out, cfg.RequiredVoices...)
	if pb == Council {
		out = append(out, cfg.OptionalVoices...)
	}
	return out
}

// #endregion
