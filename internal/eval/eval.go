package eval

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/danielpatrickdp/arbiter/internal/metrics"
	"github.com/danielpatrickdp/arbiter/internal/patterns"
	"github.com/danielpatrickdp/arbiter/internal/signature"
)

var (
	stepLine  = regexp.MustCompile(`(?m)^[ \t]*(?:\d+[.)]|[-*•])[ \t]+\S`)
	codeBlock = regexp.MustCompile("(?m)^[ \\t]*```|^[ \\t]*\\$ \\S")
	number    = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
)

// #region engine
// Context is what the engine knows about the turn besides the response.
type Context struct {
	Query string // the user message, used for relevance
}

// Engine scores responses along five weighted dimensions.
type Engine struct {
	config EvalConfig
	tables *patterns.Table
}

// NewEngine creates an engine over the embedded pattern tables.
func NewEngine(config EvalConfig) *Engine {
	return NewEngineWith(config, patterns.Default())
}

// NewEngineWith creates an engine over a specific pattern table.
func NewEngineWith(config EvalConfig, tables *patterns.Table) *Engine {
	return &Engine{config: config, tables: tables}
}

// Evaluate grades a single response. It never fails.
func (e *Engine) Evaluate(response string, ctx Context) Result {
	sig := signature.Validate(response)
	body := signature.Strip(response)
	bad := make(map[signature.Field]bool)
	for _, f := range sig.Problems() {
		bad[f] = true
	}

	in := input{
		body:  body,
		query: ctx.Query,
		words: patterns.Words(body),
		sig:   sig,
		bad:   bad,
	}

	accuracy := e.accuracy(in)
	usefulness := e.usefulness(in)
	omega, inflated := e.omegaHonesty(in)
	substance := e.substance(in)
	alliance := e.alliance(in)
	scores := []Score{accuracy, usefulness, omega, substance, alliance}

	overall := 0.0
	for _, s := range scores {
		overall += e.config.Weights[s.Dimension] * s.Value
	}
	overall = metrics.Clamp01(overall)

	var flags []Flag
	if !sig.Valid() {
		flags = append(flags, FlagNoDelta)
		overall = math.Min(overall, e.config.NoDeltaCap)
	}
	if accuracy.Value < e.config.LowAccuracy {
		flags = append(flags, FlagLowAccuracy)
	}
	if substance.Value < e.config.SmoothSubstance && alliance.Value >= e.config.SmoothAlliance {
		flags = append(flags, FlagSmoothEmpty)
	}
	if inflated {
		flags = append(flags, FlagInflatedOmega)
	}

	return Result{
		Overall:   overall,
		Grade:     GradeFor(overall),
		Scores:    scores,
		Flags:     flags,
		Signature: sig,
	}
}

type input struct {
	body  string
	query string
	words []string
	sig   signature.Report
	bad   map[signature.Field]bool
}

func (in input) fieldOK(f signature.Field) bool {
	return !in.bad[f]
}

// #endregion engine

// #region dimensions
func (e *Engine) accuracy(in input) Score {
	s := Score{Dimension: Accuracy, Value: 0.2, Confidence: 0.6}

	if cites := e.tables.Group(patterns.Citation).Hits(in.body); cites > 0 {
		s.Value += 0.25 * float64(min(cites, 2))
		s.Signals = append(s.Signals, fmt.Sprintf("citations=%d", cites))
	}
	if e.tables.Group(patterns.Verified).Any(in.body) {
		s.Value += 0.2
		s.Signals = append(s.Signals, "verification")
	}
	if in.fieldOK(signature.Depth) {
		s.Value += 0.2
		s.Signals = append(s.Signals, "depth_field")
	}
	s.Value = metrics.Clamp01(s.Value)
	s.Confidence += 0.1 * float64(min(len(s.Signals), 3))
	return s
}

func (e *Engine) usefulness(in input) Score {
	s := Score{Dimension: Usefulness, Value: 0.2, Confidence: 0.6}

	if steps := len(stepLine.FindAllStringIndex(in.body, -1)); steps > 0 {
		s.Value += 0.15 * float64(min(steps, 3))
		s.Signals = append(s.Signals, fmt.Sprintf("steps=%d", steps))
	}
	if codeBlock.MatchString(in.body) {
		s.Value += 0.2
		s.Signals = append(s.Signals, "code")
	}
	if in.fieldOK(signature.Lambda) {
		s.Value += 0.15
		s.Signals = append(s.Signals, "lambda_field")
	}
	if q := patterns.Keywords(in.query); len(q) > 0 {
		overlap := patterns.Overlap(q, patterns.Keywords(in.body))
		s.Value += 0.2 * overlap
		s.Signals = append(s.Signals, fmt.Sprintf("relevance=%.2f", overlap))
		s.Confidence += 0.1
	}
	s.Value = metrics.Clamp01(s.Value)
	return s
}

// omegaHonesty also reports whether the stated confidence is inflated.
func (e *Engine) omegaHonesty(in input) (Score, bool) {
	s := Score{Dimension: OmegaHonesty, Value: 0.6, Confidence: 0.5}

	hedged := e.tables.Group(patterns.Hedging).Any(in.body)
	absolutes := e.tables.Group(patterns.Overconfidence).Count(in.body)
	stated, hasOmega := 0.0, false
	if in.fieldOK(signature.Omega) {
		stated, hasOmega = signature.ParseOmega(in.sig.Fields.Omega)
	}

	inflated := absolutes > 0
	if hasOmega {
		s.Value += 0.2
		s.Confidence = 0.8
		s.Signals = append(s.Signals, fmt.Sprintf("omega=%.2f", stated))
		switch {
		case hedged && stated <= 0.8:
			s.Value += 0.2
			s.Signals = append(s.Signals, "calibrated_hedge")
		case hedged && stated >= e.config.InflatedOmega:
			s.Value -= 0.4
			s.Signals = append(s.Signals, "hedge_with_high_omega")
			inflated = true
		}
	}
	if absolutes > 0 {
		s.Value -= 0.15 * float64(min(absolutes, 3))
		s.Signals = append(s.Signals, fmt.Sprintf("absolutes=%d", absolutes))
	}
	s.Value = metrics.Clamp01(s.Value)
	return s, inflated
}

func (e *Engine) substance(in input) Score {
	s := Score{Dimension: Substance, Confidence: 0.6}
	if len(in.words) == 0 {
		s.Signals = append(s.Signals, "empty")
		s.Confidence = 1
		return s
	}

	s.Value = 0.3
	if n := len(number.FindAllString(in.body, -1)); n > 0 {
		s.Value += 0.1 * float64(min(n, 4))
		s.Signals = append(s.Signals, fmt.Sprintf("numbers=%d", n))
	}

	content := float64(len(patterns.Keywords(in.body))) / float64(len(in.words))
	s.Value += 0.3 * content

	stop := 0
	for _, w := range in.words {
		if patterns.IsStopword(w) {
			stop++
		}
	}
	if float64(stop)/float64(len(in.words)) > 0.6 {
		s.Value -= 0.2
		s.Signals = append(s.Signals, "stopword_dominated")
	}

	if filler := e.tables.Group(patterns.Filler).Count(in.body); filler > 0 {
		s.Value -= math.Min(0.6, 10*float64(filler)/float64(len(in.words)))
		s.Signals = append(s.Signals, fmt.Sprintf("filler=%d", filler))
	}
	s.Value = metrics.Clamp01(s.Value)
	return s
}

func (e *Engine) alliance(in input) Score {
	s := Score{Dimension: Alliance, Value: 0.5, Confidence: 0.5}
	if c := e.tables.Group(patterns.Collaborative).Count(in.body); c > 0 {
		s.Value += 0.15 * float64(min(c, 3))
		s.Signals = append(s.Signals, fmt.Sprintf("collaborative=%d", c))
	}
	if a := e.tables.Group(patterns.Adversarial).Count(in.body); a > 0 {
		s.Value -= 0.25 * float64(min(a, 3))
		s.Signals = append(s.Signals, fmt.Sprintf("adversarial=%d", a))
	}
	if strings.TrimSpace(in.body) == "" {
		s.Confidence = 0.2
	}
	s.Value = metrics.Clamp01(s.Value)
	return s
}

// #endregion dimensions
