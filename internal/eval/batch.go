package eval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/arbiter/internal/audit"
)

// #region batch
// BatchSummary aggregates a batch of evaluations.
type BatchSummary struct {
	Count        int           `json:"count"`
	Average      float64       `json:"average"`
	Distribution map[Grade]int `json:"distribution"`
	FlagCounts   map[Flag]int  `json:"flag_counts"`
	Results      []Result      `json:"results"` // same order as the input
}

// EvaluateBatch scores responses concurrently. It stops early only when ctx is done.
func (e *Engine) EvaluateBatch(ctx context.Context, responses []string, ec Context) (BatchSummary, error) {
	results := make([]Result, len(responses))

	g, ctx := errgroup.WithContext(ctx)
	if e.config.BatchConcurrency > 0 {
		g.SetLimit(e.config.BatchConcurrency)
	}
	for i, resp := range responses {
		i, resp := i, resp
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = e.Evaluate(resp, ec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchSummary{}, fmt.Errorf("evaluate batch: %w", err)
	}
	return Summarize(results), nil
}

// Summarize aggregates already computed results.
func Summarize(results []Result) BatchSummary {
	sum := BatchSummary{
		Count:        len(results),
		Distribution: make(map[Grade]int, len(Grades)),
		FlagCounts:   make(map[Flag]int),
		Results:      results,
	}
	total := 0.0
	for _, r := range results {
		total += r.Overall
		sum.Distribution[r.Grade]++
		for _, f := range r.Flags {
			sum.FlagCounts[f]++
		}
	}
	if len(results) > 0 {
		sum.Average = total / float64(len(results))
	}
	return sum
}

// #endregion batch

// #region evaluator
// Evaluator is an Engine that records an evaluation_result entry per response.
type Evaluator struct {
	engine *Engine
	rec    audit.Recorder
}

// NewEvaluator wraps engine. A nil rec records nothing.
func NewEvaluator(engine *Engine, rec audit.Recorder) *Evaluator {
	return &Evaluator{engine: engine, rec: rec}
}

// Evaluate scores response and audits the outcome.
func (ev *Evaluator) Evaluate(response string, ctx Context) Result {
	res := ev.engine.Evaluate(response, ctx)
	if ev.rec == nil {
		return res
	}

	details := map[string]any{
		audit.DetailGrade: string(res.Grade),
		"overall":         res.Overall,
	}
	flags := make([]string, len(res.Flags))
	for i, f := range res.Flags {
		flags[i] = string(f)
	}
	details["flags"] = flags
	for _, s := range res.Scores {
		details[string(s.Dimension)] = s.Value
	}
	ev.rec.Append(audit.Entry{
		Type:    audit.EvaluationResult,
		Actor:   "eval",
		Details: details,
	})
	return res
}

// #endregion evaluator
