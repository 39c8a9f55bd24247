// Package telemetry turns the audit stream into OpenTelemetry instruments.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/danielpatrickdp/arbiter/internal/audit"
)

// Instrument names.
const (
	MetricAuditEntries    = "arbiter.audit.entries"
	MetricVoiceSelections = "arbiter.voice.selections"
	MetricRituals         = "arbiter.rituals"
	MetricEvalOverall     = "arbiter.eval.overall"
	MetricTurnDuration    = "arbiter.turn.duration"
)

// Detail keys read from audit entries.
const (
	DetailVoice   = "voice"
	DetailOverall = "overall"
)

// Recorder counts audit entries by type and severity and tracks a few domain instruments.
type Recorder struct {
	entries    metric.Int64Counter
	selections metric.Int64Counter
	rituals    metric.Int64Counter
	overall    metric.Float64Histogram
	turns      metric.Float64Histogram
}

// NewRecorder creates the instruments on meter.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	r := &Recorder{}
	var err error

	if r.entries, err = meter.Int64Counter(MetricAuditEntries,
		metric.WithDescription("Audit entries appended"),
		metric.WithUnit("{entry}"),
	); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricAuditEntries, err)
	}
	if r.selections, err = meter.Int64Counter(MetricVoiceSelections,
		metric.WithDescription("Voice selections by winning voice"),
		metric.WithUnit("{selection}"),
	); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricVoiceSelections, err)
	}
	if r.rituals, err = meter.Int64Counter(MetricRituals,
		metric.WithDescription("Ritual executions"),
		metric.WithUnit("{ritual}"),
	); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricRituals, err)
	}
	if r.overall, err = meter.Float64Histogram(MetricEvalOverall,
		metric.WithDescription("Overall evaluation score"),
		metric.WithExplicitBucketBoundaries(0.2, 0.4, 0.55, 0.7, 0.85, 1.0),
	); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricEvalOverall, err)
	}
	if r.turns, err = meter.Float64Histogram(MetricTurnDuration,
		metric.WithDescription("Turn pipeline duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30),
	); err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricTurnDuration, err)
	}
	return r, nil
}

// Observe records one audit entry.
func (r *Recorder) Observe(ctx context.Context, e audit.Entry) {
	r.entries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", string(e.Type)),
		attribute.String("severity", string(e.Severity)),
	))

	switch e.Type {
	case audit.VoiceSelection:
		if v, ok := e.Details[DetailVoice].(string); ok {
			r.selections.Add(ctx, 1, metric.WithAttributes(attribute.String("voice", v)))
		}
	case audit.RitualExecution:
		if name, ok := e.Details[audit.DetailRitual].(string); ok {
			r.rituals.Add(ctx, 1, metric.WithAttributes(attribute.String("ritual", name)))
		}
	case audit.EvaluationResult:
		if v, ok := e.Details[DetailOverall].(float64); ok {
			grade, _ := e.Details[audit.DetailGrade].(string)
			r.overall.Record(ctx, v, metric.WithAttributes(attribute.String("grade", grade)))
		}
	}
}

// RecordTurn records the wall time of one pipeline turn.
func (r *Recorder) RecordTurn(ctx context.Context, d time.Duration, playbook string) {
	r.turns.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("playbook", playbook)))
}

// Subscriber adapts Observe to audit.Subscriber.
func (r *Recorder) Subscriber() audit.Subscriber {
	return func(e audit.Entry) { r.Observe(context.Background(), e) }
}

// Attach subscribes the recorder to l.
func (r *Recorder) Attach(l *audit.Log) *audit.Subscription {
	return l.Subscribe(r.Subscriber())
}
