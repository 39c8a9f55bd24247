package telemetry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// MeterName scopes every instrument this package creates.
const MeterName = "github.com/danielpatrickdp/arbiter"

// Provider owns an in-process meter provider read on demand by a ManualReader.
type Provider struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
	Recorder *Recorder
}

// NewProvider builds a meter provider with a manual reader and the recorder on top of it.
func NewProvider() (*Provider, error) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	rec, err := NewRecorder(mp.Meter(MeterName))
	if err != nil {
		return nil, err
	}
	return &Provider{reader: reader, provider: mp, Recorder: rec}, nil
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}

// Snapshot collects the current values.
func (p *Provider) Snapshot(ctx context.Context) (map[string]float64, error) {
	return Collect(ctx, p.reader)
}

// Collect flattens a reader's metrics into "name{k=v,...}" keys. Sums report their value,
// histograms report their count under the name and their sum under name+".sum".
func Collect(ctx context.Context, reader sdkmetric.Reader) (map[string]float64, error) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}

	out := make(map[string]float64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[seriesKey(m.Name, dp.Attributes.ToSlice())] += float64(dp.Value)
				}
			case metricdata.Sum[float64]:
				for _, dp := range data.DataPoints {
					out[seriesKey(m.Name, dp.Attributes.ToSlice())] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					key := seriesKey(m.Name, dp.Attributes.ToSlice())
					out[key] += float64(dp.Count)
					out[key+".sum"] += dp.Sum
				}
			}
		}
	}
	return out, nil
}

func seriesKey(name string, attrs []attribute.KeyValue) string {
	if len(attrs) == 0 {
		return name
	}
	parts := make([]string, len(attrs))
	for i, kv := range attrs {
		parts[i] = string(kv.Key) + "=" + kv.Value.Emit()
	}
	return name + "{" + strings.Join(parts, ",") + "}"
}

// Format renders a snapshot one series per line, sorted.
func Format(snapshot map[string]float64) string {
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s %g\n", k, snapshot[k])
	}
	return b.String()
}
