package observe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/jonwraymond/llmops/llm"
)

var errTest = errors.New("test error")

func newTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name in ResourceMetrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumInt64(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: expected Sum[int64], got %T", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_RecordCallSuccess(t *testing.T) {
	reader, mp := newTestMeter()
	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	meta := CallMeta{Provider: "openai", Model: "gpt-4o", Operation: OperationComplete}
	m.RecordCall(context.Background(), meta, 120*time.Millisecond, nil)
	m.RecordCall(context.Background(), meta, 80*time.Millisecond, nil)

	rm := collect(t, reader)

	total := findMetric(rm, "llm.call.total")
	if total == nil {
		t.Fatal("llm.call.total not found")
	}
	if got := sumInt64(t, total); got != 2 {
		t.Errorf("llm.call.total = %d, want 2", got)
	}

	if errs := findMetric(rm, "llm.call.errors"); errs != nil && sumInt64(t, errs) != 0 {
		t.Errorf("llm.call.errors = %d, want 0", sumInt64(t, errs))
	}

	dur := findMetric(rm, "llm.call.duration_ms")
	if dur == nil {
		t.Fatal("llm.call.duration_ms not found")
	}
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("expected Histogram[float64], got %T", dur.Data)
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 2 {
		t.Errorf("histogram datapoints = %+v, want one point with count 2", hist.DataPoints)
	}
	if hist.DataPoints[0].Sum != 200 {
		t.Errorf("histogram sum = %v, want 200", hist.DataPoints[0].Sum)
	}
}

func TestMetrics_RecordCallError(t *testing.T) {
	reader, mp := newTestMeter()
	m, _ := NewMetrics(mp.Meter("test"))

	meta := CallMeta{Provider: "openai", Operation: OperationComplete}
	m.RecordCall(context.Background(), meta, time.Millisecond, llm.NewRateLimitError("slow down", nil))

	rm := collect(t, reader)
	errs := findMetric(rm, "llm.call.errors")
	if errs == nil {
		t.Fatal("llm.call.errors not found")
	}
	if got := sumInt64(t, errs); got != 1 {
		t.Errorf("llm.call.errors = %d, want 1", got)
	}

	dp := errs.Data.(metricdata.Sum[int64]).DataPoints[0]
	if v, ok := dp.Attributes.Value("llm.error.kind"); !ok || v.AsString() != "rate_limit" {
		t.Errorf("llm.error.kind = %v, want rate_limit", v.AsString())
	}
}

func TestMetrics_Attributes(t *testing.T) {
	reader, mp := newTestMeter()
	m, _ := NewMetrics(mp.Meter("test"))

	m.RecordCall(context.Background(), CallMeta{Provider: "openai", Model: "gpt-4o", Operation: OperationComplete}, 0, nil)
	m.RecordCall(context.Background(), CallMeta{Provider: "anthropic", Operation: OperationStream}, 0, nil)

	total := findMetric(collect(t, reader), "llm.call.total")
	points := total.Data.(metricdata.Sum[int64]).DataPoints
	if len(points) != 2 {
		t.Fatalf("datapoints = %d, want 2 (one per attribute set)", len(points))
	}

	seen := map[string]bool{}
	for _, dp := range points {
		p, _ := dp.Attributes.Value(attribute.Key("llm.provider"))
		seen[p.AsString()] = true
		if p.AsString() == "anthropic" {
			if _, ok := dp.Attributes.Value("llm.model"); ok {
				t.Error("llm.model present for a call without a model")
			}
		}
	}
	if !seen["openai"] || !seen["anthropic"] {
		t.Errorf("providers = %v, want openai and anthropic", seen)
	}
}

func TestMetrics_RecordRetry(t *testing.T) {
	reader, mp := newTestMeter()
	m, _ := NewMetrics(mp.Meter("test"))

	meta := CallMeta{Provider: "openai", Operation: OperationComplete}
	m.RecordRetry(context.Background(), meta, 1, llm.NewNetworkError("reset", nil))
	m.RecordRetry(context.Background(), meta, 2, llm.NewNetworkError("reset", nil))

	retries := findMetric(collect(t, reader), "llm.retry.total")
	if retries == nil {
		t.Fatal("llm.retry.total not found")
	}
	if got := sumInt64(t, retries); got != 2 {
		t.Errorf("llm.retry.total = %d, want 2", got)
	}
}

func TestMetrics_Concurrent(t *testing.T) {
	reader, mp := newTestMeter()
	m, _ := NewMetrics(mp.Meter("test"))
	meta := CallMeta{Provider: "openai", Operation: OperationComplete}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordCall(context.Background(), meta, time.Millisecond, nil)
			}
		}()
	}
	wg.Wait()

	if got := sumInt64(t, findMetric(collect(t, reader), "llm.call.total")); got != 1000 {
		t.Errorf("llm.call.total = %d, want 1000", got)
	}
}

func TestNoopMetrics(t *testing.T) {
	m := NewNoopMetrics()
	m.RecordCall(context.Background(), CallMeta{Provider: "openai"}, time.Millisecond, errTest)
	m.RecordRetry(context.Background(), CallMeta{Provider: "openai"}, 1, errTest)
}
