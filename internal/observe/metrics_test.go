package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

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

// sumWhere returns the summed value of int64 data points whose attributes
// include every pair in want.
func sumWhere(t *testing.T, m *metricdata.Metrics, want ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: data is %T, want Sum[int64]", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		match := true
		for _, kv := range want {
			v, found := dp.Attributes.Value(kv.Key)
			if !found || v != kv.Value {
				match = false
				break
			}
		}
		if match {
			total += dp.Value
		}
	}
	return total
}

// ── Histograms ───────────────────────────────────────────────────────────────

func TestRecordDurations(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFeedback(ctx, 2, 1500*time.Millisecond, StatusOK)
	m.RecordFeedback(ctx, 2, 20*time.Second, StatusTimeout)
	m.RecordSynthesis(ctx, 3*time.Second, StatusOK)
	m.RecordCapture(ctx, 4*time.Second, StatusOK)

	rm := collect(t, reader)
	for name, wantCount := range map[string]uint64{
		"wisdomtrail.feedback.duration":            2,
		"wisdomtrail.narration.synthesis.duration": 1,
		"wisdomtrail.capture.duration":             1,
	} {
		met := findMetric(rm, name)
		if met == nil {
			t.Fatalf("%s not found", name)
		}
		hist, ok := met.Data.(metricdata.Histogram[float64])
		if !ok {
			t.Fatalf("%s: data is %T", name, met.Data)
		}
		var count uint64
		for _, dp := range hist.DataPoints {
			count += dp.Count
		}
		if count != wantCount {
			t.Errorf("%s count = %d, want %d", name, count, wantCount)
		}
	}
}

// ── Counters ─────────────────────────────────────────────────────────────────

func TestRecordProviderRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "gemini", KindLLM, StatusOK)
	m.RecordProviderRequest(ctx, "gemini", KindLLM, StatusOK)
	m.RecordProviderRequest(ctx, "gemini", KindLLM, StatusFallback)

	met := findMetric(collect(t, reader), "wisdomtrail.provider.requests")
	if met == nil {
		t.Fatal("provider requests metric not found")
	}
	if got := sumWhere(t, met, Attr("status", StatusOK)); got != 2 {
		t.Errorf("ok = %d, want 2", got)
	}
	if got := sumWhere(t, met, Attr("status", StatusFallback), Attr("kind", KindLLM)); got != 1 {
		t.Errorf("fallback = %d, want 1", got)
	}
}

func TestRecordNarrationCache(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordNarrationCache(ctx, false)
	m.RecordNarrationCache(ctx, true)
	m.RecordNarrationCache(ctx, true)

	met := findMetric(collect(t, reader), "wisdomtrail.narration.cache")
	if met == nil {
		t.Fatal("narration cache metric not found")
	}
	if got := sumWhere(t, met, Attr("result", "hit")); got != 2 {
		t.Errorf("hits = %d, want 2", got)
	}
	if got := sumWhere(t, met, Attr("result", "miss")); got != 1 {
		t.Errorf("misses = %d, want 1", got)
	}
}

func TestRecordWizardCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStepTransition(ctx, 1, "LIFE_QUESTION", "PERSPECTIVES")
	m.RecordLessonCompleted(ctx, 1)
	m.RecordBreakerTransition("openai", "open")

	rm := collect(t, reader)
	tr := findMetric(rm, "wisdomtrail.wizard.transitions")
	if tr == nil || sumWhere(t, tr, attribute.Int("lesson", 1), Attr("to", "PERSPECTIVES")) != 1 {
		t.Error("step transition not recorded")
	}
	done := findMetric(rm, "wisdomtrail.lessons.completed")
	if done == nil || sumWhere(t, done, attribute.Int("lesson", 1)) != 1 {
		t.Error("completion not recorded")
	}
	br := findMetric(rm, "wisdomtrail.breaker.transitions")
	if br == nil || sumWhere(t, br, Attr("provider", "openai"), Attr("state", "open")) != 1 {
		t.Error("breaker transition not recorded")
	}
}

func TestActiveSessions(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 2)
	m.ActiveSessions.Add(ctx, -1)

	met := findMetric(collect(t, reader), "wisdomtrail.active_sessions")
	if met == nil {
		t.Fatal("active sessions metric not found")
	}
	if got := sumWhere(t, met); got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
