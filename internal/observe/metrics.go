// Package observe provides the OpenTelemetry metrics, tracing helpers and
// HTTP middleware shared by the terminal player and the HTTP server.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed for
// scraping through the Prometheus bridge set up by [Init]. Tests
// should build their own [Metrics] via [NewMetrics] with a manual reader
// instead of using [DefaultMetrics].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/wisdomtrail"

// Provider kinds used as the "kind" attribute.
const (
	KindLLM = "llm"
	KindTTS = "tts"
	KindSTT = "stt"
)

// Request outcomes used as the "status" attribute.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusFallback = "fallback"
	StatusTimeout  = "timeout"
)

// Metrics holds every instrument the application records. The OTel types
// synchronise internally.
type Metrics struct {
	// FeedbackDuration is the latency of one tutor feedback request.
	FeedbackDuration metric.Float64Histogram

	// SynthesisDuration is the latency of one narration synthesis request.
	SynthesisDuration metric.Float64Histogram

	// CaptureDuration is the time from starting dictation to its final
	// transcript.
	CaptureDuration metric.Float64Histogram

	// ProviderRequests counts provider calls by provider, kind and status.
	ProviderRequests metric.Int64Counter

	// NarrationCache counts play requests by result ("hit" or "miss").
	NarrationCache metric.Int64Counter

	// StepTransitions counts wizard moves by lesson, from and to.
	StepTransitions metric.Int64Counter

	// LessonsCompleted counts completions by lesson.
	LessonsCompleted metric.Int64Counter

	// BreakerTransitions counts circuit breaker moves by provider and state.
	BreakerTransitions metric.Int64Counter

	// ActiveSessions is the number of live learner sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration is HTTP handler latency by method and path.
	HTTPRequestDuration metric.Float64Histogram
}

// remoteBuckets (seconds) cover a fast cached reply through a slow
// synthesis of a long perspective panel.
var remoteBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FeedbackDuration, err = m.Float64Histogram("wisdomtrail.feedback.duration",
		metric.WithDescription("Latency of tutor feedback requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(remoteBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("wisdomtrail.narration.synthesis.duration",
		metric.WithDescription("Latency of narration speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(remoteBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CaptureDuration, err = m.Float64Histogram("wisdomtrail.capture.duration",
		metric.WithDescription("Time from dictation start to final transcript."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(remoteBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("wisdomtrail.provider.requests",
		metric.WithDescription("Provider requests by provider, kind and status."),
	); err != nil {
		return nil, err
	}
	if met.NarrationCache, err = m.Int64Counter("wisdomtrail.narration.cache",
		metric.WithDescription("Narration play requests by cache result."),
	); err != nil {
		return nil, err
	}
	if met.StepTransitions, err = m.Int64Counter("wisdomtrail.wizard.transitions",
		metric.WithDescription("Lesson wizard step transitions."),
	); err != nil {
		return nil, err
	}
	if met.LessonsCompleted, err = m.Int64Counter("wisdomtrail.lessons.completed",
		metric.WithDescription("Completed lessons by lesson id."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("wisdomtrail.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by provider and new state."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("wisdomtrail.active_sessions",
		metric.WithDescription("Number of live learner sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("wisdomtrail.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide [Metrics] built on the global meter
// provider. It panics if instrument creation fails, which the global
// provider never does.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest counts one provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordFeedback records feedback latency and outcome.
func (m *Metrics) RecordFeedback(ctx context.Context, lessonID int, d time.Duration, status string) {
	m.FeedbackDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.Int("lesson", lessonID),
		attribute.String("status", status),
	))
}

// RecordSynthesis records synthesis latency and outcome.
func (m *Metrics) RecordSynthesis(ctx context.Context, d time.Duration, status string) {
	m.SynthesisDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("status", status),
	))
}

// RecordCapture records how long one dictation took and how it ended.
func (m *Metrics) RecordCapture(ctx context.Context, d time.Duration, status string) {
	m.CaptureDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("status", status),
	))
}

// RecordNarrationCache counts a play request served from cache (hit) or by
// a new synthesis (miss).
func (m *Metrics) RecordNarrationCache(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.NarrationCache.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordStepTransition counts one wizard move.
func (m *Metrics) RecordStepTransition(ctx context.Context, lessonID int, from, to string) {
	m.StepTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("lesson", lessonID),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordLessonCompleted counts one completion.
func (m *Metrics) RecordLessonCompleted(ctx context.Context, lessonID int) {
	m.LessonsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.Int("lesson", lessonID)))
}

// RecordBreakerTransition counts one breaker state change. Its signature
// matches the resilience breaker's state-change hook once the states are
// formatted as strings.
func (m *Metrics) RecordBreakerTransition(provider, to string) {
	m.BreakerTransitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("state", to),
	))
}
