// Package observe provides application-wide observability for the room
// guard: OpenTelemetry metrics with a Prometheus exporter bridge, plus the
// HTTP middleware serving the /metrics endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all guard metrics.
const meterName = "github.com/nholtz/roomwarden"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// ReasoningDuration tracks reasoning-service (LLM) call latency.
	ReasoningDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// FrameDuration tracks face-match latency per analysed frame.
	FrameDuration metric.Float64Histogram

	// --- Counters ---

	// Commands counts recognised voice commands. Use with attributes:
	//   attribute.String("intent", ...), attribute.String("outcome", ...)
	Commands metric.Int64Counter

	// Escalations counts interrogation escalations. Use with attribute:
	//   attribute.String("cause", ...)
	Escalations metric.Int64Counter

	// Alarms counts alarms raised.
	Alarms metric.Int64Counter

	// SessionsEnded counts interrogation sessions by terminal outcome. Use
	// with attribute: attribute.String("outcome", ...)
	SessionsEnded metric.Int64Counter

	// ReasoningFallbacks counts turns served by the rule-based classifier
	// after a reasoning-service failure.
	ReasoningFallbacks metric.Int64Counter

	// BreakerTransitions counts provider circuit-breaker state changes. Use
	// with attributes: attribute.String("provider", ...),
	// attribute.String("to", ...)
	BreakerTransitions metric.Int64Counter

	// --- Gauges ---

	// GuardActive is 1 while guard mode is armed.
	GuardActive metric.Int64UpDownCounter

	// ActiveInterrogations tracks the number of live interrogation sessions
	// (0 or 1 by design; the gauge makes a stuck session visible).
	ActiveInterrogations metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("roomwarden.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ReasoningDuration, err = m.Float64Histogram("roomwarden.reasoning.duration",
		metric.WithDescription("Latency of reasoning-service calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("roomwarden.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FrameDuration, err = m.Float64Histogram("roomwarden.frame.duration",
		metric.WithDescription("Latency of face matching per analysed frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Commands, err = m.Int64Counter("roomwarden.commands",
		metric.WithDescription("Recognised voice commands by intent and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Escalations, err = m.Int64Counter("roomwarden.escalations",
		metric.WithDescription("Interrogation escalations by cause."),
	); err != nil {
		return nil, err
	}
	if met.Alarms, err = m.Int64Counter("roomwarden.alarms",
		metric.WithDescription("Alarms raised."),
	); err != nil {
		return nil, err
	}
	if met.SessionsEnded, err = m.Int64Counter("roomwarden.sessions.ended",
		metric.WithDescription("Interrogation sessions by terminal outcome."),
	); err != nil {
		return nil, err
	}
	if met.ReasoningFallbacks, err = m.Int64Counter("roomwarden.reasoning.fallbacks",
		metric.WithDescription("Turns served by the rule-based classifier after a reasoning failure."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("roomwarden.breaker.transitions",
		metric.WithDescription("Provider circuit-breaker state changes by provider and target state."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.GuardActive, err = m.Int64UpDownCounter("roomwarden.guard.active",
		metric.WithDescription("1 while guard mode is armed."),
	); err != nil {
		return nil, err
	}
	if met.ActiveInterrogations, err = m.Int64UpDownCounter("roomwarden.interrogations.active",
		metric.WithDescription("Number of live interrogation sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("roomwarden.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCommand records a recognised voice command with its outcome
// ("committed", "refused", "rejected").
func (m *Metrics) RecordCommand(ctx context.Context, intent, outcome string) {
	m.Commands.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("intent", intent),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordEscalation records one escalation step with its cause.
func (m *Metrics) RecordEscalation(ctx context.Context, cause string) {
	m.Escalations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("cause", cause)),
	)
}

// RecordBreakerTransition records one provider circuit-breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("to", to),
		),
	)
}

// RecordSessionEnd records an interrogation's terminal outcome, and the
// alarm counter when the outcome was an alarm.
func (m *Metrics) RecordSessionEnd(ctx context.Context, outcome string) {
	m.SessionsEnded.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
	if outcome == "alarmed" {
		m.Alarms.Add(ctx, 1)
	}
}
