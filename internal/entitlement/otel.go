package entitlement

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"droppy/internal/infrastructure"
)

// engineMetrics holds the OTel instruments for the entitlement engine.
// Instrument creation failures degrade to nil instruments rather than
// blocking engine construction.
type engineMetrics struct {
	activations   metric.Int64Counter
	revalidations metric.Int64Counter
	trialSyncs    metric.Int64Counter
	opDuration    metric.Float64Histogram
}

func newEngineMetrics() *engineMetrics {
	meter := otel.Meter(infrastructure.MeterName)
	m := &engineMetrics{}

	m.activations, _ = meter.Int64Counter(
		"droppy_activation_attempts_total",
		metric.WithDescription("License activation attempts by result"),
	)
	m.revalidations, _ = meter.Int64Counter(
		"droppy_revalidations_total",
		metric.WithDescription("Stored license revalidations by result"),
	)
	m.trialSyncs, _ = meter.Int64Counter(
		"droppy_trial_syncs_total",
		metric.WithDescription("Trial entitlement sync calls by result"),
	)
	m.opDuration, _ = meter.Float64Histogram(
		"droppy_entitlement_operation_duration_seconds",
		metric.WithDescription("Entitlement operation duration"),
		metric.WithUnit("s"),
	)

	return m
}

func (m *engineMetrics) recordActivation(ctx context.Context, result string) {
	if m == nil || m.activations == nil {
		return
	}
	m.activations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *engineMetrics) recordRevalidation(ctx context.Context, result string) {
	if m == nil || m.revalidations == nil {
		return
	}
	m.revalidations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *engineMetrics) recordTrialSync(ctx context.Context, result string) {
	if m == nil || m.trialSyncs == nil {
		return
	}
	m.trialSyncs.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *engineMetrics) recordDuration(ctx context.Context, operation string, start time.Time) {
	if m == nil || m.opDuration == nil {
		return
	}
	m.opDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("operation", operation)))
}
