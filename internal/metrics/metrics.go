// Package metrics wires OpenTelemetry instruments for the access and
// versioning paths. Instruments are package-level and nil until SetupMetrics
// runs; every recorder tolerates the unconfigured state.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var (
	decisionCounter  metric.Int64Counter
	decisionDuration metric.Float64Histogram
	putCounter       metric.Int64Counter
	riskScore        metric.Int64Histogram
	activeSessions   metric.Int64UpDownCounter
	retentionCounter metric.Int64Counter
	requestCounter   metric.Int64Counter
	requestDuration  metric.Float64Histogram
	auditCounter     metric.Int64Counter
)

// SetupMetrics installs the provider globally and creates the instruments.
func SetupMetrics(provider *sdkmetric.MeterProvider, name string) error {
	otel.SetMeterProvider(provider)

	meter := provider.Meter(name)

	var err error

	decisionCounter, err = meter.Int64Counter(
		"trustvault.decisions.total",
		metric.WithDescription("Total number of access decisions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	decisionDuration, err = meter.Float64Histogram(
		"trustvault.decisions.duration",
		metric.WithDescription("Access decision evaluation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	putCounter, err = meter.Int64Counter(
		"trustvault.versions.puts.total",
		metric.WithDescription("Total number of version puts"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	riskScore, err = meter.Int64Histogram(
		"trustvault.risk.score",
		metric.WithDescription("Combined risk scores"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	activeSessions, err = meter.Int64UpDownCounter(
		"trustvault.sessions.active",
		metric.WithDescription("Number of sessions in the active state"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	retentionCounter, err = meter.Int64Counter(
		"trustvault.retention.deleted.total",
		metric.WithDescription("Total number of session index rows removed by retention"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	requestCounter, err = meter.Int64Counter(
		"trustvault.http.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	requestDuration, err = meter.Float64Histogram(
		"trustvault.http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	auditCounter, err = meter.Int64Counter(
		"trustvault.audit.deliveries.total",
		metric.WithDescription("Total number of audit delivery attempts"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	return nil
}

// RecordDecision records one access decision.
func RecordDecision(ctx context.Context, allowed bool, reason, tier string, elapsed time.Duration) {
	if decisionCounter == nil {
		return
	}

	status := "allow"
	if !allowed {
		status = "deny"
	}

	decisionCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("status", status),
			attribute.String("reason", reason),
			attribute.String("tier", tier),
		),
	)

	if decisionDuration != nil {
		decisionDuration.Record(ctx, elapsed.Seconds(),
			metric.WithAttributes(attribute.String("status", status)),
		)
	}
}

// RecordPut records a version put, distinguishing appends from no-ops.
func RecordPut(ctx context.Context, kind string, created bool) {
	if putCounter == nil {
		return
	}

	outcome := "noop"
	if created {
		outcome = "created"
	}

	putCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordRiskScore records a combined risk score.
func RecordRiskScore(ctx context.Context, score int) {
	if riskScore == nil {
		return
	}

	riskScore.Record(ctx, int64(score))
}

// SessionActivated increments the active session count.
func SessionActivated(ctx context.Context, tenant string) {
	if activeSessions == nil {
		return
	}

	activeSessions.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant", tenant)))
}

// SessionClosed decrements the active session count.
func SessionClosed(ctx context.Context, tenant string) {
	if activeSessions == nil {
		return
	}

	activeSessions.Add(ctx, -1, metric.WithAttributes(attribute.String("tenant", tenant)))
}

// RecordRetentionSweep records index rows removed by a retention pass.
func RecordRetentionSweep(ctx context.Context, deleted int) {
	if retentionCounter == nil {
		return
	}

	retentionCounter.Add(ctx, int64(deleted))
}

// RecordAuditDelivery records one audit delivery attempt by outcome.
func RecordAuditDelivery(ctx context.Context, events int, delivered bool) {
	if auditCounter == nil {
		return
	}

	outcome := "delivered"
	if !delivered {
		outcome = "failed"
	}

	auditCounter.Add(ctx, int64(events), metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRequest records one served HTTP request. The route is the matched
// pattern, not the raw path, to keep cardinality bounded.
func RecordRequest(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	if requestCounter == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)

	requestCounter.Add(ctx, 1, attrs)

	if requestDuration != nil {
		requestDuration.Record(ctx, elapsed.Seconds(), attrs)
	}
}
