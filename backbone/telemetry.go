package backbone

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for backbone operations.
var (
	tracer = otel.Tracer("e2fpn.backbone")
	meter  = otel.Meter("e2fpn.backbone")
)

var (
	forwardLatency metric.Float64Histogram
	forwardTotal   metric.Int64Counter
	exportTotal    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		forwardLatency, err = meter.Float64Histogram(
			"e2fpn_forward_duration_seconds",
			metric.WithDescription("Duration of backbone forward passes"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		forwardTotal, err = meter.Int64Counter(
			"e2fpn_forward_total",
			metric.WithDescription("Total number of backbone forward passes"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		exportTotal, err = meter.Int64Counter(
			"e2fpn_export_total",
			metric.WithDescription("Total number of export transitions"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startForwardSpan creates a span for one forward pass.
func startForwardSpan(ctx context.Context, exported bool, shape []int) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.Bool("e2fpn.exported", exported)}
	if len(shape) == 4 {
		attrs = append(attrs,
			attribute.Int("e2fpn.batch", shape[0]),
			attribute.Int("e2fpn.height", shape[2]),
			attribute.Int("e2fpn.width", shape[3]),
		)
	}
	return tracer.Start(ctx, "Backbone.Forward", trace.WithAttributes(attrs...))
}

// recordForwardMetrics records metrics for one forward pass.
func recordForwardMetrics(ctx context.Context, duration time.Duration, state string, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("state", state),
		attribute.Bool("success", success),
	)

	forwardLatency.Record(ctx, duration.Seconds(), attrs)
	forwardTotal.Add(ctx, 1, attrs)
}

// recordExport counts an export attempt.
func recordExport(ctx context.Context, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	exportTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}
