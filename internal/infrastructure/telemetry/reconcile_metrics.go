package telemetry

import (
	"context"
	"fmt"
	"time"

	appaccounting "github.com/sitebook/backend/internal/application/accounting"
	"github.com/sitebook/backend/internal/domain/accounting"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ReconcileMetrics records reconciliation outcomes as OpenTelemetry
// instruments. It implements the worker's Recorder.
type ReconcileMetrics struct {
	events        metric.Int64Counter
	batches       metric.Int64Counter
	batchDuration metric.Float64Histogram
	batchSize     metric.Int64Histogram
}

// NewReconcileMetrics creates the instruments on meter
func NewReconcileMetrics(meter metric.Meter) (*ReconcileMetrics, error) {
	events, err := meter.Int64Counter("accounting.webhook_events.processed",
		metric.WithDescription("Webhook events that reached a status, by entity and status"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create events counter: %w", err)
	}

	batches, err := meter.Int64Counter("accounting.reconcile.batches",
		metric.WithDescription("Reconciliation batches run"),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batches counter: %w", err)
	}

	duration, err := meter.Float64Histogram("accounting.reconcile.duration",
		metric.WithDescription("Wall time of a reconciliation batch"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	size, err := meter.Int64Histogram("accounting.reconcile.batch_size",
		metric.WithDescription("Events selected per batch"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch size histogram: %w", err)
	}

	return &ReconcileMetrics{
		events:        events,
		batches:       batches,
		batchDuration: duration,
		batchSize:     size,
	}, nil
}

// RecordEvent counts one event outcome
func (m *ReconcileMetrics) RecordEvent(ctx context.Context, kind accounting.EntityKind, status accounting.ProcessStatus) {
	m.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", kind.String()),
		attribute.String("status", string(status)),
	))
}

// RecordBatch records batch totals and duration
func (m *ReconcileMetrics) RecordBatch(ctx context.Context, result appaccounting.BatchResult, elapsed time.Duration) {
	outcome := "empty"
	switch {
	case result.Errored > 0:
		outcome = "partial_failure"
	case result.Processed > 0:
		outcome = "ok"
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))

	m.batches.Add(ctx, 1, attrs)
	m.batchDuration.Record(ctx, elapsed.Seconds(), attrs)
	m.batchSize.Record(ctx, int64(result.Processed))
}

var _ appaccounting.Recorder = (*ReconcileMetrics)(nil)
