package telemetry

import (
	"context"
	"testing"
	"time"

	appaccounting "github.com/sitebook/backend/internal/application/accounting"
	"github.com/sitebook/backend/internal/domain/accounting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestReconcileMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	m, err := NewReconcileMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordEvent(ctx, accounting.EntityKindInvoice, accounting.ProcessStatusReconciled)
	m.RecordEvent(ctx, accounting.EntityKindInvoice, accounting.ProcessStatusReconciled)
	m.RecordEvent(ctx, accounting.EntityKindPayment, accounting.ProcessStatusIgnored)
	m.RecordBatch(ctx, appaccounting.BatchResult{Processed: 3, Reconciled: 2, Ignored: 1}, 1500*time.Millisecond)

	metrics := collect(t, reader)

	events, ok := metrics["accounting.webhook_events.processed"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	counts := make(map[string]int64)
	for _, dp := range events.DataPoints {
		entity, _ := dp.Attributes.Value(attribute.Key("entity"))
		status, _ := dp.Attributes.Value(attribute.Key("status"))
		counts[entity.AsString()+"/"+status.AsString()] = dp.Value
	}
	assert.Equal(t, int64(2), counts["Invoice/reconciled"])
	assert.Equal(t, int64(1), counts["Payment/ignored"])

	batches, ok := metrics["accounting.reconcile.batches"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, batches.DataPoints, 1)
	outcome, _ := batches.DataPoints[0].Attributes.Value(attribute.Key("outcome"))
	assert.Equal(t, "ok", outcome.AsString())

	duration, ok := metrics["accounting.reconcile.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, duration.DataPoints, 1)
	assert.InDelta(t, 1.5, duration.DataPoints[0].Sum, 0.001)
}

func TestProviders_Disabled(t *testing.T) {
	logger := zapNop()

	tp, err := NewTracerProvider(context.Background(), Config{Enabled: false}, logger)
	require.NoError(t, err)
	assert.False(t, tp.IsEnabled())
	assert.NotNil(t, tp.Tracer("test"))
	assert.NoError(t, tp.Shutdown(context.Background()))

	mp, err := NewMeterProvider(context.Background(), MetricsConfig{Enabled: false}, logger)
	require.NoError(t, err)
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}
