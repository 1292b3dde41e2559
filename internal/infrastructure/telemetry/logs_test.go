package telemetry

import (
	"context"
	"sync"
	"testing"

	"github.com/sitebook/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// recordingExporter keeps exported log records in memory
type recordingExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *recordingExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range records {
		e.records = append(e.records, records[i].Clone())
	}
	return nil
}

func (e *recordingExporter) Shutdown(context.Context) error   { return nil }
func (e *recordingExporter) ForceFlush(context.Context) error { return nil }

func (e *recordingExporter) snapshot() []sdklog.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]sdklog.Record(nil), e.records...)
}

func recordAttributes(r *sdklog.Record) map[string]string {
	attrs := make(map[string]string)
	r.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	return attrs
}

func TestLogsConfigFromApp(t *testing.T) {
	t.Run("needs both switches", func(t *testing.T) {
		assert.False(t, LogsConfigFromApp(config.TelemetryConfig{Enabled: true}, "svc").Enabled)
		assert.False(t, LogsConfigFromApp(config.TelemetryConfig{LogsEnabled: true}, "svc").Enabled)
		assert.True(t, LogsConfigFromApp(config.TelemetryConfig{Enabled: true, LogsEnabled: true}, "svc").Enabled)
	})

	t.Run("service name falls back", func(t *testing.T) {
		assert.Equal(t, "svc", LogsConfigFromApp(config.TelemetryConfig{}, "svc").ServiceName)
		assert.Equal(t, "custom", LogsConfigFromApp(config.TelemetryConfig{ServiceName: "custom"}, "svc").ServiceName)
	})
}

func TestLoggerProvider_Disabled(t *testing.T) {
	lp, err := NewLoggerProvider(context.Background(), LogsConfig{}, zap.NewNop())
	require.NoError(t, err)

	base := zap.NewNop()
	assert.False(t, lp.IsEnabled())
	assert.Same(t, base, lp.Bridge(base, zapcore.InfoLevel))
	assert.NoError(t, lp.ForceFlush(context.Background()))
	assert.NoError(t, lp.Shutdown(context.Background()))
}

func TestLoggerProvider_BridgeExportsStructuredFields(t *testing.T) {
	exporter := &recordingExporter{}
	lp, err := newLoggerProvider(LogsConfig{Enabled: true, ServiceName: "sitebook-accounting"},
		sdklog.NewSimpleProcessor(exporter), zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = lp.Shutdown(context.Background()) }()

	core, stdout := observer.New(zapcore.DebugLevel)
	log := lp.Bridge(zap.New(core), zapcore.InfoLevel)

	log.With(zap.String("tenant_id", "tenant-1")).Info("Reconciled invoice",
		zap.String("event_id", "evt-1"),
		zap.String("external_id", "42"))
	log.Debug("Resolving entity")

	require.NoError(t, lp.ForceFlush(context.Background()))

	assert.Equal(t, 2, stdout.Len(), "base core keeps every entry")

	records := exporter.snapshot()
	require.Len(t, records, 1, "debug entries stay below the export level")
	assert.Equal(t, "Reconciled invoice", records[0].Body().AsString())
	assert.Equal(t, otellog.SeverityInfo, records[0].Severity())

	attrs := recordAttributes(&records[0])
	assert.Equal(t, "tenant-1", attrs["tenant_id"])
	assert.Equal(t, "evt-1", attrs["event_id"])
	assert.Equal(t, "42", attrs["external_id"])
}
