package accounting

import (
	"context"
	"time"

	"github.com/sitebook/backend/internal/domain/accounting"
)

// Recorder receives reconciliation measurements
type Recorder interface {
	RecordEvent(ctx context.Context, kind accounting.EntityKind, status accounting.ProcessStatus)
	RecordBatch(ctx context.Context, result BatchResult, elapsed time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) RecordEvent(context.Context, accounting.EntityKind, accounting.ProcessStatus) {}
func (noopRecorder) RecordBatch(context.Context, BatchResult, time.Duration)                      {}
