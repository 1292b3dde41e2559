// Package scheduler runs reconciliation on an in-process timer.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	appaccounting "github.com/sitebook/backend/internal/application/accounting"
	"github.com/sitebook/backend/internal/domain/accounting"
	"go.uber.org/zap"
)

// Runner runs one locked reconciliation batch
type Runner interface {
	Run(ctx context.Context) (*appaccounting.BatchResult, error)
}

// ReconcileTriggerConfig holds configuration for the trigger
type ReconcileTriggerConfig struct {
	Interval time.Duration
	// RunOnStart runs one batch immediately instead of waiting a full interval
	RunOnStart bool
}

// ReconcileTrigger calls the reconciliation worker on a fixed interval. A
// tick that finds the run lock held is skipped.
type ReconcileTrigger struct {
	config ReconcileTriggerConfig
	runner Runner
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewReconcileTrigger creates a new trigger
func NewReconcileTrigger(config ReconcileTriggerConfig, runner Runner, logger *zap.Logger) (*ReconcileTrigger, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if runner == nil {
		return nil, fmt.Errorf("%w: runner is required", ErrInvalidConfig)
	}
	return &ReconcileTrigger{config: config, runner: runner, logger: logger}, nil
}

// Start launches the timer loop. Calling Start twice is a no-op.
func (t *ReconcileTrigger) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isRunning {
		return
	}
	t.isRunning = true

	ctx, t.cancel = context.WithCancel(ctx)
	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Reconcile trigger started", zap.Duration("interval", t.config.Interval))
}

// Stop cancels the loop and waits for an in-flight batch, bounded by ctx
func (t *ReconcileTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	cancel := t.cancel
	t.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Reconcile trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *ReconcileTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	if t.config.RunOnStart {
		t.tick(ctx)
	}

	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

func (t *ReconcileTrigger) tick(ctx context.Context) {
	result, err := t.runner.Run(ctx)
	switch {
	case errors.Is(err, accounting.ErrReconcileInProgress):
		t.logger.Debug("Reconciliation already running, skipping tick")
	case err != nil:
		t.logger.Error("Scheduled reconciliation failed", zap.Error(err))
	case result.Processed > 0:
		t.logger.Info("Scheduled reconciliation completed",
			zap.Int("processed", result.Processed),
			zap.Int("reconciled", result.Reconciled),
			zap.Int("ignored", result.Ignored),
			zap.Int("errored", result.Errored),
		)
	}
}
