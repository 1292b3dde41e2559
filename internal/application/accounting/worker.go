package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/sitebook/backend/internal/domain/accounting"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	reasonMissingContext = "missing webhook context"
	reasonNoConnection   = "no active org connection for realm"

	tracerName = "github.com/sitebook/backend/internal/application/accounting"
)

// WorkerConfig holds configuration for the reconciliation worker
type WorkerConfig struct {
	BatchSize    int
	FetchTimeout time.Duration
	// RetryPersistenceFailures keeps events pending after a local write
	// failure instead of marking them ignored.
	RetryPersistenceFailures bool
	MaxAttempts              int
	RetryBaseDelay           time.Duration
	LockTTL                  time.Duration
}

// DefaultWorkerConfig returns default configuration
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:      50,
		FetchTimeout:   DefaultFetchTimeout,
		MaxAttempts:    5,
		RetryBaseDelay: accounting.DefaultRetryBaseDelay,
		LockTTL:        10 * time.Minute,
	}
}

// BatchResult aggregates the outcomes of one batch
type BatchResult struct {
	Processed  int `json:"processed"`
	Reconciled int `json:"reconciled"`
	Ignored    int `json:"ignored"`
	Errored    int `json:"errored"`
}

// eventContext is the minimum an event needs before it can be dispatched
type eventContext struct {
	RealmID    string `validate:"required,notblank"`
	EntityName string `validate:"required,notblank"`
	ExternalID string `validate:"required,notblank"`
}

func newEventValidator() *validator.Validate {
	v := validator.New()
	// notblank is not built in; registration only fails on an empty tag.
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return v
}

// ReconciliationWorker drains pending webhook events in batches
type ReconciliationWorker struct {
	events      accounting.WebhookEventRepository
	connections accounting.ConnectionRepository
	clients     accounting.ClientFactory
	invoices    EntityReconciler
	payments    EntityReconciler
	lock        accounting.RunLock
	recorder    Recorder
	validate    *validator.Validate
	tracer      trace.Tracer
	config      WorkerConfig
	logger      *zap.Logger
	now         func() time.Time
}

// ReconciliationWorkerConfig contains dependencies for ReconciliationWorker
type ReconciliationWorkerConfig struct {
	Events            accounting.WebhookEventRepository
	Connections       accounting.ConnectionRepository
	Clients           accounting.ClientFactory
	InvoiceReconciler EntityReconciler
	PaymentReconciler EntityReconciler
	Lock              accounting.RunLock
	Recorder          Recorder
	Config            WorkerConfig
	Logger            *zap.Logger
	Clock             func() time.Time
}

// NewReconciliationWorker creates a new ReconciliationWorker
func NewReconciliationWorker(cfg ReconciliationWorkerConfig) *ReconciliationWorker {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}
	config := cfg.Config
	defaults := DefaultWorkerConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.LockTTL <= 0 {
		config.LockTTL = defaults.LockTTL
	}
	return &ReconciliationWorker{
		events:      cfg.Events,
		connections: cfg.Connections,
		clients:     cfg.Clients,
		invoices:    cfg.InvoiceReconciler,
		payments:    cfg.PaymentReconciler,
		lock:        cfg.Lock,
		recorder:    recorder,
		validate:    newEventValidator(),
		tracer:      otel.Tracer(tracerName),
		config:      config,
		logger:      logger,
		now:         clock,
	}
}

// Run executes one batch under the run lock. It returns
// ErrReconcileInProgress when another run holds the lock.
func (w *ReconciliationWorker) Run(ctx context.Context) (*BatchResult, error) {
	if w.lock == nil {
		return w.RunBatch(ctx)
	}

	token, acquired, err := w.lock.TryAcquire(ctx, accounting.ReconcileLockKey, w.config.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire reconcile lock: %w", err)
	}
	if !acquired {
		return nil, accounting.ErrReconcileInProgress
	}
	defer func() {
		// The batch context may already be cancelled; release regardless.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := w.lock.Release(releaseCtx, accounting.ReconcileLockKey, token); err != nil {
			w.logger.Warn("Failed to release reconcile lock", zap.Error(err))
		}
	}()

	return w.RunBatch(ctx)
}

// RunBatch processes up to BatchSize pending events, oldest first. Events
// are handled one at a time and a failing event never stops the batch. The
// only error returned is a failure to load the batch.
//
// Cancelling ctx does not stop a batch: every selected event still reaches
// a terminal status. Upstream fetches keep their own deadlines.
func (w *ReconciliationWorker) RunBatch(ctx context.Context) (*BatchResult, error) {
	ctx = context.WithoutCancel(ctx)
	started := w.now()
	ctx, span := w.tracer.Start(ctx, "accounting.reconcile_batch")
	defer span.End()

	events, err := w.events.FindPending(ctx, started, w.config.BatchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load batch")
		return nil, fmt.Errorf("failed to load pending webhook events: %w", err)
	}

	result := &BatchResult{}
	clients := newClientCache(w.clients)
	for _, ev := range events {
		status := w.handleEvent(ctx, ev, clients)
		result.Processed++
		switch status {
		case accounting.ProcessStatusReconciled:
			result.Reconciled++
		case accounting.ProcessStatusIgnored:
			result.Ignored++
		case accounting.ProcessStatusError:
			result.Errored++
		}
	}

	elapsed := w.now().Sub(started)
	span.SetAttributes(
		attribute.Int("accounting.batch.processed", result.Processed),
		attribute.Int("accounting.batch.errored", result.Errored))
	w.recorder.RecordBatch(ctx, *result, elapsed)
	if result.Processed > 0 {
		w.logger.Info("Reconciliation batch finished",
			zap.Int("processed", result.Processed),
			zap.Int("reconciled", result.Reconciled),
			zap.Int("ignored", result.Ignored),
			zap.Int("errored", result.Errored),
			zap.Duration("elapsed", elapsed))
	}
	return result, nil
}

// handleEvent reconciles one event and persists its new status. It returns
// the status the event ended the batch in.
func (w *ReconciliationWorker) handleEvent(ctx context.Context, ev *accounting.WebhookEvent, clients *clientCache) accounting.ProcessStatus {
	ctx, span := w.tracer.Start(ctx, "accounting.reconcile_event", trace.WithAttributes(
		attribute.String("accounting.event_id", ev.EventID),
		attribute.String("accounting.entity", ev.EntityName),
		attribute.String("accounting.operation", string(ev.Operation))))
	defer span.End()

	outcome := w.processEvent(ctx, ev, clients)
	now := w.now()

	if w.config.RetryPersistenceFailures && outcome.IsPersistenceFailure() {
		if ev.Reschedule(outcome.Message, w.config.MaxAttempts, w.config.RetryBaseDelay, now) {
			w.logger.Info("Rescheduled webhook event after persistence failure",
				zap.String("event_id", ev.EventID),
				zap.Int("attempts", ev.Attempts),
				zap.Timep("next_attempt_at", ev.NextAttemptAt))
		}
	} else {
		ev.Apply(outcome, now)
	}

	if ev.Status == accounting.ProcessStatusError {
		span.SetStatus(codes.Error, ev.ProcessError)
	}
	span.SetAttributes(attribute.String("accounting.status", string(ev.Status)))

	if err := w.events.Update(ctx, ev); err != nil {
		w.logger.Error("Failed to persist webhook event status",
			zap.String("event_id", ev.EventID),
			zap.String("status", string(ev.Status)),
			zap.Error(err))
	}
	w.recorder.RecordEvent(ctx, ev.Kind(), ev.Status)
	return ev.Status
}

// processEvent is the per-event failure boundary. Panics become error outcomes.
func (w *ReconciliationWorker) processEvent(ctx context.Context, ev *accounting.WebhookEvent, clients *clientCache) (outcome accounting.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Panic while reconciling webhook event",
				zap.String("event_id", ev.EventID),
				zap.Any("panic", r),
				zap.Stack("stack"))
			outcome = accounting.Failed(fmt.Errorf("panic: %v", r))
		}
	}()

	if err := w.validate.Struct(eventContext{
		RealmID:    ev.RealmID,
		EntityName: ev.EntityName,
		ExternalID: ev.ExternalID,
	}); err != nil {
		return accounting.Ignored(reasonMissingContext)
	}

	conn, err := w.connections.FindActiveByRealm(ctx, ev.RealmID)
	if err != nil {
		if errors.Is(err, accounting.ErrConnectionNotFound) {
			return accounting.Ignored(reasonNoConnection)
		}
		return accounting.Failed(accounting.NewPersistenceError("load connection", err))
	}

	client, err := clients.get(ctx, conn)
	if err != nil {
		return accounting.Failed(fmt.Errorf("failed to build accounting client: %w", err))
	}

	target := ReconcileTarget{
		Connection: conn,
		Client:     client,
		ExternalID: ev.ExternalID,
		Operation:  ev.Operation,
		EventID:    ev.EventID,
	}
	switch ev.Kind() {
	case accounting.EntityKindInvoice:
		return w.invoices.Reconcile(ctx, target)
	case accounting.EntityKindPayment:
		return w.payments.Reconcile(ctx, target)
	default:
		return accounting.Ignored("unhandled entity type: " + ev.EntityName)
	}
}
