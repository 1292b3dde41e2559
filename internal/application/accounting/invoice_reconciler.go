package accounting

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sitebook/backend/internal/domain/accounting"
	"go.uber.org/zap"
)

const reasonNoLocalInvoice = "no local invoice mapping"

// InvoiceReconciler merges upstream invoice snapshots into local invoices
type InvoiceReconciler struct {
	resolver     *EntityResolver
	invoices     accounting.InvoiceRepository
	syncRecords  accounting.SyncRecordRepository
	fetchTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// InvoiceReconcilerConfig contains configuration for InvoiceReconciler
type InvoiceReconcilerConfig struct {
	Resolver     *EntityResolver
	Invoices     accounting.InvoiceRepository
	SyncRecords  accounting.SyncRecordRepository
	FetchTimeout time.Duration
	Logger       *zap.Logger
	Clock        func() time.Time
}

// NewInvoiceReconciler creates a new InvoiceReconciler
func NewInvoiceReconciler(cfg InvoiceReconcilerConfig) *InvoiceReconciler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &InvoiceReconciler{
		resolver:     cfg.Resolver,
		invoices:     cfg.Invoices,
		syncRecords:  cfg.SyncRecords,
		fetchTimeout: cfg.FetchTimeout,
		logger:       logger,
		now:          clock,
	}
}

// Reconcile brings the local invoice in line with the upstream one. A delete
// voids the invoice without contacting upstream.
func (r *InvoiceReconciler) Reconcile(ctx context.Context, t ReconcileTarget) accounting.Outcome {
	tenantID := t.Connection.TenantID
	log := r.logger.With(
		zap.String("tenant_id", tenantID.String()),
		zap.String("event_id", t.EventID),
		zap.String("entity", accounting.EntityKindInvoice.String()),
		zap.String("external_id", t.ExternalID))

	localID, err := r.resolver.Resolve(ctx, tenantID, accounting.EntityTypeInvoice, t.ExternalID)
	if err != nil {
		if errors.Is(err, accounting.ErrNoLocalMapping) {
			log.Debug("No local invoice for external id")
			return accounting.Ignored(reasonNoLocalInvoice)
		}
		return accounting.Failed(accounting.NewPersistenceError("resolve invoice", err))
	}

	now := r.now()
	if t.Operation.IsDelete() {
		return r.apply(ctx, log, tenantID, localID, t.ExternalID, "", accounting.VoidPatch(now), now)
	}

	fetchCtx, cancel := withFetchTimeout(ctx, r.fetchTimeout)
	snap, err := t.Client.GetInvoiceByID(fetchCtx, t.ExternalID)
	cancel()
	if err != nil {
		outcome := fetchOutcome("fetch invoice", err)
		log.Warn("Invoice fetch failed", zap.String("status", string(outcome.Status)), zap.Error(err))
		return outcome
	}

	return r.apply(ctx, log, tenantID, localID, t.ExternalID, snap.SyncToken, BuildInvoicePatch(snap, t.Operation, now), now)
}

func (r *InvoiceReconciler) apply(ctx context.Context, log *zap.Logger, tenantID, localID uuid.UUID, externalID, syncToken string, patch accounting.InvoicePatch, now time.Time) accounting.Outcome {
	if err := r.invoices.ApplyPatch(ctx, tenantID, localID, patch); err != nil {
		log.Error("Failed to update invoice", zap.Error(err))
		return accounting.IgnoredPersistence(accounting.NewPersistenceError("update invoice", err))
	}

	record := accounting.NewSyncedRecord(tenantID, accounting.EntityTypeInvoice, localID, externalID, syncToken, now)
	if err := r.syncRecords.Upsert(ctx, record); err != nil {
		log.Error("Failed to upsert invoice sync record", zap.Error(err))
		return accounting.IgnoredPersistence(accounting.NewPersistenceError("upsert invoice sync record", err))
	}

	log.Info("Invoice reconciled",
		zap.String("invoice_id", localID.String()),
		zap.String("status", string(patch.Status)))
	return accounting.Reconciled()
}

// BuildInvoicePatch normalizes a snapshot into a partial invoice update.
// Fields that are blank or unparseable upstream stay nil and are not written.
func BuildInvoicePatch(snap *accounting.InvoiceSnapshot, op accounting.Operation, now time.Time) accounting.InvoicePatch {
	total := accounting.ParseMinorUnits(snap.TotalAmt)
	balance := accounting.ParseMinorUnits(snap.Balance)
	due := accounting.ParseCalendarDate(snap.DueDate)

	patch := accounting.InvoicePatch{
		Status:          accounting.DeriveInvoiceStatus(op, total, balance, due, now),
		TotalCents:      total,
		BalanceDueCents: balance,
		IssueDate:       accounting.ParseCalendarDate(snap.TxnDate),
		DueDate:         due,
		SyncStatus:      accounting.SyncStatusSynced,
		SyncedAt:        now,
	}
	if snap.DocNumber != "" {
		doc := snap.DocNumber
		patch.DocNumber = &doc
	}
	return patch
}
