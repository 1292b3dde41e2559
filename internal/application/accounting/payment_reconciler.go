package accounting

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sitebook/backend/internal/domain/accounting"
	"go.uber.org/zap"
)

const reasonNoInvoiceToReconcile = "no local invoice to reconcile"

// PaymentReconciler reconciles every invoice a payment applies to. The
// payment's own local row is only marked synced.
type PaymentReconciler struct {
	resolver     *EntityResolver
	invoices     EntityReconciler
	payments     accounting.PaymentRepository
	invoiceRepo  accounting.InvoiceRepository
	syncRecords  accounting.SyncRecordRepository
	fetchTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// PaymentReconcilerConfig contains configuration for PaymentReconciler
type PaymentReconcilerConfig struct {
	Resolver          *EntityResolver
	InvoiceReconciler EntityReconciler
	Payments          accounting.PaymentRepository
	Invoices          accounting.InvoiceRepository
	SyncRecords       accounting.SyncRecordRepository
	FetchTimeout      time.Duration
	Logger            *zap.Logger
	Clock             func() time.Time
}

// NewPaymentReconciler creates a new PaymentReconciler
func NewPaymentReconciler(cfg PaymentReconcilerConfig) *PaymentReconciler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &PaymentReconciler{
		resolver:     cfg.Resolver,
		invoices:     cfg.InvoiceReconciler,
		payments:     cfg.Payments,
		invoiceRepo:  cfg.Invoices,
		syncRecords:  cfg.SyncRecords,
		fetchTimeout: cfg.FetchTimeout,
		logger:       logger,
		now:          clock,
	}
}

// Reconcile fans out to the invoices linked from the payment. Linked ids come
// from the upstream snapshot, or from the local payment's invoice when the
// payment was deleted or is gone upstream.
func (r *PaymentReconciler) Reconcile(ctx context.Context, t ReconcileTarget) accounting.Outcome {
	tenantID := t.Connection.TenantID
	log := r.logger.With(
		zap.String("tenant_id", tenantID.String()),
		zap.String("event_id", t.EventID),
		zap.String("entity", accounting.EntityKindPayment.String()),
		zap.String("external_id", t.ExternalID))

	var (
		invoiceIDs []string
		syncToken  string
	)
	if !t.Operation.IsDelete() {
		fetchCtx, cancel := withFetchTimeout(ctx, r.fetchTimeout)
		snap, err := t.Client.GetPaymentByID(fetchCtx, t.ExternalID)
		cancel()
		switch {
		case err == nil:
			invoiceIDs = snap.LinkedInvoiceIDs()
			syncToken = snap.SyncToken
		case errors.Is(err, accounting.ErrUpstreamNotFound):
			log.Info("Payment not found upstream, using local linkage")
		default:
			log.Warn("Payment fetch failed", zap.Error(err))
			return fetchOutcome("fetch payment", err)
		}
	}

	localPaymentID, resolveErr := r.resolver.Resolve(ctx, tenantID, accounting.EntityTypePayment, t.ExternalID)
	if resolveErr != nil && !errors.Is(resolveErr, accounting.ErrNoLocalMapping) {
		log.Warn("Failed to resolve local payment", zap.Error(resolveErr))
	}
	paymentResolved := resolveErr == nil

	if len(invoiceIDs) == 0 && paymentResolved {
		invoiceIDs = r.historicalInvoiceIDs(ctx, log, tenantID, localPaymentID)
	}

	reconciled := 0
	for _, invoiceID := range invoiceIDs {
		outcome := r.invoices.Reconcile(ctx, ReconcileTarget{
			Connection: t.Connection,
			Client:     t.Client,
			ExternalID: invoiceID,
			Operation:  accounting.OperationUpdate,
			EventID:    t.EventID,
		})
		if outcome.Status == accounting.ProcessStatusReconciled {
			reconciled++
		}
	}

	if paymentResolved {
		record := accounting.NewSyncedRecord(tenantID, accounting.EntityTypePayment, localPaymentID, t.ExternalID, syncToken, r.now())
		if err := r.syncRecords.Upsert(ctx, record); err != nil {
			log.Error("Failed to upsert payment sync record", zap.Error(err))
		}
	}

	log.Info("Payment reconciled",
		zap.Int("linked_invoices", len(invoiceIDs)),
		zap.Int("reconciled_invoices", reconciled))
	if reconciled == 0 {
		return accounting.Ignored(reasonNoInvoiceToReconcile)
	}
	return accounting.Reconciled()
}

// historicalInvoiceIDs returns the external id of the invoice the local
// payment was recorded against, if any.
func (r *PaymentReconciler) historicalInvoiceIDs(ctx context.Context, log *zap.Logger, tenantID, paymentID uuid.UUID) []string {
	payment, err := r.payments.FindByID(ctx, tenantID, paymentID)
	if err != nil {
		log.Warn("Failed to load local payment", zap.Error(err))
		return nil
	}
	if payment.InvoiceID == nil {
		return nil
	}

	invoice, err := r.invoiceRepo.FindByID(ctx, tenantID, *payment.InvoiceID)
	if err != nil {
		log.Warn("Failed to load linked invoice", zap.Error(err))
		return nil
	}
	if invoice.ExternalID != "" {
		return []string{invoice.ExternalID}
	}

	record, err := r.syncRecords.FindByLocalID(ctx, tenantID, accounting.EntityTypeInvoice, invoice.ID)
	if err != nil {
		return nil
	}
	return []string{record.ExternalID}
}
