package accounting

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sitebook/backend/internal/domain/accounting"
)

// EntityResolver maps external ids to local entity ids. Sync records are
// checked first, then the entity's own external_id column.
type EntityResolver struct {
	syncRecords accounting.SyncRecordRepository
	invoices    accounting.InvoiceRepository
	payments    accounting.PaymentRepository
}

// NewEntityResolver creates a new EntityResolver
func NewEntityResolver(syncRecords accounting.SyncRecordRepository, invoices accounting.InvoiceRepository, payments accounting.PaymentRepository) *EntityResolver {
	return &EntityResolver{
		syncRecords: syncRecords,
		invoices:    invoices,
		payments:    payments,
	}
}

// Resolve returns the local id for an external entity, or ErrNoLocalMapping
func (r *EntityResolver) Resolve(ctx context.Context, tenantID uuid.UUID, entityType accounting.EntityType, externalID string) (uuid.UUID, error) {
	record, err := r.syncRecords.FindByExternalID(ctx, tenantID, entityType, externalID)
	switch {
	case err == nil:
		return record.LocalEntityID, nil
	case !errors.Is(err, accounting.ErrSyncRecordNotFound):
		return uuid.Nil, fmt.Errorf("failed to look up sync record: %w", err)
	}

	var (
		id          uuid.UUID
		notFoundErr error
	)
	switch entityType {
	case accounting.EntityTypeInvoice:
		id, err = r.invoices.FindIDByExternalID(ctx, tenantID, externalID)
		notFoundErr = accounting.ErrInvoiceNotFound
	case accounting.EntityTypePayment:
		id, err = r.payments.FindIDByExternalID(ctx, tenantID, externalID)
		notFoundErr = accounting.ErrPaymentNotFound
	default:
		return uuid.Nil, accounting.ErrNoLocalMapping
	}

	if err != nil {
		if errors.Is(err, notFoundErr) {
			return uuid.Nil, accounting.ErrNoLocalMapping
		}
		return uuid.Nil, fmt.Errorf("failed to look up %s by external id: %w", entityType, err)
	}
	return id, nil
}
