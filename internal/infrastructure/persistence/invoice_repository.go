package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sitebook/backend/internal/domain/accounting"
	"github.com/sitebook/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormInvoiceRepository implements accounting.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// FindIDByExternalID looks up an invoice id by its external_id column
func (r *GormInvoiceRepository) FindIDByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (uuid.UUID, error) {
	var model models.InvoiceModel
	err := r.db.WithContext(ctx).
		Select("id").
		Where("org_id = ? AND external_id = ?", tenantID, externalID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, accounting.ErrInvoiceNotFound
		}
		return uuid.Nil, accounting.NewPersistenceError("find invoice by external id", err)
	}
	return model.ID, nil
}

// FindByID finds an invoice by id within the tenant
func (r *GormInvoiceRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*accounting.Invoice, error) {
	var model models.InvoiceModel
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", tenantID, id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, accounting.ErrInvoiceNotFound
		}
		return nil, accounting.NewPersistenceError("find invoice", err)
	}
	return model.ToDomain(), nil
}

// ApplyPatch writes the non-nil patch fields to the invoice
func (r *GormInvoiceRepository) ApplyPatch(ctx context.Context, tenantID, id uuid.UUID, patch accounting.InvoicePatch) error {
	updates := map[string]any{
		"status":         string(patch.Status),
		"sync_status":    string(patch.SyncStatus),
		"last_synced_at": patch.SyncedAt,
		"updated_at":     patch.SyncedAt,
	}
	if patch.TotalCents != nil {
		updates["total_cents"] = *patch.TotalCents
	}
	if patch.BalanceDueCents != nil {
		updates["balance_due_cents"] = *patch.BalanceDueCents
	}
	if patch.IssueDate != nil {
		updates["issue_date"] = *patch.IssueDate
	}
	if patch.DueDate != nil {
		updates["due_date"] = *patch.DueDate
	}
	if patch.DocNumber != nil {
		updates["invoice_number"] = *patch.DocNumber
	}

	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("org_id = ? AND id = ?", tenantID, id).
		Updates(updates)
	if result.Error != nil {
		return accounting.NewPersistenceError("apply invoice patch", result.Error)
	}
	if result.RowsAffected == 0 {
		return accounting.ErrInvoiceNotFound
	}
	return nil
}

// Ensure interface compliance
var _ accounting.InvoiceRepository = (*GormInvoiceRepository)(nil)
