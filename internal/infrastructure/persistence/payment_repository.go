package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sitebook/backend/internal/domain/accounting"
	"github.com/sitebook/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormPaymentRepository implements accounting.PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindIDByExternalID looks up a payment id by its external_id column
func (r *GormPaymentRepository) FindIDByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (uuid.UUID, error) {
	var model models.PaymentModel
	err := r.db.WithContext(ctx).
		Select("id").
		Where("org_id = ? AND external_id = ?", tenantID, externalID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, accounting.ErrPaymentNotFound
		}
		return uuid.Nil, accounting.NewPersistenceError("find payment by external id", err)
	}
	return model.ID, nil
}

// FindByID finds a payment by id within the tenant
func (r *GormPaymentRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*accounting.Payment, error) {
	var model models.PaymentModel
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", tenantID, id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, accounting.ErrPaymentNotFound
		}
		return nil, accounting.NewPersistenceError("find payment", err)
	}
	return model.ToDomain(), nil
}

// Ensure interface compliance
var _ accounting.PaymentRepository = (*GormPaymentRepository)(nil)
