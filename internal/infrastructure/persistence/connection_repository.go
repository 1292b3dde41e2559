package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sitebook/backend/internal/domain/accounting"
	"github.com/sitebook/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormConnectionRepository implements accounting.ConnectionRepository using GORM
type GormConnectionRepository struct {
	db *gorm.DB
}

// NewGormConnectionRepository creates a new GormConnectionRepository
func NewGormConnectionRepository(db *gorm.DB) *GormConnectionRepository {
	return &GormConnectionRepository{db: db}
}

// FindActiveByRealm returns the active connection for a realm
func (r *GormConnectionRepository) FindActiveByRealm(ctx context.Context, realmID string) (*accounting.IntegrationConnection, error) {
	var model models.IntegrationConnectionModel
	err := r.db.WithContext(ctx).
		Where("realm_id = ? AND status = ?", realmID, accounting.ConnectionStatusActive).
		Order("updated_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, accounting.ErrConnectionNotFound
		}
		return nil, accounting.NewPersistenceError("find connection", err)
	}
	return model.ToDomain(), nil
}

// UpdateTokens stores a refreshed token pair
func (r *GormConnectionRepository) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt *time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.IntegrationConnectionModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"access_token":     accessToken,
			"refresh_token":    refreshToken,
			"token_expires_at": expiresAt,
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return accounting.NewPersistenceError("update connection tokens", result.Error)
	}
	if result.RowsAffected == 0 {
		return accounting.ErrConnectionNotFound
	}
	return nil
}

// Ensure interface compliance
var _ accounting.ConnectionRepository = (*GormConnectionRepository)(nil)
