package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sitebook/backend/internal/domain/accounting"
	"github.com/sitebook/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSyncRecordRepository implements accounting.SyncRecordRepository using GORM
type GormSyncRecordRepository struct {
	db *gorm.DB
}

// NewGormSyncRecordRepository creates a new GormSyncRecordRepository
func NewGormSyncRecordRepository(db *gorm.DB) *GormSyncRecordRepository {
	return &GormSyncRecordRepository{db: db}
}

// Upsert inserts the record or updates the row for the same local entity.
// The stored sync token is kept when the record carries none.
func (r *GormSyncRecordRepository) Upsert(ctx context.Context, record *accounting.SyncRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	columns := []string{"external_id", "last_synced_at", "status", "error_message", "updated_at"}
	if record.ExternalSyncToken != "" {
		columns = append(columns, "external_sync_token")
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "tenant_id"},
				{Name: "entity_type"},
				{Name: "local_entity_id"},
			},
			DoUpdates: clause.AssignmentColumns(columns),
		}).
		Create(models.SyncRecordModelFromDomain(record)).Error
	if err != nil {
		return accounting.NewPersistenceError("upsert sync record", err)
	}
	return nil
}

// FindByExternalID finds a record by its external id
func (r *GormSyncRecordRepository) FindByExternalID(ctx context.Context, tenantID uuid.UUID, entityType accounting.EntityType, externalID string) (*accounting.SyncRecord, error) {
	return r.findOne(ctx, "external_id = ?", tenantID, entityType, externalID)
}

// FindByLocalID finds a record by its local entity id
func (r *GormSyncRecordRepository) FindByLocalID(ctx context.Context, tenantID uuid.UUID, entityType accounting.EntityType, localID uuid.UUID) (*accounting.SyncRecord, error) {
	return r.findOne(ctx, "local_entity_id = ?", tenantID, entityType, localID)
}

func (r *GormSyncRecordRepository) findOne(ctx context.Context, cond string, tenantID uuid.UUID, entityType accounting.EntityType, value any) (*accounting.SyncRecord, error) {
	var model models.SyncRecordModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ?", tenantID, entityType).
		Where(cond, value).
		Order("updated_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, accounting.ErrSyncRecordNotFound
		}
		return nil, accounting.NewPersistenceError("find sync record", err)
	}
	return model.ToDomain(), nil
}

// Ensure interface compliance
var _ accounting.SyncRecordRepository = (*GormSyncRecordRepository)(nil)
