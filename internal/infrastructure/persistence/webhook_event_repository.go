package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sitebook/backend/internal/domain/accounting"
	"github.com/sitebook/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormWebhookEventRepository implements accounting.WebhookEventRepository using GORM
type GormWebhookEventRepository struct {
	db *gorm.DB
}

// NewGormWebhookEventRepository creates a new GormWebhookEventRepository
func NewGormWebhookEventRepository(db *gorm.DB) *GormWebhookEventRepository {
	return &GormWebhookEventRepository{db: db}
}

// SaveNew inserts events, skipping duplicates by event_id
func (r *GormWebhookEventRepository) SaveNew(ctx context.Context, events ...*accounting.WebhookEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}

	rows := make([]*models.WebhookEventModel, 0, len(events))
	for _, e := range events {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		rows = append(rows, models.WebhookEventModelFromDomain(e))
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(&rows)
	if result.Error != nil {
		return 0, accounting.NewPersistenceError("save webhook events", result.Error)
	}
	return result.RowsAffected, nil
}

// FindPending returns pending events due at now, oldest first
func (r *GormWebhookEventRepository) FindPending(ctx context.Context, now time.Time, limit int) ([]*accounting.WebhookEvent, error) {
	var rows []models.WebhookEventModel
	err := r.db.WithContext(ctx).
		Where("process_status = ?", accounting.ProcessStatusPending).
		Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
		Order("received_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, accounting.NewPersistenceError("find pending webhook events", err)
	}
	return toEvents(rows), nil
}

// Update writes the processing fields of an event
func (r *GormWebhookEventRepository) Update(ctx context.Context, event *accounting.WebhookEvent) error {
	result := r.db.WithContext(ctx).
		Model(&models.WebhookEventModel{}).
		Where("id = ?", event.ID).
		Updates(map[string]any{
			"process_status":  event.Status,
			"process_error":   nullableString(event.ProcessError),
			"processed_at":    event.ProcessedAt,
			"attempts":        event.Attempts,
			"next_attempt_at": event.NextAttemptAt,
		})
	if result.Error != nil {
		return accounting.NewPersistenceError("update webhook event", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("webhook event %s: %w", event.ID, gorm.ErrRecordNotFound)
	}
	return nil
}

// FindAll lists events, newest first
func (r *GormWebhookEventRepository) FindAll(ctx context.Context, filter accounting.WebhookEventFilter) ([]*accounting.WebhookEvent, error) {
	query := r.db.WithContext(ctx).Model(&models.WebhookEventModel{})
	if filter.Status != "" {
		query = query.Where("process_status = ?", filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var rows []models.WebhookEventModel
	if err := query.Order("received_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, accounting.NewPersistenceError("list webhook events", err)
	}
	return toEvents(rows), nil
}

// CountByStatus returns the number of events in each status
func (r *GormWebhookEventRepository) CountByStatus(ctx context.Context) (map[accounting.ProcessStatus]int64, error) {
	var rows []struct {
		Status accounting.ProcessStatus `gorm:"column:process_status"`
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.WebhookEventModel{}).
		Select("process_status, COUNT(*) AS count").
		Group("process_status").
		Scan(&rows).Error
	if err != nil {
		return nil, accounting.NewPersistenceError("count webhook events", err)
	}

	counts := make(map[accounting.ProcessStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func toEvents(rows []models.WebhookEventModel) []*accounting.WebhookEvent {
	events := make([]*accounting.WebhookEvent, 0, len(rows))
	for i := range rows {
		events = append(events, rows[i].ToDomain())
	}
	return events
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Ensure interface compliance
var _ accounting.WebhookEventRepository = (*GormWebhookEventRepository)(nil)
