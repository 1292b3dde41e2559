package accounting

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EntityType identifies the local table a sync record points at
type EntityType string

const (
	EntityTypeInvoice EntityType = "invoice"
	EntityTypePayment EntityType = "payment"
)

// SyncStatus is the sync state written on sync records and local entities
type SyncStatus string

const (
	SyncStatusSynced SyncStatus = "synced"
	SyncStatusError  SyncStatus = "error"
)

// SyncRecord links a local entity to its external counterpart. There is at
// most one record per (tenant, entity type, local entity).
type SyncRecord struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	EntityType        EntityType
	LocalEntityID     uuid.UUID
	ExternalID        string
	ExternalSyncToken string
	LastSyncedAt      *time.Time
	Status            SyncStatus
	ErrorMessage      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewSyncedRecord builds a record marking the entity as synced at the given time.
// An empty syncToken leaves any stored token unchanged on upsert.
func NewSyncedRecord(tenantID uuid.UUID, entityType EntityType, localID uuid.UUID, externalID, syncToken string, at time.Time) *SyncRecord {
	return &SyncRecord{
		ID:                uuid.New(),
		TenantID:          tenantID,
		EntityType:        entityType,
		LocalEntityID:     localID,
		ExternalID:        externalID,
		ExternalSyncToken: syncToken,
		LastSyncedAt:      &at,
		Status:            SyncStatusSynced,
		CreatedAt:         at,
		UpdatedAt:         at,
	}
}

// SyncRecordRepository persists sync records
type SyncRecordRepository interface {
	// Upsert inserts the record or updates the existing one for the same
	// (tenant, entity type, local entity).
	Upsert(ctx context.Context, record *SyncRecord) error

	// FindByExternalID returns ErrSyncRecordNotFound when absent
	FindByExternalID(ctx context.Context, tenantID uuid.UUID, entityType EntityType, externalID string) (*SyncRecord, error)

	// FindByLocalID returns ErrSyncRecordNotFound when absent
	FindByLocalID(ctx context.Context, tenantID uuid.UUID, entityType EntityType, localID uuid.UUID) (*SyncRecord, error)
}
