package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/sitebook/backend/internal/domain/accounting"
)

// WebhookEventModel is the persistence model for queued webhook events
type WebhookEventModel struct {
	ID            uuid.UUID                `gorm:"type:uuid;primaryKey"`
	EventID       string                   `gorm:"type:varchar(255);not null;uniqueIndex:idx_webhook_events_event_id"`
	PayloadHash   string                   `gorm:"type:varchar(64);not null"`
	RealmID       string                   `gorm:"type:varchar(64)"`
	EntityName    string                   `gorm:"type:varchar(64)"`
	ExternalID    string                   `gorm:"column:entity_external_id;type:varchar(64)"`
	Operation     string                   `gorm:"type:varchar(32)"`
	LastUpdated   *time.Time               `gorm:"column:last_updated"`
	ReceivedAt    time.Time                `gorm:"not null;index:idx_webhook_events_pending,priority:2"`
	Status        accounting.ProcessStatus `gorm:"column:process_status;type:varchar(20);not null;index:idx_webhook_events_pending,priority:1"`
	ProcessError  *string                  `gorm:"type:text"`
	ProcessedAt   *time.Time
	Attempts      int `gorm:"not null"`
	NextAttemptAt *time.Time
}

// TableName returns the table name for GORM
func (WebhookEventModel) TableName() string {
	return "accounting_webhook_events"
}

// ToDomain converts the persistence model to a domain WebhookEvent
func (m *WebhookEventModel) ToDomain() *accounting.WebhookEvent {
	return &accounting.WebhookEvent{
		ID:            m.ID,
		EventID:       m.EventID,
		PayloadHash:   m.PayloadHash,
		RealmID:       m.RealmID,
		EntityName:    m.EntityName,
		ExternalID:    m.ExternalID,
		Operation:     accounting.Operation(m.Operation),
		LastUpdated:   m.LastUpdated,
		ReceivedAt:    m.ReceivedAt,
		Status:        m.Status,
		ProcessError:  deref(m.ProcessError),
		ProcessedAt:   m.ProcessedAt,
		Attempts:      m.Attempts,
		NextAttemptAt: m.NextAttemptAt,
	}
}

// WebhookEventModelFromDomain creates a persistence model from a domain WebhookEvent
func WebhookEventModelFromDomain(e *accounting.WebhookEvent) *WebhookEventModel {
	return &WebhookEventModel{
		ID:            e.ID,
		EventID:       e.EventID,
		PayloadHash:   e.PayloadHash,
		RealmID:       e.RealmID,
		EntityName:    e.EntityName,
		ExternalID:    e.ExternalID,
		Operation:     string(e.Operation),
		LastUpdated:   e.LastUpdated,
		ReceivedAt:    e.ReceivedAt,
		Status:        e.Status,
		ProcessError:  ptrOrNil(e.ProcessError),
		ProcessedAt:   e.ProcessedAt,
		Attempts:      e.Attempts,
		NextAttemptAt: e.NextAttemptAt,
	}
}

// SyncRecordModel is the persistence model for accounting sync records
type SyncRecordModel struct {
	ID                uuid.UUID             `gorm:"type:uuid;primaryKey"`
	TenantID          uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex:idx_sync_records_local,priority:1;index:idx_sync_records_external,priority:1"`
	EntityType        accounting.EntityType `gorm:"type:varchar(32);not null;uniqueIndex:idx_sync_records_local,priority:2;index:idx_sync_records_external,priority:2"`
	LocalEntityID     uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex:idx_sync_records_local,priority:3"`
	ExternalID        string                `gorm:"type:varchar(64);not null;index:idx_sync_records_external,priority:3"`
	ExternalSyncToken *string               `gorm:"type:varchar(32)"`
	LastSyncedAt      *time.Time
	Status            accounting.SyncStatus `gorm:"type:varchar(20);not null"`
	ErrorMessage      *string               `gorm:"type:text"`
	CreatedAt         time.Time             `gorm:"not null"`
	UpdatedAt         time.Time             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncRecordModel) TableName() string {
	return "accounting_sync_records"
}

// ToDomain converts the persistence model to a domain SyncRecord
func (m *SyncRecordModel) ToDomain() *accounting.SyncRecord {
	return &accounting.SyncRecord{
		ID:                m.ID,
		TenantID:          m.TenantID,
		EntityType:        m.EntityType,
		LocalEntityID:     m.LocalEntityID,
		ExternalID:        m.ExternalID,
		ExternalSyncToken: deref(m.ExternalSyncToken),
		LastSyncedAt:      m.LastSyncedAt,
		Status:            m.Status,
		ErrorMessage:      deref(m.ErrorMessage),
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

// SyncRecordModelFromDomain creates a persistence model from a domain SyncRecord
func SyncRecordModelFromDomain(r *accounting.SyncRecord) *SyncRecordModel {
	return &SyncRecordModel{
		ID:                r.ID,
		TenantID:          r.TenantID,
		EntityType:        r.EntityType,
		LocalEntityID:     r.LocalEntityID,
		ExternalID:        r.ExternalID,
		ExternalSyncToken: ptrOrNil(r.ExternalSyncToken),
		LastSyncedAt:      r.LastSyncedAt,
		Status:            r.Status,
		ErrorMessage:      ptrOrNil(r.ErrorMessage),
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

// IntegrationConnectionModel is the persistence model for realm connections.
// Postgres enforces one ACTIVE row per (tenant, realm) with a partial index.
type IntegrationConnectionModel struct {
	ID             uuid.UUID                   `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID                   `gorm:"column:org_id;type:uuid;not null;index"`
	RealmID        string                      `gorm:"type:varchar(64);not null;index"`
	Status         accounting.ConnectionStatus `gorm:"type:varchar(20);not null"`
	AccessToken    string                      `gorm:"type:text"`
	RefreshToken   string                      `gorm:"type:text"`
	TokenExpiresAt *time.Time
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (IntegrationConnectionModel) TableName() string {
	return "integration_connections"
}

// ToDomain converts the persistence model to a domain IntegrationConnection
func (m *IntegrationConnectionModel) ToDomain() *accounting.IntegrationConnection {
	return &accounting.IntegrationConnection{
		ID:             m.ID,
		TenantID:       m.TenantID,
		RealmID:        m.RealmID,
		Status:         m.Status,
		AccessToken:    m.AccessToken,
		RefreshToken:   m.RefreshToken,
		TokenExpiresAt: m.TokenExpiresAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// InvoiceModel maps the accounting columns of the invoices table. Other
// columns belong to the invoicing service and are never touched here.
type InvoiceModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID        uuid.UUID `gorm:"column:org_id;type:uuid;not null;index"`
	ExternalID      *string   `gorm:"type:varchar(64);index"`
	DocNumber       *string   `gorm:"column:invoice_number;type:varchar(64)"`
	Status          string    `gorm:"type:varchar(20);not null"`
	TotalCents      int64     `gorm:"not null;default:0"`
	BalanceDueCents int64     `gorm:"not null;default:0"`
	IssueDate       *time.Time
	DueDate         *time.Time
	SyncStatus      *string `gorm:"type:varchar(20)"`
	LastSyncedAt    *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice
func (m *InvoiceModel) ToDomain() *accounting.Invoice {
	return &accounting.Invoice{
		ID:              m.ID,
		TenantID:        m.TenantID,
		ExternalID:      deref(m.ExternalID),
		DocNumber:       deref(m.DocNumber),
		Status:          accounting.InvoiceStatus(m.Status),
		TotalCents:      m.TotalCents,
		BalanceDueCents: m.BalanceDueCents,
		IssueDate:       m.IssueDate,
		DueDate:         m.DueDate,
		SyncStatus:      accounting.SyncStatus(deref(m.SyncStatus)),
		LastSyncedAt:    m.LastSyncedAt,
	}
}

// PaymentModel maps the accounting columns of the payments table
type PaymentModel struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID  `gorm:"column:org_id;type:uuid;not null;index"`
	ExternalID *string    `gorm:"type:varchar(64);index"`
	InvoiceID  *uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() *accounting.Payment {
	return &accounting.Payment{
		ID:         m.ID,
		TenantID:   m.TenantID,
		ExternalID: deref(m.ExternalID),
		InvoiceID:  m.InvoiceID,
	}
}

// AccountingModels lists every model of the accounting tables
func AccountingModels() []any {
	return []any{
		&WebhookEventModel{},
		&SyncRecordModel{},
		&IntegrationConnectionModel{},
		&InvoiceModel{},
		&PaymentModel{},
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
