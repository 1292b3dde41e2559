package accounting

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// InvoiceStatus is the local lifecycle status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "draft"
	InvoiceStatusSent    InvoiceStatus = "sent"
	InvoiceStatusPartial InvoiceStatus = "partial"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusOverdue InvoiceStatus = "overdue"
	InvoiceStatusVoid    InvoiceStatus = "void"
)

// Invoice holds the accounting-relevant columns of a local invoice.
type Invoice struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	ExternalID      string
	DocNumber       string
	Status          InvoiceStatus
	TotalCents      int64
	BalanceDueCents int64
	IssueDate       *time.Time
	DueDate         *time.Time
	SyncStatus      SyncStatus
	LastSyncedAt    *time.Time
}

// InvoicePatch is a partial update merged from an upstream snapshot. Nil
// fields are left untouched; Status, SyncStatus and SyncedAt are always written.
type InvoicePatch struct {
	Status          InvoiceStatus
	TotalCents      *int64
	BalanceDueCents *int64
	IssueDate       *time.Time
	DueDate         *time.Time
	DocNumber       *string
	SyncStatus      SyncStatus
	SyncedAt        time.Time
}

// DeriveInvoiceStatus picks the local status for an upstream snapshot. Rules
// are applied in priority order and the first match wins:
//
//  1. delete operation: void
//  2. total > 0 and balance <= 0: paid
//  3. total > 0 and 0 < balance < total: partial
//  4. balance > 0 and due date before today: overdue
//  5. otherwise: sent
//
// A nil amount or date never satisfies a rule that needs it. Dates compare by
// calendar day only.
func DeriveInvoiceStatus(op Operation, totalCents, balanceCents *int64, dueDate *time.Time, today time.Time) InvoiceStatus {
	if op.IsDelete() {
		return InvoiceStatusVoid
	}
	if totalCents != nil && balanceCents != nil && *totalCents > 0 {
		if *balanceCents <= 0 {
			return InvoiceStatusPaid
		}
		if *balanceCents < *totalCents {
			return InvoiceStatusPartial
		}
	}
	if balanceCents != nil && *balanceCents > 0 && dueDate != nil && CalendarDate(*dueDate).Before(CalendarDate(today)) {
		return InvoiceStatusOverdue
	}
	return InvoiceStatusSent
}

// VoidPatch returns the patch applied when the invoice was deleted upstream
func VoidPatch(at time.Time) InvoicePatch {
	zero := int64(0)
	return InvoicePatch{
		Status:          InvoiceStatusVoid,
		BalanceDueCents: &zero,
		SyncStatus:      SyncStatusSynced,
		SyncedAt:        at,
	}
}

// InvoiceRepository reads and patches local invoices
type InvoiceRepository interface {
	// FindIDByExternalID looks up an invoice by its own external_id column.
	// Returns ErrInvoiceNotFound when absent.
	FindIDByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (uuid.UUID, error)

	// FindByID returns ErrInvoiceNotFound when absent
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error)

	// ApplyPatch merges the patch into the invoice scoped to the tenant.
	// Returns ErrInvoiceNotFound if no row matched.
	ApplyPatch(ctx context.Context, tenantID, id uuid.UUID, patch InvoicePatch) error
}
