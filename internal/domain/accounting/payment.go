package accounting

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Payment holds the accounting-relevant columns of a local payment.
type Payment struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	ExternalID string
	InvoiceID  *uuid.UUID
}

// PaymentRepository reads local payments
type PaymentRepository interface {
	// FindIDByExternalID returns ErrPaymentNotFound when absent
	FindIDByExternalID(ctx context.Context, tenantID uuid.UUID, externalID string) (uuid.UUID, error)

	// FindByID returns ErrPaymentNotFound when absent
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Payment, error)
}

// InvoiceSnapshot is the upstream view of an invoice. Amounts and dates are
// kept as received; normalization happens during reconciliation.
type InvoiceSnapshot struct {
	ID        string
	DocNumber string
	SyncToken string
	TotalAmt  string
	Balance   string
	TxnDate   string
	DueDate   string
}

// LinkedTxn references another upstream transaction
type LinkedTxn struct {
	TxnID   string
	TxnType string
}

// PaymentLine is one application of a payment
type PaymentLine struct {
	Amount     string
	LinkedTxns []LinkedTxn
}

// PaymentSnapshot is the upstream view of a payment
type PaymentSnapshot struct {
	ID        string
	SyncToken string
	TotalAmt  string
	Lines     []PaymentLine
}

// LinkedInvoiceIDs returns the distinct invoice ids the payment applies to,
// in the order they first appear.
func (p *PaymentSnapshot) LinkedInvoiceIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, line := range p.Lines {
		for _, txn := range line.LinkedTxns {
			if !strings.EqualFold(txn.TxnType, "Invoice") || txn.TxnID == "" {
				continue
			}
			if _, ok := seen[txn.TxnID]; ok {
				continue
			}
			seen[txn.TxnID] = struct{}{}
			ids = append(ids, txn.TxnID)
		}
	}
	return ids
}

// AccountingClient fetches entity snapshots from the external system.
// Implementations return ErrUpstreamNotFound when the entity does not exist.
type AccountingClient interface {
	GetInvoiceByID(ctx context.Context, id string) (*InvoiceSnapshot, error)
	GetPaymentByID(ctx context.Context, id string) (*PaymentSnapshot, error)
}

// ClientFactory builds an AccountingClient authorized for a connection
type ClientFactory interface {
	ForConnection(ctx context.Context, conn *IntegrationConnection) (AccountingClient, error)
}
