package accounting

import (
	"fmt"

	"github.com/sitebook/backend/internal/domain/shared"
)

var (
	// ErrWebhookUnauthorized is returned when a webhook request fails both
	// signature verification and the legacy shared-secret check.
	ErrWebhookUnauthorized = shared.NewDomainError("WEBHOOK_UNAUTHORIZED", "webhook signature verification failed")
	// ErrWorkerUnauthorized is returned when a reconcile trigger is not authorized.
	ErrWorkerUnauthorized = shared.NewDomainError("WORKER_UNAUTHORIZED", "reconcile trigger not authorized")
	// ErrNoLocalMapping means an external entity has no local counterpart.
	// This is the normal state for entities created only upstream.
	ErrNoLocalMapping = shared.NewDomainError("NO_LOCAL_MAPPING", "no local entity mapping")
	// ErrUpstreamNotFound means the external system no longer has the entity.
	ErrUpstreamNotFound = shared.NewDomainError("UPSTREAM_NOT_FOUND", "not found upstream")
	// ErrReconcileInProgress is returned when another worker run holds the run lock.
	ErrReconcileInProgress = shared.NewDomainError("RECONCILE_IN_PROGRESS", "reconciliation already running")

	ErrConnectionNotFound = shared.NewDomainError("CONNECTION_NOT_FOUND", "no active org connection for realm")
	ErrSyncRecordNotFound = shared.NewDomainError("SYNC_RECORD_NOT_FOUND", "sync record not found")
	ErrInvoiceNotFound    = shared.NewDomainError("INVOICE_NOT_FOUND", "invoice not found")
	ErrPaymentNotFound    = shared.NewDomainError("PAYMENT_NOT_FOUND", "payment not found")
)

// PersistenceError wraps a failure to read or write local state, or an
// external fetch that ran past its deadline. Events failing this way may
// succeed on a later run.
type PersistenceError struct {
	Op  string
	Err error
}

// NewPersistenceError wraps err with the operation that failed
func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ValidationError reports a webhook payload that could not be parsed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid webhook payload: " + e.Reason
}
