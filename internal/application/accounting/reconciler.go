package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sitebook/backend/internal/domain/accounting"
)

// DefaultFetchTimeout bounds a single snapshot fetch from the external system
const DefaultFetchTimeout = 20 * time.Second

// ReconcileTarget identifies one external entity to reconcile for a connection
type ReconcileTarget struct {
	Connection *accounting.IntegrationConnection
	Client     accounting.AccountingClient
	ExternalID string
	Operation  accounting.Operation
	EventID    string
}

// EntityReconciler reconciles one external entity into local state
type EntityReconciler interface {
	Reconcile(ctx context.Context, target ReconcileTarget) accounting.Outcome
}

// fetchOutcome classifies a failed snapshot fetch. Deadline expiry is a
// PersistenceError so the event can be retried on a later run.
func fetchOutcome(op string, err error) accounting.Outcome {
	switch {
	case errors.Is(err, accounting.ErrUpstreamNotFound):
		return accounting.Ignored(accounting.ErrUpstreamNotFound.Message)
	case errors.Is(err, context.DeadlineExceeded):
		return accounting.Failed(accounting.NewPersistenceError(op, err))
	default:
		return accounting.Failed(fmt.Errorf("%s: %w", op, err))
	}
}

func withFetchTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
