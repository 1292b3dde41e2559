package accounting

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProcessStatus is the lifecycle status of a queued webhook event
type ProcessStatus string

const (
	ProcessStatusPending    ProcessStatus = "pending"
	ProcessStatusReconciled ProcessStatus = "reconciled"
	ProcessStatusIgnored    ProcessStatus = "ignored"
	ProcessStatusError      ProcessStatus = "error"
)

// IsTerminal returns true once the worker is done with the event
func (s ProcessStatus) IsTerminal() bool {
	return s == ProcessStatusReconciled || s == ProcessStatusIgnored || s == ProcessStatusError
}

// IsValid reports whether s is a known status
func (s ProcessStatus) IsValid() bool {
	return s == ProcessStatusPending || s.IsTerminal()
}

const (
	// DefaultRetryBaseDelay is the first backoff step for rescheduled events
	DefaultRetryBaseDelay = 30 * time.Second
	// MaxRetryDelay caps the backoff between attempts
	MaxRetryDelay = 24 * time.Hour
)

// Notification is one entity change extracted from a webhook payload.
type Notification struct {
	EventID     string
	RealmID     string
	EntityName  string
	EntityID    string
	Operation   Operation
	LastUpdated *time.Time
	// LastUpdatedRaw is the timestamp exactly as the provider sent it
	LastUpdatedRaw string
}

// DedupID returns the notification's provider id, or a content hash of
// realm, entity, id, operation and the raw last-updated stamp when the
// provider sent none. Without any stamp the payload hash stands in for it,
// so distinct deliveries about the same entity never collapse.
func (n Notification) DedupID(payloadHash string) string {
	if n.EventID != "" {
		return n.EventID
	}
	stamp := n.LastUpdatedRaw
	if stamp == "" && n.LastUpdated != nil {
		stamp = n.LastUpdated.UTC().Format(time.RFC3339Nano)
	}
	if stamp == "" {
		stamp = "payload:" + payloadHash
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{
		n.RealmID, n.EntityName, n.EntityID, string(n.Operation), stamp,
	}, "|")))
	return hex.EncodeToString(sum[:])
}

// PayloadHash returns the sha256 hex digest of a raw webhook body
func PayloadHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// WebhookEvent is a queued entity-change notification. Rows are append-only
// apart from the status transition and are never deleted.
type WebhookEvent struct {
	ID            uuid.UUID
	EventID       string
	PayloadHash   string
	RealmID       string
	EntityName    string
	ExternalID    string
	Operation     Operation
	LastUpdated   *time.Time
	ReceivedAt    time.Time
	Status        ProcessStatus
	ProcessError  string
	ProcessedAt   *time.Time
	Attempts      int
	NextAttemptAt *time.Time
}

// NewWebhookEvent creates a pending event from a parsed notification
func NewWebhookEvent(n Notification, payloadHash string, receivedAt time.Time) *WebhookEvent {
	return &WebhookEvent{
		ID:          uuid.New(),
		EventID:     n.DedupID(payloadHash),
		PayloadHash: payloadHash,
		RealmID:     n.RealmID,
		EntityName:  n.EntityName,
		ExternalID:  n.EntityID,
		Operation:   n.Operation,
		LastUpdated: n.LastUpdated,
		ReceivedAt:  receivedAt,
		Status:      ProcessStatusPending,
	}
}

// Kind returns the parsed entity kind
func (e *WebhookEvent) Kind() EntityKind {
	return ParseEntityKind(e.EntityName)
}

// Apply records a terminal outcome on the event.
func (e *WebhookEvent) Apply(o Outcome, at time.Time) {
	e.Status = o.Status
	e.ProcessError = o.Message
	e.ProcessedAt = &at
	e.NextAttemptAt = nil
}

// Reschedule keeps the event pending after a retryable failure, backing off
// exponentially from base. Once maxAttempts is reached the event moves to
// error instead and false is returned.
func (e *WebhookEvent) Reschedule(errMsg string, maxAttempts int, base time.Duration, now time.Time) bool {
	e.Attempts++
	e.ProcessError = errMsg
	if e.Attempts >= maxAttempts {
		e.Status = ProcessStatusError
		e.ProcessedAt = &now
		e.NextAttemptAt = nil
		return false
	}
	if base <= 0 {
		base = DefaultRetryBaseDelay
	}
	next := now.Add(retryDelay(base, e.Attempts))
	e.Status = ProcessStatusPending
	e.NextAttemptAt = &next
	return true
}

// retryDelay is base doubled per prior attempt, capped at MaxRetryDelay
func retryDelay(base time.Duration, attempts int) time.Duration {
	delay := base
	for i := 1; i < attempts; i++ {
		if delay >= MaxRetryDelay/2 {
			return MaxRetryDelay
		}
		delay *= 2
	}
	return min(delay, MaxRetryDelay)
}

// WebhookEventFilter narrows event listings
type WebhookEventFilter struct {
	Status ProcessStatus
	Limit  int
}

// WebhookEventRepository persists the event log
type WebhookEventRepository interface {
	// SaveNew inserts events, skipping any whose EventID already exists.
	// It returns the number of rows actually inserted.
	SaveNew(ctx context.Context, events ...*WebhookEvent) (int64, error)

	// FindPending returns up to limit pending events due at now, oldest first
	FindPending(ctx context.Context, now time.Time, limit int) ([]*WebhookEvent, error)

	// Update persists the status fields of an event
	Update(ctx context.Context, event *WebhookEvent) error

	// FindAll lists events, newest first
	FindAll(ctx context.Context, filter WebhookEventFilter) ([]*WebhookEvent, error)

	// CountByStatus returns the number of events in each status
	CountByStatus(ctx context.Context) (map[ProcessStatus]int64, error)
}
