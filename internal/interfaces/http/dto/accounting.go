package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/sitebook/backend/internal/domain/accounting"
)

// WebhookAck is the body returned to the webhook sender
type WebhookAck struct {
	Received  bool   `json:"received"`
	Processed int    `json:"processed,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ReconcileResponse reports the counts of one worker run
type ReconcileResponse struct {
	Processed  int `json:"processed"`
	Reconciled int `json:"reconciled"`
	Ignored    int `json:"ignored"`
	Errored    int `json:"errored"`
}

// ReconcileConflictResponse is returned while another run holds the lock
type ReconcileConflictResponse struct {
	Error string `json:"error"`
}

// WebhookEventListRequest holds the query parameters of the event listing
type WebhookEventListRequest struct {
	Status string `form:"status" binding:"omitempty,oneof=pending reconciled ignored error"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// Filter converts the request to a repository filter
func (r WebhookEventListRequest) Filter() accounting.WebhookEventFilter {
	return accounting.WebhookEventFilter{
		Status: accounting.ProcessStatus(r.Status),
		Limit:  r.Limit,
	}
}

// WebhookEventResponse is the operator view of one queued event
type WebhookEventResponse struct {
	ID            uuid.UUID  `json:"id"`
	EventID       string     `json:"event_id"`
	RealmID       string     `json:"realm_id"`
	EntityName    string     `json:"entity_name"`
	ExternalID    string     `json:"entity_external_id"`
	Operation     string     `json:"operation"`
	Status        string     `json:"process_status"`
	ProcessError  string     `json:"process_error,omitempty"`
	Attempts      int        `json:"attempts"`
	LastUpdated   *time.Time `json:"last_updated,omitempty"`
	ReceivedAt    time.Time  `json:"received_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
}

// WebhookEventListResponse pairs the listed events with per-status totals
type WebhookEventListResponse struct {
	Events []WebhookEventResponse `json:"events"`
	Counts map[string]int64       `json:"counts"`
}

// ToWebhookEventResponse converts a domain event for output
func ToWebhookEventResponse(e *accounting.WebhookEvent) WebhookEventResponse {
	return WebhookEventResponse{
		ID:            e.ID,
		EventID:       e.EventID,
		RealmID:       e.RealmID,
		EntityName:    e.EntityName,
		ExternalID:    e.ExternalID,
		Operation:     string(e.Operation),
		Status:        string(e.Status),
		ProcessError:  e.ProcessError,
		Attempts:      e.Attempts,
		LastUpdated:   e.LastUpdated,
		ReceivedAt:    e.ReceivedAt,
		ProcessedAt:   e.ProcessedAt,
		NextAttemptAt: e.NextAttemptAt,
	}
}

// NewWebhookEventListResponse builds the listing body
func NewWebhookEventListResponse(events []*accounting.WebhookEvent, counts map[accounting.ProcessStatus]int64) WebhookEventListResponse {
	resp := WebhookEventListResponse{
		Events: make([]WebhookEventResponse, 0, len(events)),
		Counts: make(map[string]int64, len(counts)),
	}
	for _, e := range events {
		resp.Events = append(resp.Events, ToWebhookEventResponse(e))
	}
	for status, n := range counts {
		resp.Counts[string(status)] = n
	}
	return resp
}
