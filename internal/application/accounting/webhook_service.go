package accounting

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sitebook/backend/internal/domain/accounting"
	"go.uber.org/zap"
)

// WebhookService verifies inbound accounting webhooks and queues one event
// per entity change. No reconciliation happens on this path.
type WebhookService struct {
	events             accounting.WebhookEventRepository
	verifierToken      string
	legacySecret       string
	legacyDefaultRealm string
	logger             *zap.Logger
	now                func() time.Time
}

// WebhookServiceConfig contains configuration for WebhookService
type WebhookServiceConfig struct {
	Events             accounting.WebhookEventRepository
	VerifierToken      string
	LegacySecret       string
	LegacyDefaultRealm string
	Logger             *zap.Logger
	Clock              func() time.Time
}

// NewWebhookService creates a new WebhookService
func NewWebhookService(cfg WebhookServiceConfig) *WebhookService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &WebhookService{
		events:             cfg.Events,
		verifierToken:      cfg.VerifierToken,
		legacySecret:       cfg.LegacySecret,
		legacyDefaultRealm: cfg.LegacyDefaultRealm,
		logger:             logger,
		now:                clock,
	}
}

// WebhookRequest is the raw material of one webhook call
type WebhookRequest struct {
	Body         []byte
	Signature    string
	LegacySecret string
}

// WebhookResult reports how many events were extracted and how many of
// them were new.
type WebhookResult struct {
	Processed int   `json:"processed"`
	Inserted  int64 `json:"inserted"`
	Legacy    bool  `json:"-"`
}

type legacyPaymentBody struct {
	PaymentID string `json:"payment_id"`
	RealmID   string `json:"realm_id"`
}

// Receive authenticates the request and stores the extracted events.
// Authentication failures return ErrWebhookUnauthorized and persist nothing.
// Unparseable payloads are acknowledged with zero events.
func (s *WebhookService) Receive(ctx context.Context, req WebhookRequest) (*WebhookResult, error) {
	if s.legacyAllowed(req.LegacySecret) {
		return s.receiveLegacy(ctx, req.Body)
	}

	if err := s.VerifySignature(req.Body, req.Signature); err != nil {
		s.logger.Warn("Rejected accounting webhook", zap.Error(err))
		return nil, err
	}

	notifications, err := ParseNotifications(req.Body)
	if err != nil {
		s.logger.Warn("Ignoring unparseable accounting webhook",
			zap.Int("body_size", len(req.Body)),
			zap.Error(err))
		return &WebhookResult{}, nil
	}

	return s.store(ctx, notifications, accounting.PayloadHash(req.Body))
}

// VerifySignature checks that signature is the base64 HMAC-SHA256 of body
// keyed with the verifier token.
func (s *WebhookService) VerifySignature(body []byte, signature string) error {
	if s.verifierToken == "" || signature == "" {
		return accounting.ErrWebhookUnauthorized
	}
	provided, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return accounting.ErrWebhookUnauthorized
	}
	mac := hmac.New(sha256.New, []byte(s.verifierToken))
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return accounting.ErrWebhookUnauthorized
	}
	return nil
}

// SignPayload returns the signature a provider would send for body
func SignPayload(verifierToken string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(verifierToken))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (s *WebhookService) legacyAllowed(provided string) bool {
	if s.legacySecret == "" || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(s.legacySecret)) == 1
}

// receiveLegacy enqueues a single payment update from the simplified body.
// Each call is a distinct event, so the receive time feeds the dedup id.
func (s *WebhookService) receiveLegacy(ctx context.Context, body []byte) (*WebhookResult, error) {
	var payload legacyPaymentBody
	if err := json.Unmarshal(body, &payload); err != nil || strings.TrimSpace(payload.PaymentID) == "" {
		s.logger.Warn("Ignoring legacy accounting webhook without payment_id")
		return &WebhookResult{Legacy: true}, nil
	}

	realm := strings.TrimSpace(payload.RealmID)
	if realm == "" {
		realm = s.legacyDefaultRealm
	}
	received := s.now().UTC()
	n := accounting.Notification{
		RealmID:     realm,
		EntityName:  accounting.EntityKindPayment.String(),
		EntityID:    strings.TrimSpace(payload.PaymentID),
		Operation:   accounting.OperationUpdate,
		LastUpdated: &received,
	}

	result, err := s.store(ctx, []accounting.Notification{n}, accounting.PayloadHash(body))
	if result != nil {
		result.Legacy = true
	}
	return result, err
}

func (s *WebhookService) store(ctx context.Context, notifications []accounting.Notification, payloadHash string) (*WebhookResult, error) {
	result := &WebhookResult{Processed: len(notifications)}
	if len(notifications) == 0 {
		return result, nil
	}

	receivedAt := s.now().UTC()
	events := make([]*accounting.WebhookEvent, 0, len(notifications))
	for _, n := range notifications {
		events = append(events, accounting.NewWebhookEvent(n, payloadHash, receivedAt))
	}

	inserted, err := s.events.SaveNew(ctx, events...)
	if err != nil {
		return nil, fmt.Errorf("failed to store webhook events: %w", err)
	}
	result.Inserted = inserted

	s.logger.Info("Accepted accounting webhook",
		zap.Int("events", len(events)),
		zap.Int64("inserted", inserted),
		zap.String("payload_hash", payloadHash))
	return result, nil
}
