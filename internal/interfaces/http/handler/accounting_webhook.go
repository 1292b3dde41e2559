package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	appaccounting "github.com/sitebook/backend/internal/application/accounting"
	"github.com/sitebook/backend/internal/domain/accounting"
	"github.com/sitebook/backend/internal/infrastructure/logger"
	"github.com/sitebook/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

const (
	// SignatureHeader carries the provider HMAC signature
	SignatureHeader = "intuit-signature"
	// LegacySecretHeader carries the shared secret of the legacy sender
	LegacySecretHeader = "X-Webhook-Secret"

	// DefaultWebhookMaxBodySize applies when no limit is configured
	DefaultWebhookMaxBodySize int64 = 1 << 20
)

// WebhookReceiver accepts a raw webhook call
type WebhookReceiver interface {
	Receive(ctx context.Context, req appaccounting.WebhookRequest) (*appaccounting.WebhookResult, error)
}

// AccountingWebhookHandler receives entity-change webhooks from the
// accounting provider. It is called by the provider and carries no session.
type AccountingWebhookHandler struct {
	BaseHandler
	receiver    WebhookReceiver
	maxBodySize int64
}

// NewAccountingWebhookHandler creates a new AccountingWebhookHandler
func NewAccountingWebhookHandler(receiver WebhookReceiver, maxBodySize int64) *AccountingWebhookHandler {
	if maxBodySize <= 0 {
		maxBodySize = DefaultWebhookMaxBodySize
	}
	return &AccountingWebhookHandler{
		receiver:    receiver,
		maxBodySize: maxBodySize,
	}
}

// Receive handles POST /webhooks/accounting. The raw body is needed for
// signature verification so it is read before any parsing.
func (h *AccountingWebhookHandler) Receive(c *gin.Context) {
	log := logger.GetGinLogger(c)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxBodySize+1))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.tooLarge(c)
			return
		}
		c.JSON(http.StatusBadRequest, dto.WebhookAck{
			Received: false,
			Message:  "Failed to read request body",
		})
		return
	}
	if int64(len(body)) > h.maxBodySize {
		h.tooLarge(c)
		return
	}

	result, err := h.receiver.Receive(c.Request.Context(), appaccounting.WebhookRequest{
		Body:         body,
		Signature:    c.GetHeader(SignatureHeader),
		LegacySecret: c.GetHeader(LegacySecretHeader),
	})
	if err != nil {
		if errors.Is(err, accounting.ErrWebhookUnauthorized) {
			c.JSON(http.StatusUnauthorized, dto.WebhookAck{
				Received: false,
				Message:  accounting.ErrWebhookUnauthorized.Message,
			})
			return
		}
		log.Error("Failed to store accounting webhook", zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.WebhookAck{
			Received: false,
			Message:  "Failed to store webhook events",
		})
		return
	}

	c.JSON(http.StatusOK, dto.WebhookAck{
		Received:  true,
		Processed: result.Processed,
	})
}

func (h *AccountingWebhookHandler) tooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, dto.WebhookAck{
		Received: false,
		Message:  "Payload too large",
	})
}
