package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	appaccounting "github.com/sitebook/backend/internal/application/accounting"
	"github.com/sitebook/backend/internal/domain/accounting"
	"github.com/sitebook/backend/internal/infrastructure/logger"
	"github.com/sitebook/backend/internal/interfaces/http/dto"
	"github.com/sitebook/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// ReconcileRunner runs one reconciliation batch under the run lock
type ReconcileRunner interface {
	Run(ctx context.Context) (*appaccounting.BatchResult, error)
}

// WebhookEventLister reads the event log for operators
type WebhookEventLister interface {
	FindAll(ctx context.Context, filter accounting.WebhookEventFilter) ([]*accounting.WebhookEvent, error)
	CountByStatus(ctx context.Context) (map[accounting.ProcessStatus]int64, error)
}

// ReconcileHandler exposes the reconciliation worker and its event log
type ReconcileHandler struct {
	BaseHandler
	runner ReconcileRunner
	events WebhookEventLister
}

// NewReconcileHandler creates a new ReconcileHandler
func NewReconcileHandler(runner ReconcileRunner, events WebhookEventLister) *ReconcileHandler {
	return &ReconcileHandler{
		runner: runner,
		events: events,
	}
}

// Trigger handles POST|GET /accounting/reconcile. A finished batch always
// answers 200 with its counts, even when some events errored.
func (h *ReconcileHandler) Trigger(c *gin.Context) {
	result, err := h.runner.Run(c.Request.Context())
	if err != nil {
		if errors.Is(err, accounting.ErrReconcileInProgress) {
			c.JSON(http.StatusConflict, dto.ReconcileConflictResponse{
				Error: accounting.ErrReconcileInProgress.Message,
			})
			return
		}
		logger.GetGinLogger(c).Error("Reconciliation batch failed", zap.Error(err))
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ReconcileResponse{
		Processed:  result.Processed,
		Reconciled: result.Reconciled,
		Ignored:    result.Ignored,
		Errored:    result.Errored,
	})
}

// ListEvents handles GET /accounting/webhook-events
func (h *ReconcileHandler) ListEvents(c *gin.Context) {
	var req dto.WebhookEventListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	ctx := c.Request.Context()
	events, err := h.events.FindAll(ctx, req.Filter())
	if err != nil {
		logger.GetGinLogger(c).Error("Failed to list webhook events", zap.Error(err))
		h.HandleError(c, err)
		return
	}
	counts, err := h.events.CountByStatus(ctx)
	if err != nil {
		logger.GetGinLogger(c).Error("Failed to count webhook events", zap.Error(err))
		h.HandleError(c, err)
		return
	}

	var total int64
	if req.Status != "" {
		total = counts[accounting.ProcessStatus(req.Status)]
	} else {
		for _, n := range counts {
			total += n
		}
	}
	h.SuccessWithMeta(c, dto.NewWebhookEventListResponse(events, counts), total, len(events))
}
