package router

import (
	"github.com/gin-gonic/gin"
	"github.com/sitebook/backend/internal/interfaces/http/handler"
)

// AccountingRoutes wires the webhook receiver and the worker endpoints.
// The webhook group carries no auth of its own since the handler verifies
// the provider signature. workerAuth guards the reconcile trigger and the
// event listing. webhookGuards run ahead of the receiver, e.g. a rate limit.
func AccountingRoutes(
	webhook *handler.AccountingWebhookHandler,
	reconcile *handler.ReconcileHandler,
	workerAuth gin.HandlerFunc,
	webhookGuards ...gin.HandlerFunc,
) []RouteRegistrar {
	webhookRoutes := NewDomainGroup("webhooks", "/webhooks")
	for _, guard := range webhookGuards {
		webhookRoutes.Use(guard)
	}
	webhookRoutes.POST("/accounting", webhook.Receive)

	accountingRoutes := NewDomainGroup("accounting", "/accounting")
	if workerAuth != nil {
		accountingRoutes.Use(workerAuth)
	}
	accountingRoutes.POST("/reconcile", reconcile.Trigger)
	accountingRoutes.GET("/reconcile", reconcile.Trigger)
	accountingRoutes.GET("/webhook-events", reconcile.ListEvents)

	return []RouteRegistrar{webhookRoutes, accountingRoutes}
}
