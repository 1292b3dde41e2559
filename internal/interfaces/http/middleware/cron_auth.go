package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sitebook/backend/internal/domain/accounting"
	"github.com/sitebook/backend/internal/infrastructure/logger"
	"github.com/sitebook/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// DefaultSchedulerHeader is set by the platform scheduler on cron calls
const DefaultSchedulerHeader = "X-Scheduler-Cron"

// CronAuthConfig configures access to the reconcile trigger
type CronAuthConfig struct {
	// Secret is compared against "Authorization: Bearer <secret>"
	Secret string
	// SchedulerHeader is trusted when no secret is configured
	SchedulerHeader string
	// AllowOpen admits every caller when no secret is configured.
	// It is set outside production.
	AllowOpen bool
}

// CronAuth guards worker endpoints. With a secret configured only a
// matching bearer token passes. Without one the scheduler header or an
// open non-production environment is enough.
func CronAuth(cfg CronAuthConfig) gin.HandlerFunc {
	if cfg.SchedulerHeader == "" {
		cfg.SchedulerHeader = DefaultSchedulerHeader
	}
	return func(c *gin.Context) {
		if cronAuthorized(c, cfg) {
			c.Next()
			return
		}
		logger.GetGinLogger(c).Warn("Rejected reconcile trigger",
			zap.String("client_ip", c.ClientIP()),
			zap.String("path", c.FullPath()))
		c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(
			dto.ErrCodeUnauthorized,
			accounting.ErrWorkerUnauthorized.Message,
			GetRequestID(c),
		))
	}
}

func cronAuthorized(c *gin.Context, cfg CronAuthConfig) bool {
	if cfg.Secret != "" {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			return false
		}
		return subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Secret)) == 1
	}
	if c.GetHeader(cfg.SchedulerHeader) != "" {
		return true
	}
	return cfg.AllowOpen
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
