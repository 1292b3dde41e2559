package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	appaccounting "github.com/sitebook/backend/internal/application/accounting"
	"github.com/sitebook/backend/internal/infrastructure/cache"
	"github.com/sitebook/backend/internal/infrastructure/config"
	"github.com/sitebook/backend/internal/infrastructure/logger"
	"github.com/sitebook/backend/internal/infrastructure/persistence"
	"github.com/sitebook/backend/internal/infrastructure/quickbooks"
	"github.com/sitebook/backend/internal/infrastructure/scheduler"
	"github.com/sitebook/backend/internal/infrastructure/telemetry"
	"github.com/sitebook/backend/internal/interfaces/http/handler"
	"github.com/sitebook/backend/internal/interfaces/http/middleware"
	"github.com/sitebook/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

const serviceName = "sitebook-accounting"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}, serviceName)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting accounting reconciliation service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", telemetry.ServiceVersion),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry must be installed before the database so otelgorm picks up
	// the real tracer provider.
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.ConfigFromApp(cfg.Telemetry, serviceName), log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfigFromApp(cfg.Telemetry, serviceName), log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	logProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfigFromApp(cfg.Telemetry, serviceName), log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	log = logProvider.Bridge(log, logger.ParseLevel(cfg.Log.Level))

	db, err := persistence.NewDatabase(&cfg.Database, persistence.DatabaseOptions{
		Logger:        log,
		LogLevel:      cfg.Log.Level,
		SlowThreshold: cfg.Telemetry.DBSlowQueryThresh,
	})
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL && !cfg.App.IsProduction(),
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBName:          cfg.Database.DBName,
	}, log)
	if err := dbTracing.Register(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	// Repositories
	eventRepo := persistence.NewGormWebhookEventRepository(db.DB)
	syncRecordRepo := persistence.NewGormSyncRecordRepository(db.DB)
	connectionRepo := persistence.NewGormConnectionRepository(db.DB)
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)

	// Run lock
	runLock, err := cache.NewRunLockFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(!cfg.App.IsProduction()),
	).Create()
	if err != nil {
		log.Fatal("Failed to create reconcile run lock", zap.Error(err))
	}
	defer func() {
		if err := runLock.Close(); err != nil {
			log.Warn("Error closing run lock", zap.Error(err))
		}
	}()

	// Accounting API client
	qbConfig := quickbooks.NewConfig(cfg.QuickBooks)
	if err := qbConfig.Validate(); err != nil {
		log.Fatal("Invalid accounting API configuration", zap.Error(err))
	}
	clientFactory := quickbooks.NewClientFactory(qbConfig, connectionRepo, log)

	// Metrics
	reconcileMetrics, err := telemetry.NewReconcileMetrics(meterProvider.Meter("github.com/sitebook/backend/accounting"))
	if err != nil {
		log.Fatal("Failed to create reconciliation metrics", zap.Error(err))
	}

	// Application services
	resolver := appaccounting.NewEntityResolver(syncRecordRepo, invoiceRepo, paymentRepo)
	invoiceReconciler := appaccounting.NewInvoiceReconciler(appaccounting.InvoiceReconcilerConfig{
		Resolver:     resolver,
		Invoices:     invoiceRepo,
		SyncRecords:  syncRecordRepo,
		FetchTimeout: cfg.Worker.FetchTimeout,
		Logger:       log,
	})
	paymentReconciler := appaccounting.NewPaymentReconciler(appaccounting.PaymentReconcilerConfig{
		Resolver:          resolver,
		InvoiceReconciler: invoiceReconciler,
		Payments:          paymentRepo,
		Invoices:          invoiceRepo,
		SyncRecords:       syncRecordRepo,
		FetchTimeout:      cfg.Worker.FetchTimeout,
		Logger:            log,
	})
	worker := appaccounting.NewReconciliationWorker(appaccounting.ReconciliationWorkerConfig{
		Events:            eventRepo,
		Connections:       connectionRepo,
		Clients:           clientFactory,
		InvoiceReconciler: invoiceReconciler,
		PaymentReconciler: paymentReconciler,
		Lock:              runLock,
		Recorder:          reconcileMetrics,
		Config: appaccounting.WorkerConfig{
			BatchSize:                cfg.Worker.BatchSize,
			FetchTimeout:             cfg.Worker.FetchTimeout,
			RetryPersistenceFailures: cfg.Worker.RetryPersistenceFailures,
			MaxAttempts:              cfg.Worker.MaxAttempts,
			RetryBaseDelay:           cfg.Worker.RetryBaseDelay,
			LockTTL:                  cfg.Worker.LockTTL,
		},
		Logger: log,
	})
	webhookService := appaccounting.NewWebhookService(appaccounting.WebhookServiceConfig{
		Events:             eventRepo,
		VerifierToken:      cfg.Webhook.VerifierToken,
		LegacySecret:       cfg.Webhook.LegacySecret,
		LegacyDefaultRealm: cfg.Webhook.LegacyDefaultRealm,
		Logger:             log,
	})

	// In-process schedule
	var trigger *scheduler.ReconcileTrigger
	if cfg.Worker.ScheduleEnabled {
		trigger, err = scheduler.NewReconcileTrigger(scheduler.ReconcileTriggerConfig{
			Interval: cfg.Worker.ScheduleInterval,
		}, worker, log)
		if err != nil {
			log.Fatal("Failed to create reconcile trigger", zap.Error(err))
		}
		trigger.Start(ctx)
	}

	engine := newEngine(cfg, log)

	systemHandler := handler.NewSystemHandler(db, cfg.App.Name, telemetry.ServiceVersion)
	engine.GET("/health", systemHandler.Health)

	var webhookGuards []gin.HandlerFunc
	if cfg.Webhook.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(cfg.Webhook.RateLimit, cfg.Webhook.RateLimitWindow)
		defer limiter.Close()
		webhookGuards = append(webhookGuards, middleware.RateLimit(limiter, nil))
	}

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	for _, registrar := range router.AccountingRoutes(
		handler.NewAccountingWebhookHandler(webhookService, cfg.Webhook.MaxBodySize),
		handler.NewReconcileHandler(worker, eventRepo),
		middleware.CronAuth(middleware.CronAuthConfig{
			Secret:          cfg.Worker.CronSecret,
			SchedulerHeader: cfg.Worker.SchedulerHeader,
			AllowOpen:       !cfg.App.IsProduction(),
		}),
		webhookGuards...,
	) {
		r.Register(registrar)
	}
	r.Register(router.NewDomainGroup("system", "/system").GET("/info", systemHandler.GetSystemInfo))
	for _, rt := range r.Setup() {
		log.Debug("Route registered",
			zap.String("group", rt.Group),
			zap.String("method", rt.Method),
			zap.String("path", rt.Path),
		)
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if trigger != nil {
		if err := trigger.Stop(shutdownCtx); err != nil {
			log.Warn("Reconcile trigger did not stop cleanly", zap.Error(err))
		}
	}
	if err := logProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Error shutting down log export", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Error shutting down meter provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Error shutting down tracer provider", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// newEngine builds the gin engine with the shared middleware stack:
// request id, panic recovery, request logging, tracing, security headers
// and the global body limit.
func newEngine(cfg *config.Config, log *zap.Logger) *gin.Engine {
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: serviceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.TracingAttributeInjector())
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.Secure())
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	return engine
}
