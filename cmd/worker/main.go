// Package main provides the entry point for the standalone ingestion worker. It consumes the redis
// job queue and exposes health, version and worker administration endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/di"
	"github.com/mohankp/sales-enablement-training/internal/handlers"
	"github.com/mohankp/sales-enablement-training/internal/middleware"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"
	"github.com/mohankp/sales-enablement-training/internal/version"
	"github.com/mohankp/sales-enablement-training/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup observability (tracing/metrics/logging)
	tp, mp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "sales-trainer-worker", cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := run(ctx, cfg, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	observability.ShutdownProviders(shutdownCtx, tp, mp, logger)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) int {
	if !cfg.UsesRedisQueue() {
		logger.Error(ctx, "Standalone worker requires the redis queue", nil, map[string]interface{}{"queue": cfg.Worker.Queue})
		return 1
	}

	hostname, _ := os.Hostname()
	instance := fmt.Sprintf("worker-%s-%s", hostname, uuid.NewString()[:8])
	logger.Info(ctx, "Starting sales training worker", map[string]interface{}{
		"port":        cfg.Server.WorkerPort,
		"instance":    instance,
		"concurrency": cfg.Worker.Concurrency,
		"logLevel":    cfg.Server.LogLevel,
	})

	// Connect without migrations; the API server owns the schema
	container := di.NewServiceContainer(cfg, logger).WithoutMigrations()
	if err := container.Initialize(ctx); err != nil {
		logger.Error(ctx, "Failed to initialize services", err, nil)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.WorkerShutdownTimeout)
		defer cancel()
		if err := container.Shutdown(shutdownCtx); err != nil {
			logger.Warn(ctx, "Warning: failed to shut down services", map[string]interface{}{"error": err.Error()})
		}
	}()

	workerInstance, err := container.NewWorker(instance)
	if err != nil {
		logger.Error(ctx, "Failed to create worker", err, nil)
		return 1
	}
	router, err := newRouter(cfg, container, workerInstance, logger)
	if err != nil {
		logger.Error(ctx, "Failed to build worker router", err, nil)
		return 1
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.WorkerPort,
		Handler:           router,
		ReadHeaderTimeout: config.DefaultHTTPTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return workerInstance.Start(gctx)
	})
	g.Go(func() error {
		logger.Info(gctx, "Worker server starting", map[string]interface{}{"port": cfg.Server.WorkerPort})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return contextutils.WrapError(err, "worker server failed")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(gctx, "Worker server shutting down", map[string]interface{}{"service": "worker"})
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(ctx, "Worker exited with error", err, nil)
		return 1
	}
	logger.Info(ctx, "Worker server exited", map[string]interface{}{"service": "worker"})
	return 0
}

func newRouter(cfg *config.Config, container di.ServiceContainerInterface, w *worker.Worker, logger *observability.Logger) (*gin.Engine, error) {
	workerService, err := container.GetWorkerService()
	if err != nil {
		return nil, err
	}
	aiService, err := container.GetAIService()
	if err != nil {
		return nil, err
	}
	authService, err := container.GetAuthService()
	if err != nil {
		return nil, err
	}

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(middleware.ErrorRecoveryMiddleware(logger, nil))
	router.Use(handlers.RequestLoggingMiddleware(logger))
	router.Use(observability.GinMiddleware("sales-trainer-worker"))
	router.Use(observability.SpanErrorMiddleware())

	v1 := router.Group("/v1")
	{
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "instance": w.GetInstance()})
		})
		v1.GET("/version", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"service":   "worker",
				"version":   version.Version,
				"commit":    version.Commit,
				"buildTime": version.BuildTime,
			})
		})

		admin := v1.Group("/admin")
		admin.Use(middleware.RequireAdmin(authService))
		handlers.RegisterWorkerAdminRoutes(admin, handlers.NewWorkerAdminHandlerWithLogger(w, workerService, aiService, logger))
	}

	// Automatic route listing at root path
	routeListing := handlers.NewRouteListingHandler("sales-trainer-worker")
	routeListing.CollectRoutes(router)
	router.GET("/", routeListing.GetRouteListing)

	return router, nil
}
