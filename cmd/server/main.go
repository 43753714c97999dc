// Package main provides the main entry point for the sales training API server.
// It sets up the HTTP server, database connections, middleware, and API routes. With the
// in-memory queue it also runs the ingestion worker in-process.
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
	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"
	"github.com/mohankp/sales-enablement-training/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Application encapsulates the main application logic and can be tested
type Application struct {
	container di.ServiceContainerInterface
	router    *gin.Engine
	worker    *worker.Worker
	logger    *observability.Logger
}

// NewApplication creates a new application instance
func NewApplication(container di.ServiceContainerInterface) (*Application, error) {
	cfg := container.GetConfig()

	assessmentService, err := container.GetAssessmentService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get assessment service")
	}
	ingestionService, err := container.GetIngestionService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get ingestion service")
	}
	projectService, err := container.GetProjectService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get project service")
	}
	topicService, err := container.GetTopicService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get topic service")
	}
	jobService, err := container.GetJobService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get job service")
	}
	kbService, err := container.GetKnowledgeBaseService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get knowledge base service")
	}
	authService, err := container.GetAuthService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get auth service")
	}
	workerService, err := container.GetWorkerService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get worker service")
	}
	aiService, err := container.GetAIService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get AI service")
	}

	// The in-memory queue is only visible to this process, so the worker must live here too.
	// Each run gets its own instance name so jobs claimed by a previous run can be told apart.
	var localWorker *worker.Worker
	if !cfg.UsesRedisQueue() {
		hostname, _ := os.Hostname()
		localWorker, err = container.NewWorker(fmt.Sprintf("server-%s-%s", hostname, uuid.NewString()[:8]))
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to create in-process worker")
		}
	}

	router := handlers.NewRouter(
		cfg,
		assessmentService,
		ingestionService,
		projectService,
		topicService,
		jobService,
		kbService,
		authService,
		workerService,
		aiService,
		localWorker,
		container.GetLogger(),
	)

	return &Application{
		container: container,
		router:    router,
		worker:    localWorker,
		logger:    container.GetLogger(),
	}, nil
}

// Run serves HTTP, and the in-process worker when there is one, until ctx is cancelled
func (a *Application) Run(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           a.router,
		ReadHeaderTimeout: config.DefaultHTTPTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info(gctx, "HTTP server listening", map[string]interface{}{"port": port})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return contextutils.WrapError(err, "server failed")
		}
		return nil
	})
	if a.worker != nil {
		g.Go(func() error {
			return a.worker.Start(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown waits for in-flight jobs and then releases every service
func (a *Application) Shutdown(ctx context.Context) error {
	if a.worker != nil {
		if err := a.worker.Shutdown(ctx); err != nil {
			a.logger.Warn(ctx, "Worker did not stop cleanly", map[string]interface{}{"error": err.Error()})
		}
	}
	return a.container.Shutdown(ctx)
}

func main() {
	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup observability (tracing/metrics/logging)
	tp, mp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "sales-trainer-server", cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cfg, logger, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		observability.ShutdownProviders(shutdownCtx, tp, mp, logger)
	}))
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger, flush func()) int {
	defer flush()

	logger.Info(ctx, "Starting sales training server", map[string]interface{}{
		"port":     cfg.Server.Port,
		"logLevel": cfg.Server.LogLevel,
		"queue":    cfg.Worker.Queue,
		"storage":  cfg.Storage.Backend,
		"provider": cfg.AI.Provider,
	})

	// Initialize dependency injection container
	container := di.NewServiceContainer(cfg, logger)
	if err := container.Initialize(ctx); err != nil {
		logger.Error(ctx, "Failed to initialize services", err, nil)
		return 1
	}

	// Ensure admin user exists
	if err := container.EnsureAdminUser(ctx); err != nil {
		logger.Error(ctx, "Failed to ensure admin user exists", err, map[string]interface{}{"admin_username": cfg.Server.AdminUsername})
		_ = container.Shutdown(context.Background())
		return 1
	}

	app, err := NewApplication(container)
	if err != nil {
		logger.Error(ctx, "Failed to create application", err, nil)
		_ = container.Shutdown(context.Background())
		return 1
	}

	runErr := app.Run(ctx, cfg.Server.Port)
	if runErr != nil {
		logger.Error(ctx, "Application failed", runErr, nil)
	} else {
		logger.Info(ctx, "Received shutdown signal, shutting down gracefully", nil)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.WorkerShutdownTimeout)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Error during application shutdown", err, nil)
		return 1
	}
	if runErr != nil {
		return 1
	}

	logger.Info(ctx, "Shutdown completed successfully", nil)
	return 0
}
