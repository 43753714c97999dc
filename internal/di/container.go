// Package di provides dependency injection container for managing service lifecycle and dependencies.
package di

import (
	"context"
	"database/sql"
	"io"
	"sync"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/database"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	"github.com/mohankp/sales-enablement-training/internal/services"
	"github.com/mohankp/sales-enablement-training/internal/services/llm"
	"github.com/mohankp/sales-enablement-training/internal/services/storage"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"
	"github.com/mohankp/sales-enablement-training/internal/worker"
)

// ServiceContainerInterface defines the interface for service containers
type ServiceContainerInterface interface {
	GetService(name string) (interface{}, error)
	GetUserService() (services.UserServiceInterface, error)
	GetProjectService() (services.ProjectServiceInterface, error)
	GetTopicService() (services.TopicServiceInterface, error)
	GetJobService() (services.JobServiceInterface, error)
	GetKnowledgeBaseService() (services.KnowledgeBaseServiceInterface, error)
	GetAIService() (services.AIServiceInterface, error)
	GetAssessmentService() (services.AssessmentServiceInterface, error)
	GetIngestionService() (services.IngestionServiceInterface, error)
	GetAuthService() (services.AuthServiceInterface, error)
	GetWorkerService() (services.WorkerServiceInterface, error)
	GetQueue() (worker.Queue, error)
	NewWorker(instance string) (*worker.Worker, error)
	GetDatabase() *sql.DB
	GetConfig() *config.Config
	GetLogger() *observability.Logger
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	EnsureAdminUser(ctx context.Context) error
}

// ServiceContainer manages all service dependencies and lifecycle
type ServiceContainer struct {
	cfg            *config.Config
	logger         *observability.Logger
	dbManager      *database.Manager
	db             *sql.DB
	skipMigrations bool
	services       map[string]interface{}
	mu             sync.RWMutex
	shutdownFuncs  []func(context.Context) error
}

// NewServiceContainer creates a new dependency injection container
func NewServiceContainer(cfg *config.Config, logger *observability.Logger) *ServiceContainer {
	return &ServiceContainer{
		cfg:      cfg,
		logger:   logger,
		services: make(map[string]interface{}),
	}
}

// WithoutMigrations makes Initialize connect without applying migrations. Standalone workers use
// it; the API server owns the schema.
func (sc *ServiceContainer) WithoutMigrations() *ServiceContainer {
	sc.skipMigrations = true
	return sc
}

// Initialize sets up all services and their dependencies
func (sc *ServiceContainer) Initialize(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	// Initialize database
	sc.dbManager = database.NewManager(sc.logger)
	var db *sql.DB
	var err error
	if sc.skipMigrations {
		db, err = sc.dbManager.InitDBWithoutMigrations(sc.cfg.Database)
	} else {
		db, err = sc.dbManager.InitDBWithConfig(sc.cfg.Database)
	}
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to initialize database")
	}
	sc.db = db
	sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
		return db.Close()
	})

	// Initialize core services
	if err := sc.initializeServices(ctx); err != nil {
		_ = sc.cleanup(ctx)
		return contextutils.WrapErrorf(err, "failed to initialize services")
	}

	// Startup lifecycle services
	if err := sc.startupServices(ctx); err != nil {
		// Cleanup on failure
		_ = sc.cleanup(ctx)
		return contextutils.WrapErrorf(err, "failed to startup services")
	}

	return nil
}

// GetService retrieves a service by name with type assertion
func (sc *ServiceContainer) GetService(name string) (interface{}, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	service, exists := sc.services[name]
	if !exists {
		return nil, contextutils.ErrorWithContextf("service %s not found", name)
	}
	return service, nil
}

// GetServiceAs performs type-safe service retrieval
func GetServiceAs[T any](sc *ServiceContainer, name string) (T, error) {
	var zero T
	service, err := sc.GetService(name)
	if err != nil {
		return zero, err
	}

	typed, ok := service.(T)
	if !ok {
		return zero, contextutils.ErrorWithContextf("service %s is not of expected type %T", name, zero)
	}
	return typed, nil
}

// GetUserService returns the user service
func (sc *ServiceContainer) GetUserService() (services.UserServiceInterface, error) {
	return GetServiceAs[services.UserServiceInterface](sc, "user")
}

// GetProjectService returns the project service
func (sc *ServiceContainer) GetProjectService() (services.ProjectServiceInterface, error) {
	return GetServiceAs[services.ProjectServiceInterface](sc, "project")
}

// GetTopicService returns the topic service
func (sc *ServiceContainer) GetTopicService() (services.TopicServiceInterface, error) {
	return GetServiceAs[services.TopicServiceInterface](sc, "topic")
}

// GetJobService returns the processing job service
func (sc *ServiceContainer) GetJobService() (services.JobServiceInterface, error) {
	return GetServiceAs[services.JobServiceInterface](sc, "job")
}

// GetKnowledgeBaseService returns the knowledge base service
func (sc *ServiceContainer) GetKnowledgeBaseService() (services.KnowledgeBaseServiceInterface, error) {
	return GetServiceAs[services.KnowledgeBaseServiceInterface](sc, "knowledge_base")
}

// GetAIService returns the AI service
func (sc *ServiceContainer) GetAIService() (services.AIServiceInterface, error) {
	return GetServiceAs[services.AIServiceInterface](sc, "ai")
}

// GetAssessmentService returns the assessment service
func (sc *ServiceContainer) GetAssessmentService() (services.AssessmentServiceInterface, error) {
	return GetServiceAs[services.AssessmentServiceInterface](sc, "assessment")
}

// GetIngestionService returns the ingestion service
func (sc *ServiceContainer) GetIngestionService() (services.IngestionServiceInterface, error) {
	return GetServiceAs[services.IngestionServiceInterface](sc, "ingestion")
}

// GetAuthService returns the token service
func (sc *ServiceContainer) GetAuthService() (services.AuthServiceInterface, error) {
	return GetServiceAs[services.AuthServiceInterface](sc, "auth")
}

// GetWorkerService returns the worker service
func (sc *ServiceContainer) GetWorkerService() (services.WorkerServiceInterface, error) {
	return GetServiceAs[services.WorkerServiceInterface](sc, "worker")
}

// GetQueue returns the ingestion job queue
func (sc *ServiceContainer) GetQueue() (worker.Queue, error) {
	return GetServiceAs[worker.Queue](sc, "queue")
}

// NewWorker builds an ingestion worker over the container's queue and services
func (sc *ServiceContainer) NewWorker(instance string) (*worker.Worker, error) {
	ingestion, err := GetServiceAs[*services.IngestionService](sc, "ingestion")
	if err != nil {
		return nil, err
	}
	jobs, err := sc.GetJobService()
	if err != nil {
		return nil, err
	}
	workerService, err := sc.GetWorkerService()
	if err != nil {
		return nil, err
	}
	queue, err := sc.GetQueue()
	if err != nil {
		return nil, err
	}
	return worker.NewWorker(ingestion, jobs, workerService, queue, instance, sc.cfg, sc.logger), nil
}

// GetDatabase returns the database instance
func (sc *ServiceContainer) GetDatabase() *sql.DB {
	return sc.db
}

// GetConfig returns the configuration
func (sc *ServiceContainer) GetConfig() *config.Config {
	return sc.cfg
}

// GetLogger returns the logger
func (sc *ServiceContainer) GetLogger() *observability.Logger {
	return sc.logger
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	return sc.cleanup(ctx)
}

// startupServices starts all services that implement the Lifecycle interface
func (sc *ServiceContainer) startupServices(ctx context.Context) error {
	// Check each service to see if it implements Lifecycle interface
	for name, service := range sc.services {
		if lifecycleService, ok := service.(interface{ Startup(context.Context) error }); ok {
			sc.logger.Info(ctx, "Starting service", map[string]interface{}{"service": name})
			if err := lifecycleService.Startup(ctx); err != nil {
				return contextutils.WrapErrorf(err, "failed to startup service %s", name)
			}
			sc.logger.Info(ctx, "Service started successfully", map[string]interface{}{"service": name})
		}
	}
	return nil
}

// cleanup handles shutdown of all services
func (sc *ServiceContainer) cleanup(ctx context.Context) error {
	var errors []error

	// Shutdown lifecycle services first
	for name := range sc.services {
		if lifecycleService, ok := sc.services[name].(interface{ Shutdown(context.Context) error }); ok {
			sc.logger.Info(ctx, "Shutting down service", map[string]interface{}{"service": name})
			if err := lifecycleService.Shutdown(ctx); err != nil {
				sc.logger.Error(ctx, "Failed to shutdown service", err, map[string]interface{}{"service": name})
				errors = append(errors, contextutils.WrapErrorf(err, "service %s shutdown failed", name))
			} else {
				sc.logger.Info(ctx, "Service shutdown successfully", map[string]interface{}{"service": name})
			}
		}
	}

	// Shutdown services in reverse order of initialization
	for i := len(sc.shutdownFuncs) - 1; i >= 0; i-- {
		if err := sc.shutdownFuncs[i](ctx); err != nil {
			errors = append(errors, err)
		}
	}
	sc.shutdownFuncs = nil
	sc.services = make(map[string]interface{})

	if len(errors) > 0 {
		return contextutils.ErrorWithContextf("shutdown errors: %v", errors)
	}
	return nil
}

// initializeServices sets up all service dependencies
func (sc *ServiceContainer) initializeServices(ctx context.Context) error {
	// Stores with no service dependencies
	userService := services.NewUserServiceWithLogger(sc.db, sc.cfg, sc.logger)
	sc.services["user"] = userService
	projectService := services.NewProjectService(sc.db, sc.logger)
	sc.services["project"] = projectService
	topicService := services.NewTopicService(sc.db, sc.logger)
	sc.services["topic"] = topicService
	bankService := services.NewQuestionBankService(sc.db, sc.logger)
	sc.services["question_bank"] = bankService
	historyService := services.NewHistoryService(sc.db, sc.logger)
	sc.services["history"] = historyService
	jobService := services.NewJobService(sc.db, sc.logger)
	sc.services["job"] = jobService
	kbService := services.NewKnowledgeBaseService(sc.db, sc.cfg, sc.logger)
	sc.services["knowledge_base"] = kbService
	workerService := services.NewWorkerServiceWithLogger(sc.db, sc.logger)
	sc.services["worker"] = workerService

	// Auth service signs admin tokens
	authService, err := services.NewAuthService(userService, sc.cfg, sc.logger)
	if err != nil {
		return err
	}
	sc.services["auth"] = authService

	// AI service wraps the configured LLM provider; it implements Shutdown and is drained by cleanup
	provider, err := llm.NewProvider(ctx, sc.cfg, sc.logger)
	if err != nil {
		return contextutils.WrapError(err, "failed to create LLM provider")
	}
	sc.logger.Info(ctx, "LLM provider configured", map[string]interface{}{
		"provider": sc.cfg.AI.Provider,
		"model":    sc.cfg.AI.Model,
		"api_key":  contextutils.MaskAPIKey(sc.cfg.AI.APIKey),
	})
	aiService, err := services.NewAIService(sc.cfg, provider, sc.logger)
	if err != nil {
		return err
	}
	sc.services["ai"] = aiService

	// Archive for uploaded documents
	store, err := storage.NewStore(ctx, sc.cfg, sc.logger)
	if err != nil {
		return contextutils.WrapError(err, "failed to create document store")
	}
	sc.services["storage"] = store
	if closer, ok := store.(io.Closer); ok {
		sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error { return closer.Close() })
	}

	// Job queue between upload and the worker pool
	queue, err := worker.NewQueue(ctx, sc.cfg, sc.logger)
	if err != nil {
		return contextutils.WrapError(err, "failed to create job queue")
	}
	sc.services["queue"] = queue
	sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error { return queue.Close() })

	// Assessment depends on the selector and evaluator
	selector := services.NewQuestionSelector(topicService, bankService, historyService, kbService, aiService, sc.logger)
	sc.services["selector"] = selector
	evaluator := services.NewAnswerEvaluator(aiService, sc.cfg, sc.logger)
	sc.services["evaluator"] = evaluator
	sc.services["assessment"] = services.NewAssessmentService(
		sc.db, userService, projectService, topicService, historyService, selector, evaluator, sc.logger,
	)

	// Ingestion archives uploads, records jobs and enqueues them
	sc.services["ingestion"] = services.NewIngestionService(
		sc.cfg, aiService, topicService, bankService, kbService, jobService, projectService, store, queue, sc.logger,
	)

	return nil
}

// EnsureAdminUser creates the admin user if it doesn't exist
func (sc *ServiceContainer) EnsureAdminUser(ctx context.Context) error {
	userService, err := sc.GetUserService()
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to get user service")
	}

	return userService.EnsureAdminUserExists(ctx, sc.cfg.Server.AdminUsername, sc.cfg.Server.AdminPassword)
}
