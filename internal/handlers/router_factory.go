package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/middleware"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	"github.com/mohankp/sales-enablement-training/internal/services"
	"github.com/mohankp/sales-enablement-training/internal/version"
	"github.com/mohankp/sales-enablement-training/internal/worker"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewRouter creates the API router with all middleware and routes. localWorker is nil when
// ingestion runs in a separate worker process.
func NewRouter(
	cfg *config.Config,
	assessmentService services.AssessmentServiceInterface,
	ingestionService services.IngestionServiceInterface,
	projectService services.ProjectServiceInterface,
	topicService services.TopicServiceInterface,
	jobService services.JobServiceInterface,
	kbService services.KnowledgeBaseServiceInterface,
	authService services.AuthServiceInterface,
	workerService services.WorkerServiceInterface,
	aiService services.AIServiceInterface,
	localWorker *worker.Worker,
	logger *observability.Logger,
) *gin.Engine {
	// Setup Gin mode
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(middleware.ErrorRecoveryMiddleware(logger, nil))
	router.Use(RequestLoggingMiddleware(logger))

	// Health check endpoint (defined before any middleware)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "server"})
	})

	// Add OpenTelemetry middleware for HTTP tracing and context propagation with automatic error attributes
	router.Use(observability.GinMiddleware("sales-trainer-server"))
	router.Use(observability.SpanErrorMiddleware())

	// Disable automatic redirection for trailing slashes, which is better for APIs
	router.RedirectTrailingSlash = false

	// Setup CORS middleware
	corsConfig := cors.DefaultConfig()
	if len(cfg.Server.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Server.CORSOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Requested-With"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Cookie session remembers the last assessment session for browser consoles
	store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	sessionOpts := sessions.Options{
		Path:     config.SessionPath,
		MaxAge:   int(config.SessionMaxAge.Seconds()),
		HttpOnly: config.SessionHTTPOnly,
		Secure:   config.SessionSecure,
	}
	if cfg.Server.Debug {
		sessionOpts.SameSite = http.SameSiteDefaultMode
	} else {
		sessionOpts.SameSite = http.SameSiteLaxMode
		sessionOpts.Secure = true
	}
	store.Options(sessionOpts)
	router.Use(sessions.Sessions(config.SessionName, store))

	// Security middleware
	secureConfig := secure.DefaultConfig()
	secureConfig.SSLRedirect = false
	secureConfig.ContentSecurityPolicy = config.DefaultCSP
	router.Use(secure.New(secureConfig))

	// Initialize handlers
	trainingHandler := NewTrainingHandler(assessmentService, ingestionService, cfg, logger)
	projectHandler := NewProjectHandler(projectService, topicService, logger)
	authHandler := NewAuthHandler(authService, logger)
	adminHandler := NewAdminHandlerWithLogger(jobService, kbService, ingestionService, cfg, logger)
	workerAdminHandler := NewWorkerAdminHandlerWithLogger(localWorker, workerService, aiService, logger)
	requireAdmin := middleware.RequireAdmin(authService)

	router.GET("/v1/version", versionHandler(cfg, localWorker != nil))

	api := router.Group("/api/v1")
	{
		api.POST("/upload_pdf", trainingHandler.UploadPDF)
		api.POST("/start_assessment", trainingHandler.StartAssessment)
		api.GET("/get_question/:session_id", trainingHandler.GetQuestion)
		api.POST("/submit_answer", trainingHandler.SubmitAnswer)
		api.GET("/sessions/current", trainingHandler.GetCurrentSession)
		api.GET("/sessions/:session_id", trainingHandler.GetSession)
		api.GET("/sessions/:session_id/history", trainingHandler.GetSessionHistory)
		api.GET("/users/:user_id/topic_scores", trainingHandler.GetUserTopicScores)

		api.POST("/auth/token", authHandler.Token)

		projects := api.Group("/projects")
		{
			projects.POST("", projectHandler.CreateProject)
			projects.GET("", projectHandler.ListProjects)
			projects.GET("/:id", projectHandler.GetProject)
			projects.GET("/:id/topics", projectHandler.ListProjectTopics)
			projects.PUT("/:id", requireAdmin, projectHandler.UpdateProject)
			projects.DELETE("/:id", requireAdmin, projectHandler.DeleteProject)
		}

		// Admin endpoints
		admin := api.Group("/admin")
		admin.Use(requireAdmin)
		{
			admin.GET("/jobs", adminHandler.ListJobs)
			admin.GET("/jobs/:id", adminHandler.GetJob)
			admin.GET("/knowledge_base/files", adminHandler.ListKnowledgeBaseFiles)
			admin.GET("/knowledge_base/search", adminHandler.SearchKnowledgeBase)
			admin.POST("/knowledge_base/reprocess", adminHandler.ReprocessDocument)

			RegisterWorkerAdminRoutes(admin, workerAdminHandler)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		StandardizeHTTPError(c, http.StatusNotFound, "Not found", c.Request.URL.Path)
	})

	// Automatic route listing at root path
	routeListing := NewRouteListingHandler("sales-trainer-server")
	routeListing.CollectRoutes(router)
	router.GET("/", routeListing.GetRouteListing)

	return router
}

// RegisterWorkerAdminRoutes mounts the worker administration endpoints on group
func RegisterWorkerAdminRoutes(group *gin.RouterGroup, h *WorkerAdminHandler) {
	group.GET("/worker/status", h.GetWorkerStatus)
	group.GET("/worker/logs", h.GetActivityLogs)
	group.POST("/worker/pause", h.PauseWorker)
	group.POST("/worker/resume", h.ResumeWorker)
	group.POST("/worker/recover", h.RecoverJobs)
	group.GET("/system/health", h.GetSystemHealth)
}

// RequestLoggingMiddleware logs every request through the observability logger, at a level that
// follows the status code
func RequestLoggingMiddleware(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		statusCode := c.Writer.Status()
		fields := map[string]interface{}{
			"http.method":      c.Request.Method,
			"http.path":        c.Request.URL.Path,
			"http.status_code": statusCode,
			"http.latency_ms":  time.Since(start).Milliseconds(),
			"http.client_ip":   c.ClientIP(),
			"http.user_agent":  c.Request.UserAgent(),
		}
		if len(c.Errors) > 0 {
			fields["http.error"] = c.Errors.String()
		}

		switch {
		case statusCode >= 500:
			fields["http.error_type"] = "server_error"
			logger.Error(c.Request.Context(), "HTTP request failed", nil, fields)
		case statusCode >= 400:
			fields["http.error_type"] = "client_error"
			logger.Warn(c.Request.Context(), "HTTP request warning", fields)
		default:
			logger.Info(c.Request.Context(), "HTTP request", fields)
		}
	}
}

// versionHandler reports this build and, for a standalone worker, the worker's build
func versionHandler(cfg *config.Config, inProcessWorker bool) gin.HandlerFunc {
	// Use instrumented HTTP client for tracing
	client := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   config.DefaultHTTPTimeout,
	}

	return func(c *gin.Context) {
		backendVersion := gin.H{
			"service":   "server",
			"version":   version.Version,
			"commit":    version.Commit,
			"buildTime": version.BuildTime,
		}

		var workerVersion interface{}
		switch {
		case inProcessWorker:
			workerVersion = gin.H{"service": "worker", "mode": "in-process", "version": version.Version}
		case cfg.Server.WorkerInternalURL == "":
			workerVersion = gin.H{"error": "Worker URL not configured"}
		default:
			workerVersion = fetchWorkerVersion(c, client, strings.TrimRight(cfg.Server.WorkerInternalURL, "/"))
		}

		c.JSON(http.StatusOK, gin.H{
			"backend": backendVersion,
			"worker":  workerVersion,
		})
	}
}

func fetchWorkerVersion(c *gin.Context, client *http.Client, baseURL string) interface{} {
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, baseURL+"/v1/version", nil)
	if err != nil {
		return gin.H{"error": "Worker unavailable"}
	}
	resp, err := client.Do(req)
	if err != nil {
		return gin.H{"error": "Worker unavailable"}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return gin.H{"error": "Worker unavailable"}
	}

	var workerVersion interface{}
	if err := json.NewDecoder(resp.Body).Decode(&workerVersion); err != nil {
		return gin.H{"error": "Failed to decode worker version"}
	}
	return workerVersion
}
