package config

import "time"

// Timeout constants
const (
	// HTTP timeouts
	DefaultHTTPTimeout    = 60 * time.Second
	AIRequestTimeout      = 3 * time.Minute
	AIShutdownTimeout     = 30 * time.Second
	WorkerShutdownTimeout = 30 * time.Second
	ServerShutdownTimeout = 10 * time.Second

	// Database timeouts
	DatabaseConnMaxLifetime = 5 * time.Minute

	// Session timeouts
	SessionMaxAge = 7 * 24 * time.Hour // 7 days

	// Worker timeouts
	WorkerCheckInterval = 15 * time.Second
	WorkerDequeueWait   = 5 * time.Second
)

// Defaults applied when the config file leaves a value unset
const (
	DefaultServerPort            = "8080"
	DefaultWorkerPort            = "8081"
	DefaultMaxUploadBytes        = 50 << 20
	DefaultAIProvider            = "google"
	DefaultAIModel               = "gemini-2.5-flash"
	DefaultAIMaxTokens           = 4096
	DefaultAIMaxConcurrent       = 10
	DefaultQuestionsPerTier      = 3
	DefaultTopicExcerptChars     = 24000
	DefaultChunkSize             = 1200
	DefaultChunkOverlap          = 200
	DefaultSearchLimit           = 5
	DefaultContextChunks         = 4
	DefaultWorkerConcurrency     = 2
	DefaultQueueKey              = "sales-trainer:ingestion"
	DefaultWorkerMaxHistory      = 50
	DefaultWorkerMaxActivityLogs = 200
	DefaultLocalStorageDir       = "data/uploads"
	DefaultTokenTTL              = 24 * time.Hour
	DefaultTokenIssuer           = "sales-trainer"
)

// Queue and storage backends
const (
	QueueMemory  = "memory"
	QueueRedis   = "redis"
	StorageLocal = "local"
	StorageGCS   = "gcs"
)

// Session configuration constants
const (
	SessionPath     = "/"
	SessionHTTPOnly = true
	SessionSecure   = false // Set to true in production with HTTPS

	SessionName = "sales-trainer-session"
)

// Security configuration constants
const (
	// Content Security Policy
	DefaultCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'; img-src 'self' data:;"
)

// AI service constants
const (
	AIShutdownPollInterval = 100 * time.Millisecond
)
