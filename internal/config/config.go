// Package config handles application configuration loading from YAML files and environment variables.
package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the environment variable pointing at the YAML config file
const ConfigFileEnv = "SALES_TRAINER_CONFIG_FILE"

// ProviderConfig defines an OpenAI-compatible endpoint reachable over plain HTTP
type ProviderConfig struct {
	Name   string    `json:"name" yaml:"name"`
	Code   string    `json:"code" yaml:"code"`
	URL    string    `json:"url,omitempty" yaml:"url,omitempty"`
	Models []AIModel `json:"models" yaml:"models"`
}

// AIModel represents an AI model configuration
type AIModel struct {
	Name      string `json:"name" yaml:"name"`
	Code      string `json:"code" yaml:"code"`
	MaxTokens int    `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// Config holds all configuration for the application
type Config struct {
	Server        ServerConfig        `json:"server" yaml:"server"`
	Database      DatabaseConfig      `json:"database" yaml:"database"`
	AI            AIConfig            `json:"ai" yaml:"ai"`
	Providers     []ProviderConfig    `json:"providers" yaml:"providers"`
	Assessment    AssessmentConfig    `json:"assessment" yaml:"assessment"`
	KnowledgeBase KnowledgeBaseConfig `json:"knowledge_base" yaml:"knowledge_base"`
	Worker        WorkerConfig        `json:"worker" yaml:"worker"`
	Storage       StorageConfig       `json:"storage" yaml:"storage"`
	Auth          AuthConfig          `json:"auth" yaml:"auth"`
	OpenTelemetry OpenTelemetryConfig `json:"open_telemetry" yaml:"open_telemetry"`

	// Internal fields
	IsTest bool `json:"is_test" yaml:"is_test"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port          string   `json:"port" yaml:"port"`
	WorkerPort    string   `json:"worker_port" yaml:"worker_port"`
	AdminUsername string   `json:"admin_username" yaml:"admin_username"`
	AdminPassword string   `json:"admin_password" yaml:"admin_password"`
	SessionSecret string   `json:"session_secret" yaml:"session_secret"`
	Debug         bool     `json:"debug" yaml:"debug"`
	LogLevel      string   `json:"log_level" yaml:"log_level"`
	CORSOrigins   []string `json:"cors_origins" yaml:"cors_origins"`
	// WorkerInternalURL is where the API reaches a standalone worker's HTTP port.
	WorkerInternalURL string `json:"worker_internal_url" yaml:"worker_internal_url"`
	// MaxUploadBytes caps the size of a single uploaded document.
	MaxUploadBytes int64 `json:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// AIConfig selects the LLM backend used for topic extraction, question generation and evaluation
type AIConfig struct {
	// Provider is one of "openai", "anthropic", "google", or the code of an entry in Providers.
	Provider    string  `json:"provider" yaml:"provider" validate:"required"`
	Model       string  `json:"model" yaml:"model" validate:"required"`
	APIKey      string  `json:"api_key" yaml:"api_key"`
	BaseURL     string  `json:"base_url" yaml:"base_url"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" validate:"gte=0"`
	Temperature float64 `json:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	// MaxConcurrent bounds in-flight LLM requests across the process.
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent" validate:"gte=0"`
}

// AssessmentConfig controls answer evaluation and question generation
type AssessmentConfig struct {
	SemanticEvaluation bool `json:"semantic_evaluation" yaml:"semantic_evaluation"`
	QuestionsPerTier   int  `json:"questions_per_tier" yaml:"questions_per_tier" validate:"gte=0"`
	// TopicExcerptChars limits how much document text is sent with the topic extraction prompt.
	TopicExcerptChars int `json:"topic_excerpt_chars" yaml:"topic_excerpt_chars" validate:"gte=0"`
}

// KnowledgeBaseConfig controls document chunking and retrieval
type KnowledgeBaseConfig struct {
	ChunkSize    int `json:"chunk_size" yaml:"chunk_size" validate:"gte=0"`
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap" validate:"gte=0"`
	SearchLimit  int `json:"search_limit" yaml:"search_limit" validate:"gte=0"`
	// ContextChunks is the number of chunks stitched into a generation prompt.
	ContextChunks int `json:"context_chunks" yaml:"context_chunks" validate:"gte=0"`
}

// WorkerConfig controls the ingestion worker
type WorkerConfig struct {
	// Queue is "memory" (in-process) or "redis".
	Queue           string        `json:"queue" yaml:"queue" validate:"omitempty,oneof=memory redis"`
	Concurrency     int           `json:"concurrency" yaml:"concurrency" validate:"gte=0"`
	RedisURL        string        `json:"redis_url" yaml:"redis_url"`
	QueueKey        string        `json:"queue_key" yaml:"queue_key"`
	PollInterval    time.Duration `json:"poll_interval" yaml:"poll_interval"`
	StartPaused     bool          `json:"start_paused" yaml:"start_paused"`
	MaxHistory      int           `json:"max_history" yaml:"max_history"`
	MaxActivityLogs int           `json:"max_activity_logs" yaml:"max_activity_logs"`
}

// StorageConfig selects where uploaded documents are archived
type StorageConfig struct {
	// Backend is "local" or "gcs".
	Backend   string `json:"backend" yaml:"backend" validate:"omitempty,oneof=local gcs"`
	LocalDir  string `json:"local_dir" yaml:"local_dir"`
	GCSBucket string `json:"gcs_bucket" yaml:"gcs_bucket"`
}

// AuthConfig holds admin token settings
type AuthConfig struct {
	JWTSecret string        `json:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL  time.Duration `json:"token_ttl" yaml:"token_ttl"`
	Issuer    string        `json:"issuer" yaml:"issuer"`
}

// OpenTelemetryConfig holds all OpenTelemetry-related configuration
type OpenTelemetryConfig struct {
	Endpoint       string            `json:"endpoint" yaml:"endpoint"`               // Default: "localhost:4317"
	Protocol       string            `json:"protocol" yaml:"protocol"`               // "grpc" or "http", default: "grpc"
	Insecure       bool              `json:"insecure" yaml:"insecure"`               // Default: true (for localhost)
	Headers        map[string]string `json:"headers" yaml:"headers"`                 // For authenticated endpoints
	ServiceName    string            `json:"service_name" yaml:"service_name"`       // "sales-trainer-server" or "sales-trainer-worker"
	ServiceVersion string            `json:"service_version" yaml:"service_version"` // From version package
	EnableTracing  bool              `json:"enable_tracing" yaml:"enable_tracing"`
	EnableMetrics  bool              `json:"enable_metrics" yaml:"enable_metrics"`
	EnableLogging  bool              `json:"enable_logging" yaml:"enable_logging"`
	SamplingRate   float64           `json:"sampling_rate" yaml:"sampling_rate"` // Default: 1.0 (100%)
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL             string        `json:"url" yaml:"url"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`       // Maximum number of open connections to the database
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`       // Maximum number of idle connections in the pool
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"` // Maximum amount of time a connection may be reused
}

// GetProvider returns the OpenAI-compatible provider entry with the given code
func (c *Config) GetProvider(code string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.Code == code {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// UsesRedisQueue reports whether ingestion jobs are handed to a separate worker through redis
func (c *Config) UsesRedisQueue() bool {
	return strings.EqualFold(c.Worker.Queue, QueueRedis)
}

// NewConfig loads configuration from YAML file first, then overrides with environment variables
func NewConfig() (result0 *Config, err error) {
	// .env is optional; real environment variables win over it
	_ = godotenv.Load()

	config, err := loadConfigWithOverrides()
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config: %w", err)
	}

	config.overrideFromEnv()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks struct-level constraints on the loaded configuration
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid configuration: %w", err)
	}
	if c.UsesRedisQueue() && c.Worker.RedisURL == "" {
		return contextutils.ErrorWithContextf("worker.redis_url is required when worker.queue is redis")
	}
	if c.Storage.Backend == StorageGCS && c.Storage.GCSBucket == "" {
		return contextutils.ErrorWithContextf("storage.gcs_bucket is required when storage.backend is gcs")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.WorkerPort == "" {
		c.Server.WorkerPort = DefaultWorkerPort
	}
	if c.Server.MaxUploadBytes <= 0 {
		c.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.AI.Provider == "" {
		c.AI.Provider = DefaultAIProvider
	}
	if c.AI.Model == "" {
		c.AI.Model = DefaultAIModel
	}
	if c.AI.MaxTokens == 0 {
		c.AI.MaxTokens = DefaultAIMaxTokens
	}
	if c.AI.MaxConcurrent == 0 {
		c.AI.MaxConcurrent = DefaultAIMaxConcurrent
	}
	if c.Assessment.QuestionsPerTier == 0 {
		c.Assessment.QuestionsPerTier = DefaultQuestionsPerTier
	}
	if c.Assessment.TopicExcerptChars == 0 {
		c.Assessment.TopicExcerptChars = DefaultTopicExcerptChars
	}
	if c.KnowledgeBase.ChunkSize == 0 {
		c.KnowledgeBase.ChunkSize = DefaultChunkSize
	}
	if c.KnowledgeBase.ChunkOverlap == 0 {
		c.KnowledgeBase.ChunkOverlap = DefaultChunkOverlap
	}
	if c.KnowledgeBase.ChunkOverlap >= c.KnowledgeBase.ChunkSize {
		c.KnowledgeBase.ChunkOverlap = c.KnowledgeBase.ChunkSize / 4
	}
	if c.KnowledgeBase.SearchLimit == 0 {
		c.KnowledgeBase.SearchLimit = DefaultSearchLimit
	}
	if c.KnowledgeBase.ContextChunks == 0 {
		c.KnowledgeBase.ContextChunks = DefaultContextChunks
	}
	if c.Worker.Queue == "" {
		c.Worker.Queue = QueueMemory
	}
	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if c.Worker.QueueKey == "" {
		c.Worker.QueueKey = DefaultQueueKey
	}
	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = WorkerCheckInterval
	}
	if c.Worker.MaxHistory == 0 {
		c.Worker.MaxHistory = DefaultWorkerMaxHistory
	}
	if c.Worker.MaxActivityLogs == 0 {
		c.Worker.MaxActivityLogs = DefaultWorkerMaxActivityLogs
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageLocal
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = DefaultLocalStorageDir
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = DefaultTokenTTL
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = DefaultTokenIssuer
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = DatabaseConnMaxLifetime
	}
}

// overrideFromEnv overrides config values with environment variables using reflection
func (c *Config) overrideFromEnv() {
	overrideStructFromEnv(c)
}

// overrideStructFromEnv recursively overrides struct fields with environment variables
func overrideStructFromEnv(v interface{}) {
	overrideStructFromEnvWithPrefix(v, "")
}

var durationType = reflect.TypeOf(time.Duration(0))

// overrideStructFromEnvWithPrefix recursively overrides struct fields with environment variables.
// The variable name is the upper-cased yaml tag path joined by underscores, e.g. AI_API_KEY.
func overrideStructFromEnvWithPrefix(v interface{}, prefix string) {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		if !field.CanSet() {
			continue
		}

		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}

		envKey := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
		if prefix != "" {
			envKey = prefix + "_" + envKey
		}

		if field.Type() == durationType {
			if envVal := os.Getenv(envKey); envVal != "" {
				if d, err := time.ParseDuration(envVal); err == nil {
					field.SetInt(int64(d))
				}
			}
			continue
		}

		switch field.Kind() {
		case reflect.String:
			if envVal := os.Getenv(envKey); envVal != "" {
				field.SetString(envVal)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if intVal, err := strconv.ParseInt(envVal, 10, 64); err == nil {
					field.SetInt(intVal)
				}
			}
		case reflect.Float32, reflect.Float64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if floatVal, err := strconv.ParseFloat(envVal, 64); err == nil {
					field.SetFloat(floatVal)
				}
			}
		case reflect.Bool:
			if envVal := os.Getenv(envKey); envVal != "" {
				if boolVal, err := strconv.ParseBool(envVal); err == nil {
					field.SetBool(boolVal)
				}
			}
		case reflect.Slice:
			if envVal := os.Getenv(envKey); envVal != "" {
				if field.Type().Elem().Kind() == reflect.String {
					parts := strings.Split(envVal, ",")
					for i := range parts {
						parts[i] = strings.TrimSpace(parts[i])
					}
					field.Set(reflect.ValueOf(parts))
				}
			}
		case reflect.Struct:
			if field.CanAddr() {
				overrideStructFromEnvWithPrefix(field.Addr().Interface(), envKey)
			}
		case reflect.Ptr:
			if !field.IsNil() && field.Elem().Kind() == reflect.Struct {
				overrideStructFromEnvWithPrefix(field.Interface(), envKey)
			}
		}
	}
}

// loadConfigWithOverrides loads the config file named by ConfigFileEnv, or config.yaml.
// A missing default config.yaml is not an error: the service can be configured purely from the environment.
func loadConfigWithOverrides() (result0 *Config, err error) {
	if envPath := os.Getenv(ConfigFileEnv); envPath != "" {
		config, err := loadConfigFromFile(envPath)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config from %s: %w", envPath, err)
		}
		return config, nil
	}

	config, err := loadConfigFromFile("config.yaml")
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	return config, err
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (result0 *Config, err error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
