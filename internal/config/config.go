package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Source   SourceConfig   `mapstructure:"source"`
	Jobs     JobsConfig     `mapstructure:"jobs" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// DatabaseConfig selects and configures the persistence backend.
type DatabaseConfig struct {
	// Driver is "postgres" for durable storage or "memory" for a
	// single-process store that is lost on exit.
	Driver string `mapstructure:"driver" validate:"required,oneof=postgres memory"`
	URL    string `mapstructure:"url" validate:"required_if=Driver postgres,omitempty,url"`
}

// AuthConfig configures bearer-token verification on the HTTP API.
// An empty secret disables authentication.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
	Issuer    string `mapstructure:"issuer"`
}

// LLMConfig lists the generation backends in fallback order.
type LLMConfig struct {
	Backends []BackendConfig `mapstructure:"backends" validate:"required,min=1,dive"`

	// GeminiAPIKey is a shortcut for a single Gemini backend when no
	// backends list is configured.
	GeminiAPIKey string `mapstructure:"gemini_api_key"`

	// RequestTimeout bounds each backend attempt.
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`

	// RateLimit is the number of generation requests per second shared by
	// all workers. Zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`

	// PromptDir optionally overrides the built-in prompt templates.
	PromptDir string `mapstructure:"prompt_dir"`
}

// BackendConfig configures one generation backend.
type BackendConfig struct {
	Name        string  `mapstructure:"name" validate:"required"`
	Kind        string  `mapstructure:"kind" validate:"required,oneof=gemini openai azure_openai"`
	Model       string  `mapstructure:"model" validate:"required_unless=Kind azure_openai"`
	APIKey      string  `mapstructure:"api_key" validate:"required"`
	Endpoint    string  `mapstructure:"endpoint" validate:"required_if=Kind azure_openai,omitempty,url"`
	Deployment  string  `mapstructure:"deployment" validate:"required_if=Kind azure_openai"`
	APIVersion  string  `mapstructure:"api_version"`
	Temperature float32 `mapstructure:"temperature" validate:"gte=0,lte=2"`
}

// SourceConfig configures where units are listed from and which are kept.
type SourceConfig struct {
	Categories []string `mapstructure:"categories" validate:"dive,oneof=python java javascript go typescript"`
	Exclude    []string `mapstructure:"exclude"`
	MaxBytes   int64    `mapstructure:"max_bytes" validate:"gte=0"`
	S3         S3Config `mapstructure:"s3"`
}

// S3Config configures the S3 unit source used for s3:// repository IDs.
type S3Config struct {
	Region           string `mapstructure:"region"`
	Profile          string `mapstructure:"profile"`
	Endpoint         string `mapstructure:"endpoint" validate:"omitempty,url"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UsePathStyle     bool   `mapstructure:"use_path_style"`
	FetchConcurrency int    `mapstructure:"fetch_concurrency" validate:"gte=0"`
}

// JobsConfig sizes the worker pools.
type JobsConfig struct {
	// UnitWorkerCount is the number of concurrent unit tasks per job.
	UnitWorkerCount int `mapstructure:"unit_worker_count" validate:"gt=0"`
	// JobWorkerCount is the number of jobs processed concurrently.
	JobWorkerCount int `mapstructure:"job_worker_count" validate:"gt=0"`
	// QueueSize bounds the number of submitted jobs waiting for a worker.
	QueueSize int `mapstructure:"queue_size" validate:"gt=0"`
	// PollInterval is the fallback re-read interval of completion waiters.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
}
