package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// DOCGEN_SERVER_PORT or DOCGEN_DATABASE_URL.
const EnvPrefix = "DOCGEN"

// envKeys are bound explicitly so that values only present in the
// environment still reach Unmarshal.
var envKeys = []string{
	"server.port",
	"server.log_level",
	"server.shutdown_timeout",
	"database.driver",
	"database.url",
	"auth.jwt_secret",
	"auth.issuer",
	"llm.gemini_api_key",
	"llm.request_timeout",
	"llm.rate_limit",
	"llm.prompt_dir",
	"source.categories",
	"source.exclude",
	"source.max_bytes",
	"source.s3.region",
	"source.s3.profile",
	"source.s3.endpoint",
	"source.s3.access_key_id",
	"source.s3.secret_access_key",
	"source.s3.use_path_style",
	"source.s3.fetch_concurrency",
	"jobs.unit_worker_count",
	"jobs.job_worker_count",
	"jobs.queue_size",
	"jobs.poll_interval",
}

// DefaultGeminiModel is used for the backend synthesized from
// llm.gemini_api_key.
const DefaultGeminiModel = "gemini-2.0-flash"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("llm.request_timeout", 2*time.Minute)
	v.SetDefault("llm.rate_limit", 0)
	v.SetDefault("source.categories", []string{"python", "java", "javascript"})
	v.SetDefault("source.exclude", []string{"**/tests/**"})
	v.SetDefault("source.max_bytes", 256*1024)
	v.SetDefault("source.s3.fetch_concurrency", 8)
	v.SetDefault("jobs.unit_worker_count", 10)
	v.SetDefault("jobs.job_worker_count", 2)
	v.SetDefault("jobs.queue_size", 16)
	v.SetDefault("jobs.poll_interval", 2*time.Second)
}

// Load reads configuration from defaults, an optional YAML file and
// DOCGEN_ environment variables, in increasing order of precedence.
// An empty configFile falls back to ./config.yaml when present.
// Returns a populated Config struct or an error if loading/validation fails.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.LLM.Backends) == 0 && cfg.LLM.GeminiAPIKey != "" {
		cfg.LLM.Backends = []BackendConfig{{
			Name:   "gemini",
			Kind:   "gemini",
			Model:  DefaultGeminiModel,
			APIKey: cfg.LLM.GeminiAPIKey,
		}}
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints and backend name uniqueness.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	seen := make(map[string]struct{}, len(cfg.LLM.Backends))
	for _, b := range cfg.LLM.Backends {
		if _, dup := seen[b.Name]; dup {
			return fmt.Errorf("config validation failed: duplicate backend name %q", b.Name)
		}
		seen[b.Name] = struct{}{}
	}
	return nil
}
