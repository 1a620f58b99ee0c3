package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "hive.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "HIVE_PORT")
	setString(&cfg.Server.CORSOrigin, "HIVE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "HIVE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "HIVE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "HIVE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "HIVE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "HIVE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.APIKey, "LITELLM_API_KEY")
	setString(&cfg.Logging.Level, "HIVE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "HIVE_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "HIVE_BREAKER_MAX_FAILURES")
	setInt(&cfg.Breaker.RecoveryHits, "HIVE_BREAKER_RECOVERY_HITS")
	setDuration(&cfg.Breaker.Timeout, "HIVE_BREAKER_TIMEOUT")

	setInt(&cfg.Engine.MaxAttempts, "HIVE_MAX_ATTEMPTS")
	setDuration(&cfg.Engine.RetryBaseDelay, "HIVE_RETRY_BASE_DELAY")
	setDuration(&cfg.Engine.ReapInterval, "HIVE_REAP_INTERVAL")
	setDuration(&cfg.Engine.ReapAge, "HIVE_REAP_AGE")
	setDuration(&cfg.Engine.DefaultTaskTimeout, "HIVE_TASK_TIMEOUT")
	setString(&cfg.Engine.WorktreePrefix, "HIVE_WORKTREE_PREFIX")
	setInt(&cfg.Engine.AutoContextMaxFiles, "HIVE_CONTEXT_MAX_FILES")
	setInt(&cfg.Engine.AutoContextRecentFiles, "HIVE_CONTEXT_RECENT_FILES")
	setInt(&cfg.Engine.AutoContextFileChars, "HIVE_CONTEXT_FILE_CHARS")
	setInt(&cfg.Engine.AutoContextTotalChars, "HIVE_CONTEXT_TOTAL_CHARS")

	setBool(&cfg.Permission.BypassAllowed, "HIVE_BYPASS_ALLOWED")
	setString(&cfg.Skills.Dir, "HIVE_SKILLS_DIR")
	setInt64(&cfg.Cache.MaxSizeMB, "HIVE_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "HIVE_CACHE_TTL")
	setInt(&cfg.Git.MaxConcurrent, "HIVE_GIT_MAX_CONCURRENT")
	setBool(&cfg.Otel.Enabled, "HIVE_OTEL_ENABLED")
	setString(&cfg.Otel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.MCP.Enabled, "HIVE_MCP_ENABLED")
	setString(&cfg.Secrets.File, "HIVE_SECRETS_FILE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Engine.MaxAttempts < 1 {
		return errors.New("engine.max_attempts must be >= 1")
	}
	if cfg.Engine.ReapAge <= 0 {
		return errors.New("engine.reap_age must be positive")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
