package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Server.Port)
	}
	if cfg.Engine.MaxAttempts != 3 {
		t.Fatalf("expected default max attempts 3, got %d", cfg.Engine.MaxAttempts)
	}
	if cfg.Engine.ReapAge != 24*time.Hour {
		t.Fatalf("expected default reap age 24h, got %v", cfg.Engine.ReapAge)
	}
	if cfg.Engine.WorktreePrefix != "hive-" {
		t.Fatalf("expected default worktree prefix, got %q", cfg.Engine.WorktreePrefix)
	}
	if cfg.Logging.Service != "hive-core" {
		t.Fatalf("expected default service name, got %q", cfg.Logging.Service)
	}
}

func TestLoadFromYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hive.yaml")
	data := `
server:
  port: "9090"
engine:
  max_attempts: 5
  reap_age: 1h
breaker:
  max_failures: 2
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Fatalf("expected port 9090, got %q", cfg.Server.Port)
	}
	if cfg.Engine.MaxAttempts != 5 {
		t.Fatalf("expected max attempts 5, got %d", cfg.Engine.MaxAttempts)
	}
	if cfg.Engine.ReapAge != time.Hour {
		t.Fatalf("expected reap age 1h, got %v", cfg.Engine.ReapAge)
	}
	if cfg.Breaker.MaxFailures != 2 {
		t.Fatalf("expected breaker max failures 2, got %d", cfg.Breaker.MaxFailures)
	}
	// Untouched sections keep their defaults.
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Fatalf("expected default nats url, got %q", cfg.NATS.URL)
	}
}

func TestLoadFromEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hive.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: \"9090\"\n"), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	t.Setenv("HIVE_PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://env/hive")
	t.Setenv("HIVE_MAX_ATTEMPTS", "7")
	t.Setenv("HIVE_REAP_AGE", "48h")
	t.Setenv("HIVE_BYPASS_ALLOWED", "true")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Fatalf("expected env port to win, got %q", cfg.Server.Port)
	}
	if cfg.Postgres.DSN != "postgres://env/hive" {
		t.Fatalf("expected env dsn, got %q", cfg.Postgres.DSN)
	}
	if cfg.Engine.MaxAttempts != 7 {
		t.Fatalf("expected env max attempts, got %d", cfg.Engine.MaxAttempts)
	}
	if cfg.Engine.ReapAge != 48*time.Hour {
		t.Fatalf("expected env reap age, got %v", cfg.Engine.ReapAge)
	}
	if !cfg.Permission.BypassAllowed {
		t.Fatal("expected env bypass flag to win")
	}
}

func TestLoadFromMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hive.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed\n"), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty port", func(c *Config) { c.Server.Port = "" }, "server.port"},
		{"empty dsn", func(c *Config) { c.Postgres.DSN = "" }, "postgres.dsn"},
		{"empty nats url", func(c *Config) { c.NATS.URL = "" }, "nats.url"},
		{"zero attempts", func(c *Config) { c.Engine.MaxAttempts = 0 }, "max_attempts"},
		{"negative reap age", func(c *Config) { c.Engine.ReapAge = -time.Hour }, "reap_age"},
		{"zero breaker failures", func(c *Config) { c.Breaker.MaxFailures = 0 }, "max_failures"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := Defaults()
			c.mutate(&cfg)
			err := validate(&cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), c.want) {
				t.Fatalf("expected error mentioning %q, got %v", c.want, err)
			}
		})
	}
}
