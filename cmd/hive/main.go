package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	hivehttp "github.com/hiveworks/hive/internal/adapter/http"
	"github.com/hiveworks/hive/internal/adapter/litellm"
	"github.com/hiveworks/hive/internal/adapter/mcp"
	hivenats "github.com/hiveworks/hive/internal/adapter/nats"
	"github.com/hiveworks/hive/internal/adapter/otel"
	"github.com/hiveworks/hive/internal/adapter/postgres"
	"github.com/hiveworks/hive/internal/adapter/ristretto"
	"github.com/hiveworks/hive/internal/adapter/skilldir"
	"github.com/hiveworks/hive/internal/adapter/ws"
	"github.com/hiveworks/hive/internal/config"
	"github.com/hiveworks/hive/internal/engine"
	"github.com/hiveworks/hive/internal/git"
	"github.com/hiveworks/hive/internal/logger"
	"github.com/hiveworks/hive/internal/port/broadcast"
	"github.com/hiveworks/hive/internal/port/provider"
	"github.com/hiveworks/hive/internal/resilience"
	"github.com/hiveworks/hive/internal/secrets"

	"github.com/hiveworks/hive/internal/adapter/gitcli"
)

const version = "0.1.0"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"reap_interval", cfg.Engine.ReapInterval,
	)

	ctx := context.Background()

	// Secrets override config for credentials.
	vault, err := secrets.Open(
		secrets.FromFile(cfg.Secrets.File),
		secrets.FromEnvPrefix("HIVE_SECRET_"),
	)
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	if key := vault.Get("LITELLM_API_KEY"); key != "" {
		cfg.LiteLLM.APIKey = key
	}

	// Telemetry
	if cfg.Otel.Enabled {
		shutdown, err := otel.Setup(ctx, cfg.Logging.Service, cfg.Otel.Endpoint)
		if err != nil {
			return fmt.Errorf("otel: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				slog.Warn("otel shutdown", "error", err)
			}
		}()
	}

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// Event fan-out: WebSocket clients plus the NATS event feed.
	hub := ws.NewHub()
	sinks := broadcast.Multi{hub}
	publisher, err := hivenats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, events delivered to websocket clients only", "error", err)
	} else {
		defer func() { _ = publisher.Close() }()
		sinks = append(sinks, publisher)
	}

	// Backend providers
	registry := provider.NewRegistry()
	breaker := resilience.NewBreaker("litellm", cfg.Breaker.MaxFailures, cfg.Breaker.RecoveryHits, cfg.Breaker.Timeout)
	litellm.Register(registry, cfg.LiteLLM.URL, cfg.LiteLLM.APIKey, breaker)

	// Collaborators
	store := postgres.NewStore(pool)
	gitPool := git.NewPool(cfg.Git.MaxConcurrent)
	worktrees := gitcli.NewService(gitPool)
	skillsSvc := skilldir.NewService(cfg.Skills.Dir)

	// Engine
	eng := engine.New(store, worktrees, skillsSvc, registry, sinks, cfg.Engine, cfg.Permission)
	eng.SetEventStore(postgres.NewEventStore(pool))

	fileCache, err := ristretto.New(cfg.Cache.MaxSizeMB * 1024 * 1024)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer fileCache.Close()
	eng.SetCache(fileCache, cfg.Cache.TTL)

	if cfg.Otel.Enabled {
		metrics, err := otel.NewMetrics()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		eng.SetMetrics(metrics)
	}

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	defer eng.Close()

	// MCP server over stdio, opt-in.
	if cfg.MCP.Enabled {
		go func() {
			if err := mcp.NewServer(eng, version).ServeStdio(); err != nil {
				slog.Error("mcp server", "error", err)
			}
		}()
	}

	// HTTP
	handlers := hivehttp.NewHandlers(eng, postgres.NewEventStore(pool))

	r := chi.NewRouter()
	r.Use(hivehttp.CORS(cfg.Server.CORSOrigin))
	r.Use(hivehttp.RequestID)
	r.Use(hivehttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.Otel.Enabled {
		r.Use(otel.HTTPMiddleware(cfg.Logging.Service))
	}

	hivehttp.MountRoutes(r, handlers, hub.HandleWS)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
