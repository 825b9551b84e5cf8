// Command smarttodod is the smarttodo server daemon.
// It wires the task store, ranking, the suggestion gateway and the event
// bus into the HTTP server, all from one YAML config file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/GoCodeAlone/smarttodo/config"
	"github.com/GoCodeAlone/smarttodo/events"
	"github.com/GoCodeAlone/smarttodo/internal/version"
	"github.com/GoCodeAlone/smarttodo/provider"
	"github.com/GoCodeAlone/smarttodo/provider/mock"
	"github.com/GoCodeAlone/smarttodo/ranking"
	"github.com/GoCodeAlone/smarttodo/server"
	"github.com/GoCodeAlone/smarttodo/server/api"
	"github.com/GoCodeAlone/smarttodo/suggest"
	"github.com/GoCodeAlone/smarttodo/task"
)

const shutdownTimeout = 10 * time.Second

var configPath = flag.String("config", "", "path to YAML config file (defaults only when empty)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	logger.Info("starting smarttodod",
		"version", version.Version,
		"commit", version.Commit,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *cfg, logger); err != nil {
		logger.Error("smarttodod exited", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	store, err := task.Open(ctx, cfg.Storage.Driver, cfg.Storage.Path, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close store", "error", err)
		}
	}()

	p, err := newProvider(cfg.AI)
	if err != nil {
		return err
	}

	var cache suggest.Cache
	if cfg.Cache.RedisAddr != "" {
		rc, err := suggest.DialRedisCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			logger.Warn("suggestion cache disabled", "addr", cfg.Cache.RedisAddr, "error", err)
		} else {
			cache = rc
			defer rc.Close() //nolint:errcheck
		}
	}

	gateway := suggest.New(suggest.Config{
		Model:        cfg.AI.Model,
		SystemPrompt: cfg.AI.SystemPrompt,
		Temperature:  cfg.AI.Temperature,
		MaxTokens:    cfg.AI.MaxTokens,
		Timeout:      cfg.AI.Timeout,
		CacheTTL:     cfg.Cache.TTL,
	}, p, cache, logger)

	bus := events.NewInMemoryBus()

	srv := server.New(cfg, version.Version, logger)
	srv.SetHandlers(&api.Handlers{
		Tasks:        store,
		Ranker:       &ranking.Ranker{Store: store, Location: loc},
		Suggester:    gateway,
		Bus:          bus,
		Logger:       logger,
		StrictFields: cfg.API.StrictFields,
		StartAt:      time.Now(),
		Location:     loc,
	})
	srv.SetEventBus(bus)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// newProvider builds the completion provider named by cfg.Provider.
func newProvider(cfg config.AIConfig) (provider.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return provider.NewOpenAIProvider(provider.OpenAIConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			MaxTokens:  cfg.MaxTokens,
			HTTPClient: &http.Client{Timeout: cfg.Timeout},
		}), nil
	case "anthropic":
		return provider.NewAnthropicProvider(provider.AnthropicConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			MaxTokens:  cfg.MaxTokens,
			HTTPClient: &http.Client{Timeout: cfg.Timeout},
		}), nil
	case "mock":
		return mock.New(), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
