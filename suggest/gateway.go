// Package suggest forwards task descriptions to a completion provider and
// turns every result, including failures, into an HTTP-ready outcome.
package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/GoCodeAlone/smarttodo/provider"
)

const (
	DefaultSystemPrompt = "You are a smart task management assistant."
	DefaultMaxTokens    = 500

	msgTaskRequired = "Task details are required"
)

// Config is fixed at construction.
type Config struct {
	// Model overrides the provider's default model when set.
	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	// Timeout bounds a single provider call. Zero means no extra deadline.
	Timeout  time.Duration
	CacheTTL time.Duration
}

// TaskDescription is the task being enriched.
type TaskDescription struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Request is the body of a suggestion call.
type Request struct {
	Task           *TaskDescription `json:"task"`
	Context        []string         `json:"context"`
	IncludeContext bool             `json:"include_context,omitempty"`
}

// Outcome is the status and body to send back. Body is always JSON-encodable.
type Outcome struct {
	Status int
	Body   any
}

// ErrorBody is the payload of every failed outcome.
type ErrorBody struct {
	Error string `json:"error"`
}

// Gateway builds prompts, calls the provider and parses replies.
type Gateway struct {
	cfg      Config
	provider provider.Provider
	cache    Cache
	logger   *slog.Logger
}

// New creates a Gateway. cache and logger may be nil.
func New(cfg Config, p provider.Provider, cache Cache, logger *slog.Logger) *Gateway {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{cfg: cfg, provider: p, cache: cache, logger: logger}
}

// Suggest never returns an error: failures are reported in the Outcome.
// A missing task, or one whose title and description are both blank, is
// rejected with 400 before the provider is called.
func (g *Gateway) Suggest(ctx context.Context, req Request) Outcome {
	if req.Task == nil || (strings.TrimSpace(req.Task.Title) == "" && strings.TrimSpace(req.Task.Description) == "") {
		return failure(http.StatusBadRequest, msgTaskRequired)
	}

	prompt := BuildPrompt(req)
	key := g.cacheKey(prompt)
	if cached, ok := g.lookup(ctx, key); ok {
		return Outcome{Status: http.StatusOK, Body: cached}
	}

	callCtx := ctx
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	temp := g.cfg.Temperature
	resp, err := g.provider.Chat(callCtx, []provider.Message{
		{Role: provider.RoleSystem, Content: g.cfg.SystemPrompt},
		{Role: provider.RoleUser, Content: prompt},
	}, provider.Options{Model: g.cfg.Model, Temperature: &temp, MaxTokens: g.cfg.MaxTokens})
	if err != nil {
		g.logger.Warn("suggestion provider call failed", "provider", g.provider.Name(), "error", err)
		return failure(http.StatusInternalServerError, err.Error())
	}

	parsed, err := ParseReply(resp.Content)
	switch {
	case errors.Is(err, ErrNoJSON):
		g.logger.Info("suggestion reply had no JSON", "provider", g.provider.Name())
		return failure(http.StatusOK, ErrNoJSON.Error())
	case err != nil:
		g.logger.Warn("suggestion reply had malformed JSON", "provider", g.provider.Name(), "error", err)
		return failure(http.StatusInternalServerError, err.Error())
	}

	g.logger.Debug("suggestion generated",
		"provider", g.provider.Name(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	g.store(ctx, key, parsed)
	return Outcome{Status: http.StatusOK, Body: parsed}
}

// cacheKey is scoped by provider; an empty model means the provider default.
func (g *Gateway) cacheKey(prompt string) string {
	return CacheKey(g.provider.Name()+"/"+g.cfg.Model, g.cfg.SystemPrompt, prompt)
}

func (g *Gateway) lookup(ctx context.Context, key string) (json.RawMessage, bool) {
	if g.cache == nil {
		return nil, false
	}
	val, ok, err := g.cache.Get(ctx, key)
	if err != nil {
		g.logger.Warn("suggestion cache get failed", "error", err)
		return nil, false
	}
	if !ok || !json.Valid(val) {
		return nil, false
	}
	return json.RawMessage(val), true
}

func (g *Gateway) store(ctx context.Context, key string, value json.RawMessage) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Set(ctx, key, value, g.cfg.CacheTTL); err != nil {
		g.logger.Warn("suggestion cache set failed", "error", err)
	}
}

func failure(status int, msg string) Outcome {
	return Outcome{Status: status, Body: ErrorBody{Error: msg}}
}
