package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/GoCodeAlone/smarttodo/config"
	"github.com/GoCodeAlone/smarttodo/suggest"
)

func TestNewProvider(t *testing.T) {
	for _, name := range []string{"openai", "anthropic", "mock"} {
		t.Run(name, func(t *testing.T) {
			cfg := config.DefaultConfig().AI
			cfg.Provider = name
			p, err := newProvider(cfg)
			if err != nil {
				t.Fatalf("newProvider: %v", err)
			}
			if p.Name() != name {
				t.Errorf("Name() = %q, want %q", p.Name(), name)
			}
		})
	}

	if _, err := newProvider(config.AIConfig{Provider: "copilot"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

type modelLog struct {
	mu     sync.Mutex
	models []string
}

func (l *modelLog) add(m string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.models = append(l.models, m)
}

func (l *modelLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.models...)
}

// completionServer answers both the OpenAI and Anthropic endpoints and
// records the model named in each request.
func completionServer(t *testing.T, models *modelLog) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		models.add(req.Model)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/chat/completions":
			_, _ = w.Write([]byte(`{"model":"` + req.Model + `","choices":[{"message":{"role":"assistant","content":"{\"priority\":0.5}"}}]}`))
		case "/v1/messages":
			_, _ = w.Write([]byte(`{"model":"` + req.Model + `","type":"message","content":[{"type":"text","text":"{\"priority\":0.5}"}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProviderDefaultModel(t *testing.T) {
	tests := []struct {
		provider, model, want string
	}{
		{"openai", "", "gpt-3.5-turbo"},
		{"anthropic", "", "claude-sonnet-4-20250514"},
		{"anthropic", "claude-3-haiku-20240307", "claude-3-haiku-20240307"},
	}
	for _, tt := range tests {
		t.Run(tt.provider+"/"+tt.want, func(t *testing.T) {
			var models modelLog
			srv := completionServer(t, &models)

			yml := "ai:\n  provider: " + tt.provider + "\n  api_key: test-key\n  base_url: " + srv.URL + "\n"
			if tt.model != "" {
				yml += "  model: " + tt.model + "\n"
			}
			path := filepath.Join(t.TempDir(), "smarttodo.yaml")
			if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
				t.Fatal(err)
			}
			cfg, err := config.Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}

			p, err := newProvider(cfg.AI)
			if err != nil {
				t.Fatalf("newProvider: %v", err)
			}
			g := suggest.New(suggest.Config{
				Model:       cfg.AI.Model,
				Temperature: cfg.AI.Temperature,
				MaxTokens:   cfg.AI.MaxTokens,
			}, p, nil, nil)
			out := g.Suggest(context.Background(), suggest.Request{Task: &suggest.TaskDescription{Title: "Plan trip"}})
			if out.Status != http.StatusOK {
				t.Fatalf("Status = %d, body %v", out.Status, out.Body)
			}
			if got := models.all(); len(got) != 1 || got[0] != tt.want {
				t.Errorf("models sent = %q, want [%q]", got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
