package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func runCLI(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", srv.URL, "--token", "tok"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestTasksCommand(t *testing.T) {
	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"t1","title":"Write report","status":"pending","priority_score":4,"deadline":"2026-03-12T00:00:00Z"}]`))
	}))
	defer srv.Close()

	out, err := runCLI(t, srv, "tasks", "--status", "pending,in_progress")
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotQuery != "status=pending%2Cin_progress" {
		t.Errorf("query = %q", gotQuery)
	}
	for _, want := range []string{"Write report", "pending", "2026-03-12"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTaskCreateCommand(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/tasks" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"new-1"}`))
	}))
	defer srv.Close()

	out, err := runCLI(t, srv, "task", "create", "--title", "Buy milk", "--priority", "3", "--tag", "home", "--tag", "errand")
	if err != nil {
		t.Fatalf("task create: %v", err)
	}
	if !strings.Contains(out, "created task new-1") {
		t.Errorf("output = %q", out)
	}
	if body["title"] != "Buy milk" || body["priority_score"] != 3.0 {
		t.Errorf("body = %v", body)
	}
	if tags, _ := body["tags"].([]any); len(tags) != 2 {
		t.Errorf("tags = %v", body["tags"])
	}
	if _, ok := body["description"]; ok {
		t.Error("unset description should be omitted")
	}
}

func TestRecommendCommand_NoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Detail", "No tasks to recommend")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	out, err := runCLI(t, srv, "recommend")
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if strings.TrimSpace(out) != "No tasks to recommend" {
		t.Errorf("output = %q", out)
	}
}

func TestNextCommand_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"No pending tasks"}`))
	}))
	defer srv.Close()

	_, err := runCLI(t, srv, "next")
	if err == nil || !strings.Contains(err.Error(), "No pending tasks") {
		t.Fatalf("expected 404 message, got %v", err)
	}
}

func TestSuggestCommand_PrintsErrorPayload(t *testing.T) {
	var req map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&req)
		_, _ = w.Write([]byte(`{"error":"AI response not in valid JSON format"}`))
	}))
	defer srv.Close()

	out, err := runCLI(t, srv, "suggest", "--title", "Plan trip", "--context", "budget is tight")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if !strings.Contains(out, "AI response not in valid JSON format") {
		t.Errorf("output = %q", out)
	}
	taskBody, _ := req["task"].(map[string]any)
	if taskBody["title"] != "Plan trip" {
		t.Errorf("request task = %v", req["task"])
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		body, want string
	}{
		{`{"error":"Task not found"}`, "Task not found"},
		{`{"error":"validation failed","fields":{"title":"required","status":"bad"}}`, "validation failed (status: bad; title: required)"},
		{"plain text\n", "plain text"},
	}
	for _, tt := range tests {
		if got := errorMessage([]byte(tt.body)); got != tt.want {
			t.Errorf("errorMessage(%s) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo world", 5); got != "héll…" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
}
