package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/GoCodeAlone/smarttodo/events"
	"github.com/GoCodeAlone/smarttodo/internal/version"
	"github.com/GoCodeAlone/smarttodo/ranking"
	"github.com/GoCodeAlone/smarttodo/suggest"
	"github.com/GoCodeAlone/smarttodo/task"
)

const maxBodyBytes = 1 << 20

// Suggester produces suggestion outcomes. *suggest.Gateway implements it.
type Suggester interface {
	Suggest(ctx context.Context, req suggest.Request) suggest.Outcome
}

// Handlers bundles all REST API handler dependencies.
type Handlers struct {
	Tasks     task.Store
	Ranker    *ranking.Ranker
	Suggester Suggester
	Bus       events.Bus
	Logger    *slog.Logger
	// StrictFields rejects request bodies with unknown JSON fields.
	StrictFields bool
	StartAt      time.Time
	// Location is the zone for deadlines sent without one.
	Location *time.Location
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tasks", h.listTasks)
	mux.HandleFunc("POST /api/tasks", h.createTask)
	mux.HandleFunc("GET /api/tasks/next-best", h.nextBest)
	mux.HandleFunc("GET /api/tasks/recommend", h.recommend)
	mux.HandleFunc("GET /api/tasks/{id}", h.getTask)
	mux.HandleFunc("PUT /api/tasks/{id}", h.replaceTask)
	mux.HandleFunc("PATCH /api/tasks/{id}", h.patchTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", h.deleteTask)

	mux.HandleFunc("POST /api/tasks/{id}/checklist", h.addChecklistItem)
	mux.HandleFunc("PATCH /api/tasks/{id}/checklist/{itemID}", h.updateChecklistItem)
	mux.HandleFunc("DELETE /api/tasks/{id}/checklist/{itemID}", h.deleteChecklistItem)

	mux.HandleFunc("GET /api/categories", h.listCategories)
	mux.HandleFunc("POST /api/categories", h.createCategory)
	mux.HandleFunc("GET /api/tags", h.listTags)
	mux.HandleFunc("GET /api/context", h.listContext)
	mux.HandleFunc("POST /api/context", h.createContext)

	mux.HandleFunc("POST /api/ai/suggestions", h.suggestTask)

	// Legacy URL set kept for existing clients.
	mux.HandleFunc("POST /api/tasks/create", h.createTask)
	mux.HandleFunc("PUT /api/tasks/{id}/update", h.replaceTask)
	mux.HandleFunc("PATCH /api/tasks/{id}/update", h.patchTask)
	mux.HandleFunc("DELETE /api/tasks/{id}/delete", h.deleteTask)
	mux.HandleFunc("POST /api/categories/create", h.createCategory)

	mux.HandleFunc("GET /api/status", h.status)
	mux.HandleFunc("GET /api/version", h.versionInfo)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// validationResponse is the 400 body for field-level failures.
type validationResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

// writeFailure maps an error to a response. Validation errors become 400
// with field detail, ErrNotFound becomes 404 with notFound as the message,
// and anything else is a 500.
func (h *Handlers) writeFailure(w http.ResponseWriter, err error, notFound string) {
	var ve *task.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, validationResponse{Error: "validation failed", Fields: ve.Fields})
	case errors.Is(err, task.ErrNotFound):
		writeError(w, http.StatusNotFound, notFound)
	default:
		h.logger().Error("request failed", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// decode reads a JSON body into v, writing a 400 and returning false when
// the body is unreadable or, in strict mode, carries unknown fields.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if h.StrictFields {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		msg := "invalid request body: " + err.Error()
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		writeError(w, http.StatusBadRequest, msg)
		return false
	}
	return true
}

// publish emits a domain event. Delivery failures are logged, never
// returned to the client.
func (h *Handlers) publish(ctx context.Context, typ events.Type, subject string, payload any) {
	if h.Bus == nil {
		return
	}
	if err := h.Bus.Publish(ctx, events.New(typ, subject, payload)); err != nil {
		h.logger().Warn("publish event", slog.String("type", string(typ)), slog.Any("err", err))
	}
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// --- Status / version ---

func (h *Handlers) status(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": version.Version,
	}
	if !h.StartAt.IsZero() {
		resp["uptime_seconds"] = int64(time.Since(h.StartAt).Seconds())
	}
	writeJSON(w, http.StatusOK, resp)
}

// StatusHandler returns the status handler function for external registration.
func (h *Handlers) StatusHandler() http.HandlerFunc {
	return h.status
}

func (h *Handlers) versionInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}
