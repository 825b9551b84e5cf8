package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/GoCodeAlone/smarttodo/events"
	"github.com/GoCodeAlone/smarttodo/suggest"
	"github.com/GoCodeAlone/smarttodo/task"
)

const (
	defaultContextLimit = 50
	// suggestionContextLimit caps stored entries appended to a suggestion prompt.
	suggestionContextLimit = 5
)

// --- Category handlers ---

type categoryInput struct {
	Name string `json:"name"`
}

func (h *Handlers) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Tasks.ListCategories(r.Context())
	if err != nil {
		h.writeFailure(w, err, "")
		return
	}
	if cats == nil {
		cats = []*task.Category{}
	}
	writeJSON(w, http.StatusOK, cats)
}

func (h *Handlers) createCategory(w http.ResponseWriter, r *http.Request) {
	var in categoryInput
	if !h.decode(w, r, &in) {
		return
	}
	if err := task.ValidateCategoryName(in.Name); err != nil {
		h.writeFailure(w, err, "")
		return
	}
	c := &task.Category{Name: strings.TrimSpace(in.Name)}
	if err := h.Tasks.CreateCategory(r.Context(), c); err != nil {
		h.writeFailure(w, err, "")
		return
	}
	h.publish(r.Context(), events.TypeCategoryCreated, c.ID, c)
	writeJSON(w, http.StatusCreated, c)
}

// --- Tag handlers ---

func (h *Handlers) listTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.Tasks.ListTags(r.Context())
	if err != nil {
		h.writeFailure(w, err, "")
		return
	}
	if tags == nil {
		tags = []string{}
	}
	writeJSON(w, http.StatusOK, tags)
}

// --- Context handlers ---

type contextInput struct {
	Content    string          `json:"content"`
	SourceType task.SourceType `json:"source_type"`
	Insights   string          `json:"insights"`
}

func (h *Handlers) listContext(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultContextLimit)
	var (
		entries []*task.ContextEntry
		err     error
	)
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		entries, err = h.Tasks.SearchContextEntries(r.Context(), q, limit)
	} else {
		entries, err = h.Tasks.ListContextEntries(r.Context(), limit)
	}
	if err != nil {
		h.writeFailure(w, err, "")
		return
	}
	if entries == nil {
		entries = []*task.ContextEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handlers) createContext(w http.ResponseWriter, r *http.Request) {
	var in contextInput
	if !h.decode(w, r, &in) {
		return
	}
	e := &task.ContextEntry{Content: in.Content, SourceType: in.SourceType, Insights: in.Insights}
	if err := task.ValidateContextEntry(e); err != nil {
		h.writeFailure(w, err, "")
		return
	}
	if err := h.Tasks.CreateContextEntry(r.Context(), e); err != nil {
		h.writeFailure(w, err, "")
		return
	}
	h.publish(r.Context(), events.TypeContextCreated, e.ID, e)
	writeJSON(w, http.StatusCreated, e)
}

// --- Suggestion handler ---

func (h *Handlers) suggestTask(w http.ResponseWriter, r *http.Request) {
	var req suggest.Request
	if !h.decode(w, r, &req) {
		return
	}
	if req.IncludeContext {
		entries, err := h.Tasks.ListContextEntries(r.Context(), suggestionContextLimit)
		if err != nil {
			// Enrichment is best effort; the caller's own context still goes out.
			h.logger().Warn("load suggestion context", slog.Any("err", err))
		}
		for _, e := range entries {
			req.Context = append(req.Context, e.Content)
		}
	}
	out := h.Suggester.Suggest(r.Context(), req)
	writeJSON(w, out.Status, out.Body)
}
