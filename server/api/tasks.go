package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/GoCodeAlone/smarttodo/events"
	"github.com/GoCodeAlone/smarttodo/ranking"
	"github.com/GoCodeAlone/smarttodo/task"
)

const (
	msgTaskNotFound       = "Task not found"
	msgChecklistNotFound  = "Checklist item not found"
	msgNoPendingTasks     = "No pending tasks"
	msgNothingToRecommend = "No tasks to recommend"

	// detailHeader carries the explanation for bodiless 204 responses.
	detailHeader = "X-Detail"
)

// --- Task handlers ---

func (h *Handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := task.Filter{
		CategoryID: q.Get("category_id"),
		Tag:        q.Get("tag"),
		Search:     q.Get("q"),
		Limit:      queryInt(r, "limit", 0),
		Offset:     queryInt(r, "offset", 0),
	}

	for _, raw := range q["status"] {
		for _, s := range strings.Split(raw, ",") {
			st := task.Status(strings.TrimSpace(s))
			if st == "" {
				continue
			}
			if !st.Valid() {
				h.writeFailure(w, &task.ValidationError{Fields: map[string]string{
					"status": fmt.Sprintf("%q is not a valid choice.", string(st)),
				}}, "")
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}

	tasks, err := h.Tasks.ListTasks(r.Context(), filter)
	if err != nil {
		h.writeFailure(w, err, "")
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handlers) createTask(w http.ResponseWriter, r *http.Request) {
	var in task.TaskInput
	if !h.decode(w, r, &in) {
		return
	}
	in.Location = h.Location
	if err := in.Validate(false); err != nil {
		h.writeFailure(w, err, "")
		return
	}

	t := in.NewTask()
	if err := h.linkCategory(r.Context(), &in, t); err != nil {
		h.writeFailure(w, err, "")
		return
	}
	if err := h.Tasks.CreateTask(r.Context(), t); err != nil {
		h.writeFailure(w, err, "")
		return
	}
	h.publish(r.Context(), events.TypeTaskCreated, t.ID, t)
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handlers) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tasks.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeFailure(w, err, msgTaskNotFound)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// replaceTask is a full update: fields missing from the payload are reset
// to their defaults.
func (h *Handlers) replaceTask(w http.ResponseWriter, r *http.Request) {
	h.updateTask(w, r, false)
}

// patchTask merges only the fields present in the payload.
func (h *Handlers) patchTask(w http.ResponseWriter, r *http.Request) {
	h.updateTask(w, r, true)
}

func (h *Handlers) updateTask(w http.ResponseWriter, r *http.Request, partial bool) {
	ctx := r.Context()
	existing, err := h.Tasks.GetTask(ctx, r.PathValue("id"))
	if err != nil {
		h.writeFailure(w, err, msgTaskNotFound)
		return
	}

	var in task.TaskInput
	if !h.decode(w, r, &in) {
		return
	}
	in.Location = h.Location
	if err := in.Validate(partial); err != nil {
		h.writeFailure(w, err, "")
		return
	}

	target := existing
	if !partial {
		target = &task.Task{
			ID:        existing.ID,
			Status:    task.StatusPending,
			Tags:      []string{},
			Checklist: []task.ChecklistItem{},
			CreatedAt: existing.CreatedAt,
		}
		if in.Checklist != nil {
			// Keep stored items so matching IDs are updated, not recreated.
			target.Checklist = existing.Checklist
		}
	}
	in.ApplyTo(target)
	if err := h.linkCategory(ctx, &in, target); err != nil {
		h.writeFailure(w, err, "")
		return
	}

	if err := h.Tasks.UpdateTask(ctx, target); err != nil {
		h.writeFailure(w, err, msgTaskNotFound)
		return
	}
	// Re-read so the response carries the category usage count after the move.
	updated, err := h.Tasks.GetTask(ctx, target.ID)
	if err != nil {
		h.writeFailure(w, err, msgTaskNotFound)
		return
	}
	h.publish(ctx, events.TypeTaskUpdated, updated.ID, updated)
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handlers) deleteTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.Tasks.DeleteTask(r.Context(), id); err != nil {
		h.writeFailure(w, err, msgTaskNotFound)
		return
	}
	h.publish(r.Context(), events.TypeTaskDeleted, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// linkCategory resolves category_id from the payload. An empty ID clears
// the category; an unknown one is a validation failure.
func (h *Handlers) linkCategory(ctx context.Context, in *task.TaskInput, t *task.Task) error {
	if in.CategoryID == nil {
		return nil
	}
	id := strings.TrimSpace(*in.CategoryID)
	if id == "" {
		t.Category = nil
		return nil
	}
	c, err := h.Tasks.GetCategory(ctx, id)
	if errors.Is(err, task.ErrNotFound) {
		return &task.ValidationError{Fields: map[string]string{
			"category_id": fmt.Sprintf("Invalid pk %q - object does not exist.", id),
		}}
	}
	if err != nil {
		return err
	}
	t.Category = c
	return nil
}

// --- Ranking handlers ---

func (h *Handlers) nextBest(w http.ResponseWriter, r *http.Request) {
	t, err := h.Ranker.NextBest(r.Context())
	if errors.Is(err, ranking.ErrNoEligibleTasks) {
		writeError(w, http.StatusNotFound, msgNoPendingTasks)
		return
	}
	if err != nil {
		h.writeFailure(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) recommend(w http.ResponseWriter, r *http.Request) {
	t, err := h.Ranker.Recommend(r.Context())
	if errors.Is(err, ranking.ErrNothingToRecommend) {
		h.logger().Debug("recommend: empty eligible set", slog.String("detail", msgNothingToRecommend))
		w.Header().Set(detailHeader, msgNothingToRecommend)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.writeFailure(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// --- Checklist handlers ---

func (h *Handlers) addChecklistItem(w http.ResponseWriter, r *http.Request) {
	var in task.ChecklistInput
	if !h.decode(w, r, &in) {
		return
	}
	if err := in.Validate(true); err != nil {
		h.writeFailure(w, err, "")
		return
	}

	in.ID = ""
	item := task.MergeChecklist(nil, []task.ChecklistInput{in})[0]
	taskID := r.PathValue("id")
	if err := h.Tasks.AddChecklistItem(r.Context(), taskID, &item); err != nil {
		h.writeFailure(w, err, msgTaskNotFound)
		return
	}
	h.publish(r.Context(), events.TypeTaskUpdated, taskID, item)
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handlers) updateChecklistItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID, itemID := r.PathValue("id"), r.PathValue("itemID")
	t, err := h.Tasks.GetTask(ctx, taskID)
	if err != nil {
		h.writeFailure(w, err, msgTaskNotFound)
		return
	}
	var current *task.ChecklistItem
	for i := range t.Checklist {
		if t.Checklist[i].ID == itemID {
			current = &t.Checklist[i]
			break
		}
	}
	if current == nil {
		writeError(w, http.StatusNotFound, msgChecklistNotFound)
		return
	}

	var in task.ChecklistInput
	if !h.decode(w, r, &in) {
		return
	}
	if err := in.Validate(false); err != nil {
		h.writeFailure(w, err, "")
		return
	}

	in.ID = itemID
	item := task.MergeChecklist([]task.ChecklistItem{*current}, []task.ChecklistInput{in})[0]
	if err := h.Tasks.UpdateChecklistItem(ctx, taskID, item); err != nil {
		h.writeFailure(w, err, msgChecklistNotFound)
		return
	}
	h.publish(ctx, events.TypeTaskUpdated, taskID, item)
	writeJSON(w, http.StatusOK, item)
}

func (h *Handlers) deleteChecklistItem(w http.ResponseWriter, r *http.Request) {
	taskID, itemID := r.PathValue("id"), r.PathValue("itemID")
	if err := h.Tasks.DeleteChecklistItem(r.Context(), taskID, itemID); err != nil {
		h.writeFailure(w, err, msgChecklistNotFound)
		return
	}
	h.publish(r.Context(), events.TypeTaskUpdated, taskID, nil)
	w.WriteHeader(http.StatusNoContent)
}
