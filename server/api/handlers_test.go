package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GoCodeAlone/smarttodo/events"
	"github.com/GoCodeAlone/smarttodo/ranking"
	"github.com/GoCodeAlone/smarttodo/server/api"
	"github.com/GoCodeAlone/smarttodo/suggest"
	"github.com/GoCodeAlone/smarttodo/task"
)

var fixedNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

// --- Test doubles ---

type fakeStore struct {
	mu      sync.Mutex
	seq     int
	tasks   []*task.Task
	cats    []*task.Category
	entries []*task.ContextEntry
}

func newFakeStore() *fakeStore { return &fakeStore{} }

func (s *fakeStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func cloneTask(t *task.Task) *task.Task {
	c := *t
	c.Tags = slices.Clone(t.Tags)
	c.Checklist = slices.Clone(t.Checklist)
	if t.Category != nil {
		cat := *t.Category
		c.Category = &cat
	}
	return &c
}

func (s *fakeStore) find(id string) int {
	return slices.IndexFunc(s.tasks, func(t *task.Task) bool { return t.ID == id })
}

func (s *fakeStore) usage(catID string) int {
	n := 0
	for _, t := range s.tasks {
		if t.CategoryID() == catID {
			n++
		}
	}
	return n
}

func (s *fakeStore) CreateTask(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.nextID("task")
	t.CreatedAt = fixedNow.Add(time.Duration(s.seq) * time.Second)
	t.UpdatedAt = t.CreatedAt
	for i := range t.Checklist {
		if t.Checklist[i].ID == "" {
			t.Checklist[i].ID = s.nextID("item")
		}
	}
	s.tasks = append(s.tasks, cloneTask(t))
	return nil
}

func (s *fakeStore) GetTask(_ context.Context, id string) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(id)
	if i < 0 {
		return nil, fmt.Errorf("task %s: %w", id, task.ErrNotFound)
	}
	t := cloneTask(s.tasks[i])
	if t.Category != nil {
		t.Category.UsageCount = s.usage(t.Category.ID)
	}
	return t, nil
}

func (s *fakeStore) UpdateTask(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(t.ID)
	if i < 0 {
		return fmt.Errorf("task %s: %w", t.ID, task.ErrNotFound)
	}
	s.tasks[i] = cloneTask(t)
	return nil
}

func (s *fakeStore) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(id)
	if i < 0 {
		return fmt.Errorf("task %s: %w", id, task.ErrNotFound)
	}
	s.tasks = slices.Delete(s.tasks, i, i+1)
	return nil
}

func (s *fakeStore) ListTasks(_ context.Context, f task.Filter) ([]*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*task.Task
	for _, t := range s.tasks {
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status) {
			continue
		}
		if f.Tag != "" && !slices.Contains(t.Tags, f.Tag) {
			continue
		}
		out = append(out, cloneTask(t))
	}
	if !f.Oldest {
		slices.Reverse(out)
	}
	return out, nil
}

func (s *fakeStore) AddChecklistItem(_ context.Context, taskID string, item *task.ChecklistItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(taskID)
	if i < 0 {
		return fmt.Errorf("task %s: %w", taskID, task.ErrNotFound)
	}
	item.ID = s.nextID("item")
	s.tasks[i].Checklist = append(s.tasks[i].Checklist, *item)
	return nil
}

func (s *fakeStore) UpdateChecklistItem(_ context.Context, taskID string, item task.ChecklistItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(taskID)
	if i < 0 {
		return fmt.Errorf("task %s: %w", taskID, task.ErrNotFound)
	}
	for j := range s.tasks[i].Checklist {
		if s.tasks[i].Checklist[j].ID == item.ID {
			s.tasks[i].Checklist[j] = item
			return nil
		}
	}
	return fmt.Errorf("checklist item %s: %w", item.ID, task.ErrNotFound)
}

func (s *fakeStore) DeleteChecklistItem(_ context.Context, taskID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(taskID)
	if i < 0 {
		return fmt.Errorf("task %s: %w", taskID, task.ErrNotFound)
	}
	items := s.tasks[i].Checklist
	j := slices.IndexFunc(items, func(c task.ChecklistItem) bool { return c.ID == itemID })
	if j < 0 {
		return fmt.Errorf("checklist item %s: %w", itemID, task.ErrNotFound)
	}
	s.tasks[i].Checklist = slices.Delete(items, j, j+1)
	return nil
}

func (s *fakeStore) CreateCategory(_ context.Context, c *task.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.nextID("cat")
	c.CreatedAt = fixedNow
	cp := *c
	s.cats = append(s.cats, &cp)
	return nil
}

func (s *fakeStore) GetCategory(_ context.Context, id string) (*task.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cats {
		if c.ID == id {
			cp := *c
			cp.UsageCount = s.usage(id)
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("category %s: %w", id, task.ErrNotFound)
}

func (s *fakeStore) FindCategoryByName(_ context.Context, name string) (*task.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cats {
		if task.CategoryKey(c.Name) == task.CategoryKey(name) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("category %q: %w", name, task.ErrNotFound)
}

func (s *fakeStore) ListCategories(_ context.Context) ([]*task.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*task.Category, 0, len(s.cats))
	for _, c := range s.cats {
		cp := *c
		cp.UsageCount = s.usage(c.ID)
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeStore) ListTags(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tags []string
	for _, t := range s.tasks {
		for _, tag := range t.Tags {
			if !slices.Contains(tags, tag) {
				tags = append(tags, tag)
			}
		}
	}
	sort.Strings(tags)
	return tags, nil
}

func (s *fakeStore) CreateContextEntry(_ context.Context, e *task.ContextEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.nextID("ctx")
	e.Timestamp = fixedNow.Add(time.Duration(s.seq) * time.Second)
	cp := *e
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *fakeStore) ListContextEntries(_ context.Context, limit int) ([]*task.ContextEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*task.ContextEntry
	for i := len(s.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		cp := *s.entries[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeStore) SearchContextEntries(_ context.Context, query string, limit int) ([]*task.ContextEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*task.ContextEntry
	for _, e := range s.entries {
		if strings.Contains(strings.ToLower(e.Content), strings.ToLower(query)) {
			cp := *e
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) Close() error { return nil }

type fakeSuggester struct {
	mu   sync.Mutex
	reqs []suggest.Request
	out  suggest.Outcome
}

func (f *fakeSuggester) Suggest(_ context.Context, req suggest.Request) suggest.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.out
}

// --- Test helpers ---

type testEnv struct {
	h     *api.Handlers
	mux   *http.ServeMux
	store *fakeStore
	sugg  *fakeSuggester
	bus   *events.InMemoryBus
}

func newHandlers(t *testing.T) *testEnv {
	t.Helper()
	store := newFakeStore()
	sugg := &fakeSuggester{out: suggest.Outcome{Status: http.StatusOK, Body: json.RawMessage(`{"priority":0.5}`)}}
	bus := events.NewInMemoryBus()
	mux := http.NewServeMux()
	h := &api.Handlers{
		Tasks:     store,
		Ranker:    &ranking.Ranker{Store: store, Now: func() time.Time { return fixedNow }},
		Suggester: sugg,
		Bus:       bus,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	h.RegisterRoutes(mux)
	return &testEnv{h: h, mux: mux, store: store, sugg: sugg, bus: bus}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) createTask(t *testing.T, body string) task.Task {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/tasks", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created task.Task
	decode(t, rr, &created)
	return created
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v (body %q)", err, rr.Body.String())
	}
}

// --- Tests ---

func TestCreateAndGetTask(t *testing.T) {
	env := newHandlers(t)
	created := env.createTask(t, `{"title":"Buy milk","priority_score":3,"tags":["urgent","home","urgent"]}`)

	if created.ID == "" {
		t.Error("expected non-empty task ID")
	}
	if created.Status != task.StatusPending {
		t.Errorf("expected default status pending, got %q", created.Status)
	}
	if got := strings.Join(created.Tags, ","); got != "urgent,home" {
		t.Errorf("expected tags urgent,home, got %s", got)
	}

	rr := env.do(t, http.MethodGet, "/api/tasks/"+created.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rr.Code)
	}
	var got task.Task
	decode(t, rr, &got)
	if got.Title != "Buy milk" || got.PriorityScore != 3 {
		t.Errorf("unexpected task %+v", got)
	}
	if got.Tags == nil || got.Checklist == nil {
		t.Error("expected empty arrays, not null")
	}
}

func TestCreateTask_ValidationError(t *testing.T) {
	env := newHandlers(t)
	rr := env.do(t, http.MethodPost, "/api/tasks", `{"description":"no title","status":"done"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var resp struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	decode(t, rr, &resp)
	if resp.Error != "validation failed" {
		t.Errorf("expected validation failed, got %q", resp.Error)
	}
	if resp.Fields["title"] == "" || resp.Fields["status"] == "" {
		t.Errorf("expected title and status field errors, got %v", resp.Fields)
	}
}

func TestCreateTask_EmptyBody(t *testing.T) {
	env := newHandlers(t)
	rr := env.do(t, http.MethodPost, "/api/tasks", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestCreateTask_UnknownFieldPolicy(t *testing.T) {
	body := `{"title":"x","owner":"bob"}`

	env := newHandlers(t)
	if rr := env.do(t, http.MethodPost, "/api/tasks", body); rr.Code != http.StatusCreated {
		t.Errorf("lenient: expected 201, got %d", rr.Code)
	}

	env.h.StrictFields = true
	if rr := env.do(t, http.MethodPost, "/api/tasks", body); rr.Code != http.StatusBadRequest {
		t.Errorf("strict: expected 400, got %d", rr.Code)
	}

	// Display-only client fields are part of the schema and always accepted.
	ok := `{"title":"x","priority":"high","aiScore":0.4,"createdAt":"now","updatedAt":"now"}`
	if rr := env.do(t, http.MethodPost, "/api/tasks", ok); rr.Code != http.StatusCreated {
		t.Errorf("strict with ignored fields: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestGetTask_NotFound(t *testing.T) {
	env := newHandlers(t)
	rr := env.do(t, http.MethodGet, "/api/tasks/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	var resp map[string]string
	decode(t, rr, &resp)
	if resp["error"] != "Task not found" {
		t.Errorf("expected 'Task not found', got %q", resp["error"])
	}
}

func TestPatchTask(t *testing.T) {
	env := newHandlers(t)
	created := env.createTask(t, `{"title":"Old","description":"keep me","deadline":"2026-03-12T09:00:00Z"}`)

	rr := env.do(t, http.MethodPatch, "/api/tasks/"+created.ID, `{"title":"New","deadline":null}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var got task.Task
	decode(t, rr, &got)
	if got.Title != "New" || got.Description != "keep me" {
		t.Errorf("patch should merge present fields only, got %+v", got)
	}
	if got.Deadline != nil {
		t.Errorf("expected deadline cleared, got %v", got.Deadline)
	}
}

func TestPutTask_ReplacesAndAlias(t *testing.T) {
	env := newHandlers(t)
	created := env.createTask(t, `{"title":"Old","description":"drop me","tags":["a"],"status":"in_progress"}`)

	rr := env.do(t, http.MethodPut, "/api/tasks/"+created.ID+"/update", `{"title":"Fresh"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var got task.Task
	decode(t, rr, &got)
	if got.Title != "Fresh" || got.Description != "" || len(got.Tags) != 0 || got.Status != task.StatusPending {
		t.Errorf("full update should reset absent fields, got %+v", got)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("created_at changed: %v -> %v", created.CreatedAt, got.CreatedAt)
	}

	if rr := env.do(t, http.MethodPut, "/api/tasks/"+created.ID, `{"description":"no title"}`); rr.Code != http.StatusBadRequest {
		t.Errorf("PUT without title: expected 400, got %d", rr.Code)
	}
}

func TestDeleteTask(t *testing.T) {
	env := newHandlers(t)
	created := env.createTask(t, `{"title":"Temp"}`)

	rr := env.do(t, http.MethodDelete, "/api/tasks/"+created.ID, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rr.Body.String())
	}
	if rr := env.do(t, http.MethodDelete, "/api/tasks/"+created.ID+"/delete", ""); rr.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", rr.Code)
	}
}

func TestListTasks_StatusFilter(t *testing.T) {
	env := newHandlers(t)
	env.createTask(t, `{"title":"a","status":"pending"}`)
	env.createTask(t, `{"title":"b","status":"completed"}`)
	env.createTask(t, `{"title":"c","status":"in_progress"}`)

	rr := env.do(t, http.MethodGet, "/api/tasks?status=pending,in_progress", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var tasks []task.Task
	decode(t, rr, &tasks)
	if len(tasks) != 2 || tasks[0].Title != "c" || tasks[1].Title != "a" {
		t.Errorf("expected [c a] newest first, got %v", tasks)
	}

	if rr := env.do(t, http.MethodGet, "/api/tasks?status=bogus", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("invalid status: expected 400, got %d", rr.Code)
	}
}

func TestListTasks_Empty(t *testing.T) {
	env := newHandlers(t)
	rr := env.do(t, http.MethodGet, "/api/tasks", "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("expected empty array, got %s", rr.Body.String())
	}
}

func TestNextBest(t *testing.T) {
	env := newHandlers(t)

	rr := env.do(t, http.MethodGet, "/api/tasks/next-best", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("empty: expected 404, got %d", rr.Code)
	}
	var resp map[string]string
	decode(t, rr, &resp)
	if resp["error"] != "No pending tasks" {
		t.Errorf("expected 'No pending tasks', got %q", resp["error"])
	}

	env.createTask(t, `{"title":"T1","priority_score":5,"deadline":"2026-03-12T15:00:00Z"}`)
	env.createTask(t, `{"title":"T2","priority_score":5}`)
	env.createTask(t, `{"title":"T3","priority_score":8,"deadline":"2026-04-09T15:00:00Z"}`)
	env.createTask(t, `{"title":"Done","priority_score":100,"status":"completed"}`)

	rr = env.do(t, http.MethodGet, "/api/tasks/next-best", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var best task.Task
	decode(t, rr, &best)
	if best.Title != "T3" {
		t.Errorf("expected T3, got %s", best.Title)
	}
}

func TestRecommend(t *testing.T) {
	env := newHandlers(t)

	rr := env.do(t, http.MethodGet, "/api/tasks/recommend", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("empty: expected 204, got %d", rr.Code)
	}
	if rr.Header().Get("X-Detail") != "No tasks to recommend" {
		t.Errorf("expected X-Detail header, got %q", rr.Header().Get("X-Detail"))
	}
	if rr.Body.Len() != 0 {
		t.Errorf("204 must not carry a body, got %q", rr.Body.String())
	}

	env.createTask(t, `{"title":"T1","priority_score":5,"deadline":"2026-03-13T08:00:00Z"}`)
	env.createTask(t, `{"title":"T2","priority_score":5,"deadline":"2026-03-08T08:00:00Z"}`)
	env.createTask(t, `{"title":"T3","priority_score":10}`)

	rr = env.do(t, http.MethodGet, "/api/tasks/recommend", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var rec task.Task
	decode(t, rr, &rec)
	if rec.Title != "T1" {
		t.Errorf("expected T1, got %s", rec.Title)
	}
}

func TestRecommend_DateOnlyDeadlineInLocalZone(t *testing.T) {
	ny := time.FixedZone("EDT", -4*60*60)
	env := newHandlers(t)
	env.h.Location = ny
	env.h.Ranker.Location = ny
	env.h.Ranker.Now = func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, ny) }

	due := env.createTask(t, `{"title":"Due tomorrow","priority_score":0,"deadline":"2026-10-20"}`)
	if want := time.Date(2026, 10, 20, 0, 0, 0, 0, ny); due.Deadline == nil || !due.Deadline.Equal(want) {
		t.Fatalf("deadline = %v, want %v", due.Deadline, want)
	}
	if d := ranking.DaysLeft(*due.Deadline, env.h.Ranker.Now()); d != 1 {
		t.Errorf("DaysLeft = %d, want 1", d)
	}

	// One day left scores 9, so the undated 9.5 task must win.
	env.createTask(t, `{"title":"Undated","priority_score":9.5}`)
	rr := env.do(t, http.MethodGet, "/api/tasks/recommend", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var rec task.Task
	decode(t, rr, &rec)
	if rec.Title != "Undated" {
		t.Errorf("expected Undated, got %s", rec.Title)
	}
}

func TestChecklistItems(t *testing.T) {
	env := newHandlers(t)
	created := env.createTask(t, `{"title":"Trip"}`)
	base := "/api/tasks/" + created.ID + "/checklist"

	rr := env.do(t, http.MethodPost, base, `{"text":" passport "}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var item task.ChecklistItem
	decode(t, rr, &item)
	if item.ID == "" || item.Text != "passport" || item.Completed {
		t.Errorf("unexpected item %+v", item)
	}

	rr = env.do(t, http.MethodPatch, base+"/"+item.ID, `{"completed":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", rr.Code)
	}
	var updated task.ChecklistItem
	decode(t, rr, &updated)
	if !updated.Completed || updated.Text != "passport" {
		t.Errorf("expected completed passport, got %+v", updated)
	}

	if rr := env.do(t, http.MethodPatch, base+"/nope", `{"completed":true}`); rr.Code != http.StatusNotFound {
		t.Errorf("update missing: expected 404, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, base, `{"completed":true}`); rr.Code != http.StatusBadRequest {
		t.Errorf("add without text: expected 400, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/api/tasks/missing/checklist", `{"text":"x"}`); rr.Code != http.StatusNotFound {
		t.Errorf("add to missing task: expected 404, got %d", rr.Code)
	}

	if rr := env.do(t, http.MethodDelete, base+"/"+item.ID, ""); rr.Code != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", rr.Code)
	}
	got, _ := env.store.GetTask(context.Background(), created.ID)
	if len(got.Checklist) != 0 {
		t.Errorf("expected empty checklist, got %v", got.Checklist)
	}
}

func TestCategories(t *testing.T) {
	env := newHandlers(t)

	rr := env.do(t, http.MethodPost, "/api/categories/create", `{"name":" Home "}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", rr.Code)
	}
	var cat task.Category
	decode(t, rr, &cat)
	if cat.Name != "Home" {
		t.Errorf("expected trimmed name, got %q", cat.Name)
	}

	if rr := env.do(t, http.MethodPost, "/api/categories", `{"name":""}`); rr.Code != http.StatusBadRequest {
		t.Errorf("empty name: expected 400, got %d", rr.Code)
	}
	long := fmt.Sprintf(`{"name":%q}`, strings.Repeat("x", 101))
	if rr := env.do(t, http.MethodPost, "/api/categories", long); rr.Code != http.StatusBadRequest {
		t.Errorf("long name: expected 400, got %d", rr.Code)
	}

	created := env.createTask(t, fmt.Sprintf(`{"title":"Clean","category_id":%q}`, cat.ID))
	if created.Category == nil || created.Category.ID != cat.ID {
		t.Errorf("expected category linked, got %+v", created.Category)
	}
	if rr := env.do(t, http.MethodPost, "/api/tasks", `{"title":"x","category_id":"nope"}`); rr.Code != http.StatusBadRequest {
		t.Errorf("unknown category: expected 400, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/api/categories", "")
	var cats []task.Category
	decode(t, rr, &cats)
	if len(cats) != 1 || cats[0].UsageCount != 1 {
		t.Errorf("expected one category used once, got %+v", cats)
	}
}

func TestListTags(t *testing.T) {
	env := newHandlers(t)
	env.createTask(t, `{"title":"a","tags":["work","home"]}`)
	env.createTask(t, `{"title":"b","tags":["home"]}`)

	rr := env.do(t, http.MethodGet, "/api/tags", "")
	var tags []string
	decode(t, rr, &tags)
	if strings.Join(tags, ",") != "home,work" {
		t.Errorf("expected home,work, got %v", tags)
	}
}

func TestContextEntries(t *testing.T) {
	env := newHandlers(t)

	rr := env.do(t, http.MethodPost, "/api/context", `{"content":"Dentist moved to Friday","source_type":"email"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	env.do(t, http.MethodPost, "/api/context", `{"content":"Buy flowers","source_type":"note"}`)

	if rr := env.do(t, http.MethodPost, "/api/context", `{"content":"x","source_type":"fax"}`); rr.Code != http.StatusBadRequest {
		t.Errorf("bad source: expected 400, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/api/context", "")
	var entries []task.ContextEntry
	decode(t, rr, &entries)
	if len(entries) != 2 || entries[0].Content != "Buy flowers" {
		t.Errorf("expected newest first, got %+v", entries)
	}

	rr = env.do(t, http.MethodGet, "/api/context?q=dentist", "")
	entries = nil
	decode(t, rr, &entries)
	if len(entries) != 1 || entries[0].SourceType != task.SourceEmail {
		t.Errorf("expected dentist entry, got %+v", entries)
	}
}

func TestSuggestions(t *testing.T) {
	env := newHandlers(t)
	env.do(t, http.MethodPost, "/api/context", `{"content":"Boss wants it by Monday","source_type":"whatsapp"}`)

	rr := env.do(t, http.MethodPost, "/api/ai/suggestions",
		`{"task":{"title":"Report","description":"Q1"},"context":["draft exists"],"include_context":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != `{"priority":0.5}` {
		t.Errorf("expected gateway body, got %s", rr.Body.String())
	}

	req := env.sugg.reqs[0]
	if req.Task == nil || req.Task.Title != "Report" {
		t.Errorf("task not forwarded: %+v", req.Task)
	}
	if strings.Join(req.Context, "|") != "draft exists|Boss wants it by Monday" {
		t.Errorf("expected supplied then stored context, got %v", req.Context)
	}
}

func TestSuggestions_OutcomeStatusPassesThrough(t *testing.T) {
	env := newHandlers(t)
	env.sugg.out = suggest.Outcome{Status: http.StatusBadRequest, Body: suggest.ErrorBody{Error: "Task details are required"}}

	rr := env.do(t, http.MethodPost, "/api/ai/suggestions", `{"context":[]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var resp map[string]string
	decode(t, rr, &resp)
	if resp["error"] != "Task details are required" {
		t.Errorf("unexpected body %v", resp)
	}
}

func TestEventsPublished(t *testing.T) {
	env := newHandlers(t)
	created := env.createTask(t, `{"title":"Watch me"}`)
	env.do(t, http.MethodPatch, "/api/tasks/"+created.ID, `{"status":"completed"}`)
	env.do(t, http.MethodDelete, "/api/tasks/"+created.ID, "")

	var types []events.Type
	for _, ev := range env.bus.History(0) {
		types = append(types, ev.Type)
		if ev.Subject != created.ID {
			t.Errorf("event subject = %s, want %s", ev.Subject, created.ID)
		}
	}
	want := []events.Type{events.TypeTaskCreated, events.TypeTaskUpdated, events.TypeTaskDeleted}
	if !slices.Equal(types, want) {
		t.Errorf("events = %v, want %v", types, want)
	}
}

func TestStatusEndpoint(t *testing.T) {
	env := newHandlers(t)
	rr := env.do(t, http.MethodGet, "/api/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp map[string]any
	decode(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", resp["status"])
	}
}

func TestVersionEndpoint(t *testing.T) {
	env := newHandlers(t)
	rr := env.do(t, http.MethodGet, "/api/version", "")
	var resp map[string]string
	decode(t, rr, &resp)
	if resp["version"] == "" || resp["commit"] == "" {
		t.Errorf("expected build info, got %v", resp)
	}
}
