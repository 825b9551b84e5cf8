package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/text/unicode/norm"
)

// PgStore is a PostgreSQL-backed Store. Tags live in a TEXT[] column and the
// checklist in a JSONB column on the task row.
type PgStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PgStore)(nil)

// NewPgStore connects to dsn and ensures the schema exists.
func NewPgStore(ctx context.Context, dsn string) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PgStore{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool.
func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}

// EnsureSchema creates the tables if they don't exist.
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS categories (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			name_key   TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_categories_name_key ON categories(name_key)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id             TEXT PRIMARY KEY,
			title          TEXT NOT NULL,
			description    TEXT NOT NULL DEFAULT '',
			category_id    TEXT REFERENCES categories(id) ON DELETE SET NULL,
			category_name  TEXT NOT NULL DEFAULT '',
			priority_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			deadline       TIMESTAMPTZ,
			status         TEXT NOT NULL DEFAULT 'pending',
			tags           TEXT[] NOT NULL DEFAULT '{}',
			checklist      JSONB NOT NULL DEFAULT '[]',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_tags ON tasks USING GIN(tags)`,
		`CREATE TABLE IF NOT EXISTS tags (name TEXT PRIMARY KEY)`,
		`CREATE TABLE IF NOT EXISTS context_entries (
			id          TEXT PRIMARY KEY,
			content     TEXT NOT NULL,
			source_type TEXT NOT NULL,
			insights    TEXT NOT NULL DEFAULT '',
			timestamp   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

const pgTaskColumns = `t.id, t.title, t.description, c.id, c.name, c.created_at,
	(SELECT COUNT(*) FROM tasks x WHERE x.category_id = t.category_id),
	t.category_name, t.priority_score, t.deadline, t.status, t.tags, t.checklist,
	t.created_at, t.updated_at
	FROM tasks t LEFT JOIN categories c ON c.id = t.category_id`

// CreateTask inserts a new task.
func (s *PgStore) CreateTask(ctx context.Context, t *Task) error {
	t.ID = newID()
	now := time.Now().UTC().Truncate(time.Microsecond)
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = StatusPending
	}
	prepareRelations(t)

	checklist, err := json.Marshal(t.Checklist)
	if err != nil {
		return fmt.Errorf("marshal checklist: %w", err)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO tasks (id, title, description, category_id, category_name, priority_score,
				deadline, status, tags, checklist, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11, $12)`,
			t.ID, t.Title, t.Description, nullString(t.CategoryID()), t.CategoryName, t.PriorityScore,
			t.Deadline, string(t.Status), t.Tags, string(checklist), t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		return upsertTags(ctx, tx, t.Tags)
	})
}

// GetTask retrieves a single task by ID.
func (s *PgStore) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgTaskColumns+` WHERE t.id = $1`, id)
	t, err := scanPgTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// UpdateTask replaces the stored row for t.ID.
func (s *PgStore) UpdateTask(ctx context.Context, t *Task) error {
	t.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	prepareRelations(t)

	checklist, err := json.Marshal(t.Checklist)
	if err != nil {
		return fmt.Errorf("marshal checklist: %w", err)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE tasks SET title = $1, description = $2, category_id = $3, category_name = $4,
				priority_score = $5, deadline = $6, status = $7, tags = $8, checklist = $9::jsonb,
				updated_at = $10
			WHERE id = $11`,
			t.Title, t.Description, nullString(t.CategoryID()), t.CategoryName,
			t.PriorityScore, t.Deadline, string(t.Status), t.Tags, string(checklist),
			t.UpdatedAt, t.ID)
		if err != nil {
			return fmt.Errorf("update task %s: %w", t.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("task %s: %w", t.ID, ErrNotFound)
		}
		return upsertTags(ctx, tx, t.Tags)
	})
}

// DeleteTask removes a task.
func (s *PgStore) DeleteTask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListTasks returns tasks matching the filter.
func (s *PgStore) ListTasks(ctx context.Context, filter Filter) ([]*Task, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, "t.status = ANY("+arg(statuses)+")")
	}
	if filter.CategoryID != "" {
		where = append(where, "t.category_id = "+arg(filter.CategoryID))
	}
	if filter.Tag != "" {
		where = append(where, arg(norm.NFC.String(strings.TrimSpace(filter.Tag)))+" = ANY(t.tags)")
	}
	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		where = append(where, "(t.title ILIKE "+p+" OR t.description ILIKE "+p+")")
	}

	q := strings.Builder{}
	q.WriteString("SELECT " + pgTaskColumns)
	if len(where) > 0 {
		q.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if filter.Oldest {
		q.WriteString(" ORDER BY t.created_at ASC, t.id ASC")
	} else {
		q.WriteString(" ORDER BY t.created_at DESC, t.id DESC")
	}
	if filter.Limit > 0 {
		q.WriteString(" LIMIT " + arg(filter.Limit))
	}
	if filter.Offset > 0 {
		q.WriteString(" OFFSET " + arg(filter.Offset))
	}

	rows, err := s.pool.Query(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanPgTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// AddChecklistItem appends an item to the task's checklist.
func (s *PgStore) AddChecklistItem(ctx context.Context, taskID string, item *ChecklistItem) error {
	item.ID = newID()
	return s.editChecklist(ctx, taskID, func(items []ChecklistItem) ([]ChecklistItem, error) {
		return append(items, *item), nil
	})
}

// UpdateChecklistItem replaces one checklist item's text and completion flag.
func (s *PgStore) UpdateChecklistItem(ctx context.Context, taskID string, item ChecklistItem) error {
	return s.editChecklist(ctx, taskID, func(items []ChecklistItem) ([]ChecklistItem, error) {
		for i := range items {
			if items[i].ID == item.ID {
				items[i] = item
				return items, nil
			}
		}
		return nil, fmt.Errorf("checklist item %s: %w", item.ID, ErrNotFound)
	})
}

// DeleteChecklistItem removes one checklist item.
func (s *PgStore) DeleteChecklistItem(ctx context.Context, taskID, itemID string) error {
	return s.editChecklist(ctx, taskID, func(items []ChecklistItem) ([]ChecklistItem, error) {
		for i := range items {
			if items[i].ID == itemID {
				return append(items[:i], items[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("checklist item %s: %w", itemID, ErrNotFound)
	})
}

// editChecklist locks the task row and rewrites its checklist with fn's result.
func (s *PgStore) editChecklist(ctx context.Context, taskID string, fn func([]ChecklistItem) ([]ChecklistItem, error)) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var raw []byte
		err := tx.QueryRow(ctx, `SELECT checklist FROM tasks WHERE id = $1 FOR UPDATE`, taskID).Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load checklist: %w", err)
		}
		var items []ChecklistItem
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("decode checklist: %w", err)
		}
		items, err = fn(items)
		if err != nil {
			return err
		}
		if items == nil {
			items = []ChecklistItem{}
		}
		out, err := json.Marshal(items)
		if err != nil {
			return fmt.Errorf("marshal checklist: %w", err)
		}
		_, err = tx.Exec(ctx, `UPDATE tasks SET checklist = $1::jsonb, updated_at = $2 WHERE id = $3`,
			string(out), time.Now().UTC().Truncate(time.Microsecond), taskID)
		if err != nil {
			return fmt.Errorf("save checklist: %w", err)
		}
		return nil
	})
}

const pgCategoryColumns = `c.id, c.name, c.created_at,
	(SELECT COUNT(*) FROM tasks x WHERE x.category_id = c.id) FROM categories c`

// CreateCategory inserts a category.
func (s *PgStore) CreateCategory(ctx context.Context, c *Category) error {
	c.ID = newID()
	c.Name = strings.TrimSpace(c.Name)
	c.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	c.UsageCount = 0
	_, err := s.pool.Exec(ctx,
		`INSERT INTO categories (id, name, name_key, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, CategoryKey(c.Name), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

// GetCategory retrieves a category by ID.
func (s *PgStore) GetCategory(ctx context.Context, id string) (*Category, error) {
	var c Category
	err := s.pool.QueryRow(ctx, `SELECT `+pgCategoryColumns+` WHERE c.id = $1`, id).
		Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UsageCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get category %s: %w", id, err)
	}
	return &c, nil
}

// FindCategoryByName matches on the case-folded name.
func (s *PgStore) FindCategoryByName(ctx context.Context, name string) (*Category, error) {
	var c Category
	err := s.pool.QueryRow(ctx,
		`SELECT `+pgCategoryColumns+` WHERE c.name_key = $1 ORDER BY c.created_at, c.id LIMIT 1`,
		CategoryKey(name)).
		Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UsageCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("category %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find category %q: %w", name, err)
	}
	return &c, nil
}

// ListCategories returns categories in creation order.
func (s *PgStore) ListCategories(ctx context.Context) ([]*Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgCategoryColumns+` ORDER BY c.created_at, c.id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	cats := []*Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UsageCount); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, &c)
	}
	return cats, rows.Err()
}

// ListTags returns all tag names sorted.
func (s *PgStore) ListTags(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// CreateContextEntry inserts a context entry.
func (s *PgStore) CreateContextEntry(ctx context.Context, e *ContextEntry) error {
	e.ID = newID()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	e.Timestamp = e.Timestamp.UTC().Truncate(time.Microsecond)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO context_entries (id, content, source_type, insights, timestamp) VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.Content, string(e.SourceType), e.Insights, e.Timestamp)
	if err != nil {
		return fmt.Errorf("create context entry: %w", err)
	}
	return nil
}

// ListContextEntries returns the most recent entries.
func (s *PgStore) ListContextEntries(ctx context.Context, limit int) ([]*ContextEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, content, source_type, insights, timestamp FROM context_entries
		 ORDER BY timestamp DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list context entries: %w", err)
	}
	return collectContextRows(rows)
}

// SearchContextEntries does a case-insensitive substring match on every
// query term.
func (s *PgStore) SearchContextEntries(ctx context.Context, query string, limit int) ([]*ContextEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	var patterns []string
	for _, w := range strings.Fields(query) {
		patterns = append(patterns, "%"+w+"%")
	}
	if len(patterns) == 0 {
		return []*ContextEntry{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, content, source_type, insights, timestamp FROM context_entries
		 WHERE content ILIKE ANY($1) OR insights ILIKE ANY($1)
		 ORDER BY timestamp DESC, id DESC LIMIT $2`, patterns, limit)
	if err != nil {
		return nil, fmt.Errorf("search context entries: %w", err)
	}
	return collectContextRows(rows)
}

func collectContextRows(rows pgx.Rows) ([]*ContextEntry, error) {
	defer rows.Close()
	entries := []*ContextEntry{}
	for rows.Next() {
		var e ContextEntry
		var source string
		if err := rows.Scan(&e.ID, &e.Content, &source, &e.Insights, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan context entry: %w", err)
		}
		e.SourceType = SourceType(source)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func upsertTags(ctx context.Context, tx pgx.Tx, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `INSERT INTO tags (name) SELECT unnest($1::text[]) ON CONFLICT DO NOTHING`, tags)
	if err != nil {
		return fmt.Errorf("upsert tags: %w", err)
	}
	return nil
}

// prepareRelations fills nil slices and assigns missing checklist IDs.
func prepareRelations(t *Task) {
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.Checklist == nil {
		t.Checklist = []ChecklistItem{}
	}
	for i := range t.Checklist {
		if t.Checklist[i].ID == "" {
			t.Checklist[i].ID = newID()
		}
	}
}

func scanPgTask(row pgx.Row) (*Task, error) {
	var t Task
	var status string
	var categoryID, categoryName *string
	var categoryCreated *time.Time
	var usage int
	var checklist []byte

	err := row.Scan(&t.ID, &t.Title, &t.Description, &categoryID, &categoryName, &categoryCreated,
		&usage, &t.CategoryName, &t.PriorityScore, &t.Deadline, &status, &t.Tags, &checklist,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = Status(status)
	if categoryID != nil && categoryName != nil {
		t.Category = &Category{ID: *categoryID, Name: *categoryName, UsageCount: usage}
		if categoryCreated != nil {
			t.Category.CreatedAt = *categoryCreated
		}
	}
	if err := json.Unmarshal(checklist, &t.Checklist); err != nil {
		return nil, fmt.Errorf("decode checklist: %w", err)
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.Checklist == nil {
		t.Checklist = []ChecklistItem{}
	}
	if t.Deadline != nil {
		d := t.Deadline.UTC()
		t.Deadline = &d
	}
	return &t, nil
}
