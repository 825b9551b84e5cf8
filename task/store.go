package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS categories (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	name_key   TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_categories_name_key ON categories(name_key);

CREATE TABLE IF NOT EXISTS tasks (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	category_id    TEXT,
	category_name  TEXT NOT NULL DEFAULT '',
	priority_score REAL NOT NULL DEFAULT 0,
	deadline       DATETIME,
	status         TEXT NOT NULL DEFAULT 'pending',
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_category ON tasks(category_id);

CREATE TABLE IF NOT EXISTS tags (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS task_tags (
	task_id  TEXT NOT NULL,
	tag_id   INTEGER NOT NULL,
	position INTEGER NOT NULL,
	PRIMARY KEY (task_id, tag_id)
);

CREATE TABLE IF NOT EXISTS checklist_items (
	id        TEXT PRIMARY KEY,
	task_id   TEXT NOT NULL,
	position  INTEGER NOT NULL,
	text      TEXT NOT NULL,
	completed INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_checklist_task ON checklist_items(task_id);

CREATE TABLE IF NOT EXISTS context_entries (
	id          TEXT PRIMARY KEY,
	content     TEXT NOT NULL,
	source_type TEXT NOT NULL,
	insights    TEXT NOT NULL DEFAULT '',
	timestamp   DATETIME NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS context_entries_fts USING fts5(
	id UNINDEXED,
	content,
	insights
);
`

const taskColumns = `
	t.id, t.title, t.description, t.category_id, c.name, c.created_at,
	(SELECT COUNT(*) FROM tasks x WHERE x.category_id = t.category_id),
	t.category_name, t.priority_score, t.deadline, t.status, t.created_at, t.updated_at`

const taskFrom = ` FROM tasks t LEFT JOIN categories c ON c.id = t.category_id`

// SQLiteStore persists tasks in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the schema exists. The caller is responsible for calling Close.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// newID returns a time-ordered UUID.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// CreateTask persists a new task and sets its ID, CreatedAt, and UpdatedAt.
func (s *SQLiteStore) CreateTask(ctx context.Context, t *Task) error {
	t.ID = newID()
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.Checklist == nil {
		t.Checklist = []ChecklistItem{}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tasks
				(id, title, description, category_id, category_name, priority_score,
				 deadline, status, created_at, updated_at)
			VALUES (?,?,?,?,?,?,?,?,?,?)`,
			t.ID, t.Title, t.Description, nullString(t.CategoryID()), t.CategoryName,
			t.PriorityScore, nullTime(t.Deadline), string(t.Status), t.CreatedAt, t.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		if err := writeTags(ctx, tx, t.ID, t.Tags); err != nil {
			return err
		}
		return writeChecklist(ctx, tx, t.ID, t.Checklist)
	})
}

// GetTask retrieves a task by ID.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*Task, error) {
	var t *Task
	err := s.readTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+taskFrom+` WHERE t.id = ?`, id)
		var err error
		t, err = scanTask(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get task %s: %w", id, err)
		}
		return loadRelations(ctx, tx, []*Task{t})
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTask saves changes to an existing task, updating UpdatedAt
// automatically. Tags and checklist items are replaced.
func (s *SQLiteStore) UpdateTask(ctx context.Context, t *Task) error {
	t.UpdatedAt = time.Now().UTC()
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.Checklist == nil {
		t.Checklist = []ChecklistItem{}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE tasks SET
				title=?, description=?, category_id=?, category_name=?, priority_score=?,
				deadline=?, status=?, updated_at=?
			WHERE id=?`,
			t.Title, t.Description, nullString(t.CategoryID()), t.CategoryName, t.PriorityScore,
			nullTime(t.Deadline), string(t.Status), t.UpdatedAt,
			t.ID,
		)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		if err := expectRow(res, "task", t.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM task_tags WHERE task_id=?`, t.ID); err != nil {
			return fmt.Errorf("clear task tags: %w", err)
		}
		if err := writeTags(ctx, tx, t.ID, t.Tags); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM checklist_items WHERE task_id=?`, t.ID); err != nil {
			return fmt.Errorf("clear checklist: %w", err)
		}
		return writeChecklist(ctx, tx, t.ID, t.Checklist)
	})
}

// DeleteTask removes a task by ID along with its tag links and checklist.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM tasks WHERE id=?", id)
		if err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		if err := expectRow(res, "task", id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM task_tags WHERE task_id=?", id); err != nil {
			return fmt.Errorf("delete task tags: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM checklist_items WHERE task_id=?", id); err != nil {
			return fmt.Errorf("delete checklist: %w", err)
		}
		return nil
	})
}

// ListTasks returns tasks matching the filter, newest first unless
// filter.Oldest is set. Ties on created_at are broken by ID.
func (s *SQLiteStore) ListTasks(ctx context.Context, filter Filter) ([]*Task, error) {
	q := strings.Builder{}
	q.WriteString("SELECT " + taskColumns + taskFrom + " WHERE 1=1")
	args := []any{}

	if len(filter.Statuses) > 0 {
		q.WriteString(" AND t.status IN (" + placeholders(len(filter.Statuses)) + ")")
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	if filter.CategoryID != "" {
		q.WriteString(" AND t.category_id=?")
		args = append(args, filter.CategoryID)
	}
	if filter.Tag != "" {
		q.WriteString(` AND t.id IN (SELECT tt.task_id FROM task_tags tt JOIN tags g ON g.id = tt.tag_id WHERE g.name=?)`)
		args = append(args, norm.NFC.String(strings.TrimSpace(filter.Tag)))
	}
	if filter.Search != "" {
		q.WriteString(" AND (t.title LIKE ? OR t.description LIKE ?)")
		like := "%" + filter.Search + "%"
		args = append(args, like, like)
	}
	if filter.Oldest {
		q.WriteString(" ORDER BY t.created_at ASC, t.id ASC")
	} else {
		q.WriteString(" ORDER BY t.created_at DESC, t.id DESC")
	}
	switch {
	case filter.Limit > 0:
		q.WriteString(fmt.Sprintf(" LIMIT %d", filter.Limit))
		if filter.Offset > 0 {
			q.WriteString(fmt.Sprintf(" OFFSET %d", filter.Offset))
		}
	case filter.Offset > 0:
		// SQLite only accepts OFFSET after a LIMIT; -1 means no limit.
		q.WriteString(fmt.Sprintf(" LIMIT -1 OFFSET %d", filter.Offset))
	}

	var tasks []*Task
	err := s.readTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, q.String(), args...)
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				rows.Close()
				return err
			}
			tasks = append(tasks, t)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}

		// Relations are loaded after the cursor is closed: the pool holds a
		// single connection.
		return loadRelations(ctx, tx, tasks)
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// AddChecklistItem appends an item to a task's checklist and assigns its ID.
func (s *SQLiteStore) AddChecklistItem(ctx context.Context, taskID string, item *ChecklistItem) error {
	item.ID = newID()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE tasks SET updated_at=? WHERE id=?`, time.Now().UTC(), taskID)
		if err != nil {
			return fmt.Errorf("touch task: %w", err)
		}
		if err := expectRow(res, "task", taskID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO checklist_items (id, task_id, position, text, completed)
			VALUES (?, ?, (SELECT COALESCE(MAX(position) + 1, 0) FROM checklist_items WHERE task_id=?), ?, ?)`,
			item.ID, taskID, taskID, item.Text, item.Completed,
		)
		if err != nil {
			return fmt.Errorf("insert checklist item: %w", err)
		}
		return nil
	})
}

// UpdateChecklistItem saves the text and completion flag of an item.
func (s *SQLiteStore) UpdateChecklistItem(ctx context.Context, taskID string, item ChecklistItem) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE checklist_items SET text=?, completed=? WHERE id=? AND task_id=?`,
			item.Text, item.Completed, item.ID, taskID,
		)
		if err != nil {
			return fmt.Errorf("update checklist item: %w", err)
		}
		if err := expectRow(res, "checklist item", item.ID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE tasks SET updated_at=? WHERE id=?`, time.Now().UTC(), taskID)
		return err
	})
}

// DeleteChecklistItem removes one item from a task's checklist.
func (s *SQLiteStore) DeleteChecklistItem(ctx context.Context, taskID, itemID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM checklist_items WHERE id=? AND task_id=?`, itemID, taskID)
		if err != nil {
			return fmt.Errorf("delete checklist item: %w", err)
		}
		if err := expectRow(res, "checklist item", itemID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE tasks SET updated_at=? WHERE id=?`, time.Now().UTC(), taskID)
		return err
	})
}

const categoryColumns = `c.id, c.name, c.created_at,
	(SELECT COUNT(*) FROM tasks x WHERE x.category_id = c.id)`

// CreateCategory persists a category and sets its ID and CreatedAt.
func (s *SQLiteStore) CreateCategory(ctx context.Context, c *Category) error {
	c.ID = newID()
	c.Name = strings.TrimSpace(c.Name)
	c.CreatedAt = time.Now().UTC()
	c.UsageCount = 0
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (id, name, name_key, created_at) VALUES (?,?,?,?)`,
		c.ID, c.Name, CategoryKey(c.Name), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// GetCategory retrieves a category by ID.
func (s *SQLiteStore) GetCategory(ctx context.Context, id string) (*Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories c WHERE c.id=?`, id)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get category %s: %w", id, err)
	}
	return c, nil
}

// FindCategoryByName returns the oldest category whose name matches
// case-insensitively.
func (s *SQLiteStore) FindCategoryByName(ctx context.Context, name string) (*Category, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories c WHERE c.name_key=? ORDER BY c.created_at, c.id LIMIT 1`,
		CategoryKey(name),
	)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find category %q: %w", name, err)
	}
	return c, nil
}

// ListCategories returns all categories in creation order.
func (s *SQLiteStore) ListCategories(ctx context.Context) ([]*Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories c ORDER BY c.created_at, c.id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	cats := []*Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// ListTags returns every tag name in ascending order.
func (s *SQLiteStore) ListTags(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// CreateContextEntry persists a context entry and indexes it for search.
func (s *SQLiteStore) CreateContextEntry(ctx context.Context, e *ContextEntry) error {
	e.ID = newID()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO context_entries (id, content, source_type, insights, timestamp) VALUES (?,?,?,?,?)`,
			e.ID, e.Content, string(e.SourceType), e.Insights, e.Timestamp.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert context entry: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO context_entries_fts (id, content, insights) VALUES (?,?,?)`,
			e.ID, e.Content, e.Insights,
		)
		if err != nil {
			return fmt.Errorf("index context entry: %w", err)
		}
		return nil
	})
}

// ListContextEntries returns up to limit entries, most recent first.
func (s *SQLiteStore) ListContextEntries(ctx context.Context, limit int) ([]*ContextEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, source_type, insights, timestamp FROM context_entries
		 ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list context entries: %w", err)
	}
	defer rows.Close()
	return scanContextRows(rows)
}

// SearchContextEntries ranks entries against query with FTS5 BM25.
func (s *SQLiteStore) SearchContextEntries(ctx context.Context, query string, limit int) ([]*ContextEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT e.id, e.content, e.source_type, e.insights, e.timestamp
FROM context_entries_fts f
JOIN context_entries e ON e.id = f.id
WHERE context_entries_fts MATCH ?
ORDER BY bm25(context_entries_fts) ASC
LIMIT ?`, sanitizeFTSQuery(query), limit)
	if err != nil {
		return nil, fmt.Errorf("search context entries: %w", err)
	}
	defer rows.Close()
	return scanContextRows(rows)
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// readTx runs fn in a read-only transaction so multi-statement reads see
// one snapshot.
func (s *SQLiteStore) readTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	return fn(tx)
}

// loadRelations fills Tags and Checklist for the given tasks in two queries.
func loadRelations(ctx context.Context, tx *sql.Tx, tasks []*Task) error {
	if len(tasks) == 0 {
		return nil
	}
	byID := make(map[string]*Task, len(tasks))
	ids := make([]any, len(tasks))
	for i, t := range tasks {
		t.Tags = []string{}
		t.Checklist = []ChecklistItem{}
		byID[t.ID] = t
		ids[i] = t.ID
	}
	in := placeholders(len(ids))

	rows, err := tx.QueryContext(ctx, `
		SELECT tt.task_id, g.name FROM task_tags tt JOIN tags g ON g.id = tt.tag_id
		WHERE tt.task_id IN (`+in+`) ORDER BY tt.task_id, tt.position`, ids...)
	if err != nil {
		return fmt.Errorf("load tags: %w", err)
	}
	for rows.Next() {
		var taskID, name string
		if err := rows.Scan(&taskID, &name); err != nil {
			rows.Close()
			return fmt.Errorf("scan tag: %w", err)
		}
		byID[taskID].Tags = append(byID[taskID].Tags, name)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return fmt.Errorf("load tags: %w", err)
	}

	rows, err = tx.QueryContext(ctx, `
		SELECT id, task_id, text, completed FROM checklist_items
		WHERE task_id IN (`+in+`) ORDER BY task_id, position`, ids...)
	if err != nil {
		return fmt.Errorf("load checklist: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item ChecklistItem
		var taskID string
		if err := rows.Scan(&item.ID, &taskID, &item.Text, &item.Completed); err != nil {
			return fmt.Errorf("scan checklist item: %w", err)
		}
		byID[taskID].Checklist = append(byID[taskID].Checklist, item)
	}
	return rows.Err()
}

func writeTags(ctx context.Context, tx *sql.Tx, taskID string, tags []string) error {
	for pos, name := range tags {
		if _, err := tx.ExecContext(ctx, `INSERT INTO tags (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
			return fmt.Errorf("upsert tag %q: %w", name, err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO task_tags (task_id, tag_id, position)
			SELECT ?, id, ? FROM tags WHERE name=?`, taskID, pos, name)
		if err != nil {
			return fmt.Errorf("link tag %q: %w", name, err)
		}
	}
	return nil
}

func writeChecklist(ctx context.Context, tx *sql.Tx, taskID string, items []ChecklistItem) error {
	for pos := range items {
		if items[pos].ID == "" {
			items[pos].ID = newID()
		}
		item := items[pos]
		_, err := tx.ExecContext(ctx,
			`INSERT INTO checklist_items (id, task_id, position, text, completed) VALUES (?,?,?,?,?)`,
			item.ID, taskID, pos, item.Text, item.Completed,
		)
		if err != nil {
			return fmt.Errorf("insert checklist item: %w", err)
		}
	}
	return nil
}

func expectRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*Task, error) {
	var t Task
	var status string
	var categoryID, categoryName sql.NullString
	var categoryCreated, deadline sql.NullTime
	var usage int

	err := s.Scan(
		&t.ID, &t.Title, &t.Description, &categoryID, &categoryName, &categoryCreated,
		&usage,
		&t.CategoryName, &t.PriorityScore, &deadline, &status, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = Status(status)
	if categoryID.Valid && categoryName.Valid {
		t.Category = &Category{
			ID:         categoryID.String,
			Name:       categoryName.String,
			UsageCount: usage,
			CreatedAt:  categoryCreated.Time,
		}
	}
	if deadline.Valid {
		d := deadline.Time.UTC()
		t.Deadline = &d
	}
	return &t, nil
}

func scanCategory(s scanner) (*Category, error) {
	var c Category
	if err := s.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UsageCount); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanContextRows(rows *sql.Rows) ([]*ContextEntry, error) {
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

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// sanitizeFTSQuery reduces free text to bare FTS5 terms joined by OR so
// punctuation in user input cannot break the MATCH expression.
func sanitizeFTSQuery(q string) string {
	var terms []string
	for _, w := range strings.Fields(q) {
		cleaned := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
				return r
			}
			return -1
		}, w)
		if cleaned != "" {
			terms = append(terms, `"`+cleaned+`"`)
		}
	}
	if len(terms) == 0 {
		return `""`
	}
	return strings.Join(terms, " OR ")
}
