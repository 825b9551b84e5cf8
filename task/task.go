// Package task defines the task model, request schema, and persistence for
// personal to-do items, their categories, tags, checklists, and context notes.
package task

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a Store when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Eligible reports whether a task in this status can be ranked.
func (s Status) Eligible() bool {
	return s == StatusPending || s == StatusInProgress
}

// EligibleStatuses returns the statuses considered by the ranking endpoints.
func EligibleStatuses() []Status {
	return []Status{StatusPending, StatusInProgress}
}

// Category groups tasks. UsageCount is the number of tasks currently assigned.
type Category struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	UsageCount int       `json:"usage_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChecklistItem is a sub-step of a task.
type ChecklistItem struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Task is a single to-do item.
type Task struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Category      *Category       `json:"category"`
	CategoryName  string          `json:"category_name,omitempty"`
	PriorityScore float64         `json:"priority_score"`
	Deadline      *time.Time      `json:"deadline"`
	Status        Status          `json:"status"`
	Tags          []string        `json:"tags"`
	Checklist     []ChecklistItem `json:"checklist_items"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// CategoryID returns the ID of the assigned category, or "".
func (t *Task) CategoryID() string {
	if t.Category == nil {
		return ""
	}
	return t.Category.ID
}

// SourceType identifies where a context entry came from.
type SourceType string

const (
	SourceWhatsApp SourceType = "whatsapp"
	SourceEmail    SourceType = "email"
	SourceNote     SourceType = "note"
)

// Valid reports whether st is a known source type.
func (st SourceType) Valid() bool {
	switch st {
	case SourceWhatsApp, SourceEmail, SourceNote:
		return true
	}
	return false
}

// ContextEntry is a free-text note (message, email, memo) that can inform
// task suggestions.
type ContextEntry struct {
	ID         string     `json:"id"`
	Content    string     `json:"content"`
	SourceType SourceType `json:"source_type"`
	Insights   string     `json:"insights,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Filter controls which tasks are returned by ListTasks.
type Filter struct {
	Statuses   []Status `json:"statuses,omitempty"`
	CategoryID string   `json:"category_id,omitempty"`
	Tag        string   `json:"tag,omitempty"`
	Search     string   `json:"search,omitempty"`
	// Oldest orders by creation time ascending instead of newest first.
	Oldest bool `json:"oldest,omitempty"`
	Limit  int  `json:"limit,omitempty"`
	Offset int  `json:"offset,omitempty"`
}

// Store persists tasks and their related records.
type Store interface {
	// CreateTask persists t and sets its ID, CreatedAt and UpdatedAt. Tags
	// and checklist items are written with it.
	CreateTask(ctx context.Context, t *Task) error

	// GetTask retrieves a task by ID.
	GetTask(ctx context.Context, id string) (*Task, error)

	// UpdateTask replaces a stored task, including its tags and checklist.
	UpdateTask(ctx context.Context, t *Task) error

	// DeleteTask removes a task and its checklist items.
	DeleteTask(ctx context.Context, id string) error

	// ListTasks returns tasks matching the filter. The returned slice is a
	// snapshot; later writes are not reflected in it.
	ListTasks(ctx context.Context, filter Filter) ([]*Task, error)

	AddChecklistItem(ctx context.Context, taskID string, item *ChecklistItem) error
	UpdateChecklistItem(ctx context.Context, taskID string, item ChecklistItem) error
	DeleteChecklistItem(ctx context.Context, taskID, itemID string) error

	CreateCategory(ctx context.Context, c *Category) error
	GetCategory(ctx context.Context, id string) (*Category, error)
	// FindCategoryByName matches names case-insensitively.
	FindCategoryByName(ctx context.Context, name string) (*Category, error)
	ListCategories(ctx context.Context) ([]*Category, error)

	// ListTags returns every known tag name in ascending order.
	ListTags(ctx context.Context) ([]string, error)

	CreateContextEntry(ctx context.Context, e *ContextEntry) error
	// ListContextEntries returns the most recent entries first.
	ListContextEntries(ctx context.Context, limit int) ([]*ContextEntry, error)
	SearchContextEntries(ctx context.Context, query string, limit int) ([]*ContextEntry, error)

	Close() error
}
