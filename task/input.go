package task

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Field limits for task payloads.
const (
	MaxTitleLen         = 255
	MaxCategoryNameLen  = 20
	MaxCategoryLen      = 100
	MaxTagLen           = 50
	MaxChecklistTextLen = 255
)

// ValidationError reports field-level problems with a request payload.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Deadline is a nullable timestamp field that remembers whether it was sent.
// A JSON null clears the deadline; an absent field leaves it untouched.
type Deadline struct {
	set  bool
	null bool
	raw  string
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Deadline) UnmarshalJSON(b []byte) error {
	d.set = true
	if bytes.Equal(b, []byte("null")) {
		d.null = true
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("deadline must be a string or null")
	}
	if strings.TrimSpace(s) == "" {
		d.null = true
		return nil
	}
	d.raw = s
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Deadline) MarshalJSON() ([]byte, error) {
	if !d.set || d.null {
		return []byte("null"), nil
	}
	return json.Marshal(d.raw)
}

// Set reports whether the field was present in the payload.
func (d Deadline) Set() bool { return d.set }

// DeadlineAt returns a Deadline that will set t when applied.
func DeadlineAt(t time.Time) Deadline {
	return Deadline{set: true, raw: t.Format(time.RFC3339Nano)}
}

// NoDeadline returns a Deadline that clears the field when applied.
func NoDeadline() Deadline { return Deadline{set: true, null: true} }

var deadlineLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Time parses the deadline. Values without a zone are read as UTC.
func (d Deadline) Time() (*time.Time, error) { return d.TimeIn(time.UTC) }

// TimeIn parses the deadline, reading values without a zone (including
// date-only values) as wall time in loc. The result is in UTC.
func (d Deadline) TimeIn(loc *time.Location) (*time.Time, error) {
	if !d.set || d.null {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.ParseInLocation(layout, d.raw, loc); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid datetime %q", d.raw)
}

// ChecklistInput is one checklist entry in a task payload. Items with an ID
// that matches an existing item update it; others are created.
type ChecklistInput struct {
	ID        string  `json:"id,omitempty"`
	Text      *string `json:"text,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

// TaskInput is the accepted request schema for creating and updating tasks.
// Nil fields are absent from the payload.
type TaskInput struct {
	Title         *string          `json:"title,omitempty"`
	Description   *string          `json:"description,omitempty"`
	CategoryID    *string          `json:"category_id,omitempty"`
	CategoryName  *string          `json:"category_name,omitempty"`
	PriorityScore *float64         `json:"priority_score,omitempty"`
	Deadline      Deadline         `json:"deadline,omitzero"`
	Status        *Status          `json:"status,omitempty"`
	Tags          []string         `json:"tags,omitempty"`
	Checklist     []ChecklistInput `json:"checklist_items,omitempty"`

	// Display-only fields sent by the web client. Accepted and discarded.
	Priority  json.RawMessage `json:"priority,omitempty"`
	AIScore   json.RawMessage `json:"aiScore,omitempty"`
	CreatedAt json.RawMessage `json:"createdAt,omitempty"`
	UpdatedAt json.RawMessage `json:"updatedAt,omitempty"`

	// Location is the zone for deadlines sent without one. Nil means UTC.
	Location *time.Location `json:"-"`
}

// Validate checks the payload. When partial is false (create or full
// update) the title is required.
func (in *TaskInput) Validate(partial bool) error {
	var ve ValidationError

	switch {
	case in.Title == nil && !partial:
		ve.add("title", "This field is required.")
	case in.Title != nil && strings.TrimSpace(*in.Title) == "":
		ve.add("title", "This field may not be blank.")
	case in.Title != nil && utf8.RuneCountInString(*in.Title) > MaxTitleLen:
		ve.add("title", fmt.Sprintf("Ensure this field has no more than %d characters.", MaxTitleLen))
	}

	if in.CategoryName != nil && utf8.RuneCountInString(*in.CategoryName) > MaxCategoryNameLen {
		ve.add("category_name", fmt.Sprintf("Ensure this field has no more than %d characters.", MaxCategoryNameLen))
	}

	if in.PriorityScore != nil && (math.IsNaN(*in.PriorityScore) || math.IsInf(*in.PriorityScore, 0)) {
		ve.add("priority_score", "A valid number is required.")
	}

	if in.Status != nil && !in.Status.Valid() {
		ve.add("status", fmt.Sprintf("%q is not a valid choice.", string(*in.Status)))
	}

	if _, err := in.Deadline.TimeIn(in.Location); err != nil {
		ve.add("deadline", "Datetime has wrong format. Use ISO 8601.")
	}

	for _, name := range in.Tags {
		name = strings.TrimSpace(name)
		if name == "" {
			ve.add("tags", "Tag names may not be blank.")
		} else if utf8.RuneCountInString(name) > MaxTagLen {
			ve.add("tags", fmt.Sprintf("Tag names may have at most %d characters.", MaxTagLen))
		}
	}

	for i, item := range in.Checklist {
		item.check(&ve, fmt.Sprintf("checklist_items[%d].text", i), item.ID == "")
	}

	return ve.err()
}

// Validate checks a single checklist item payload. Text is required when
// creating an item.
func (in ChecklistInput) Validate(create bool) error {
	var ve ValidationError
	in.check(&ve, "text", create)
	return ve.err()
}

func (in ChecklistInput) check(ve *ValidationError, field string, requireText bool) {
	switch {
	case in.Text == nil && requireText:
		ve.add(field, "This field is required.")
	case in.Text != nil && strings.TrimSpace(*in.Text) == "":
		ve.add(field, "This field may not be blank.")
	case in.Text != nil && utf8.RuneCountInString(*in.Text) > MaxChecklistTextLen:
		ve.add(field, fmt.Sprintf("Ensure this field has no more than %d characters.", MaxChecklistTextLen))
	}
}

// NewTask builds a task from a validated create payload. Category linking is
// left to the caller since it needs a Store lookup.
func (in *TaskInput) NewTask() *Task {
	t := &Task{
		Status:    StatusPending,
		Tags:      []string{},
		Checklist: []ChecklistItem{},
	}
	in.ApplyTo(t)
	return t
}

// ApplyTo merges the fields present in the payload into t.
func (in *TaskInput) ApplyTo(t *Task) {
	if in.Title != nil {
		t.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.CategoryName != nil {
		t.CategoryName = strings.TrimSpace(*in.CategoryName)
	}
	if in.PriorityScore != nil {
		t.PriorityScore = *in.PriorityScore
	}
	if in.Deadline.Set() {
		// Validate has already rejected unparseable values.
		t.Deadline, _ = in.Deadline.TimeIn(in.Location)
	}
	if in.Status != nil {
		t.Status = *in.Status
	}
	if in.Tags != nil {
		t.Tags = NormalizeTags(in.Tags)
	}
	if in.Checklist != nil {
		t.Checklist = MergeChecklist(t.Checklist, in.Checklist)
	}
}

// NormalizeTags trims and NFC-normalizes tag names, drops blanks, and removes
// duplicates while keeping first-seen order.
func NormalizeTags(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = norm.NFC.String(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// MergeChecklist reconciles the stored checklist with an incoming one:
// known IDs are updated in place, unknown or missing IDs become new items,
// and stored items absent from incoming are dropped.
func MergeChecklist(existing []ChecklistItem, incoming []ChecklistInput) []ChecklistItem {
	byID := make(map[string]ChecklistItem, len(existing))
	for _, item := range existing {
		byID[item.ID] = item
	}

	out := make([]ChecklistItem, 0, len(incoming))
	pos := make(map[string]int, len(incoming))
	for _, in := range incoming {
		if i, ok := pos[in.ID]; ok && in.ID != "" {
			out[i] = in.merge(out[i])
			continue
		}
		if cur, ok := byID[in.ID]; ok && in.ID != "" {
			pos[in.ID] = len(out)
			out = append(out, in.merge(cur))
			continue
		}
		item := in.merge(ChecklistItem{ID: newID()})
		pos[item.ID] = len(out)
		out = append(out, item)
	}
	return out
}

func (in ChecklistInput) merge(item ChecklistItem) ChecklistItem {
	if in.Text != nil {
		item.Text = strings.TrimSpace(*in.Text)
	}
	if in.Completed != nil {
		item.Completed = *in.Completed
	}
	return item
}

// CategoryKey is the case-folded form used to match category names.
func CategoryKey(name string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(name)))
}

// ValidateCategoryName checks a category name for create requests.
func ValidateCategoryName(name string) error {
	var ve ValidationError
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		ve.add("name", "This field may not be blank.")
	case utf8.RuneCountInString(name) > MaxCategoryLen:
		ve.add("name", fmt.Sprintf("Ensure this field has no more than %d characters.", MaxCategoryLen))
	}
	return ve.err()
}

// ValidateContextEntry checks a context entry for create requests.
func ValidateContextEntry(e *ContextEntry) error {
	var ve ValidationError
	if strings.TrimSpace(e.Content) == "" {
		ve.add("content", "This field may not be blank.")
	}
	if !e.SourceType.Valid() {
		ve.add("source_type", fmt.Sprintf("%q is not a valid choice.", string(e.SourceType)))
	}
	return ve.err()
}
