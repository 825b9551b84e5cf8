// Package events carries domain change notifications to live subscribers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of domain event.
type Type string

const (
	TypeTaskCreated     Type = "task.created"
	TypeTaskUpdated     Type = "task.updated"
	TypeTaskDeleted     Type = "task.deleted"
	TypeCategoryCreated Type = "category.created"
	TypeContextCreated  Type = "context.created"
)

// Event is a single change notification.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Subject   string    `json:"subject"` // ID of the affected entity
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// New stamps an event with a fresh ID and the current UTC time.
func New(typ Type, subject string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Subject:   subject,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// Bus fans events out to subscribers and keeps a bounded history.
type Bus interface {
	// Publish records the event and delivers it to matching subscribers.
	Publish(ctx context.Context, ev Event) error

	// Subscribe returns a channel receiving events of the given types, or of
	// every type when none are given. The returned function unsubscribes and
	// closes the channel.
	Subscribe(types ...Type) (<-chan Event, func())

	// History returns up to limit of the most recent events, oldest first.
	History(limit int) []Event
}
