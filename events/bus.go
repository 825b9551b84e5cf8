package events

import (
	"context"
	"slices"
	"sync"
)

const (
	defaultHistory    = 1000
	subscriberBacklog = 64
)

// InMemoryBus is a thread-safe in-process event bus. Slow subscribers miss
// events instead of blocking publishers.
type InMemoryBus struct {
	mu      sync.RWMutex
	subs    map[int]*subscriber
	nextID  int
	history []Event
	maxHist int
	dropped int
}

type subscriber struct {
	ch    chan Event
	types []Type
}

func (s *subscriber) wants(t Type) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

// NewInMemoryBus creates an InMemoryBus with a 1000-event history cap.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		subs:    make(map[int]*subscriber),
		maxHist: defaultHistory,
	}
}

func (b *InMemoryBus) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.history = append(b.history, ev)
	if len(b.history) > b.maxHist {
		b.history = b.history[len(b.history)-b.maxHist:]
	}

	for _, s := range b.subs {
		if !s.wants(ev.Type) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			b.dropped++
		}
	}
	return nil
}

func (b *InMemoryBus) Subscribe(types ...Type) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	s := &subscriber{ch: make(chan Event, subscriberBacklog), types: slices.Clone(types)}
	b.subs[id] = s

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(s.ch)
		})
	}
}

func (b *InMemoryBus) History(limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start := 0
	if limit > 0 && limit < len(b.history) {
		start = len(b.history) - limit
	}
	return slices.Clone(b.history[start:])
}

// Dropped reports how many deliveries were skipped because a subscriber's
// backlog was full.
func (b *InMemoryBus) Dropped() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}
