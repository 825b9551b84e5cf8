// Package sse streams domain events to browsers as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/GoCodeAlone/smarttodo/events"
)

const maxReplay = 100

// Streamer serves an SSE connection per request, fed by an events.Bus.
//
// Query parameters:
//
//	types   comma-separated event types to receive (default: all)
//	replay  number of recent events to send before live ones (max 100)
type Streamer struct {
	bus    events.Bus
	logger *slog.Logger

	// Heartbeat is the interval between keep-alive comments. Zero disables them.
	Heartbeat time.Duration
}

// NewStreamer creates a Streamer with a 30s heartbeat.
func NewStreamer(bus events.Bus, logger *slog.Logger) *Streamer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Streamer{bus: bus, logger: logger, Heartbeat: 30 * time.Second}
}

func (s *Streamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	types := parseTypes(r.URL.Query().Get("types"))
	replay, _ := strconv.Atoi(r.URL.Query().Get("replay"))
	replay = min(max(replay, 0), maxReplay)

	// Subscribe before reading history so nothing published in between is lost.
	ch, unsubscribe := s.bus.Subscribe(types...)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, "event: connected\ndata: {\"type\":\"connected\"}\n\n") //nolint:errcheck
	flusher.Flush()

	sent := make(map[string]struct{})
	if replay > 0 {
		for _, ev := range recent(s.bus.History(0), types, replay) {
			if err := writeEvent(w, ev); err != nil {
				s.logger.Debug("sse replay write", slog.Any("err", err))
				return
			}
			sent[ev.ID] = struct{}{}
		}
		flusher.Flush()
	}

	var tick <-chan time.Time
	if s.Heartbeat > 0 {
		ticker := time.NewTicker(s.Heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick:
			fmt.Fprint(w, ": ping\n\n") //nolint:errcheck
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if _, dup := sent[ev.ID]; dup {
				delete(sent, ev.ID)
				continue
			}
			if err := writeEvent(w, ev); err != nil {
				s.logger.Debug("sse write", slog.Any("err", err))
				return
			}
			flusher.Flush()
		}
	}
}

// writeEvent emits one SSE frame. Each data line must not contain newlines.
func writeEvent(w io.Writer, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "id: %s\nevent: %s\n", ev.ID, ev.Type)
	for _, line := range strings.Split(string(data), "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	_, err = io.WriteString(w, b.String())
	return err
}

func parseTypes(raw string) []events.Type {
	var out []events.Type
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, events.Type(t))
		}
	}
	return out
}

// recent returns the last n events of history matching types, oldest first.
func recent(history []events.Event, types []events.Type, n int) []events.Event {
	var out []events.Event
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		ev := history[i]
		if len(types) == 0 || slices.Contains(types, ev.Type) {
			out = append(out, ev)
		}
	}
	slices.Reverse(out)
	return out
}
