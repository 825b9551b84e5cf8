package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GoCodeAlone/smarttodo/events"
)

type frame struct {
	id, event, data string
}

func connect(t *testing.T, bus events.Bus, query string) *bufio.Reader {
	t.Helper()
	srv := httptest.NewServer(NewStreamer(bus, nil))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+query, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	if f := readFrame(t, r); f.event != "connected" {
		t.Fatalf("first frame = %+v, want connected", f)
	}
	return r
}

func readFrame(t *testing.T, r *bufio.Reader) frame {
	t.Helper()
	var f frame
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			return f
		}
		k, v, _ := strings.Cut(line, ": ")
		switch k {
		case "id":
			f.id = v
		case "event":
			f.event = v
		case "data":
			f.data += v
		}
	}
}

func TestStream_LiveEvents(t *testing.T) {
	bus := events.NewInMemoryBus()
	r := connect(t, bus, "/")

	ev := events.New(events.TypeTaskCreated, "task-1", map[string]string{"title": "x"})
	if err := bus.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	f := readFrame(t, r)
	if f.id != ev.ID || f.event != string(events.TypeTaskCreated) {
		t.Errorf("frame = %+v", f)
	}
	var got events.Event
	if err := json.Unmarshal([]byte(f.data), &got); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if got.Subject != "task-1" {
		t.Errorf("subject = %q", got.Subject)
	}
}

func TestStream_ReplayAndFilter(t *testing.T) {
	bus := events.NewInMemoryBus()
	ctx := context.Background()
	for _, ev := range []events.Event{
		events.New(events.TypeTaskCreated, "a", nil),
		events.New(events.TypeTaskCreated, "b", nil),
		events.New(events.TypeCategoryCreated, "c", nil),
		events.New(events.TypeTaskCreated, "d", nil),
	} {
		_ = bus.Publish(ctx, ev)
	}

	r := connect(t, bus, "/?replay=2&types=task.created")

	for _, want := range []string{"b", "d"} {
		var got events.Event
		if err := json.Unmarshal([]byte(readFrame(t, r).data), &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Subject != want {
			t.Errorf("replayed subject = %q, want %q", got.Subject, want)
		}
	}

	_ = bus.Publish(ctx, events.New(events.TypeCategoryCreated, "skip", nil))
	_ = bus.Publish(ctx, events.New(events.TypeTaskCreated, "live", nil))

	var got events.Event
	if err := json.Unmarshal([]byte(readFrame(t, r).data), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Subject != "live" {
		t.Errorf("live subject = %q, want live", got.Subject)
	}
}

func TestRecent(t *testing.T) {
	h := []events.Event{
		{ID: "1", Type: events.TypeTaskCreated},
		{ID: "2", Type: events.TypeTaskDeleted},
		{ID: "3", Type: events.TypeTaskCreated},
	}
	got := recent(h, nil, 2)
	if len(got) != 2 || got[0].ID != "2" || got[1].ID != "3" {
		t.Errorf("recent(all, 2) = %+v", got)
	}
	got = recent(h, []events.Type{events.TypeTaskCreated}, 5)
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "3" {
		t.Errorf("recent(created, 5) = %+v", got)
	}
}

func TestParseTypes(t *testing.T) {
	got := parseTypes(" task.created, ,task.deleted")
	if len(got) != 2 || got[0] != events.TypeTaskCreated || got[1] != events.TypeTaskDeleted {
		t.Errorf("parseTypes = %v", got)
	}
	if parseTypes("") != nil {
		t.Error("empty input should yield no filter")
	}
}
