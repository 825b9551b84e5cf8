// Package mock provides a scripted AI provider for testing and offline use.
package mock

import (
	"context"
	"sync"

	"github.com/GoCodeAlone/smarttodo/provider"
)

const defaultResponse = `{"priorityScore": 5, "category": "General", "tags": [], "deadline": null}`

// Reply is one scripted outcome. A non-nil Err is returned instead of Content.
type Reply struct {
	Content string
	Err     error
}

// MockProvider implements provider.Provider for testing.
// It cycles through scripted replies and records every call.
type MockProvider struct {
	mu      sync.Mutex
	replies []Reply
	idx     int
	calls   [][]provider.Message
	opts    []provider.Options
}

// New creates a MockProvider that cycles through the given responses.
func New(responses ...string) *MockProvider {
	replies := make([]Reply, len(responses))
	for i, r := range responses {
		replies[i] = Reply{Content: r}
	}
	return &MockProvider{replies: replies}
}

// NewScripted creates a MockProvider from replies that may include errors.
func NewScripted(replies ...Reply) *MockProvider {
	return &MockProvider{replies: replies}
}

// Name returns the provider identifier.
func (m *MockProvider) Name() string { return "mock" }

// Chat returns the next scripted reply, cycling through the queue.
func (m *MockProvider) Chat(_ context.Context, messages []provider.Message, opts provider.Options) (*provider.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, append([]provider.Message(nil), messages...))
	m.opts = append(m.opts, opts)

	if len(m.replies) == 0 {
		return &provider.Response{Content: defaultResponse, Model: opts.Model}, nil
	}
	r := m.replies[m.idx%len(m.replies)]
	m.idx++
	if r.Err != nil {
		return nil, r.Err
	}
	return &provider.Response{
		Content: r.Content,
		Model:   opts.Model,
		Usage:   provider.Usage{OutputTokens: len(r.Content)},
	}, nil
}

// Calls returns the message lists passed to Chat, oldest first.
func (m *MockProvider) Calls() [][]provider.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]provider.Message(nil), m.calls...)
}

// LastOptions returns the options of the most recent Chat call.
func (m *MockProvider) LastOptions() (provider.Options, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.opts) == 0 {
		return provider.Options{}, false
	}
	return m.opts[len(m.opts)-1], true
}
