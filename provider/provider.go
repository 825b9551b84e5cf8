// Package provider defines the completion backend used for task suggestions.
package provider

import "context"

// Role identifies the sender of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Options are per-request sampling settings. Zero values fall back to the
// provider's configured defaults.
type Options struct {
	Model       string
	Temperature *float64
	MaxTokens   int
}

// Response is a completed provider response.
type Response struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
	Usage   Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Provider is a chat-completion backend.
type Provider interface {
	// Name returns the provider identifier (e.g., "anthropic", "openai", "mock").
	Name() string

	// Chat sends a request and returns the complete response.
	Chat(ctx context.Context, messages []Message, opts Options) (*Response, error)
}
