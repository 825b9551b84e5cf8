package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
)

// Client holds HTTP client state for CLI commands.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// do sends body as JSON (when non-nil) and decodes the response into v
// (when non-nil and the response has a body). It returns the response
// headers so callers can read X-Detail on 204s.
func (c *Client) do(ctx context.Context, method, path string, body, v any) (int, http.Header, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, resp.Header, &APIError{Status: resp.StatusCode, Message: errorMessage(b)}
	}
	if v != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return resp.StatusCode, resp.Header, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, resp.Header, nil
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	_, _, err := c.do(ctx, http.MethodGet, path, nil, v)
	return err
}

func (c *Client) post(ctx context.Context, path string, body, v any) error {
	_, _, err := c.do(ctx, http.MethodPost, path, body, v)
	return err
}

// errorMessage extracts {"error": "..."} from a response body, falling back
// to the raw text.
func errorMessage(body []byte) string {
	var e struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		if len(e.Fields) == 0 {
			return e.Error
		}
		parts := make([]string, 0, len(e.Fields))
		for f, msg := range e.Fields {
			parts = append(parts, f+": "+msg)
		}
		slices.Sort(parts)
		return e.Error + " (" + strings.Join(parts, "; ") + ")"
	}
	return strings.TrimSpace(string(body))
}
