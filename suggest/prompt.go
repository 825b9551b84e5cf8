package suggest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrNoJSON means the reply contained no brace-delimited text at all.
	ErrNoJSON = errors.New("AI response not in valid JSON format")

	// ErrMalformedJSON means brace-delimited text was found but did not parse.
	ErrMalformedJSON = errors.New("malformed JSON in AI response")
)

// jsonBlock matches from the first '{' to the last '}' across lines.
var jsonBlock = regexp.MustCompile(`(?s)\{.*\}`)

// BuildPrompt renders the user message sent to the completion service.
func BuildPrompt(req Request) string {
	var b strings.Builder
	var title, description string
	if req.Task != nil {
		title, description = req.Task.Title, req.Task.Description
	}
	fmt.Fprintf(&b, "Title: %s\nDescription: %s\n", title, description)

	b.WriteString("\nContext:\n")
	if len(req.Context) == 0 {
		b.WriteString("None")
	} else {
		lines := make([]string, len(req.Context))
		for i, c := range req.Context {
			lines[i] = "- " + c
		}
		b.WriteString(strings.Join(lines, "\n"))
	}

	b.WriteString("\n\nBased on the above, suggest:\n" +
		"1. A priority score (0 to 1)\n" +
		"2. A realistic deadline (in ISO format)\n" +
		"3. An enhanced task description\n" +
		"4. Suggested categories or tags\n" +
		"Reply in JSON format.")
	return b.String()
}

// ParseReply extracts a JSON document from model output. The whole reply is
// tried first, then the widest brace-delimited span.
func ParseReply(text string) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace([]byte(text))
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed), nil
	}

	match := jsonBlock.Find(trimmed)
	if match == nil {
		return nil, ErrNoJSON
	}
	var probe any
	if err := json.Unmarshal(match, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return json.RawMessage(match), nil
}
