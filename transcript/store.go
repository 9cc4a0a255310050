// Package transcript persists chat transcripts to disk: a structured JSON
// artifact that round-trips losslessly, and a human-readable Markdown
// rendering that is write-only.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FormatError reports a structured transcript that cannot be loaded. The
// load is aborted whole; there is no partial recovery.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("transcript %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

var validRoles = map[string]bool{"user": true, "assistant": true, "system": true}

// Save writes both artifacts under a shared timestamp-derived identifier and
// returns their paths (JSON first, Markdown second). Writes are synchronous
// whole-file writes; a crash mid-write can leave a partial artifact.
func Save(dir string, msgs []Message) (string, string, error) {
	stamp := time.Now().Format("20060102_150405")
	jsonPath := filepath.Join(dir, fmt.Sprintf("chat_history_%s.json", stamp))
	mdPath := filepath.Join(dir, fmt.Sprintf("chat_history_%s.md", stamp))

	data, err := json.Marshal(msgs)
	if err != nil {
		return "", "", err
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return "", "", err
	}

	if err := os.WriteFile(mdPath, []byte(renderMarkdown(msgs)), 0o644); err != nil {
		return "", "", err
	}

	return jsonPath, mdPath, nil
}

// Load reads a structured transcript back into a message sequence. Anything
// that is not a well-formed sequence of {role, content} objects with known
// roles fails with a FormatError and loads nothing.
func Load(path string) ([]Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}

	var raw []struct {
		Role    *string `json:"role"`
		Content *string `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}

	msgs := make([]Message, 0, len(raw))
	for i, r := range raw {
		if r.Role == nil || r.Content == nil {
			return nil, &FormatError{Path: path, Err: fmt.Errorf("message %d: missing role or content", i)}
		}
		if !validRoles[*r.Role] {
			return nil, &FormatError{Path: path, Err: fmt.Errorf("message %d: unknown role %q", i, *r.Role)}
		}
		msgs = append(msgs, Message{Role: *r.Role, Content: *r.Content})
	}

	return msgs, nil
}

// List returns the structured transcript files under dir, newest first.
func List(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "chat_history_*.json"))
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches, nil
}

// renderMarkdown is the best-effort human rendering: one block per message,
// bold capitalized role label, raw content. Never read back.
func renderMarkdown(msgs []Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(fmt.Sprintf("**%s:** %s\n\n", capitalize(m.Role), m.Content))
	}
	return sb.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
