package transcript

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msgs []Message
	}{
		{"empty sequence", []Message{}},
		{"single message", []Message{{Role: "user", Content: "hello"}}},
		{"conversation", []Message{
			{Role: "user", Content: "what is 2+2?"},
			{Role: "assistant", Content: "4"},
			{Role: "user", Content: "and 3+3?"},
			{Role: "assistant", Content: "6"},
		}},
		{"duplicates allowed", []Message{
			{Role: "user", Content: "again"},
			{Role: "user", Content: "again"},
		}},
		{"awkward content", []Message{
			{Role: "user", Content: "line\nbreaks and \"quotes\" and unicode: héllo 世界"},
			{Role: "assistant", Content: "```go\nfmt.Println(\"hi\")\n```"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()

			jsonPath, mdPath, err := Save(dir, tt.msgs)
			if err != nil {
				t.Fatalf("save failed: %v", err)
			}

			// Shared timestamp identifier across both artifacts.
			base := strings.TrimSuffix(filepath.Base(jsonPath), ".json")
			if strings.TrimSuffix(filepath.Base(mdPath), ".md") != base {
				t.Errorf("artifact identifiers differ: %s vs %s", jsonPath, mdPath)
			}

			loaded, err := Load(jsonPath)
			if err != nil {
				t.Fatalf("load failed: %v", err)
			}

			if len(loaded) != len(tt.msgs) {
				t.Fatalf("loaded %d messages, want %d", len(loaded), len(tt.msgs))
			}
			for i := range tt.msgs {
				if loaded[i] != tt.msgs[i] {
					t.Errorf("message %d: got %+v, want %+v", i, loaded[i], tt.msgs[i])
				}
			}
		})
	}
}

func TestMarkdownArtifact(t *testing.T) {
	dir := t.TempDir()

	_, mdPath, err := Save(dir, []Message{
		{Role: "user", Content: "a question"},
		{Role: "assistant", Content: "an answer"},
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	data, err := os.ReadFile(mdPath)
	if err != nil {
		t.Fatalf("reading markdown artifact: %v", err)
	}
	text := string(data)

	for _, want := range []string{"**User:** a question", "**Assistant:** an answer"} {
		if !strings.Contains(text, want) {
			t.Errorf("markdown artifact missing %q:\n%s", want, text)
		}
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "this is not json"},
		{"not an array", `{"role": "user", "content": "hi"}`},
		{"missing content", `[{"role": "user"}]`},
		{"missing role", `[{"content": "hi"}]`},
		{"wrong content type", `[{"role": "user", "content": 42}]`},
		{"wrong role type", `[{"role": 1, "content": "hi"}]`},
		{"unknown role", `[{"role": "narrator", "content": "hi"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.json")
			if err := os.WriteFile(path, []byte(tt.data), 0o644); err != nil {
				t.Fatal(err)
			}

			msgs, err := Load(path)
			if err == nil {
				t.Fatal("expected FormatError, got nil")
			}
			var fmtErr *FormatError
			if !errors.As(err, &fmtErr) {
				t.Fatalf("expected *FormatError, got %T: %v", err, err)
			}
			if msgs != nil {
				t.Error("partial recovery returned messages from a malformed transcript")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	var fmtErr *FormatError
	if !errors.As(err, &fmtErr) {
		t.Fatalf("expected *FormatError for missing file, got %T: %v", err, err)
	}
}

func TestListNewestFirst(t *testing.T) {
	dir := t.TempDir()

	names := []string{
		"chat_history_20240101_090000.json",
		"chat_history_20240301_120000.json",
		"chat_history_20240215_100000.json",
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("[]"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// Unrelated files are not transcripts.
	os.WriteFile(filepath.Join(dir, "notes.json"), []byte("[]"), 0o644)
	os.WriteFile(filepath.Join(dir, "chat_history_20240301_120000.md"), []byte("x"), 0o644)

	files, err := List(dir)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	if len(files) != 3 {
		t.Fatalf("listed %d files, want 3", len(files))
	}
	if filepath.Base(files[0]) != "chat_history_20240301_120000.json" {
		t.Errorf("newest first violated: %v", files)
	}
	if filepath.Base(files[2]) != "chat_history_20240101_090000.json" {
		t.Errorf("oldest last violated: %v", files)
	}
}
