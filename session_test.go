package main

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// wordCounter stands in for the BPE tokenizer so session logic is testable
// without encoding data files.
func wordCounter(text, model string) (int, error) {
	return len(strings.Fields(text)), nil
}

func testSession() *ChatSession {
	return NewChatSession(wordCounter)
}

func TestAppendRecomputesTokenCount(t *testing.T) {
	s := testSession()

	msgs := []Message{
		NewMessage("user", "hello there"),
		NewMessage("assistant", "hi"),
		NewMessage("user", "one two three four"),
	}

	for _, m := range msgs {
		if err := s.Append(m); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// Recompute from scratch and compare: no drift allowed.
		want := 0
		for _, prev := range s.Messages {
			n, _ := wordCounter(prev.Content, s.Model)
			want += n
		}
		if s.TokenCount != want {
			t.Errorf("after %d appends: token count %d, want %d", len(s.Messages), s.TokenCount, want)
		}
	}
}

// brittleCounter fails on marked content, standing in for an encoder that
// cannot be loaded.
func brittleCounter(text, model string) (int, error) {
	if strings.Contains(text, "[bad]") {
		return 0, fmt.Errorf("no encoding available for %q", text)
	}
	return len(strings.Fields(text)), nil
}

func TestAppendRollsBackOnCountFailure(t *testing.T) {
	s := NewChatSession(brittleCounter)
	if err := s.Append(NewMessage("user", "a fine message")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantCount := s.TokenCount

	err := s.Append(NewMessage("user", "[bad] message"))
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected *DecodeError, got %T: %v", err, err)
	}

	if len(s.Messages) != 1 {
		t.Errorf("failed append left %d messages, want 1", len(s.Messages))
	}
	if s.TokenCount != wantCount {
		t.Errorf("failed append changed token count: %d, want %d", s.TokenCount, wantCount)
	}
}

func TestReplaceRollsBackOnCountFailure(t *testing.T) {
	s := NewChatSession(brittleCounter)
	s.Append(NewMessage("user", "keep me"))
	s.Append(NewMessage("assistant", "and me"))
	wantCount := s.TokenCount

	err := s.Replace([]Message{NewMessage("user", "[bad]")})
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected *DecodeError, got %T: %v", err, err)
	}

	if len(s.Messages) != 2 || s.Messages[0].Content != "keep me" {
		t.Errorf("failed replace mutated history: %+v", s.Messages)
	}
	if s.TokenCount != wantCount {
		t.Errorf("failed replace changed token count: %d, want %d", s.TokenCount, wantCount)
	}
}

func TestResetClearsEverything(t *testing.T) {
	s := testSession()
	s.Append(NewMessage("user", "some words here"))
	s.Append(NewMessage("assistant", "a reply"))

	s.Reset()

	if len(s.Messages) != 0 {
		t.Errorf("expected empty messages, got %d", len(s.Messages))
	}
	if s.TokenCount != 0 {
		t.Errorf("expected token count 0, got %d", s.TokenCount)
	}
}

func TestReplaceRecomputesTokenCount(t *testing.T) {
	s := testSession()
	s.Append(NewMessage("user", "old content"))

	if err := s.Replace([]Message{
		NewMessage("user", "one two"),
		NewMessage("assistant", "three four five"),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(s.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(s.Messages))
	}
	if s.TokenCount != 5 {
		t.Errorf("expected token count 5, got %d", s.TokenCount)
	}
}

func TestWindowBounds(t *testing.T) {
	s := testSession()
	for i := 0; i < 15; i++ {
		s.Append(NewMessage("user", fmt.Sprintf("message %d", i)))
	}

	t.Run("window smaller than history", func(t *testing.T) {
		s.HistoryWindow = 10
		w := s.Window()
		if len(w) != 10 {
			t.Fatalf("expected 10 messages, got %d", len(w))
		}
		if w[0].Content != "message 5" || w[9].Content != "message 14" {
			t.Errorf("window has wrong bounds: first=%q last=%q", w[0].Content, w[9].Content)
		}
	})

	t.Run("window larger than history", func(t *testing.T) {
		s.HistoryWindow = 20
		w := s.Window()
		if len(w) != 15 {
			t.Errorf("expected all 15 messages, got %d", len(w))
		}
	})
}

func TestConfigureRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		set  func(s *ChatSession) error
	}{
		{"temperature above max", func(s *ChatSession) error { return s.SetTemperature(1.5) }},
		{"temperature below min", func(s *ChatSession) error { return s.SetTemperature(-0.1) }},
		{"max tokens too small", func(s *ChatSession) error { return s.SetMaxTokens(99) }},
		{"max tokens too large", func(s *ChatSession) error { return s.SetMaxTokens(5000) }},
		{"history window zero", func(s *ChatSession) error { return s.SetHistoryWindow(0) }},
		{"history window too large", func(s *ChatSession) error { return s.SetHistoryWindow(21) }},
		{"unknown model", func(s *ChatSession) error { return s.SetModel("gpt-2") }},
		{"empty api key", func(s *ChatSession) error { return s.SetAPIKey("  ") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSession()
			before := *s

			err := tt.set(s)
			if err == nil {
				t.Fatal("expected ConfigError, got nil")
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T: %v", err, err)
			}

			// Rejection must not clamp: nothing changed.
			if s.Temperature != before.Temperature || s.MaxTokens != before.MaxTokens ||
				s.HistoryWindow != before.HistoryWindow || s.Model != before.Model {
				t.Error("rejected value mutated the session")
			}
		})
	}
}

func TestConfigureAcceptsBoundaryValues(t *testing.T) {
	s := testSession()

	for _, err := range []error{
		s.SetTemperature(0.0),
		s.SetTemperature(1.0),
		s.SetMaxTokens(100),
		s.SetMaxTokens(4096),
		s.SetHistoryWindow(1),
		s.SetHistoryWindow(20),
		s.SetModel("o1-preview"),
	} {
		if err != nil {
			t.Errorf("boundary value rejected: %v", err)
		}
	}
}
