package main

import (
	"fmt"
	"strings"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func NewMessage(role, content string) Message {
	return Message{Role: role, Content: content}
}

// Configuration surface bounds. Out-of-range values are rejected, never clamped.
const (
	MinTemperature = 0.0
	MaxTemperature = 1.0
	MinMaxTokens   = 100
	MaxMaxTokens   = 4096
	MinHistory     = 1
	MaxHistory     = 20
)

var supportedModels = []string{"gpt-4o-mini", "gpt-4o", "o1-mini", "o1-preview"}

func isSupportedModel(name string) bool {
	for _, m := range supportedModels {
		if m == name {
			return true
		}
	}
	return false
}

// CountFunc maps (text, model) to a token count. The session takes it as a
// value so state logic stays independent of the tokenizer's BPE data.
type CountFunc func(text, model string) (int, error)

// ChatSession holds all mutable state of one running chat: the message
// history, the completion parameters and the derived running token total.
// One instance exists per process; it is only ever mutated by the thread
// handling the current turn.
type ChatSession struct {
	Messages []Message

	Model         string
	Temperature   float64
	MaxTokens     int
	HistoryWindow int
	APIKey        string
	APIBase       string

	TokenCount int

	counter CountFunc
}

func NewChatSession(counter CountFunc) *ChatSession {
	return &ChatSession{
		Model:         "gpt-4o-mini",
		Temperature:   0.1,
		MaxTokens:     4096,
		HistoryWindow: 10,
		counter:       counter,
	}
}

// Append adds one message and recomputes the token total from scratch. A
// counting failure rolls the append back, so history and total never drift
// apart.
func (s *ChatSession) Append(msg Message) error {
	s.Messages = append(s.Messages, msg)
	if err := s.recount(); err != nil {
		s.Messages = s.Messages[:len(s.Messages)-1]
		return err
	}
	return nil
}

// Reset clears the history and the token total.
func (s *ChatSession) Reset() {
	s.Messages = nil
	s.TokenCount = 0
}

// Replace substitutes the whole history, used by transcript load. On a
// counting failure the previous history is restored.
func (s *ChatSession) Replace(msgs []Message) error {
	old := s.Messages
	s.Messages = msgs
	if err := s.recount(); err != nil {
		s.Messages = old
		return err
	}
	return nil
}

// Window returns the last HistoryWindow messages, or all of them when the
// history is shorter. The returned slice aliases the session history.
func (s *ChatSession) Window() []Message {
	if len(s.Messages) <= s.HistoryWindow {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-s.HistoryWindow:]
}

func (s *ChatSession) recount() error {
	total := 0
	for _, m := range s.Messages {
		n, err := s.counter(m.Content, s.Model)
		if err != nil {
			return &DecodeError{Err: fmt.Errorf("counting tokens: %w", err)}
		}
		total += n
	}
	s.TokenCount = total
	return nil
}

func (s *ChatSession) SetModel(name string) error {
	if !isSupportedModel(name) {
		return &ConfigError{Field: "model", Reason: fmt.Sprintf("unsupported model %q (supported: %s)", name, strings.Join(supportedModels, ", "))}
	}
	old := s.Model
	s.Model = name
	if err := s.recount(); err != nil {
		s.Model = old
		return err
	}
	return nil
}

func (s *ChatSession) SetTemperature(t float64) error {
	if t < MinTemperature || t > MaxTemperature {
		return &ConfigError{Field: "temperature", Reason: fmt.Sprintf("%.2f out of range [%.1f, %.1f]", t, MinTemperature, MaxTemperature)}
	}
	s.Temperature = t
	return nil
}

func (s *ChatSession) SetMaxTokens(n int) error {
	if n < MinMaxTokens || n > MaxMaxTokens {
		return &ConfigError{Field: "max_tokens", Reason: fmt.Sprintf("%d out of range [%d, %d]", n, MinMaxTokens, MaxMaxTokens)}
	}
	s.MaxTokens = n
	return nil
}

func (s *ChatSession) SetHistoryWindow(n int) error {
	if n < MinHistory || n > MaxHistory {
		return &ConfigError{Field: "history_window", Reason: fmt.Sprintf("%d out of range [%d, %d]", n, MinHistory, MaxHistory)}
	}
	s.HistoryWindow = n
	return nil
}

// SetAPIKey accepts any non-empty secret; whether a key is usable is only
// known to the remote API.
func (s *ChatSession) SetAPIKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return &ConfigError{Field: "api_key", Reason: "missing API key (set OPENAI_API_KEY or --api-key)"}
	}
	s.APIKey = key
	return nil
}
