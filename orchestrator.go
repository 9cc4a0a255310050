package main

import (
	"context"
	"strings"
)

// Models named with this prefix are the reasoning family: they take no
// sampling parameters and are only served in non-streaming form.
const reasoningPrefix = "o1"

func isReasoningModel(model string) bool {
	return strings.HasPrefix(model, reasoningPrefix)
}

// buildRequest constructs the wire request from the session's current state,
// bounded to the configured history window. Reasoning-family models get only
// model and messages; temperature and max_tokens must stay off the wire for
// them. Everything else streams with the full parameter set.
func buildRequest(s *ChatSession) chatRequest {
	req := chatRequest{
		Model:    s.Model,
		Messages: s.Window(),
	}

	if isReasoningModel(s.Model) {
		return req
	}

	temp := s.Temperature
	maxTokens := s.MaxTokens
	req.Temperature = &temp
	req.MaxTokens = &maxTokens
	req.Stream = true
	return req
}

// startTurn dispatches one completion request for the session as it stands.
// The just-submitted user message must already be appended. At most one
// request is issued; validation failures surface before any network I/O.
func startTurn(ctx context.Context, s *ChatSession, verbose bool) (<-chan StreamEvent, error) {
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, &ConfigError{Field: "api_key", Reason: "missing API key (set OPENAI_API_KEY or --api-key)"}
	}
	return chatCompletion(ctx, buildRequest(s), s.APIKey, s.APIBase, verbose)
}

// completeTurn runs one full user turn: append the prompt, dispatch, drain
// the stream, commit the assistant reply. onUpdate observes the accumulated
// text after every fragment. On any failure the turn aborts with the user
// message kept in history and no assistant message committed; there are no
// automatic retries.
func completeTurn(ctx context.Context, s *ChatSession, prompt string, onUpdate func(fragment, accumulated string), verbose bool) error {
	if err := s.Append(NewMessage("user", prompt)); err != nil {
		return err
	}

	ch, err := startTurn(ctx, s, verbose)
	if err != nil {
		return err
	}

	var full strings.Builder
	for event := range ch {
		if event.Err != nil {
			return event.Err
		}
		full.WriteString(event.Content)
		if onUpdate != nil {
			onUpdate(event.Content, full.String())
		}
	}

	return s.Append(NewMessage("assistant", full.String()))
}
