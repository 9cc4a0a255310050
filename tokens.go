package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackEncoding is used for models without a registered tokenizer scheme.
const fallbackEncoding = "cl100k_base"

// modelEncoding maps a model identifier to its tokenizer encoding name.
// Pure and deterministic: the same model always resolves to the same scheme.
func modelEncoding(model string) string {
	switch {
	case strings.HasPrefix(model, "gpt-4o"):
		return "o200k_base"
	case strings.HasPrefix(model, "o1"):
		return "o200k_base"
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"):
		return "cl100k_base"
	default:
		return fallbackEncoding
	}
}

var encoderCache = struct {
	sync.Mutex
	cache map[string]*tiktoken.Tiktoken
}{cache: make(map[string]*tiktoken.Tiktoken)}

func encoderFor(model string) (*tiktoken.Tiktoken, error) {
	name := modelEncoding(model)

	encoderCache.Lock()
	defer encoderCache.Unlock()

	if enc, ok := encoderCache.cache[name]; ok {
		return enc, nil
	}

	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("loading encoding %s: %w", name, err)
	}
	encoderCache.cache[name] = enc
	return enc, nil
}

// countTokens returns the token count of text under the tokenizer scheme of
// the given model family. Side-effect free apart from encoder caching.
func countTokens(text, model string) (int, error) {
	if text == "" {
		return 0, nil
	}
	enc, err := encoderFor(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// estimateTokens is the rough word-split approximation behind the verbose
// throughput stats, where loading BPE data per fragment is not worth it.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(strings.Fields(text))
}
