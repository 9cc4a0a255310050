package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
)

// StreamEvent is one fragment of a completion response. A non-nil Err ends
// the stream and fails the turn; fragments already delivered stay rendered.
type StreamEvent struct {
	Content string
	Err     error
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

const defaultAPIBase = "https://api.openai.com/v1/"

// resolveAPI fills the key and base URL from the environment when the caller
// did not provide them, then falls back to the built-in base. Env values are
// defaults, never overrides of an explicit setting.
func resolveAPI(apiKey, apiBase string) (string, string) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiBase == "" {
		apiBase = os.Getenv("OPENAI_API_BASE")
	}
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	return apiKey, strings.TrimSuffix(apiBase, "/")
}

func urlJoin(base, rel string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	relURL, err := url.Parse(rel)
	if err != nil {
		return "", err
	}

	if relURL.Scheme != "" && relURL.Host != "" {
		return rel, nil
	}

	result := &url.URL{
		Scheme: baseURL.Scheme,
		User:   baseURL.User,
		Host:   baseURL.Host,
		Path:   path.Join(baseURL.Path, relURL.Path),
	}

	return result.String(), nil
}

// chatCompletion issues one request against an OpenAI-compatible
// /chat/completions endpoint and returns the reply as a stream of events.
// With req.Stream set, the response is consumed as SSE fragments in arrival
// order; otherwise the single complete reply is delivered as one event.
// Either way the channel is closed when the turn's text is exhausted.
func chatCompletion(ctx context.Context, req chatRequest, apiKey, apiBase string, verbose bool) (<-chan StreamEvent, error) {
	headers := http.Header{
		"Authorization": {"Bearer " + apiKey},
		"Content-Type":  {"application/json"},
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	client := &http.Client{}
	if verbose {
		client.Transport = &loggingTransport{}
	}

	chatURL, err := urlJoin(apiBase, "/chat/completions")
	if err != nil {
		return nil, &RequestError{Err: err}
	}

	if req.Stream {
		headers.Set("Accept", "text/event-stream")
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", chatURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, &RequestError{Err: err}
	}
	httpReq.Header = headers

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &RequestError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &RequestError{Status: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(body)))}
	}

	if req.Stream {
		ch := make(chan StreamEvent)

		go func() {
			defer close(ch)
			defer resp.Body.Close()

			scanner := bufio.NewScanner(resp.Body)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())

				if !strings.HasPrefix(line, "data: ") {
					continue
				}

				dataStr := strings.TrimSpace(line[6:])
				if dataStr == "[DONE]" {
					return
				}

				var chunk struct {
					Choices []struct {
						Delta struct {
							Content string `json:"content"`
						} `json:"delta"`
						FinishReason *string `json:"finish_reason"`
					} `json:"choices"`
				}

				if err := json.Unmarshal([]byte(dataStr), &chunk); err != nil {
					ch <- StreamEvent{Err: &DecodeError{Err: fmt.Errorf("stream fragment: %w", err)}}
					return
				}

				if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
					ch <- StreamEvent{Content: chunk.Choices[0].Delta.Content}
				}
			}

			if err := scanner.Err(); err != nil {
				ch <- StreamEvent{Err: &RequestError{Err: err}}
			}
		}()

		return ch, nil
	}

	defer resp.Body.Close()

	var respBody struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("response body: %w", err)}
	}

	if len(respBody.Choices) == 0 {
		return nil, &RequestError{Err: fmt.Errorf("no choices returned from API")}
	}

	ch := make(chan StreamEvent, 1)
	ch <- StreamEvent{Content: respBody.Choices[0].Message.Content}
	close(ch)

	return ch, nil
}

type loggingTransport struct{}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	fmt.Fprintf(os.Stderr, ">>> %s %s %s\n", req.Method, req.URL, req.Proto)
	for k, v := range req.Header {
		fmt.Fprintf(os.Stderr, ">>> %s: %s\n", k, v)
	}

	reqBody, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	req.Body = io.NopCloser(bytes.NewBuffer(reqBody))

	var jsonData interface{}
	if err := json.Unmarshal(reqBody, &jsonData); err == nil {
		jsonBytes, _ := json.MarshalIndent(jsonData, "", "  ")
		fmt.Fprintf(os.Stderr, ">>> %s\n", jsonBytes)
	} else {
		fmt.Fprintf(os.Stderr, ">>> %s\n", reqBody)
	}

	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(os.Stderr, "<<< %s %s\n", resp.Status, resp.Proto)
	for k, v := range resp.Header {
		fmt.Fprintf(os.Stderr, "<<< %s: %s\n", k, v)
	}

	return resp, nil
}
