// Package llm talks to the chat completion backend.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OllamaClient calls the Ollama native /api/chat endpoint without streaming.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	stats      *LLMStats
}

// NewOllamaClient builds a client. stats may be nil.
func NewOllamaClient(baseURL, model string, stats *LLMStats) *OllamaClient {
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		stats: stats,
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatResponse struct {
	Message *struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error"`
}

// StatusError is a non-200 reply from the backend.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ollama status %d: %s", e.StatusCode, truncate(e.Message, 200))
}

// Model returns the chat model name sent with every request.
func (c *OllamaClient) Model() string {
	return c.model
}

// Complete sends messages and returns the assistant text. A reply without a
// message yields an empty answer rather than an error.
func (c *OllamaClient) Complete(ctx context.Context, messages []Message) (string, error) {
	start := time.Now()
	text, err := c.complete(ctx, messages)
	if c.stats != nil {
		c.stats.Record(time.Since(start), err)
	}
	return text, err
}

func (c *OllamaClient) complete(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages, Stream: false})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama error: %s", out.Error)
	}
	if out.Message == nil {
		return "", nil
	}
	return out.Message.Content, nil
}

// Stats returns the latency tracker, which may be nil.
func (c *OllamaClient) Stats() *LLMStats {
	return c.stats
}

// Close releases idle connections.
func (c *OllamaClient) Close() {
	c.httpClient.CloseIdleConnections()
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
