// Package chat orchestrates model conversations: persona priming, history
// management, completion calls and cross-session summarization.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"medichat/internal/models"
)

// CompletionClient calls an OpenAI-compatible chat completions endpoint.
type CompletionClient struct {
	url   string
	model string
	http  *http.Client
}

// NewCompletionClient creates a client for the chat completions endpoint at url.
func NewCompletionClient(url, model string) *CompletionClient {
	return &CompletionClient{
		url:   url,
		model: model,
		http:  &http.Client{Timeout: 60 * time.Second},
	}
}

// WithHTTPClient overrides the HTTP client, for tests.
func (c *CompletionClient) WithHTTPClient(h *http.Client) *CompletionClient {
	c.http = h
	return c
}

type completionRequest struct {
	Model         string           `json:"model"`
	Messages      []models.Message `json:"messages"`
	Temperature   float64          `json:"temperature"`
	MaxTokens     int              `json:"max_tokens"`
	TopK          int              `json:"top_k"`
	RepeatPenalty float64          `json:"repeat_penalty"`
	TopP          float64          `json:"top_p"`
	MinP          float64          `json:"min_p"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends the conversation to the model and returns the assistant
// content of the first choice. ok is false when the response decodes but
// carries no content field; err covers transport, status and decode failures.
func (c *CompletionClient) Complete(ctx context.Context, messages []models.Message) (content string, ok bool, err error) {
	body, err := json.Marshal(completionRequest{
		Model:         c.model,
		Messages:      messages,
		Temperature:   0.8,
		MaxTokens:     100,
		TopK:          40,
		RepeatPenalty: 1.1,
		TopP:          0.95,
		MinP:          0.05,
	})
	if err != nil {
		return "", false, fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", false, fmt.Errorf("completion API error: status %d, body: %s", resp.StatusCode, string(b))
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", false, fmt.Errorf("decode completion response: %w", err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == nil {
		return "", false, nil
	}
	return *out.Choices[0].Message.Content, true, nil
}
