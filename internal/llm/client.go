// Package llm is a thin, provider-agnostic HTTP client over the two LLM
// endpoints configured for dual-model routing (spec.md §6 `TASK_LLM_*` /
// `LLM_*`): a cheap/fast task model for intent classification and slot
// extraction, and a chat model for user-facing prose (ChitchatSkill,
// SummarySkill). The LLM HTTP provider itself is an out-of-scope
// collaborator (spec.md §1) — this client only specifies the
// OpenAI-compatible chat-completions shape fieldbridge needs.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/config"
	"github.com/fieldbridge/fieldbridge/internal/retry"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client calls a single OpenAI-compatible chat-completions endpoint.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

func newClient(cfg config.LLMProviderConfig, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		http:    &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// ChatOptions tunes a single completion call.
type ChatOptions struct {
	Temperature float64
	// JSONMode requests the provider constrain output to a JSON object,
	// used by the intent parser's LLM-fallback classification step.
	JSONMode bool
}

// Complete sends a chat-completions request and returns the first choice's
// message content.
func (c *Client) Complete(ctx context.Context, system string, messages []Message, opts ChatOptions) (string, error) {
	req := chatRequest{
		Model:       c.model,
		Temperature: opts.Temperature,
	}
	if system != "" {
		req.Messages = append(req.Messages, Message{Role: "system", Content: system})
	}
	req.Messages = append(req.Messages, messages...)
	if opts.JSONMode {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	buf, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("llm: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(buf))
	if err != nil {
		return "", fmt.Errorf("llm: new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", retry.ClassifyNetworkError(fmt.Errorf("llm: completion request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		wrapped := fmt.Errorf("llm: completion request: status %d: %s", resp.StatusCode, string(data))
		return "", retry.ClassifyHTTPStatus(resp.StatusCode, wrapped.Error())
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("llm: empty completion response")
	}
	return out.Choices[0].Message.Content, nil
}

// Router holds both model clients and applies the §5 "LLM default 10s"
// deadline uniformly regardless of which model is called.
type Router struct {
	Task    *Client
	Chat    *Client
	Timeout time.Duration
}

// NewRouter builds a Router from the dual-model configuration.
func NewRouter(cfg config.LLMConfig) *Router {
	return &Router{
		Task:    newClient(cfg.Task, cfg.Timeout),
		Chat:    newClient(cfg.Chat, cfg.Timeout),
		Timeout: cfg.Timeout,
	}
}

// CompleteTask runs a bounded completion against the task model, used for
// intent classification and slot extraction (cheap, low-latency calls).
func (r *Router) CompleteTask(ctx context.Context, system string, messages []Message, opts ChatOptions) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()
	return r.Task.Complete(ctx, system, messages, opts)
}

// CompleteChat runs a bounded completion against the chat model, used for
// user-facing prose (ChitchatSkill, SummarySkill).
func (r *Router) CompleteChat(ctx context.Context, system string, messages []Message, opts ChatOptions) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()
	return r.Chat.Complete(ctx, system, messages, opts)
}

func (r *Router) timeout() time.Duration {
	if r.Timeout <= 0 {
		return 10 * time.Second
	}
	return r.Timeout
}
