// Package docsearch is a thin REST client over the document-search backend,
// exposed to skills and the tool registry as feishu.v1.doc.search. The
// backend's actual API is an out-of-scope collaborator (spec.md §1); this
// client only specifies the shape fieldbridge needs.
package docsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/retry"
)

// Client is a minimal HTTP client over the document-search backend.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a client bound to a base URL and bearer token.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// Result is one matching document.
type Result struct {
	DocID   string  `json:"doc_id"`
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Search runs a free-text query against the document-search backend.
func (c *Client) Search(ctx context.Context, query string, pageSize int) ([]Result, error) {
	if pageSize <= 0 {
		pageSize = 10
	}
	body := map[string]any{"query": query, "page_size": pageSize}

	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("docsearch: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/docs/search", bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("docsearch: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, retry.ClassifyNetworkError(fmt.Errorf("docsearch: search: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		wrapped := fmt.Errorf("docsearch: search: status %d: %s", resp.StatusCode, string(data))
		return nil, retry.ClassifyHTTPStatus(resp.StatusCode, wrapped.Error())
	}

	var out struct {
		Results []Result `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("docsearch: decode response: %w", err)
	}
	return out.Results, nil
}
