// Package bitable is a thin REST client over the tabular backend. The
// backend's actual API is an out-of-scope collaborator (spec.md §1); this
// client only specifies the shape fieldbridge needs: fetch, create,
// update, and a handful of search variants.
package bitable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/retry"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// Client is a minimal HTTP client over the tabular backend's record API.
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

// GetRecord fetches one record by locator.
func (c *Client) GetRecord(ctx context.Context, loc models.Locator) (models.Record, error) {
	var record models.Record
	path := fmt.Sprintf("/apps/%s/tables/%s/records/%s", loc.AppToken, loc.TableID, loc.RecordID)
	if err := c.do(ctx, http.MethodGet, path, nil, &record); err != nil {
		return models.Record{}, err
	}
	return record, nil
}

// UpdateFields patches a record's fields, merging with the existing
// record rather than replacing it.
func (c *Client) UpdateFields(ctx context.Context, loc models.Locator, fields models.Fields) error {
	path := fmt.Sprintf("/apps/%s/tables/%s/records/%s", loc.AppToken, loc.TableID, loc.RecordID)
	body := map[string]any{"fields": fields}
	return c.do(ctx, http.MethodPatch, path, body, nil)
}

// UpsertRecord creates a record if anchorField/anchorValue matches nothing,
// otherwise updates the matching record's fields.
func (c *Client) UpsertRecord(ctx context.Context, target models.TableRef, anchorField string, fields models.Fields) error {
	path := fmt.Sprintf("/apps/%s/tables/%s/records:upsert", target.AppToken, target.TableID)
	body := map[string]any{"anchor_field": anchorField, "fields": fields}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// CreateCalendarEvent creates a calendar entry anchored to a record's
// start/end fields.
func (c *Client) CreateCalendarEvent(ctx context.Context, loc models.Locator, title string, startMS, endMS int64) error {
	path := fmt.Sprintf("/apps/%s/tables/%s/records/%s/calendar", loc.AppToken, loc.TableID, loc.RecordID)
	body := map[string]any{"title": title, "start_ms": startMS, "end_ms": endMS}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// SearchMode selects which QuerySkill tool variant to call.
type SearchMode string

const (
	SearchDefault    SearchMode = "search"
	SearchExact      SearchMode = "search_exact"
	SearchKeyword    SearchMode = "search_keyword"
	SearchPerson     SearchMode = "search_person"
	SearchDateRange  SearchMode = "search_date_range"
)

// SearchParams are the parameters accepted by every search variant; only
// the fields relevant to the chosen mode need to be populated.
type SearchParams struct {
	Table     models.TableRef
	Query     string
	Field     string
	Value     string
	PersonID  string
	StartMS   int64
	EndMS     int64
	Page      int
	PageSize  int
}

// Search runs one of the search tool variants and returns the matching
// records plus total count.
func (c *Client) Search(ctx context.Context, mode SearchMode, params SearchParams) ([]models.Record, int, error) {
	path := fmt.Sprintf("/apps/%s/tables/%s/%s", params.Table.AppToken, params.Table.TableID, mode)
	var resp struct {
		Records []models.Record `json:"records"`
		Total   int             `json:"total"`
	}
	if err := c.do(ctx, http.MethodPost, path, params, &resp); err != nil {
		return nil, 0, err
	}
	return resp.Records, resp.Total, nil
}

// DeleteRecord removes a record by locator.
func (c *Client) DeleteRecord(ctx context.Context, loc models.Locator) error {
	path := fmt.Sprintf("/apps/%s/tables/%s/records/%s", loc.AppToken, loc.TableID, loc.RecordID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// CreateRecord creates a new record with the given fields, returning its
// assigned record id.
func (c *Client) CreateRecord(ctx context.Context, target models.TableRef, fields models.Fields) (string, error) {
	path := fmt.Sprintf("/apps/%s/tables/%s/records", target.AppToken, target.TableID)
	var resp struct {
		RecordID string `json:"record_id"`
	}
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"fields": fields}, &resp); err != nil {
		return "", err
	}
	return resp.RecordID, nil
}

// TableInfo describes one table in an app for the list_tables tool.
type TableInfo struct {
	TableID string `json:"table_id"`
	Name    string `json:"name"`
}

// ListTables enumerates the tables belonging to an app.
func (c *Client) ListTables(ctx context.Context, appToken string) ([]TableInfo, error) {
	path := fmt.Sprintf("/apps/%s/tables", appToken)
	var resp struct {
		Tables []TableInfo `json:"tables"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tables, nil
}

// FieldInfo describes one field in a table's schema.
type FieldInfo struct {
	Name string          `json:"name"`
	Kind models.FieldKind `json:"kind"`
}

// GetTableSchema fetches the current field names and kinds for a table, used
// by the automation worker's schema-change detection (spec.md §4.4).
func (c *Client) GetTableSchema(ctx context.Context, appToken, tableID string) ([]FieldInfo, error) {
	path := fmt.Sprintf("/apps/%s/tables/%s/fields", appToken, tableID)
	var resp struct {
		Fields []FieldInfo `json:"fields"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Fields, nil
}

// ScanRecordIDs lists record ids in cursor order, for the automation
// worker's compensation scan path (spec.md §4.1 entry path iii).
func (c *Client) ScanRecordIDs(ctx context.Context, appToken, tableID, afterCursor string, limit int) ([]string, string, error) {
	path := fmt.Sprintf("/apps/%s/tables/%s/records:scan", appToken, tableID)
	body := map[string]any{"after_cursor": afterCursor, "limit": limit}
	var resp struct {
		RecordIDs  []string `json:"record_ids"`
		NextCursor string   `json:"next_cursor"`
	}
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, "", err
	}
	return resp.RecordIDs, resp.NextCursor, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("bitable: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("bitable: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return retry.ClassifyNetworkError(fmt.Errorf("bitable: %s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		wrapped := fmt.Errorf("bitable: %s %s: status %d: %s", method, path, resp.StatusCode, string(data))
		return retry.ClassifyHTTPStatus(resp.StatusCode, wrapped.Error())
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("bitable: decode response: %w", err)
		}
	}
	return nil
}
