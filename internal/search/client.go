// Package search talks to an Algolia-compatible full-text index over its
// REST API. Calls carry no automatic retry: a failed call aborts the unit
// of work it belongs to, and idempotent upsert makes the next scheduled
// re-delivery safe.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"indexsync/internal/domain"
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	appID      string
	apiKey     string
	index      string
	logger     *slog.Logger
}

type Config struct {
	AppID   string
	APIKey  string
	Index   string
	Timeout time.Duration

	// BaseURL overrides the derived DSN host; used in tests.
	BaseURL string
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s-dsn.algolia.net", cfg.AppID)
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		appID:      cfg.AppID,
		apiKey:     cfg.APIKey,
		index:      cfg.Index,
		logger:     logger.With("component", "search", "index", cfg.Index),
	}
}

type batchRequest struct {
	Requests []batchAction `json:"requests"`
}

type batchAction struct {
	Action string `json:"action"`
	Body   any    `json:"body"`
}

// SaveObjects upserts records in a single batch call. Each record must
// carry its objectID; existing records are overwritten.
func (c *Client) SaveObjects(ctx context.Context, records []any) error {
	if len(records) == 0 {
		return nil
	}

	payload := batchRequest{Requests: make([]batchAction, 0, len(records))}
	for _, record := range records {
		payload.Requests = append(payload.Requests, batchAction{Action: "updateObject", Body: record})
	}

	path := fmt.Sprintf("/1/indexes/%s/batch", url.PathEscape(c.index))
	if err := c.do(ctx, http.MethodPost, path, payload, nil); err != nil {
		return fmt.Errorf("batch upsert: %w", err)
	}

	c.logger.Debug("batch upserted", "count", len(records))
	return nil
}

// SaveObject upserts a single record under the given objectID.
func (c *Client) SaveObject(ctx context.Context, objectID string, record any) error {
	if err := c.do(ctx, http.MethodPut, c.objectPath(objectID), record, nil); err != nil {
		return fmt.Errorf("upsert %s: %w", objectID, err)
	}
	return nil
}

// GetObject fetches a record by objectID into out. A missing record yields
// domain.ErrNotFound.
func (c *Client) GetObject(ctx context.Context, objectID string, out any) error {
	err := c.do(ctx, http.MethodGet, c.objectPath(objectID), nil, out)
	if err != nil {
		return fmt.Errorf("get %s: %w", objectID, err)
	}
	return nil
}

// DeleteObject removes a record by objectID. Deleting an absent record is
// not an error.
func (c *Client) DeleteObject(ctx context.Context, objectID string) error {
	err := c.do(ctx, http.MethodDelete, c.objectPath(objectID), nil, nil)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("delete %s: %w", objectID, err)
	}
	return nil
}

func (c *Client) objectPath(objectID string) string {
	return fmt.Sprintf("/1/indexes/%s/%s", url.PathEscape(c.index), url.PathEscape(objectID))
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("X-Algolia-Application-Id", c.appID)
	req.Header.Set("X-Algolia-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.UpstreamError{System: "search", Err: fmt.Errorf("execute request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &domain.UpstreamError{
			System: "search",
			Err:    fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(detail)),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &domain.UpstreamError{System: "search", Err: fmt.Errorf("decode response: %w", err)}
		}
	}

	return nil
}
