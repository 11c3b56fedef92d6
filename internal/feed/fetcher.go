package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"indexsync/internal/domain"
)

// Fetcher retrieves the remote feed document, using conditional validators
// so an unchanged feed costs a single 304 round trip.
type Fetcher struct {
	httpClient *http.Client
	url        string
	logger     *slog.Logger
}

type FetcherConfig struct {
	URL     string
	Timeout time.Duration
}

func NewFetcher(cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		url:        cfg.URL,
		logger:     logger.With("component", "feed_fetcher"),
	}
}

// Fetch performs a conditional GET of the feed. A 304 yields a document
// with NotModified set and no body; any other non-2xx status is an
// upstream failure.
func (f *Fetcher) Fetch(ctx context.Context, lastModified, etag string) (*domain.FeedDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", "IndexSync/1.0")
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml")
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{System: "feed", Err: fmt.Errorf("execute request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		f.logger.Debug("feed not modified")
		return &domain.FeedDocument{NotModified: true}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.UpstreamError{System: "feed", Err: fmt.Errorf("unexpected status: %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.UpstreamError{System: "feed", Err: fmt.Errorf("read body: %w", err)}
	}

	return &domain.FeedDocument{
		Body:         string(body),
		LastModified: resp.Header.Get("Last-Modified"),
		ETag:         resp.Header.Get("ETag"),
	}, nil
}
