// Package enrich pulls secondary attributes (author, tags) from an item's
// linked page. Enrichment is best-effort: any failure degrades the record
// instead of failing the batch.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"indexsync/internal/domain"
)

const maxBodyBytes = 1 << 20

type Enricher struct {
	httpClient *http.Client
	logger     *slog.Logger
}

func New(timeout time.Duration, logger *slog.Logger) *Enricher {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Enricher{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "enricher"),
	}
}

// Enrich fetches the linked page and extracts author and tags. It never
// fails: on any error the zero Enrichment is returned and the item is
// indexed without the secondary attributes.
func (e *Enricher) Enrich(ctx context.Context, link string) domain.Enrichment {
	doc, err := e.fetchPage(ctx, link)
	if err != nil {
		e.logger.Warn("page fetch failed, indexing without metadata", "url", link, "error", err)
		return domain.Enrichment{}
	}

	return domain.Enrichment{
		Author: extractAuthor(doc),
		Tags:   extractTags(doc),
	}
}

func (e *Enricher) fetchPage(ctx context.Context, link string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "IndexSync/1.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.UpstreamError{System: "page", Err: fmt.Errorf("unexpected status: %d", resp.StatusCode)}
	}

	return goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
}

// extractAuthor resolves the author in fallback order: the author-name
// markup class, the author meta tag, the article:author meta tag, then an
// embedded JSON-LD block's author name.
func extractAuthor(doc *goquery.Document) *string {
	if name := strings.TrimSpace(doc.Find(".blog-author-name").First().Text()); name != "" {
		return &name
	}
	if name := metaContent(doc, `meta[name="author"]`); name != "" {
		return &name
	}
	if name := metaContent(doc, `meta[property="article:author"]`); name != "" {
		return &name
	}
	if name := jsonLDAuthor(doc); name != "" {
		return &name
	}
	return nil
}

func metaContent(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().AttrOr("content", ""))
}

func jsonLDAuthor(doc *goquery.Document) string {
	var name string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var data struct {
			Author struct {
				Name string `json:"name"`
			} `json:"author"`
		}
		if err := json.Unmarshal([]byte(sel.Text()), &data); err != nil {
			return true
		}
		if data.Author.Name != "" {
			name = data.Author.Name
			return false
		}
		return true
	})
	return strings.TrimSpace(name)
}

// extractTags unions the keywords meta tag (comma-split) with every
// article:tag meta tag occurrence, deduplicated in first-seen order.
func extractTags(doc *goquery.Document) []string {
	var tags []string
	seen := make(map[string]struct{})

	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return
		}
		if _, ok := seen[tag]; ok {
			return
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	if keywords := metaContent(doc, `meta[name="keywords"]`); keywords != "" {
		for _, tag := range strings.Split(keywords, ",") {
			add(tag)
		}
	}

	doc.Find(`meta[property="article:tag"]`).Each(func(_ int, sel *goquery.Selection) {
		add(sel.AttrOr("content", ""))
	})

	return tags
}
