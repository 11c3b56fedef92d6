package feed

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"indexsync/internal/domain"
)

// rssDocument models the subset of RSS 2.0 (plus the media extensions) that
// the sync cares about. Field matching is by local name, so undeclared
// namespace prefixes in sloppy feeds still resolve.
type rssDocument struct {
	Items []rssItem `xml:"channel>item"`
}

type rssItem struct {
	Title       string         `xml:"title"`
	Link        string         `xml:"link"`
	GUID        string         `xml:"guid"`
	Description string         `xml:"description"`
	Encoded     string         `xml:"encoded"`
	PubDate     string         `xml:"pubDate"`
	Categories  []string       `xml:"category"`
	Thumbnails  []mediaRef     `xml:"thumbnail"`
	Media       []mediaRef     `xml:"content"`
	Enclosures  []rssEnclosure `xml:"enclosure"`
}

type mediaRef struct {
	URL string `xml:"url,attr"`
}

type rssEnclosure struct {
	URL  string `xml:"url,attr"`
	Type string `xml:"type,attr"`
}

var pubDateFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
}

// Parse extracts feed items from raw feed markup, preserving document
// order. Items with neither guid nor link are dropped: they cannot be
// deduplicated or indexed safely.
func Parse(body string) ([]domain.FeedItem, error) {
	dec := xml.NewDecoder(strings.NewReader(body))
	dec.Strict = false

	var doc rssDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	items := make([]domain.FeedItem, 0, len(doc.Items))
	for _, raw := range doc.Items {
		link := strings.TrimSpace(raw.Link)
		guid := strings.TrimSpace(raw.GUID)
		if guid == "" {
			guid = link
		}
		if guid == "" {
			continue
		}

		items = append(items, domain.FeedItem{
			GUID:        guid,
			Title:       StripMarkup(raw.Title),
			Description: StripMarkup(raw.Description),
			Link:        link,
			ImageURL:    extractImageURL(raw),
			Categories:  collectCategories(raw.Categories),
			PublishedAt: parsePubDate(raw.PubDate),
		})
	}

	return items, nil
}

// extractImageURL tries the media thumbnail, media content, an image-typed
// enclosure, then the first inline image in the body markup. First match
// wins.
func extractImageURL(item rssItem) *string {
	for _, t := range item.Thumbnails {
		if t.URL != "" {
			return &t.URL
		}
	}
	for _, m := range item.Media {
		if m.URL != "" {
			return &m.URL
		}
	}
	for _, e := range item.Enclosures {
		if e.URL != "" && strings.HasPrefix(strings.ToLower(e.Type), "image") {
			return &e.URL
		}
	}
	for _, markup := range []string{item.Description, item.Encoded} {
		if src := firstInlineImage(markup); src != "" {
			return &src
		}
	}
	return nil
}

func firstInlineImage(markup string) string {
	if !strings.Contains(markup, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return ""
	}
	return doc.Find("img").First().AttrOr("src", "")
}

func collectCategories(raw []string) []string {
	var categories []string
	seen := make(map[string]struct{})
	for _, c := range raw {
		c = StripMarkup(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		categories = append(categories, c)
	}
	return categories
}

func parsePubDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, format := range pubDateFormats {
		if t, err := time.Parse(format, raw); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}

// StripMarkup removes HTML tags and decodes entities from a text field.
// CDATA wrappers are already unwrapped by the XML decoder.
func StripMarkup(text string) string {
	if text == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return strings.TrimSpace(text)
	}
	clean := strings.ReplaceAll(doc.Text(), " ", " ")
	return strings.TrimSpace(clean)
}
