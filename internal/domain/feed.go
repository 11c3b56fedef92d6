package domain

import "time"

// FeedItem is a single item extracted from the syndication feed, plus
// whatever the page enricher could recover. The GUID (falling back to the
// link) uniquely identifies the indexed record: re-pushing the same GUID is
// a pure overwrite.
type FeedItem struct {
	GUID        string
	Title       string
	Description string
	Link        string
	ImageURL    *string
	Author      *string
	Tags        []string
	Categories  []string
	PublishedAt time.Time
}

// FeedDocument is the outcome of a conditional feed fetch.
type FeedDocument struct {
	Body         string
	LastModified string
	ETag         string
	NotModified  bool
}

// Enrichment holds the secondary attributes pulled from an item's page.
// Enrichment is best-effort: a zero value is a valid result.
type Enrichment struct {
	Author *string
	Tags   []string
}

// SyncStats holds statistics about a single sync run.
type SyncStats struct {
	Fetched     int
	Skipped     int
	Indexed     int
	Remaining   int
	NotModified bool
	Duration    time.Duration
}
