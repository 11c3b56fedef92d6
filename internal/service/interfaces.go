package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"indexsync/internal/domain"
)

// StateStore is the durable key-value store holding all cross-invocation
// bookkeeping. Get returns domain.ErrNotFound for absent (or expired) keys;
// a zero ttl on Put means no expiry. List must include lapsed entries, the
// expiration sweep acts on exactly those.
type StateStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) (map[string]string, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, lastModified, etag string) (*domain.FeedDocument, error)
}

type Enricher interface {
	Enrich(ctx context.Context, link string) domain.Enrichment
}

type ArticleIndex interface {
	SaveItems(ctx context.Context, items []domain.FeedItem) error
}

type ListingIndex interface {
	Save(ctx context.Context, listing *domain.Listing) error
	Get(ctx context.Context, id string) (*domain.Listing, error)
	Delete(ctx context.Context, id string) error
}

type Publisher interface {
	Publish(ctx context.Context, action string, payload any) error
	Close() error
}
