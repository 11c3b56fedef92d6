package search

import (
	"context"

	"indexsync/internal/domain"
)

// Articles is the typed view of the article index used by the feed sync.
type Articles struct {
	client *Client
}

func NewArticles(client *Client) *Articles {
	return &Articles{client: client}
}

// SaveItems upserts the batch in one call, create-or-update per record.
func (a *Articles) SaveItems(ctx context.Context, items []domain.FeedItem) error {
	records := make([]any, 0, len(items))
	for _, item := range items {
		records = append(records, articleRecord(item))
	}
	return a.client.SaveObjects(ctx, records)
}

func articleRecord(item domain.FeedItem) map[string]any {
	return map[string]any{
		"objectID":    item.GUID,
		"title":       item.Title,
		"description": item.Description,
		"url":         item.Link,
		"image":       item.ImageURL,
		"author":      item.Author,
		"tags":        item.Tags,
		"categories":  item.Categories,
		"publishedAt": item.PublishedAt.UnixMilli(),
	}
}

// Listings is the typed view of the classifieds index used by the
// lifecycle manager.
type Listings struct {
	client *Client
}

func NewListings(client *Client) *Listings {
	return &Listings{client: client}
}

func (l *Listings) Save(ctx context.Context, listing *domain.Listing) error {
	return l.client.SaveObject(ctx, listing.ObjectID, listing)
}

func (l *Listings) Get(ctx context.Context, id string) (*domain.Listing, error) {
	var listing domain.Listing
	if err := l.client.GetObject(ctx, id, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

func (l *Listings) Delete(ctx context.Context, id string) error {
	return l.client.DeleteObject(ctx, id)
}
