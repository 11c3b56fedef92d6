package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"indexsync/internal/config"
	"indexsync/internal/domain"
)

// ListingService manages the classified-listing lifecycle: create, edit,
// delete, and the active -> expired transition. The search index holds the
// full record; the state store only carries a tracking entry per active
// listing so the sweep can find expirable candidates without scanning the
// index.
type ListingService struct {
	index     ListingIndex
	state     StateStore
	publisher Publisher
	logger    *slog.Logger
	config    config.ListingsConfig
}

func NewListingService(
	index ListingIndex,
	state StateStore,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.ListingsConfig,
) *ListingService {
	return &ListingService{
		index:     index,
		state:     state,
		publisher: publisher,
		logger:    logger.With("component", "listings"),
		config:    cfg,
	}
}

type CreateRequest struct {
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Category     string           `json:"category"`
	Subcategory  *string          `json:"subcategory"`
	Price        *float64         `json:"price"`
	PriceType    string           `json:"price_type"`
	Contact      *domain.Contact  `json:"contact"`
	Location     *domain.Location `json:"location"`
	Images       []string         `json:"images"`
	Tags         []string         `json:"tags"`
	Condition    *string          `json:"condition"`
	DurationDays int              `json:"duration_days"`
	Source       string           `json:"source"`
	TaskID       *string          `json:"task_id"`
}

type EditRequest struct {
	ClassifiedID string   `json:"classified_id"`
	Title        *string  `json:"title"`
	Description  *string  `json:"description"`
	Price        *float64 `json:"price"`
	PriceType    *string  `json:"price_type"`
	Condition    *string  `json:"condition"`
	Images       []string `json:"images"`
	Tags         []string `json:"tags"`
}

// Create validates, indexes, and starts tracking a new listing.
func (s *ListingService) Create(ctx context.Context, req *CreateRequest) (*domain.Listing, error) {
	var missing []string
	if req.Title == "" {
		missing = append(missing, "title")
	}
	if req.Description == "" {
		missing = append(missing, "description")
	}
	if req.Category == "" {
		missing = append(missing, "category")
	}
	if req.Contact == nil {
		missing = append(missing, "contact")
	}
	if req.Price == nil {
		missing = append(missing, "price")
	}
	if len(missing) > 0 {
		return nil, &domain.ValidationError{Missing: missing}
	}
	if *req.Price < 0 {
		return nil, &domain.ValidationError{Message: "price must be a non-negative number"}
	}

	now := time.Now().UTC()
	days := req.DurationDays
	if days <= 0 {
		days = s.config.DefaultDurationDays
	}
	expiresAt := now.AddDate(0, 0, days)

	priceType := domain.PriceType(req.PriceType)
	if priceType == "" {
		priceType = domain.PriceFixed
	}

	source := req.Source
	if source == "" {
		source = "webhook"
	}

	contact := *req.Contact
	contact.Name = domain.SanitizeText(contact.Name)
	if contact.PreferredMethod == "" {
		contact.PreferredMethod = "email"
	}

	listing := &domain.Listing{
		ObjectID:    domain.NewListingID(),
		Title:       domain.SanitizeText(req.Title),
		Description: domain.SanitizeText(req.Description),
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Price:       *req.Price,
		PriceType:   priceType,
		Contact:     contact,
		Images:      req.Images,
		Tags:        req.Tags,
		Condition:   conditionPtr(req.Condition),
		Status:      domain.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   expiresAt,
		Source:      source,
		TaskID:      req.TaskID,
	}
	if req.Location != nil {
		listing.Location = *req.Location
	}
	// The site serves one region; submissions rarely bother with the state.
	if listing.Location.State == "" {
		listing.Location.State = "NC"
	}

	if err := s.index.Save(ctx, listing); err != nil {
		return nil, fmt.Errorf("index listing: %w", err)
	}

	if err := s.putTrackingEntry(ctx, listing); err != nil {
		return nil, fmt.Errorf("track listing %s: %w", listing.ObjectID, err)
	}

	s.publish(ctx, "listing.created", listing.ObjectID)
	s.logger.Info("listing created",
		"id", listing.ObjectID,
		"category", listing.Category,
		"expires_at", listing.ExpiresAt,
	)

	return listing, nil
}

// Edit merges only the supplied fields over the existing record. The
// tracking entry is untouched: edits do not move expiration.
func (s *ListingService) Edit(ctx context.Context, req *EditRequest) (*domain.Listing, error) {
	if req.ClassifiedID == "" {
		return nil, &domain.ValidationError{Message: "missing classified_id"}
	}
	if req.Price != nil && *req.Price < 0 {
		return nil, &domain.ValidationError{Message: "price must be a non-negative number"}
	}

	listing, err := s.index.Get(ctx, req.ClassifiedID)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}

	if req.Title != nil {
		listing.Title = domain.SanitizeText(*req.Title)
	}
	if req.Description != nil {
		listing.Description = domain.SanitizeText(*req.Description)
	}
	if req.Price != nil {
		listing.Price = *req.Price
	}
	if req.PriceType != nil {
		listing.PriceType = domain.PriceType(*req.PriceType)
	}
	if req.Condition != nil {
		listing.Condition = conditionPtr(req.Condition)
	}
	if req.Images != nil {
		listing.Images = req.Images
	}
	if req.Tags != nil {
		listing.Tags = req.Tags
	}
	listing.UpdatedAt = time.Now().UTC()

	if err := s.index.Save(ctx, listing); err != nil {
		return nil, fmt.Errorf("index listing: %w", err)
	}

	s.publish(ctx, "listing.updated", listing.ObjectID)
	s.logger.Info("listing updated", "id", listing.ObjectID)

	return listing, nil
}

// Delete removes the record and its tracking entry. Deleting an absent
// listing is not an error.
func (s *ListingService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return &domain.ValidationError{Message: "missing classified_id"}
	}

	if err := s.index.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	if err := s.state.Delete(ctx, domain.TrackingKey(id)); err != nil {
		return fmt.Errorf("delete tracking entry: %w", err)
	}

	s.publish(ctx, "listing.deleted", id)
	s.logger.Info("listing deleted", "id", id)
	return nil
}

// ExpireOne transitions a listing to expired and stops tracking it. The
// index record is kept, marked expired. Re-expiring an already-expired
// record is a harmless overwrite, which makes a half-completed earlier
// expire (record written, tracking entry left behind) safe to retry.
func (s *ListingService) ExpireOne(ctx context.Context, id string) error {
	listing, err := s.index.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch listing: %w", err)
	}

	listing.Status = domain.StatusExpired
	listing.UpdatedAt = time.Now().UTC()

	if err := s.index.Save(ctx, listing); err != nil {
		return fmt.Errorf("index listing: %w", err)
	}
	if err := s.state.Delete(ctx, domain.TrackingKey(id)); err != nil {
		return fmt.Errorf("delete tracking entry: %w", err)
	}

	s.publish(ctx, "listing.expired", id)
	s.logger.Info("listing expired", "id", id)
	return nil
}

// Sweep scans the tracking entries and expires every listing whose
// expiration is in the past. Entries are processed independently: a
// failure is logged, its identifier omitted from the result, and its
// tracking entry left in place for the next sweep.
func (s *ListingService) Sweep(ctx context.Context) ([]string, error) {
	entries, err := s.state.List(ctx, domain.TrackingPrefix)
	if err != nil {
		return nil, fmt.Errorf("list tracking entries: %w", err)
	}

	now := time.Now().UTC()
	expired := make([]string, 0)

	for key, raw := range entries {
		var entry domain.TrackingEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			s.logger.Error("malformed tracking entry", "key", key, "error", err)
			continue
		}
		if !now.After(entry.ExpiresAt) {
			continue
		}
		if err := s.ExpireOne(ctx, entry.ID); err != nil {
			s.logger.Error("failed to expire listing", "id", entry.ID, "error", err)
			continue
		}
		expired = append(expired, entry.ID)
	}

	s.logger.Info("sweep completed", "scanned", len(entries), "expired", len(expired))
	return expired, nil
}

func (s *ListingService) putTrackingEntry(ctx context.Context, listing *domain.Listing) error {
	entry := domain.TrackingEntry{
		ID:        listing.ObjectID,
		ExpiresAt: listing.ExpiresAt,
		Category:  listing.Category,
		Title:     listing.Title,
		TaskID:    listing.TaskID,
	}
	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal tracking entry: %w", err)
	}
	return s.state.Put(ctx, domain.TrackingKey(listing.ObjectID), string(encoded), time.Until(listing.ExpiresAt))
}

func (s *ListingService) publish(ctx context.Context, action, id string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, action, map[string]any{"id": id}); err != nil {
		s.logger.Warn("failed to publish event", "action", action, "id", id, "error", err)
	}
}

func conditionPtr(raw *string) *domain.Condition {
	if raw == nil || *raw == "" {
		return nil
	}
	c := domain.Condition(*raw)
	return &c
}
