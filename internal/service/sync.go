package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"indexsync/internal/config"
	"indexsync/internal/domain"
	"indexsync/internal/feed"
)

// State-store keys used by the sync controller.
const (
	keyLastModified   = "last-modified"
	keyETag           = "etag"
	keyProcessedGUIDs = "processed-guids"
	keyResetFlag      = "reset-flag"
)

// Page fetches for different batch items are independent; keep a small
// bound so a large batch doesn't hammer the source site.
const enrichConcurrency = 5

// SyncService runs one incremental feed-to-index pass: fetch, parse, dedup
// against state, enrich a batch, push it, then commit state. Processed
// identifiers are committed only after a confirmed upsert, so a transient
// failure re-delivers the batch on the next run and idempotent upsert
// absorbs the duplicates.
type SyncService struct {
	fetcher   Fetcher
	enricher  Enricher
	index     ArticleIndex
	state     StateStore
	publisher Publisher
	logger    *slog.Logger
	config    config.SyncConfig
}

func NewSyncService(
	fetcher Fetcher,
	enricher Enricher,
	index ArticleIndex,
	state StateStore,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		fetcher:   fetcher,
		enricher:  enricher,
		index:     index,
		state:     state,
		publisher: publisher,
		logger:    logger.With("component", "sync"),
		config:    cfg,
	}
}

func (s *SyncService) Sync(ctx context.Context) (*domain.SyncStats, error) {
	startTime := time.Now()
	s.logger.Info("starting sync", "batch_size", s.config.BatchSize)

	if err := s.applyResetFlag(ctx); err != nil {
		return nil, err
	}

	lastModified, err := s.stateValue(ctx, keyLastModified)
	if err != nil {
		return nil, fmt.Errorf("read validators: %w", err)
	}
	etag, err := s.stateValue(ctx, keyETag)
	if err != nil {
		return nil, fmt.Errorf("read validators: %w", err)
	}

	doc, err := s.fetcher.Fetch(ctx, lastModified, etag)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	if doc.NotModified {
		s.logger.Info("feed not modified, skipping run")
		return &domain.SyncStats{NotModified: true, Duration: time.Since(startTime)}, nil
	}

	items, err := feed.Parse(doc.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	processed, err := s.loadProcessed(ctx)
	if err != nil {
		return nil, fmt.Errorf("load processed identifiers: %w", err)
	}

	processedSet := make(map[string]struct{}, len(processed))
	for _, guid := range processed {
		processedSet[guid] = struct{}{}
	}

	// Set difference in original feed order.
	var unprocessed []domain.FeedItem
	for _, item := range items {
		if _, ok := processedSet[item.GUID]; !ok {
			unprocessed = append(unprocessed, item)
		}
	}

	stats := &domain.SyncStats{
		Fetched: len(items),
		Skipped: len(items) - len(unprocessed),
	}

	if len(unprocessed) == 0 {
		if err := s.storeValidators(ctx, doc); err != nil {
			return stats, err
		}
		stats.Duration = time.Since(startTime)
		s.logger.Info("all items already processed", "fetched", stats.Fetched)
		return stats, nil
	}

	batch := unprocessed
	if len(batch) > s.config.BatchSize {
		batch = batch[:s.config.BatchSize]
	}

	s.enrichBatch(ctx, batch)

	if err := s.index.SaveItems(ctx, batch); err != nil {
		return nil, fmt.Errorf("push batch: %w", err)
	}

	guids := make([]string, len(batch))
	for i, item := range batch {
		guids[i] = item.GUID
	}

	if err := s.storeProcessed(ctx, append(processed, guids...)); err != nil {
		return nil, fmt.Errorf("commit processed identifiers: %w", err)
	}

	stats.Indexed = len(batch)
	stats.Remaining = len(unprocessed) - len(batch)

	// Persisting validators while a backlog remains would let a later 304
	// hide the unprocessed tail, so only store them once fully caught up.
	if stats.Remaining == 0 {
		if err := s.storeValidators(ctx, doc); err != nil {
			return stats, err
		}
	}

	if s.publisher != nil {
		payload := map[string]any{"count": len(guids), "guids": guids}
		if err := s.publisher.Publish(ctx, "articles.indexed", payload); err != nil {
			s.logger.Warn("failed to publish indexed event", "error", err)
		}
	}

	stats.Duration = time.Since(startTime)
	s.logger.Info("sync completed",
		"fetched", stats.Fetched,
		"skipped", stats.Skipped,
		"indexed", stats.Indexed,
		"remaining", stats.Remaining,
		"duration", stats.Duration,
	)

	return stats, nil
}

// applyResetFlag clears the processed set when a reset was requested. The
// stored validators go with it: a 304 on the next fetch would otherwise
// mask the reprocessing the caller asked for.
func (s *SyncService) applyResetFlag(ctx context.Context) error {
	flag, err := s.stateValue(ctx, keyResetFlag)
	if err != nil {
		return fmt.Errorf("read reset flag: %w", err)
	}
	if flag != "true" {
		return nil
	}

	s.logger.Info("reset flag detected, clearing processed identifiers")
	for _, key := range []string{keyProcessedGUIDs, keyResetFlag, keyLastModified, keyETag} {
		if err := s.state.Delete(ctx, key); err != nil {
			return fmt.Errorf("reset %s: %w", key, err)
		}
	}
	return nil
}

func (s *SyncService) enrichBatch(ctx context.Context, batch []domain.FeedItem) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)

	for i := range batch {
		g.Go(func() error {
			meta := s.enricher.Enrich(gctx, batch[i].Link)
			batch[i].Author = meta.Author
			batch[i].Tags = meta.Tags
			return nil
		})
	}

	_ = g.Wait()
}

func (s *SyncService) loadProcessed(ctx context.Context) ([]string, error) {
	raw, err := s.stateValue(ctx, keyProcessedGUIDs)
	if err != nil || raw == "" {
		return nil, err
	}

	var guids []string
	if err := json.Unmarshal([]byte(raw), &guids); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", keyProcessedGUIDs, err)
	}
	return guids, nil
}

func (s *SyncService) storeProcessed(ctx context.Context, guids []string) error {
	encoded, err := json.Marshal(guids)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", keyProcessedGUIDs, err)
	}
	return s.state.Put(ctx, keyProcessedGUIDs, string(encoded), 0)
}

func (s *SyncService) storeValidators(ctx context.Context, doc *domain.FeedDocument) error {
	if doc.LastModified != "" {
		if err := s.state.Put(ctx, keyLastModified, doc.LastModified, 0); err != nil {
			return fmt.Errorf("store last-modified: %w", err)
		}
	}
	if doc.ETag != "" {
		if err := s.state.Put(ctx, keyETag, doc.ETag, 0); err != nil {
			return fmt.Errorf("store etag: %w", err)
		}
	}
	return nil
}

// stateValue reads an optional key; absence is not an error.
func (s *SyncService) stateValue(ctx context.Context, key string) (string, error) {
	value, err := s.state.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil
	}
	return value, err
}
