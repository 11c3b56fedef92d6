package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"indexsync/internal/config"
	"indexsync/internal/enrich"
	"indexsync/internal/feed"
	"indexsync/internal/publisher"
	"indexsync/internal/scheduler"
	"indexsync/internal/search"
	"indexsync/internal/server"
	"indexsync/internal/service"
	"indexsync/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	state := postgres.NewStateStore(db)
	if err := state.EnsureSchema(context.Background()); err != nil {
		logger.Error("failed to ensure state schema", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to state store")

	var pub service.Publisher
	if cfg.RabbitMQ.URL != "" {
		rmq, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rmq.Close()
		pub = rmq
	} else {
		logger.Info("rabbitmq not configured, event publishing disabled")
	}

	articles := search.NewArticles(search.NewClient(search.Config{
		AppID:   cfg.Algolia.AppID,
		APIKey:  cfg.Algolia.APIKey,
		Index:   cfg.Algolia.ArticlesIndex,
		Timeout: cfg.Algolia.Timeout,
	}, logger))
	classifieds := search.NewListings(search.NewClient(search.Config{
		AppID:   cfg.Algolia.AppID,
		APIKey:  cfg.Algolia.APIKey,
		Index:   cfg.Algolia.ClassifiedsIndex,
		Timeout: cfg.Algolia.Timeout,
	}, logger))

	fetcher := feed.NewFetcher(feed.FetcherConfig{
		URL:     cfg.Feed.URL,
		Timeout: cfg.Feed.Timeout,
	}, logger)
	enricher := enrich.New(cfg.Feed.Timeout, logger)

	syncService := service.NewSyncService(fetcher, enricher, articles, state, pub, logger, cfg.Sync)
	listingService := service.NewListingService(classifieds, state, pub, logger, cfg.Listings)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.New(listingService, cfg.Listings.WebhookSecret, logger).Handler(),
	}

	syncJob := scheduler.New("feed-sync", cfg.Sync.Interval, cfg.Sync.RunTimeout, func(ctx context.Context) error {
		_, err := syncService.Sync(ctx)
		return err
	}, logger)
	// Lapsed tracking entries must outlive a few sweep rounds so a failed
	// expire can be retried before its row is reaped.
	purgeGrace := 3 * cfg.Sweep.Interval
	sweepJob := scheduler.New("expiration-sweep", cfg.Sweep.Interval, cfg.Sweep.RunTimeout, func(ctx context.Context) error {
		if _, err := listingService.Sweep(ctx); err != nil {
			return err
		}
		_, err := state.PurgeExpired(ctx, purgeGrace)
		return err
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting indexsync",
		"feed_url", cfg.Feed.URL,
		"sync_interval", cfg.Sync.Interval,
		"sweep_interval", cfg.Sweep.Interval,
		"addr", cfg.Server.Addr,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return syncJob.Start(gctx)
	})
	g.Go(func() error {
		return sweepJob.Start(gctx)
	})
	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("shutdown with error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
