// Package app wires configuration into a ready sync service for both binaries.
package app

import (
	"context"
	"io"
	"log"

	"github.com/feedsync/backend/config"
	"github.com/feedsync/backend/internal/domain"
	"github.com/feedsync/backend/internal/infrastructure/cache"
	"github.com/feedsync/backend/internal/infrastructure/events"
	"github.com/feedsync/backend/internal/infrastructure/feed"
	"github.com/feedsync/backend/internal/infrastructure/shopify"
	"github.com/feedsync/backend/internal/infrastructure/store"
	"github.com/feedsync/backend/internal/usecase"
)

// App owns the sync service and the connections behind it
type App struct {
	Sync *usecase.SyncService

	closers []io.Closer
}

// New builds every dependency named by cfg. On error, whatever was opened is closed again.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	feedReader := feed.NewReader(cfg.Feed.Timeout)
	feedReader.SetDebug(cfg.Sync.Debug)

	catalog := shopify.NewClient(shopify.Options{
		BaseURL:           cfg.Shopify.ShopBaseURL(),
		APIVersion:        cfg.Shopify.APIVersion,
		AccessToken:       cfg.Shopify.AccessToken,
		RequestsPerSecond: cfg.Sync.RequestsPerSecond,
		MaxAttempts:       cfg.Sync.MaxAttempts,
		BackoffBase:       cfg.Sync.BackoffBase,
		BackoffMax:        cfg.Sync.BackoffMax,
	})
	catalog.SetDebug(cfg.Sync.Debug)
	log.Printf("Shop: %s (API %s, %.1f req/s)", cfg.Shopify.ShopBaseURL(), cfg.Shopify.APIVersion, cfg.Sync.RequestsPerSecond)

	fingerprints, err := a.newCache(ctx, cfg)
	if err != nil {
		return nil, err
	}

	runs, err := a.newStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	publisher, err := a.newPublisher(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Sync = usecase.NewSyncService(
		feedReader,
		catalog,
		fingerprints,
		runs,
		publisher,
		usecase.SyncServiceConfig{
			FeedURL:        cfg.Feed.URL,
			BatchSize:      cfg.Sync.BatchSize,
			BatchPause:     cfg.Sync.BatchPause,
			SkipUnchanged:  cfg.Sync.SkipUnchanged,
			FingerprintTTL: cfg.Sync.FingerprintTTL,
			Grouping: usecase.GrouperOptions{
				DefaultColor:   cfg.Catalog.DefaultColor,
				VendorFallback: cfg.Catalog.VendorFallback,
				TypeFallback:   cfg.Catalog.TypeFallback,
				GroupByFinish:  cfg.Catalog.GroupByFinish,
			},
			Reconcile: usecase.ReconcilerOptions{
				OptionNames: usecase.OptionNames{
					Color:  cfg.Catalog.OptionNames.Color,
					Size:   cfg.Catalog.OptionNames.Size,
					Finish: cfg.Catalog.OptionNames.Finish,
				},
				OpenTag:         cfg.Catalog.OpenTag,
				ClosedTag:       cfg.Catalog.ClosedTag,
				CleanupImages:   cfg.Sync.CleanupImages,
				CleanupVariants: cfg.Sync.CleanupVariants,
				Publish:         cfg.Sync.Publish,
			},
		},
	)

	log.Printf("Sync: batch=%d pause=%v cleanup_images=%v cleanup_variants=%v publish=%v skip_unchanged=%v",
		cfg.Sync.BatchSize, cfg.Sync.BatchPause, cfg.Sync.CleanupImages, cfg.Sync.CleanupVariants,
		cfg.Sync.Publish, cfg.Sync.SkipUnchanged)
	return a, nil
}

func (a *App) newCache(ctx context.Context, cfg *config.Config) (domain.CacheRepository, error) {
	if cfg.Cache.Type == "redis" {
		c, err := cache.NewRedisCache(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, c)
		log.Printf("Cache Type: redis")
		return c, nil
	}

	c := cache.NewMemoryCache(0)
	a.closers = append(a.closers, c)
	log.Printf("Cache Type: memory")
	return c, nil
}

func (a *App) newStore(ctx context.Context, cfg *config.Config) (domain.RunRepository, error) {
	if cfg.Store.Driver == "" || cfg.Store.Driver == "none" {
		log.Printf("Run store: disabled")
		return store.NopStore{}, nil
	}

	s, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, s)
	return s, nil
}

func (a *App) newPublisher(cfg *config.Config) (domain.EventPublisher, error) {
	if len(cfg.Events.Brokers) == 0 {
		return events.LogPublisher{}, nil
	}

	p, err := events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic)
	if err != nil {
		return nil, err
	}
	p.SetDebug(cfg.Sync.Debug)
	a.closers = append(a.closers, p)
	return p, nil
}

// Close releases connections in reverse order of creation
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Printf("Failed to close %T: %v", a.closers[i], err)
		}
	}
	a.closers = nil
}
