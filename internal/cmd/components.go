package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/shoplens/shoplens/internal/config"
	"github.com/shoplens/shoplens/internal/core"
	"github.com/shoplens/shoplens/internal/core/cache"
	"github.com/shoplens/shoplens/internal/core/executor"
	"github.com/shoplens/shoplens/internal/core/notify"
	"github.com/shoplens/shoplens/internal/core/plans"
	"github.com/shoplens/shoplens/internal/core/store"
	"github.com/shoplens/shoplens/internal/server/handlers"
)

// components bundles the access layer built from configuration: the
// libsql-backed store, plan registry, notifier, response cache, and the
// executor. The executor is nil when no shop credentials are configured;
// everything else still works (plan management, notifications, cache
// administration).
type components struct {
	Store    *store.Store
	Registry *plans.Registry
	Notifier *notify.Notifier
	Cache    *cache.Cache
	Executor *executor.Executor

	// DefaultTTL applies when caching is requested without an explicit TTL.
	DefaultTTL time.Duration
}

// buildComponents opens the store and assembles the access layer. The
// active plan is restored from the settings table when present, falling
// back to the configured tier.
func buildComponents(ctx context.Context) (*components, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	persistence := db.Persistence()

	notifier := notify.New(
		notify.WithMaxNotifications(cfg.Notifications.Max),
		notify.WithPersistence(persistence),
	)

	plan := core.Plan(cfg.Plan.Tier)
	if persisted, err := db.GetSetting(ctx, "plan"); err == nil && persisted != "" {
		plan = core.Plan(persisted)
	}

	registry, err := plans.NewRegistry(plan, notifier)
	if err != nil {
		// A stale or hand-edited setting should not brick the CLI.
		registry, err = plans.NewRegistry(core.Plan(cfg.Plan.Tier), notifier)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	responseCache := cache.New(cache.Options{
		MaxEntries:    cfg.Cache.MaxEntries,
		Shards:        cfg.Cache.Shards,
		SweepInterval: cfg.Cache.SweepInterval,
		Persistence:   persistence,
	})

	c := &components{
		Store:      db,
		Registry:   registry,
		Notifier:   notifier,
		Cache:      responseCache,
		DefaultTTL: cfg.Cache.DefaultTTL,
	}

	if cfg.Shopify.Shop != "" && cfg.Shopify.AccessToken != "" {
		exec, err := executor.New(executor.Config{
			Shop:        cfg.Shopify.Shop,
			APIVersion:  cfg.Shopify.APIVersion,
			AccessToken: cfg.Shopify.AccessToken,
			Storefront:  cfg.Shopify.Storefront,
		}, registry, notifier, responseCache)
		if err != nil {
			c.Close()
			return nil, err
		}
		if cfg.Shopify.MaxAttempts > 0 {
			exec.MaxAttempts = cfg.Shopify.MaxAttempts
		}
		c.Executor = exec
	}

	return c, nil
}

// API exposes the components over the HTTP surface.
func (c *components) API() *handlers.API {
	return &handlers.API{
		Executor:   c.Executor,
		Cache:      c.Cache,
		Notifier:   c.Notifier,
		Registry:   c.Registry,
		Store:      c.Store,
		DefaultTTL: c.DefaultTTL,
	}
}

// Close snapshots the cache and releases the store connection.
func (c *components) Close() {
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}
