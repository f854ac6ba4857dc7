// Package app wires configuration into a ready offers function.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"offers-function/internal/cache"
	"offers-function/internal/config"
	"offers-function/internal/database"
	"offers-function/internal/events"
	"offers-function/internal/features"
	"offers-function/internal/handler"
	"offers-function/internal/service"
	"offers-function/internal/tracing"
)

// App owns the long-lived resources behind the function.
type App struct {
	Handler *handler.Handler
	DB      *database.DB

	events  *events.Manager
	closers []func() error
}

// New builds an App from cfg. Call Close to release its resources.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{}

	// An unsupported DSN is reported by NewDB below.
	dialect, _ := database.DetectDialect(cfg.Database.URL)
	if _, err := tracing.InitTracing(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Environment: cfg.AppEnv,
		Dialect:     string(dialect),
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.closers = append(a.closers, func() error { return tracing.Shutdown(context.Background()) })

	db, err := database.NewDB(ctx, cfg.Database.URL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)

	if cfg.Database.AutoSchema {
		if err := db.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	flags := features.Defaults(cfg.Cache.Enabled, cfg.Events.Enabled)
	if unknown := flags.Apply(cfg.Features); len(unknown) > 0 {
		log.Warn().Strs("flags", unknown).Msg("ignoring unknown feature flags")
	}

	var c cache.Cache
	if cfg.Cache.Enabled {
		c, err = newCache(ctx, cfg.Cache, log)
		if err != nil {
			// The listing is still served from the database.
			log.Warn().Err(err).Msg("offers cache unavailable, serving without cache")
			flags.Disable(features.FeatureCacheEnabled)
			c = nil
		}
		if rc, ok := c.(*cache.RedisCache); ok {
			a.closers = append(a.closers, rc.Close)
		}
	}

	a.events = events.NewManager(flags.IsEnabled(features.FeatureEventHooksEnabled), log)
	a.events.Subscribe(events.EventOfferCreated, events.LogSubscriber(log))
	a.events.Subscribe(events.EventOfferDeleted, events.LogSubscriber(log))
	a.events.Subscribe(events.EventOfferViewed, events.LogSubscriber(log))

	svc := service.NewService(service.FromDB(db), service.Options{
		Cache:    c,
		CacheTTL: cfg.Cache.TTL(),
		Features: flags,
		Events:   a.events,
		Log:      log,
	})

	a.Handler = handler.NewHandler(svc, cfg.Security.AdminSecret, log)

	enabled := zerolog.Dict()
	for name, flag := range flags.GetAll() {
		enabled.Bool(name, flag.Enabled)
	}
	log.Info().
		Str("dialect", string(db.Dialect())).
		Dict("features", enabled).
		Bool("events", a.events.Enabled()).
		Bool("tracing", cfg.Tracing.Enabled).
		Msg("offers function initialized")

	return a, nil
}

func newCache(ctx context.Context, cfg config.CacheConfig, log zerolog.Logger) (cache.Cache, error) {
	if cfg.RedisAddr == "" {
		log.Info().Msg("using in-memory offers cache")
		return cache.NewInMemoryCache(), nil
	}

	rc, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "offers-function:")
	if err != nil {
		return nil, err
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("using Redis offers cache")
	return rc, nil
}

// Close waits for event handlers and releases resources in reverse order.
func (a *App) Close() error {
	if a.events != nil {
		a.events.Shutdown()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
