package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"

	"cleanplate/internal/client"
	"cleanplate/internal/establishment/service"
	"cleanplate/internal/establishment/store"
	"cleanplate/internal/favorites"
	"cleanplate/internal/platform/config"
	"cleanplate/internal/platform/metrics"
	platformredis "cleanplate/internal/platform/redis"
	"cleanplate/internal/session"
	"cleanplate/internal/session/securestore"
	"cleanplate/pkg/platform/circuit"
)

// app holds the wired dependencies shared by every command.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	client    *client.Client
	service   *service.Service
	session   *session.Manager
	favorites *favorites.Store

	redis   *platformredis.Client
	closers []func() error
}

// newApp wires the client, cache, session and favorites from cfg. secrets
// overrides the secure store; nil selects Redis when configured, else memory.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger, secrets session.SecureStore) (a *app, err error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	a = &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  metrics.New(registry),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.client, err = client.New(client.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
		Retry: client.RetryPolicy{
			MaxRetries:     cfg.API.MaxRetries,
			InitialBackoff: cfg.API.InitialBackoff,
			MaxBackoff:     cfg.API.MaxBackoff,
		},
		TLS: client.TLSConfig{Pins: cfg.API.Pins},
	},
		client.WithLogger(logger),
		client.WithMetrics(a.metrics),
		client.WithBreaker(circuit.New("lookup-api")),
		client.WithTracer(otel.Tracer("cleanplate")),
	)
	if err != nil {
		return nil, err
	}

	a.redis, err = platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if a.redis != nil {
		a.closers = append(a.closers, a.redis.Close)
	}

	cache, err := a.openCache(ctx)
	if err != nil {
		return nil, err
	}
	a.service, err = service.New(a.client, cache, service.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	if secrets == nil {
		secrets = a.secureStore()
	}
	a.session, err = session.New(a.client, secrets,
		session.WithLogger(logger),
		session.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, err
	}
	a.favorites, err = favorites.New(a.client, a.session,
		favorites.WithLogger(logger),
		favorites.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, err
	}
	a.session.AttachFavorites(a.favorites)

	if _, err := a.session.Restore(ctx); err != nil {
		logger.WarnContext(ctx, "restoring session failed", "error", err)
	}
	return a, nil
}

func (a *app) openCache(ctx context.Context) (service.Cache, error) {
	ttl := a.cfg.Cache.TTL
	switch a.cfg.Cache.Backend {
	case "", "memory":
		return store.NewInMemoryCache(ttl, a.metrics), nil
	case "redis":
		if a.redis == nil {
			return nil, errors.New("cache backend redis requires REDIS_URL")
		}
		return store.NewRedisCache(a.redis.Client, ttl, a.metrics), nil
	case "postgres":
		db, err := store.OpenPostgres(ctx, a.cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		cache := store.NewPostgresCache(db, ttl, a.metrics)
		if err := cache.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return cache, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", a.cfg.Cache.Backend)
	}
}

func (a *app) secureStore() session.SecureStore {
	if a.redis != nil {
		return securestore.NewRedis(a.redis.Client)
	}
	a.logger.Debug("no redis configured, credentials last for this process only")
	return securestore.NewMemory()
}

// Close waits for favorites syncs, then releases connections.
func (a *app) Close() error {
	if a.favorites != nil {
		a.favorites.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
