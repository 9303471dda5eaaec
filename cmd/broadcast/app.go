package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/whatsapp-broadcast/internal/audit"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/cache"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/client"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/config"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/metrics"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/personalize"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/phone"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/queue"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/repo"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/service"
)

// app is the wired process: stores, channels and the broadcaster.
type app struct {
	cfg         *config.Config
	audit       *audit.Log
	live        service.Channel
	broadcaster *service.Broadcaster
	registry    *prometheus.Registry

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	var pg *sql.DB
	if cfg.Database.PostgresURL != "" {
		pg, err = repo.OpenPostgres(ctx, cfg.Database.PostgresURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
	}

	store, err := a.auditStore(ctx, pg)
	if err != nil {
		return nil, err
	}
	a.audit = audit.New(store, cfg.Audit.MaxEntries)

	recipients, err := recipientRepo(ctx, cfg, pg)
	if err != nil {
		return nil, err
	}

	a.live = liveChannel(cfg)
	dry := client.NewSimulated(cfg.Channel.DryRunSuccessRate, cfg.Channel.DryRunDelay)

	a.broadcaster, err = service.NewBroadcaster(service.Deps{
		Recipients: recipients,
		Builder:    queue.NewBuilder(phone.NewNormalizer(cfg.Broadcast.CountryCode), personalize.New()),
		Audit:      a.audit,
		Live:       a.live,
		DryRun:     dry,
		Defaults: service.Defaults{
			Interval:    cfg.Broadcast.Interval,
			Jitter:      cfg.Broadcast.Jitter,
			SendTimeout: cfg.Broadcast.SendTimeout,
			DryRun:      cfg.Channel.DryRun,
		},
	})
	if err != nil {
		return nil, err
	}

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(a.registry)
	a.audit.OnRecord(m.ObserveAudit)
	a.broadcaster.Subscribe(m.Observe)

	slog.Info("broadcast app wired",
		"audit_store", cfg.Audit.Store,
		"channel", a.live.Name(),
		"dry_run", cfg.Channel.DryRun,
		"postgres", pg != nil,
		"redis", cfg.Redis.Enabled,
	)
	return a, nil
}

func (a *app) auditStore(ctx context.Context, pg *sql.DB) (audit.Store, error) {
	cfg := a.cfg
	switch cfg.Audit.Store {
	case config.AuditStoreMemory:
		return audit.NewMemoryStore(), nil

	case config.AuditStoreSQLite:
		db, err := repo.OpenSQLite(cfg.Audit.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		s := repo.NewSQLiteAuditStore(db)
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return s, nil

	case config.AuditStoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return cache.NewRedisAuditStore(rdb, cfg.Redis.Key), nil

	case config.AuditStorePostgres:
		if pg == nil {
			return nil, errors.New("postgres audit store requires POSTGRES_URL")
		}
		s := repo.NewPostgresAuditStore(pg)
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown audit store %q", cfg.Audit.Store)
}

func recipientRepo(ctx context.Context, cfg *config.Config, pg *sql.DB) (repo.RecipientRepository, error) {
	if pg == nil {
		return repo.NewJSONRecipientRepo(cfg.Recipients.File), nil
	}
	r := repo.NewPostgresRecipientRepo(pg)
	if err := r.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func liveChannel(cfg *config.Config) service.Channel {
	if cfg.Channel.Kind == config.ChannelWebhook {
		return client.NewWebhook(cfg.Channel.WebhookURL)
	}
	return client.NewDeepLink()
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
