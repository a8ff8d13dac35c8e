package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/cache"
	"github.com/goliatone/go-accounts/config"
	"github.com/goliatone/go-accounts/metrics"
	"github.com/goliatone/go-accounts/notify"
	"github.com/goliatone/go-accounts/persistence"
)

// app holds the wired service dependencies
type app struct {
	cfg        *config.Config
	logger     accounts.Logger
	db         *bun.DB
	registry   *prometheus.Registry
	dispatcher *accounts.AsyncDispatcher
	lifecycle  *accounts.Lifecycle
	closers    []func() error
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   accounts.NewSlogLogger(log),
		registry: prometheus.NewRegistry(),
	}

	db, err := persistence.Open(ctx, persistence.Config{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	userCache, err := a.userCache(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	notifier, published, err := a.notifier()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.dispatcher = accounts.NewAsyncDispatcher(notifier, a.logger)

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	counters, err := metrics.NewActivity(a.registry)
	if err != nil {
		a.Close()
		return nil, err
	}
	activity := accounts.MultiActivitySink{counters, published}

	store := accounts.NewCredentialStore(db,
		accounts.WithUserCache(userCache),
		accounts.WithStoreLogger(a.logger),
	)
	a.lifecycle = accounts.NewLifecycle(store,
		accounts.WithPolicy(cfg.Policy()),
		accounts.WithLogger(a.logger),
		accounts.WithNoticeDispatcher(a.dispatcher),
		accounts.WithActivitySink(activity),
		accounts.WithHashidUserIDs(cfg.Accounts.HashidUserIDs),
	)
	return a, nil
}

func (a *app) userCache(ctx context.Context) (accounts.UserCache, error) {
	rc := a.cfg.Redis
	if rc.Address == "" {
		return accounts.NewMemoryUserCache(), nil
	}

	client, err := cache.Dial(ctx, cache.Options{
		Addr:     rc.Address,
		Username: rc.Username,
		Password: rc.Password,
		DB:       rc.DB,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	a.logger.Info("using redis user cache", "address", rc.Address)
	return cache.New(client, cache.WithTTL(rc.TTL), cache.WithLogger(a.logger)), nil
}

// notifier returns the notice sink and, when RabbitMQ is configured, an
// activity sink publishing on the same channel.
func (a *app) notifier() (accounts.Notifier, accounts.ActivitySink, error) {
	mq := a.cfg.RabbitMQ
	if mq.URL == "" {
		return accounts.LogNotifier{Logger: a.logger}, nil, nil
	}

	conn, err := notify.Dial(mq.URL, mq.Exchange)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, conn.Close)
	a.logger.Info("publishing notices to rabbitmq", "exchange", mq.Exchange)
	return notify.New(conn.Channel(), notify.WithExchange(mq.Exchange)),
		notify.NewActivityPublisher(conn.Channel(), notify.WithActivityExchange(mq.Exchange)),
		nil
}

// Close waits for pending notices and releases connections in reverse order
func (a *app) Close() {
	if a.dispatcher != nil {
		a.dispatcher.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
