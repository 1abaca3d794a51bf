package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fitspo-feed/config"
	"fitspo-feed/feed"
	"fitspo-feed/feed/inmemoryimpl"
	"fitspo-feed/feed/mongoimpl"
	"fitspo-feed/feed/redisimpl"
	"fitspo-feed/feed/sqliteimpl"

	"github.com/redis/go-redis/v9"
)

// App wires the storage backend chosen by config to the feed services.
type App struct {
	Config    config.Config
	Logger    *slog.Logger
	Manager   feed.Manager
	Hot       *feed.HotPaginator
	Ranks     *feed.RankCache
	Paginator *feed.Paginator
	Explorer  *feed.Explorer

	closers []func(context.Context) error
}

func NewApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	var snapshots feed.SnapshotStore
	switch cfg.Storage.Mode {
	case config.ModeInMemory:
		app.Manager = inmemoryimpl.NewInMemoryManager()
	case config.ModeSQLite:
		m, err := sqliteimpl.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		app.onClose(func(context.Context) error { return m.Close() })
		app.Manager = m
	case config.ModeMongo, config.ModeCached:
		m, err := mongoimpl.NewMongoManager(ctx, cfg.Storage.MongoURL, cfg.Storage.MongoDB)
		if err != nil {
			return nil, err
		}
		app.onClose(m.Close)
		app.Manager = m
		if cfg.Storage.Mode == config.ModeCached {
			client, err := newRedisClient(cfg.Storage.RedisURL)
			if err != nil {
				_ = app.Close(ctx)
				return nil, err
			}
			app.onClose(func(context.Context) error { return client.Close() })
			app.Manager = redisimpl.NewRedisManager(client, m)
			snapshots = redisimpl.NewRankSnapshots(client)
		}
	default:
		return nil, fmt.Errorf("unknown storage mode %q", cfg.Storage.Mode)
	}

	loc := cfg.Feed.Location()
	app.Hot = feed.NewHotPaginator(app.Manager,
		feed.WithLocation(loc),
		feed.WithMaxBatches(cfg.Feed.MaxBatches),
		feed.WithHotFetchTimeout(cfg.Feed.FetchTimeout),
		feed.WithHotLogger(logger),
	)
	rankOpts := []feed.RankOption{
		feed.WithRankLocation(loc),
		feed.WithRankLimit(cfg.Feed.RankLimit),
		feed.WithRankPageSize(cfg.Feed.RankPageSize),
		feed.WithRefreshTimeout(cfg.Feed.RefreshTimeout),
		feed.WithRankLogger(logger),
	}
	if snapshots != nil {
		rankOpts = append(rankOpts, feed.WithSnapshots(snapshots))
	}
	app.Ranks = feed.NewRankCache(app.Hot, rankOpts...)
	app.Paginator = feed.NewPaginator(app.Manager, cfg.Feed.FetchTimeout)
	app.Explorer = feed.NewExplorer(app.Paginator)

	logger.Info("feed services ready", "storage", cfg.Storage.Mode, "timezone", loc.String())
	return app, nil
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases storage connections in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newRedisClient(url string) (*redis.Client, error) {
	if strings.HasPrefix(url, "redis://") || strings.HasPrefix(url, "rediss://") {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: url}), nil
}
