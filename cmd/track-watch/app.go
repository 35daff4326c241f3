package main

import (
	"context"
	"log/slog"

	"github.com/BearBump/TrackSync/config"
	"github.com/BearBump/TrackSync/internal/broker/kafka"
	"github.com/BearBump/TrackSync/internal/cache/rediscache"
	"github.com/BearBump/TrackSync/internal/integrations/backend"
	"github.com/BearBump/TrackSync/internal/integrations/backend/mock"
	"github.com/BearBump/TrackSync/internal/integrations/backend/resthttp"
	"github.com/BearBump/TrackSync/internal/services/poller"
	"github.com/BearBump/TrackSync/internal/services/watch"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

type watchFactories struct {
	newClock  func() clockwork.Clock
	newSource func(cfg *config.Config, clk clockwork.Clock) backend.Source
	// nil limiter: Redis не настроен, опрос без лимита
	newRateLimiter func(cfg *config.Config) (rl poller.RateLimiter, closeFn func())
	// nil producer: зеркалирование в Kafka выключено
	newProducer func(cfg *config.Config) (p watch.Producer, closeFn func())
}

func defaultWatchFactories() watchFactories {
	return watchFactories{
		newClock: clockwork.NewRealClock,
		newSource: func(cfg *config.Config, clk clockwork.Clock) backend.Source {
			if watch.SelectKind(cfg.Backend) == watch.KindMock {
				return mock.New(clk)
			}
			return resthttp.New(cfg.Backend.APIBaseURL, cfg.Backend.RequestTimeout(), clk)
		},
		newRateLimiter: func(cfg *config.Config) (poller.RateLimiter, func()) {
			addr := cfg.Redis.Addr()
			if addr == "" || cfg.Sync.PollRateLimitPerMinute <= 0 {
				return nil, nil
			}
			rl := rediscache.NewRateLimiter(rediscache.Options{
				Addr:     addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			return rl, func() { _ = rl.Close() }
		},
		newProducer: func(cfg *config.Config) (watch.Producer, func()) {
			brokers := cfg.Kafka.Brokers()
			if len(brokers) == 0 || cfg.Kafka.MirrorTopic == "" {
				return nil, nil
			}
			p := kafka.NewProducer(brokers)
			return p, func() { _ = p.Close() }
		},
	}
}

// RunTrackWatch runs one watching session plus its status HTTP API until ctx is done or
// one of them fails.
func RunTrackWatch(ctx context.Context, cfg *config.Config, f watchFactories, opts watchHTTPOpts) error {
	clk := f.newClock()
	sess := watch.NewSession(cfg, f.newSource(cfg, clk), clk)

	if rl, closeFn := f.newRateLimiter(cfg); rl != nil {
		if closeFn != nil {
			defer closeFn()
		}
		sess.WithRateLimiter(rl, int64(cfg.Sync.PollRateLimitPerMinute))
	}

	var mirror *watch.Mirror
	if p, closeFn := f.newProducer(cfg); p != nil {
		if closeFn != nil {
			defer closeFn()
		}
		mirror = watch.NewMirror(p, cfg.Kafka.MirrorTopic, sess.ID(), sess.Kind(), clk)
		sess.WithListener(mirror)
		slog.Info("kafka mirror enabled", "topic", cfg.Kafka.MirrorTopic, "session_id", sess.ID())
	}

	opts.session = sess
	opts.mirror = mirror
	opts.clk = clk

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sess.Run(gctx) })
	if mirror != nil {
		g.Go(func() error { return mirror.Run(gctx) })
	}
	g.Go(func() error { return runWatchHTTPServer(gctx, opts) })
	return g.Wait()
}
