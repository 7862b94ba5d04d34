package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/somurie/internal/adapters/neynar"
	"github.com/okian/somurie/internal/adapters/notify"
	"github.com/okian/somurie/internal/adapters/ratelimit"
	"github.com/okian/somurie/internal/adapters/repository"
	service "github.com/okian/somurie/internal/app"
	"github.com/okian/somurie/internal/config"
	"github.com/okian/somurie/internal/domain/dedupe"
	"github.com/okian/somurie/internal/domain/scoring"
	"github.com/okian/somurie/internal/domain/signals"
	"github.com/okian/somurie/pkg/logger"
)

const (
	upstreamTimeout = 15 * time.Second
	notifyTimeout   = 10 * time.Second
	notifySendLimit = 30 * time.Second
)

// components holds every long-lived part of the process, each built once.
type components struct {
	store      repository.Store
	limiter    *ratelimit.Limiter
	fetcher    *signals.Fetcher
	calculator *scoring.Calculator
	scheduler  *service.Scheduler
	service    *service.Service

	closers []func() error
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	store, err := repository.Open(ctx, cfg.DatabaseDSN,
		repository.WithLogger(logger.Named("store")))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

func newCalculator(store repository.Store, cfg *config.Config) (*scoring.Calculator, error) {
	calc, err := scoring.NewCalculator(store, scoring.WithLocation(cfg.Location()))
	if err != nil {
		return nil, fmt.Errorf("calculator: %w", err)
	}
	return calc, nil
}

// notifiers builds the notification fan-out: always the log, plus the
// outbound webhook and the redis channel when configured.
func notifiers(ctx context.Context, cfg *config.Config) (*notify.Manager, []func() error, error) {
	sinks := []notify.Notifier{notify.NewLogNotifier(logger.Named("notify"))}
	var closers []func() error

	if cfg.NotifyWebhookURL != "" {
		client := &http.Client{Timeout: notifyTimeout}
		sinks = append(sinks, notify.NewWebhook(cfg.NotifyWebhookURL, cfg.NotifyWebhookSecret, client))
	}
	if cfg.RedisAddr != "" {
		r, err := notify.DialRedis(ctx, cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			return nil, nil, fmt.Errorf("redis notifier: %w", err)
		}
		sinks = append(sinks, r)
		closers = append(closers, r.Close)
	}
	return notify.NewManager(sinks...), closers, nil
}

// build wires the full score pipeline from cfg.
func build(ctx context.Context, cfg *config.Config) (*components, error) {
	if cfg.NeynarAPIKey == "" {
		return nil, errors.New("neynar_api_key is required")
	}
	loc := cfg.Location()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c := &components{store: store, closers: []func() error{store.Close}}

	c.limiter = ratelimit.New(cfg.RateLimitPerMinute)
	client := neynar.NewClient(cfg.NeynarAPIKey,
		neynar.WithBaseURL(cfg.NeynarBaseURL),
		neynar.WithTimeout(upstreamTimeout))

	c.fetcher, err = signals.NewFetcher(client, c.limiter,
		signals.WithTTL(cfg.MetricsCacheTTL),
		signals.WithSweepInterval(cfg.MetricsCacheSweep),
		signals.WithPaging(cfg.MaxPostPages, cfg.PostPageSize),
		signals.WithAttempts(cfg.UpstreamAttempts),
		signals.WithLogger(logger.Named("fetcher")))
	if err != nil {
		_ = c.close()
		return nil, fmt.Errorf("fetcher: %w", err)
	}

	c.calculator, err = newCalculator(store, cfg)
	if err != nil {
		_ = c.close()
		return nil, err
	}

	manager, closers, err := notifiers(ctx, cfg)
	if err != nil {
		_ = c.close()
		return nil, err
	}
	c.closers = append(c.closers, closers...)
	notifications := service.NewNotifications(store, manager)

	c.scheduler, err = service.NewScheduler(c.fetcher, c.calculator, store,
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithJobAttempts(cfg.JobAttempts),
		service.WithJobRetention(cfg.JobRetention, cfg.MaxRetainedJobs),
		service.WithDailyBatch(cfg.DailyBatchHour, loc),
		service.WithWindowDays(cfg.MetricsWindowDays),
		service.WithNotifier(notifications, notifySendLimit),
		service.WithSchedulerLogger(logger.Named("scheduler")))
	if err != nil {
		_ = c.close()
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	c.service, err = service.New(store, c.scheduler, c.fetcher,
		service.WithPolling(cfg.PollInterval, cfg.PollTimeout),
		service.WithShareBasePath(cfg.ShareBasePath),
		service.WithWebhookSecret(cfg.WebhookSecret),
		service.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))),
		service.WithChallenges(notifications),
		service.WithLoadReporter(c.limiter),
		service.WithLocation(loc),
		service.WithLogger(logger.Named("service")))
	if err != nil {
		_ = c.close()
		return nil, fmt.Errorf("service: %w", err)
	}
	return c, nil
}

// close releases resources in reverse construction order.
func (c *components) close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	return errors.Join(errs...)
}
