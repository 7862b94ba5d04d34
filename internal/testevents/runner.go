package testevents

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/somurie/pkg/logger"
)

// Run replays synthetic webhooks against cfg.BaseURL and verifies that the
// server scored every touched creator.
func Run(ctx context.Context, cfg Config) (Stats, error) {
	cfg.normalize()
	start := time.Now()
	stats := Stats{}
	log := logger.Get()

	log.Info(ctx, "starting webhook replay",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("events", cfg.Events),
		logger.Int("creators", cfg.Creators),
		logger.Int("workers", cfg.Workers),
		logger.Bool("signed", cfg.Secret != ""))

	client := newHTTPClient(&cfg)
	if err := client.getData(ctx, healthPath, nil); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	events, err := generateEvents(ctx, &cfg, &stats)
	if err != nil {
		return stats, fmt.Errorf("event generation failed: %w", err)
	}
	sends, repeats := deliveries(events, cfg.Redeliver)
	stats.Redeliveries = repeats

	sendStart := time.Now()
	submitEvents(ctx, &cfg, client, sends, &stats)
	if elapsed := time.Since(sendStart); elapsed > 0 {
		stats.DeliveriesPerSec = float64(stats.Deliveries) / elapsed.Seconds()
	}
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("delivery interrupted: %w", err)
	}
	if stats.DeliveriesFailed == stats.Deliveries {
		return stats, fmt.Errorf("all %d deliveries failed", stats.Deliveries)
	}

	touched := touchedCreators(events)
	jobs, err := waitForJobs(ctx, &cfg, client, touched, &stats)
	if err != nil {
		return stats, err
	}
	board, err := getLeaderboard(ctx, client, &stats)
	if err != nil {
		return stats, err
	}
	stats.Duration = time.Since(start)

	if err := verifyResults(ctx, &cfg, touched, jobs, board); err != nil {
		return stats, fmt.Errorf("result verification failed: %w", err)
	}

	log.Info(ctx, "replay completed",
		logger.Int("deliveries", stats.Deliveries),
		logger.Int("redeliveries", stats.Redeliveries),
		logger.Int("jobsCompleted", stats.JobsCompleted),
		logger.Int("jobsFailed", stats.JobsFailed),
		logger.Int("jobsPending", stats.JobsPending),
		logger.Duration("duration", stats.Duration),
		logger.Float64("deliveriesPerSecond", stats.DeliveriesPerSec))
	return stats, nil
}
