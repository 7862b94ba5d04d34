package testevents

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/somurie/pkg/logger"
)

// waitForJobs polls the job list until every job of the touched creators is
// terminal or the settle budget runs out. Pending jobs at the deadline are
// reported, not treated as an error.
func waitForJobs(ctx context.Context, cfg *Config, client *HTTPClient, touched map[int64]struct{}, stats *Stats) ([]Job, error) {
	log := logger.Get()
	log.Info(ctx, "waiting for score jobs", logger.Duration("settle", cfg.Settle))

	deadline := time.NewTimer(cfg.Settle)
	defer deadline.Stop()
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for {
		jobs, err := listJobs(ctx, client, touched)
		if err != nil {
			return nil, err
		}
		completed, failed, pending := countJobs(jobs)
		if pending == 0 && len(jobs) > 0 {
			stats.JobsCompleted, stats.JobsFailed, stats.JobsPending = completed, failed, 0
			return jobs, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for jobs: %w", ctx.Err())
		case <-deadline.C:
			stats.JobsCompleted, stats.JobsFailed, stats.JobsPending = completed, failed, pending
			log.Warn(ctx, "jobs still pending at deadline", logger.Int("pending", pending))
			return jobs, nil
		case <-ticker.C:
		}
	}
}

func listJobs(ctx context.Context, client *HTTPClient, touched map[int64]struct{}) ([]Job, error) {
	var all []Job
	if err := client.getData(ctx, jobsPath, &all); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	out := all[:0]
	for _, j := range all {
		if _, ok := touched[j.FID]; ok {
			out = append(out, j)
		}
	}
	return out, nil
}

func countJobs(jobs []Job) (completed, failed, pending int) {
	for _, j := range jobs {
		switch j.Status {
		case "completed":
			completed++
		case "failed":
			failed++
		default:
			pending++
		}
	}
	return completed, failed, pending
}

// getLeaderboard returns today's overall board.
func getLeaderboard(ctx context.Context, client *HTTPClient, stats *Stats) ([]Entry, error) {
	var board []Entry
	if err := client.getData(ctx, leaderboardPath, &board); err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	stats.LeaderboardSize = len(board)
	return board, nil
}
