package service

import (
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/okian/somurie/internal/domain/dedupe"
	"github.com/okian/somurie/pkg/logger"
)

// SchedulerOption applies a configuration option to the Scheduler.
type SchedulerOption func(*Scheduler)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) SchedulerOption {
	return func(s *Scheduler) {
		if count > 0 {
			s.workers = count
		}
	}
}

// WithQueueCapacity bounds the number of queued jobs.
func WithQueueCapacity(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.queueCapacity = n
		}
	}
}

// WithJobAttempts sets the pipeline attempt budget.
func WithJobAttempts(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithJobBackOff replaces the delay policy between pipeline attempts.
func WithJobBackOff(newBackOff func() backoff.BackOff) SchedulerOption {
	return func(s *Scheduler) {
		if newBackOff != nil {
			s.newBackOff = newBackOff
		}
	}
}

// WithJobRetention sets how long finished jobs stay visible and how many of
// them are kept at most.
func WithJobRetention(age time.Duration, maxJobs int) SchedulerOption {
	return func(s *Scheduler) {
		if age > 0 {
			s.retention = age
		}
		if maxJobs > 0 {
			s.maxRetained = maxJobs
		}
	}
}

// WithDailyBatch sets the wall-clock hour and zone of the fleet refresh.
func WithDailyBatch(hour int, loc *time.Location) SchedulerOption {
	return func(s *Scheduler) {
		if hour >= 0 && hour < 24 {
			s.batchHour = hour
		}
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithWindowDays sets the metrics window requested for each job.
func WithWindowDays(days int) SchedulerOption {
	return func(s *Scheduler) {
		if days > 0 {
			s.windowDays = days
		}
	}
}

// WithNotifier sets the sink told about stored scores.
func WithNotifier(n ScoreNotifier, timeout time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.notifier = n
		if timeout > 0 {
			s.notifyTimeout = timeout
		}
	}
}

// WithSchedulerClock sets the time source.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(l logger.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithPolling sets the poll interval and wait budget of RequestScore.
func WithPolling(interval, timeout time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.pollInterval = interval
		}
		if timeout > 0 {
			s.pollTimeout = timeout
		}
	}
}

// WithShareBasePath sets the prefix of share URLs.
func WithShareBasePath(p string) Option {
	return func(s *Service) {
		if p != "" {
			s.shareBase = p
		}
	}
}

// WithWebhookSecret enables signature checks on inbound webhooks.
func WithWebhookSecret(secret string) Option {
	return func(s *Service) {
		s.webhookSecret = secret
	}
}

// WithDeduper replaces the inbound event deduper.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) {
		if d != nil {
			s.deduper = d
		}
	}
}

// WithChallenges sets the sink for challenge notifications.
func WithChallenges(c Challenger) Option {
	return func(s *Service) {
		s.challenges = c
	}
}

// WithLoadReporter exposes outbound rate limiter load in stats.
func WithLoadReporter(r LoadReporter) Option {
	return func(s *Service) {
		s.limiter = r
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the zone whose midnight bounds a score day.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
