package signals

import (
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/okian/somurie/pkg/logger"
)

// Option applies a configuration option to the Fetcher.
type Option func(*Fetcher)

// WithTTL sets how long a snapshot stays cached.
func WithTTL(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.ttl = d
		}
	}
}

// WithSweepInterval sets how often Run drops expired entries.
func WithSweepInterval(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.sweepEvery = d
		}
	}
}

// WithPaging bounds how many pages of which size are read per fetch.
func WithPaging(maxPages, pageSize int) Option {
	return func(f *Fetcher) {
		if maxPages > 0 {
			f.maxPages = maxPages
		}
		if pageSize > 0 {
			f.pageSize = pageSize
		}
	}
}

// WithAttempts sets the attempt budget of each upstream call.
func WithAttempts(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.attempts = uint(n)
		}
	}
}

// WithBackOff replaces the retry delay policy.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(f *Fetcher) {
		if newBackOff != nil {
			f.newBackOff = newBackOff
		}
	}
}

// WithClock sets the time source for the window cutoff and cache expiry.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) {
		if now != nil {
			f.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.log = l
		}
	}
}
