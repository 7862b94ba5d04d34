// Package ratelimit bounds outbound calls with a sliding-window log.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/somurie/pkg/metrics"
)

// Default limiter configuration constants.
const (
	defaultWindow = time.Minute
	defaultMargin = 100 * time.Millisecond
)

// Limiter admits at most limit calls within any trailing window.
// Waiters are not queued fairly; under sustained overload a caller may be
// overtaken repeatedly.
type Limiter struct {
	mu     sync.Mutex
	calls  []time.Time // ascending
	limit  int
	window time.Duration
	margin time.Duration
	now    func() time.Time
}

// New creates a limiter admitting perWindow calls per window (one minute by default).
func New(perWindow int, opts ...Option) *Limiter {
	if perWindow < 1 {
		perWindow = 1
	}
	l := &Limiter{
		limit:  perWindow,
		window: defaultWindow,
		margin: defaultMargin,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.calls = make([]time.Time, 0, l.limit)
	return l
}

// Wait blocks until one more call fits the window, then records it.
// It only fails when ctx ends first.
func (l *Limiter) Wait(ctx context.Context) error {
	start := l.now()
	defer func() {
		metrics.RecordRateLimiterWait(float64(l.now().Sub(start).Milliseconds()))
	}()

	for {
		delay, admitted := l.tryAcquire()
		if admitted {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limiter wait: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// tryAcquire records a call if there is room, otherwise returns how long
// until the oldest call leaves the window plus the safety margin.
func (l *Limiter) tryAcquire() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)
	if len(l.calls) < l.limit {
		l.calls = append(l.calls, now)
		metrics.UpdateRateLimiterLoad(len(l.calls))
		return 0, true
	}
	delay := l.calls[0].Add(l.window).Sub(now) + l.margin
	if delay < l.margin {
		delay = l.margin
	}
	return delay, false
}

// pruneLocked drops calls at or before now-window.
func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.calls) && !l.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.calls = append(l.calls[:0], l.calls[i:]...)
	}
}

// CurrentLoad returns calls recorded in the trailing window.
func (l *Limiter) CurrentLoad() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(l.now())
	metrics.UpdateRateLimiterLoad(len(l.calls))
	return len(l.calls)
}

// Limit returns the configured capacity.
func (l *Limiter) Limit() int { return l.limit }

// Reset clears the call history.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = l.calls[:0]
	metrics.UpdateRateLimiterLoad(0)
}
