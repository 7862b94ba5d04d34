// Package signals fetches a creator's recent activity from the social graph
// and derives the raw signals the score is computed from.
package signals

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"github.com/okian/somurie/internal/domain/model"
	"github.com/okian/somurie/pkg/logger"
	"github.com/okian/somurie/pkg/metrics"
)

// Default fetcher configuration constants.
const (
	DefaultWindowDays = 45
	defaultTTL        = 30 * time.Minute
	defaultSweep      = 5 * time.Minute
	defaultMaxPages   = 5
	defaultPageSize   = 100
	defaultAttempts   = 3
	retryInitial      = 500 * time.Millisecond
	retryMax          = 5 * time.Second
	retryElapsed      = 2 * time.Minute
)

// Source is the social-graph API.
type Source interface {
	FetchUserProfile(ctx context.Context, fid int64) (model.CreatorProfile, error)
	FetchPostsPage(ctx context.Context, fid int64, cursor string, limit int) (model.PostsPage, error)
}

// Waiter gates every outbound call.
type Waiter interface {
	Wait(ctx context.Context) error
}

// retryable is implemented by upstream errors that know whether another
// attempt could succeed.
type retryable interface {
	Retryable() bool
}

// missing is implemented by upstream errors that can tell the creator does
// not exist at all.
type missing interface {
	NotFound() bool
}

func isMissing(err error) bool {
	var m missing
	return errors.As(err, &m) && m.NotFound()
}

type cacheKey struct {
	fid  int64
	days int
}

type cacheEntry struct {
	metrics *model.RawMetrics
	expires time.Time
}

// Fetcher returns RawMetrics per creator, caching them for a short TTL.
// Returned snapshots are shared and must not be modified.
type Fetcher struct {
	source  Source
	limiter Waiter
	log     logger.Logger

	ttl        time.Duration
	sweepEvery time.Duration
	maxPages   int
	pageSize   int
	attempts   uint
	newBackOff func() backoff.BackOff
	now        func() time.Time

	group singleflight.Group

	mu    sync.RWMutex
	cache map[cacheKey]cacheEntry
}

// NewFetcher creates a Fetcher reading from source through limiter.
func NewFetcher(source Source, limiter Waiter, opts ...Option) (*Fetcher, error) {
	if source == nil {
		return nil, ErrNoSource
	}
	if limiter == nil {
		return nil, ErrNoLimiter
	}
	f := &Fetcher{
		source:     source,
		limiter:    limiter,
		log:        logger.Nop(),
		ttl:        defaultTTL,
		sweepEvery: defaultSweep,
		maxPages:   defaultMaxPages,
		pageSize:   defaultPageSize,
		attempts:   defaultAttempts,
		newBackOff: defaultBackOff,
		now:        time.Now,
		cache:      make(map[cacheKey]cacheEntry),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitial
	b.MaxInterval = retryMax
	return b
}

// GetUserMetrics returns the metrics of fid over the trailing windowDays.
// Upstream failures never surface here: after the attempt budget is spent a
// degraded zero-valued snapshot is returned instead. The only errors are
// invalid arguments and the caller's own cancellation.
func (f *Fetcher) GetUserMetrics(ctx context.Context, fid int64, windowDays int) (*model.RawMetrics, error) {
	if fid <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCreator, fid)
	}
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	key := cacheKey{fid: fid, days: windowDays}

	if m, ok := f.cached(key); ok {
		metrics.RecordCacheHit()
		return m, nil
	}
	metrics.RecordCacheMiss()

	// The shared fetch outlives any single caller.
	shared := context.WithoutCancel(ctx)
	ch := f.group.DoChan(strconv.FormatInt(fid, 10)+"/"+strconv.Itoa(windowDays), func() (any, error) {
		return f.load(shared, key)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("get metrics for %d: %w", fid, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.RawMetrics), nil
	}
}

// load fetches and caches key. Upstream failures degrade to zeroed metrics,
// except an unknown creator, which is an error.
func (f *Fetcher) load(ctx context.Context, key cacheKey) (*model.RawMetrics, error) {
	if m, ok := f.cached(key); ok {
		return m, nil
	}
	log := f.log.With(logger.Int64("fid", key.fid), logger.Int("window_days", key.days))

	m, err := f.fetch(ctx, key.fid, key.days)
	if err != nil && isMissing(err) {
		metrics.RecordErrorByComponent("fetcher", "unknown_creator")
		log.Info(ctx, "creator not found upstream")
		return nil, fmt.Errorf("%w: %d: %w", ErrUnknownCreator, key.fid, err)
	}
	if err != nil {
		metrics.RecordDegradedFetch()
		metrics.RecordErrorByComponent("fetcher", "upstream")
		log.Warn(ctx, "upstream fetch failed, using degraded metrics", logger.Error(err))
		return Fallback(key.fid, key.days, f.now()), nil
	}

	f.mu.Lock()
	f.cache[key] = cacheEntry{metrics: m, expires: f.now().Add(f.ttl)}
	size := len(f.cache)
	f.mu.Unlock()
	metrics.UpdateCacheSize(size)

	log.Debug(ctx, "metrics fetched",
		logger.Int("posts", len(m.Posts)),
		logger.Float64("engagement_rate", m.EngagementRate))
	return m, nil
}

func (f *Fetcher) cached(key cacheKey) (*model.RawMetrics, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.cache[key]
	if !ok || !f.now().Before(e.expires) {
		return nil, false
	}
	return e.metrics, true
}

func (f *Fetcher) fetch(ctx context.Context, fid int64, windowDays int) (*model.RawMetrics, error) {
	now := f.now()
	cutoff := now.Add(-time.Duration(windowDays) * 24 * time.Hour)

	profile, err := call(ctx, f, func() (model.CreatorProfile, error) {
		return f.source.FetchUserProfile(ctx, fid)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}

	var posts []model.PostMetric
	cursor := ""
pages:
	for range f.maxPages {
		page, err := call(ctx, f, func() (model.PostsPage, error) {
			return f.source.FetchPostsPage(ctx, fid, cursor, f.pageSize)
		})
		if err != nil {
			return nil, fmt.Errorf("fetch posts: %w", err)
		}
		if len(page.Posts) == 0 {
			break
		}
		for _, p := range page.Posts {
			if p.Timestamp.Before(cutoff) {
				break pages
			}
			posts = append(posts, p)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	if posts == nil {
		posts = []model.PostMetric{}
	}

	return Derive(profile, posts, windowDays, now), nil
}

// call runs one upstream request under the attempt budget, waiting on the
// limiter before every attempt.
func call[T any](ctx context.Context, f *Fetcher, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		var zero T
		if err := f.limiter.Wait(ctx); err != nil {
			return zero, backoff.Permanent(err)
		}
		v, err := op()
		if err == nil {
			return v, nil
		}
		var r retryable
		if errors.As(err, &r) && r.Retryable() {
			return zero, err
		}
		return zero, backoff.Permanent(err)
	},
		backoff.WithBackOff(f.newBackOff()),
		backoff.WithMaxTries(f.attempts),
		backoff.WithMaxElapsedTime(retryElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			f.log.Debug(ctx, "retrying upstream call", logger.Error(err), logger.Duration("backoff", next))
		}),
	)
}

// Invalidate drops every cached window of fid.
func (f *Fetcher) Invalidate(fid int64) {
	f.mu.Lock()
	for k := range f.cache {
		if k.fid == fid {
			delete(f.cache, k)
		}
	}
	size := len(f.cache)
	f.mu.Unlock()
	metrics.UpdateCacheSize(size)
}

// Sweep removes expired entries and returns how many were dropped.
func (f *Fetcher) Sweep() int {
	now := f.now()
	f.mu.Lock()
	dropped := 0
	for k, e := range f.cache {
		if !now.Before(e.expires) {
			delete(f.cache, k)
			dropped++
		}
	}
	size := len(f.cache)
	f.mu.Unlock()
	metrics.UpdateCacheSize(size)
	return dropped
}

// Size reports the number of cached snapshots.
func (f *Fetcher) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.cache)
}

// Run sweeps the cache periodically until ctx is done.
func (f *Fetcher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := f.Sweep(); n > 0 {
				f.log.Debug(ctx, "swept metrics cache", logger.Int("dropped", n))
			}
		}
	}
}
