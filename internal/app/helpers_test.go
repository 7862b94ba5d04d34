package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/okian/somurie/internal/adapters/repository"
	service "github.com/okian/somurie/internal/app"
	"github.com/okian/somurie/internal/domain/model"
	"github.com/okian/somurie/internal/domain/scoring"
	"github.com/okian/somurie/internal/domain/signals"
)

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeSource serves canned metrics and records calls.
type fakeSource struct {
	mu          sync.Mutex
	now         func() time.Time
	calls       []int64
	invalidated []int64
	degraded    map[int64]int // remaining degraded responses per fid, negative for always
	failing     map[int64]error
	panics      map[int64]bool
	gate        chan struct{}
}

func newFakeSource(now func() time.Time) *fakeSource {
	return &fakeSource{
		now:      now,
		degraded: map[int64]int{},
		failing:  map[int64]error{},
		panics:   map[int64]bool{},
	}
}

func (f *fakeSource) GetUserMetrics(ctx context.Context, fid int64, windowDays int) (*model.RawMetrics, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fid)
	gate := f.gate
	err := f.failing[fid]
	doPanic := f.panics[fid]
	degraded := f.degraded[fid] != 0
	if f.degraded[fid] > 0 {
		f.degraded[fid]--
	}
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if doPanic {
		panic("metrics exploded")
	}
	if err != nil {
		return nil, err
	}
	if windowDays <= 0 {
		windowDays = signals.DefaultWindowDays
	}
	now := f.now()
	if degraded {
		return signals.Fallback(fid, windowDays, now), nil
	}

	profile := model.CreatorProfile{ID: fid, Handle: "creator", FollowerCount: int(fid) * 100, FollowingCount: 50, HasBadge: fid%2 == 0, ReputationScore: 0.5}
	posts := []model.PostMetric{
		{ID: "a", Timestamp: now.Add(-time.Hour), LikeCount: 60, RecastCount: 12, ReplyCount: 8},
		{ID: "b", Timestamp: now.Add(-2 * time.Hour), LikeCount: 10, RecastCount: 1, ReplyCount: 2},
		{ID: "c", Timestamp: now.Add(-3 * time.Hour), LikeCount: 25, RecastCount: 4, ReplyCount: 0},
	}
	return signals.Derive(profile, posts, windowDays, now), nil
}

// block holds every metrics call until the returned func is called.
func (f *fakeSource) block() (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gate = ch
	f.mu.Unlock()
	return func() { close(ch) }
}

func (f *fakeSource) Invalidate(fid int64) {
	f.mu.Lock()
	f.invalidated = append(f.invalidated, fid)
	f.mu.Unlock()
}

func (f *fakeSource) Size() int { return 0 }

func (f *fakeSource) callOrder() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.calls...)
}

func (f *fakeSource) invalidations() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.invalidated...)
}

// recordingNotifier records the scores it is told about.
type recordingNotifier struct {
	mu     sync.Mutex
	scores []model.CreatorScore
}

func (n *recordingNotifier) ScoreUpdated(_ context.Context, s model.CreatorScore) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.scores = append(n.scores, s)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.scores)
}

type fixture struct {
	clock     *clock
	store     *repository.MemoryStore
	source    *fakeSource
	scheduler *service.Scheduler
	notifier  *recordingNotifier
}

func zeroBackOff() backoff.BackOff { return &backoff.ZeroBackOff{} }

func newFixture(t *testing.T, opts ...service.SchedulerOption) *fixture {
	t.Helper()
	c := newClock()
	store := repository.NewMemoryStore(repository.WithClock(c.now))
	src := newFakeSource(c.now)
	calc, err := scoring.NewCalculator(store, scoring.WithClock(c.now))
	if err != nil {
		t.Fatalf("calculator: %v", err)
	}
	n := &recordingNotifier{}
	base := []service.SchedulerOption{
		service.WithSchedulerClock(c.now),
		service.WithJobBackOff(zeroBackOff),
		service.WithNotifier(n, time.Second),
	}
	s, err := service.NewScheduler(src, calc, store, append(base, opts...)...)
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	return &fixture{clock: c, store: store, source: src, scheduler: s, notifier: n}
}

func (f *fixture) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = f.scheduler.Shutdown(ctx)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func jobDone(s *service.Scheduler, id string) func() bool {
	return func() bool {
		job, ok := s.Job(id)
		return ok && job.Status.Terminal()
	}
}

var (
	errBoom           = errors.New("boom")
	errUnknownCreator = fmt.Errorf("fetch profile: %w", signals.ErrUnknownCreator)
)

// panickingNotifier blows up on every score and counts the calls.
type panickingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *panickingNotifier) ScoreUpdated(context.Context, model.CreatorScore) error {
	n.mu.Lock()
	n.calls++
	n.mu.Unlock()
	panic("sink exploded")
}

func (n *panickingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}
