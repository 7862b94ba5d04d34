package signals

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/somurie/internal/domain/model"
)

type upstreamErr struct{ retry bool }

func (e upstreamErr) Error() string   { return "upstream failed" }
func (e upstreamErr) Retryable() bool { return e.retry }

type unknownUserErr struct{}

func (unknownUserErr) Error() string   { return "user not found" }
func (unknownUserErr) Retryable() bool { return false }
func (unknownUserErr) NotFound() bool  { return true }

type fakeSource struct {
	mu           sync.Mutex
	profile      model.CreatorProfile
	pages        map[string]model.PostsPage
	profileErrs  []error
	profileCalls int
	pageCalls    int
	cursors      []string
	gate         chan struct{}
}

func (s *fakeSource) FetchUserProfile(_ context.Context, _ int64) (model.CreatorProfile, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profileCalls++
	if len(s.profileErrs) > 0 {
		err := s.profileErrs[0]
		s.profileErrs = s.profileErrs[1:]
		if err != nil {
			return model.CreatorProfile{}, err
		}
	}
	return s.profile, nil
}

func (s *fakeSource) FetchPostsPage(_ context.Context, _ int64, cursor string, _ int) (model.PostsPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageCalls++
	s.cursors = append(s.cursors, cursor)
	return s.pages[cursor], nil
}

func (s *fakeSource) calls() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profileCalls, s.pageCalls
}

type countingWaiter struct {
	mu sync.Mutex
	n  int
}

func (w *countingWaiter) Wait(context.Context) error {
	w.mu.Lock()
	w.n++
	w.mu.Unlock()
	return nil
}

func (w *countingWaiter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

func zeroBackOff() backoff.BackOff { return &backoff.ZeroBackOff{} }

func post(id string, at time.Time, likes, recasts, replies int) model.PostMetric {
	return model.PostMetric{ID: id, Timestamp: at, LikeCount: likes, RecastCount: recasts, ReplyCount: replies}
}

func TestDerive(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	Convey("Given a creator with no followers and no posts", t, func() {
		m := Derive(model.CreatorProfile{ID: 1}, nil, 45, now)

		Convey("Then every derived signal is at its floor", func() {
			So(m.NetworkScore, ShouldEqual, 0)
			So(m.EngagementRate, ShouldEqual, 0)
			So(m.ViralCoefficient, ShouldEqual, 0)
			So(m.PostingFrequency, ShouldEqual, 0)
			So(m.GrowthRate, ShouldEqual, 0.10)
		})
	})

	Convey("Given a handful of posts", t, func() {
		posts := []model.PostMetric{
			post("a", now, 60, 2, 2),  // 60+4+3 = 67, viral by likes
			post("b", now, 10, 12, 0), // 10+24 = 34, viral by recasts
			post("c", now, 3, 0, 2),   // 3+3 = 6
			post("d", now, 0, 0, 0),
		}
		p := model.CreatorProfile{ID: 2, FollowerCount: 5000, FollowingCount: 1000, HasBadge: true}
		m := Derive(p, posts, 2, now)

		Convey("Then the signals follow the documented formulas", func() {
			So(m.EngagementRate, ShouldAlmostEqual, (67.0+34+6)/4)
			So(m.PostingFrequency, ShouldEqual, 2)
			So(m.ViralCoefficient, ShouldEqual, 50)
			So(m.NetworkScore, ShouldEqual, 70)
			So(m.GrowthRate, ShouldEqual, 0.30)
		})

		Convey("Then TopPosts orders by engagement", func() {
			top := TopPosts(posts, 2)
			So(top, ShouldHaveLength, 2)
			So(top[0].ID, ShouldEqual, "a")
			So(top[1].ID, ShouldEqual, "b")
			So(posts[0].ID, ShouldEqual, "a")
		})

		Convey("Then Sum totals the reactions", func() {
			So(Sum(posts), ShouldResemble, Totals{Likes: 73, Recasts: 14, Replies: 4})
		})
	})

	Convey("Growth buckets and network cap", t, func() {
		So(GrowthRate(99), ShouldEqual, 0.10)
		So(GrowthRate(100), ShouldEqual, 0.20)
		So(GrowthRate(9_999), ShouldEqual, 0.30)
		So(GrowthRate(10_000), ShouldEqual, 0.40)
		So(GrowthRate(50_000_000), ShouldBeLessThan, 1)
		So(NetworkScore(100_000, 0, true), ShouldEqual, 100)
		So(NetworkScore(0, 0, true), ShouldEqual, 20)
	})
}

func TestGetUserMetrics(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	Convey("Given a source with three pages of posts", t, func() {
		src := &fakeSource{
			profile: model.CreatorProfile{ID: 42, Handle: "alice", FollowerCount: 500, FollowingCount: 100},
			pages: map[string]model.PostsPage{
				"":   {Posts: []model.PostMetric{post("1", now.Add(-time.Hour), 5, 0, 0), post("2", now.Add(-48*time.Hour), 5, 0, 0)}, NextCursor: "p2"},
				"p2": {Posts: []model.PostMetric{post("3", now.Add(-5*24*time.Hour), 5, 0, 0), post("4", now.Add(-20*24*time.Hour), 5, 0, 0)}, NextCursor: "p3"},
				"p3": {Posts: []model.PostMetric{post("5", now.Add(-21*24*time.Hour), 5, 0, 0)}},
			},
		}
		waiter := &countingWaiter{}
		clock := now
		f, err := NewFetcher(src, waiter,
			WithClock(func() time.Time { return clock }),
			WithBackOff(zeroBackOff),
			WithTTL(time.Minute))
		So(err, ShouldBeNil)

		Convey("When fetching a 10 day window", func() {
			m, err := f.GetUserMetrics(ctx, 42, 10)

			Convey("Then paging stops at the first post older than the cutoff", func() {
				So(err, ShouldBeNil)
				So(m.Degraded, ShouldBeFalse)
				So(m.Posts, ShouldHaveLength, 3)
				So(m.PostingFrequency, ShouldAlmostEqual, 0.3)
				So(src.cursors, ShouldResemble, []string{"", "p2"})
			})

			Convey("Then every upstream call waited on the limiter", func() {
				So(waiter.count(), ShouldEqual, 3)
			})

			Convey("Then a second call is served from the cache", func() {
				again, err := f.GetUserMetrics(ctx, 42, 10)
				So(err, ShouldBeNil)
				So(again, ShouldEqual, m)
				profiles, _ := src.calls()
				So(profiles, ShouldEqual, 1)
				So(f.Size(), ShouldEqual, 1)
			})

			Convey("Then another window is a separate entry", func() {
				_, err := f.GetUserMetrics(ctx, 42, 45)
				So(err, ShouldBeNil)
				So(f.Size(), ShouldEqual, 2)

				f.Invalidate(42)
				So(f.Size(), ShouldEqual, 0)
			})

			Convey("Then the entry expires after the TTL", func() {
				clock = clock.Add(2 * time.Minute)
				So(f.Sweep(), ShouldEqual, 1)
				So(f.Size(), ShouldEqual, 0)
			})
		})

		Convey("When the window covers everything", func() {
			m, err := f.GetUserMetrics(ctx, 42, 45)

			Convey("Then paging ends at the missing cursor", func() {
				So(err, ShouldBeNil)
				So(m.Posts, ShouldHaveLength, 5)
				So(src.cursors, ShouldResemble, []string{"", "p2", "p3"})
			})
		})

		Convey("When the page budget is one", func() {
			f, _ := NewFetcher(src, waiter, WithClock(func() time.Time { return clock }), WithPaging(1, 10))
			m, err := f.GetUserMetrics(ctx, 42, 45)

			Convey("Then only the first page is read", func() {
				So(err, ShouldBeNil)
				So(m.Posts, ShouldHaveLength, 2)
			})
		})

		Convey("When the window is not positive", func() {
			m, err := f.GetUserMetrics(ctx, 42, 0)

			Convey("Then the default window is used", func() {
				So(err, ShouldBeNil)
				So(m.WindowDays, ShouldEqual, DefaultWindowDays)
			})
		})

		Convey("When the creator id is invalid", func() {
			_, err := f.GetUserMetrics(ctx, 0, 10)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, ErrInvalidCreator), ShouldBeTrue)
			})
		})
	})

	Convey("Given a source failing transiently", t, func() {
		src := &fakeSource{
			profile:     model.CreatorProfile{ID: 7, Handle: "bob"},
			pages:       map[string]model.PostsPage{},
			profileErrs: []error{upstreamErr{retry: true}, upstreamErr{retry: true}},
		}
		waiter := &countingWaiter{}
		f, _ := NewFetcher(src, waiter, WithBackOff(zeroBackOff), WithAttempts(3))

		m, err := f.GetUserMetrics(ctx, 7, 10)

		Convey("Then the third attempt succeeds", func() {
			So(err, ShouldBeNil)
			So(m.Degraded, ShouldBeFalse)
			So(m.Handle, ShouldEqual, "bob")
			profiles, _ := src.calls()
			So(profiles, ShouldEqual, 3)
			So(waiter.count(), ShouldEqual, 4)
		})
	})

	Convey("Given a source failing permanently", t, func() {
		src := &fakeSource{
			pages:       map[string]model.PostsPage{},
			profileErrs: []error{upstreamErr{retry: false}},
		}
		f, _ := NewFetcher(src, &countingWaiter{}, WithBackOff(zeroBackOff))

		m, err := f.GetUserMetrics(ctx, 9, 10)

		Convey("Then a degraded snapshot is returned without retrying or caching", func() {
			So(err, ShouldBeNil)
			So(m.Degraded, ShouldBeTrue)
			So(m.CreatorID, ShouldEqual, 9)
			So(m.EngagementRate, ShouldEqual, 0)
			So(m.Posts, ShouldBeEmpty)
			profiles, _ := src.calls()
			So(profiles, ShouldEqual, 1)
			So(f.Size(), ShouldEqual, 0)
		})
	})

	Convey("Given a source that does not know the creator", t, func() {
		src := &fakeSource{
			pages:       map[string]model.PostsPage{},
			profileErrs: []error{unknownUserErr{}},
		}
		f, _ := NewFetcher(src, &countingWaiter{}, WithBackOff(zeroBackOff))

		m, err := f.GetUserMetrics(ctx, 404, 10)

		Convey("Then it is an error instead of degraded metrics", func() {
			So(m, ShouldBeNil)
			So(errors.Is(err, ErrUnknownCreator), ShouldBeTrue)
			profiles, pages := src.calls()
			So(profiles, ShouldEqual, 1)
			So(pages, ShouldEqual, 0)
			So(f.Size(), ShouldEqual, 0)
		})
	})

	Convey("Given a source that keeps failing", t, func() {
		retry := upstreamErr{retry: true}
		src := &fakeSource{
			pages:       map[string]model.PostsPage{},
			profileErrs: []error{retry, retry, retry, retry},
		}
		f, _ := NewFetcher(src, &countingWaiter{}, WithBackOff(zeroBackOff), WithAttempts(2))

		m, _ := f.GetUserMetrics(ctx, 9, 10)

		Convey("Then the attempt budget bounds the calls", func() {
			So(m.Degraded, ShouldBeTrue)
			profiles, _ := src.calls()
			So(profiles, ShouldEqual, 2)
		})
	})

	Convey("Given many concurrent requests for one creator", t, func() {
		src := &fakeSource{
			profile: model.CreatorProfile{ID: 5},
			pages:   map[string]model.PostsPage{},
			gate:    make(chan struct{}),
		}
		f, _ := NewFetcher(src, &countingWaiter{})

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = f.GetUserMetrics(ctx, 5, 10)
			}()
		}
		time.Sleep(20 * time.Millisecond)
		close(src.gate)
		wg.Wait()

		Convey("Then the upstream is hit once", func() {
			profiles, _ := src.calls()
			So(profiles, ShouldEqual, 1)
		})
	})

	Convey("Given a caller whose context is cancelled", t, func() {
		src := &fakeSource{pages: map[string]model.PostsPage{}, gate: make(chan struct{})}
		f, _ := NewFetcher(src, &countingWaiter{})
		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		_, err := f.GetUserMetrics(cctx, 3, 10)
		close(src.gate)

		Convey("Then the caller gets its context error", func() {
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})
	})
}
