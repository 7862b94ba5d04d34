package testevents

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/somurie/internal/adapters/http/api"
	"github.com/okian/somurie/internal/adapters/repository"
	service "github.com/okian/somurie/internal/app"
	"github.com/okian/somurie/internal/domain/model"
	"github.com/okian/somurie/internal/domain/scoring"
	"github.com/okian/somurie/internal/domain/signals"
	"github.com/okian/somurie/pkg/logger"
)

func init() {
	_ = logger.Init()
}

// flatSource returns the same modest activity for every creator.
type flatSource struct{}

func (flatSource) GetUserMetrics(_ context.Context, fid int64, windowDays int) (*model.RawMetrics, error) {
	now := time.Now()
	profile := model.CreatorProfile{ID: fid, FollowerCount: 500, FollowingCount: 200}
	posts := []model.PostMetric{
		{ID: "a", Timestamp: now.Add(-2 * time.Hour), LikeCount: 20, RecastCount: 3, ReplyCount: 4},
		{ID: "b", Timestamp: now.Add(-30 * time.Hour), LikeCount: 8, RecastCount: 1, ReplyCount: 2},
	}
	return signals.Derive(profile, posts, windowDays, now), nil
}

func (flatSource) Invalidate(int64) {}
func (flatSource) Size() int        { return 0 }

func startServer(secret string) (*httptest.Server, *service.Service, func()) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	calc, err := scoring.NewCalculator(store)
	So(err, ShouldBeNil)
	sched, err := service.NewScheduler(flatSource{}, calc, store, service.WithWorkerCount(4))
	So(err, ShouldBeNil)
	svc, err := service.New(store, sched, flatSource{}, service.WithWebhookSecret(secret))
	So(err, ShouldBeNil)
	So(svc.Start(ctx), ShouldBeNil)

	srv := api.NewServer(svc)
	mux := http.NewServeMux()
	srv.Register(ctx, mux)
	ts := httptest.NewServer(srv.Handler(mux))
	return ts, svc, func() {
		ts.Close()
		_ = svc.Stop(ctx)
	}
}

func TestRun(t *testing.T) {
	Convey("Given a running server that verifies webhook signatures", t, func() {
		ts, svc, stop := startServer("s3cret")
		defer stop()
		ctx := context.Background()

		Convey("When signed events are replayed with every event redelivered", func() {
			stats, err := Run(ctx, Config{
				BaseURL:   ts.URL,
				Events:    30,
				Creators:  5,
				FirstFID:  100,
				Workers:   4,
				Redeliver: 1,
				Secret:    "s3cret",
				Settle:    5 * time.Second,
			})

			Convey("Then every touched creator is scored once per distinct event", func() {
				So(err, ShouldBeNil)
				So(stats.EventsGenerated, ShouldEqual, 30)
				So(stats.Redeliveries, ShouldEqual, 30)
				So(stats.Deliveries, ShouldEqual, 60)
				So(stats.DeliveriesFailed, ShouldEqual, 0)
				So(stats.JobsPending, ShouldEqual, 0)
				So(stats.JobsFailed, ShouldEqual, 0)
				So(stats.JobsCompleted, ShouldBeBetweenOrEqual, stats.CreatorsTouched, 60)
				So(stats.LeaderboardSize, ShouldEqual, stats.CreatorsTouched)
				So(len(svc.ListJobs()), ShouldEqual, stats.JobsCompleted)
			})
		})

		Convey("When the events carry the wrong signature", func() {
			_, err := Run(ctx, Config{
				BaseURL:  ts.URL,
				Events:   5,
				Creators: 2,
				Secret:   "wrong",
				Settle:   300 * time.Millisecond,
			})

			Convey("Then no jobs appear and verification fails", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "got no score job")
				So(svc.ListJobs(), ShouldBeEmpty)
			})
		})
	})

	Convey("Given no server", t, func() {
		ts := httptest.NewServer(http.NotFoundHandler())
		url := ts.URL
		ts.Close()

		Convey("Then the health check fails first", func() {
			_, err := Run(context.Background(), Config{BaseURL: url, Timeout: time.Second})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "health check")
		})
	})
}

func TestGenerator(t *testing.T) {
	Convey("Given a creator range of 100..102", t, func() {
		cfg := &Config{Events: 200, Creators: 3, FirstFID: 100}
		cfg.normalize()
		stats := &Stats{}
		events, err := generateEvents(context.Background(), cfg, stats)
		So(err, ShouldBeNil)

		Convey("Then every event is unique and touches only creators in range", func() {
			So(events, ShouldHaveLength, 200)
			ids := map[string]bool{}
			for _, ev := range events {
				So(ids[ev.ID], ShouldBeFalse)
				ids[ev.ID] = true
				So(ev.Touched(), ShouldNotBeEmpty)
				for _, fid := range ev.Touched() {
					So(fid, ShouldBeBetweenOrEqual, 100, 102)
				}
				if ev.Type == TypeFollowCreated {
					So(ev.Data.FID, ShouldNotEqual, ev.Data.TargetFID)
				}
			}
			So(stats.CreatorsTouched, ShouldBeLessThanOrEqualTo, 3)
		})

		Convey("Then redelivery share bounds the repeats", func() {
			none, repeats := deliveries(events, 0)
			So(none, ShouldHaveLength, 200)
			So(repeats, ShouldEqual, 0)

			all, repeats := deliveries(events, 1)
			So(all, ShouldHaveLength, 400)
			So(repeats, ShouldEqual, 200)
			So(all[0].ID, ShouldEqual, all[1].ID)
		})
	})
}

func TestChecks(t *testing.T) {
	Convey("Given leaderboards and job lists", t, func() {
		Convey("Then a descending board passes and an inverted one fails", func() {
			So(verifyLeaderboardOrder([]Entry{{OverallScore: 80}, {OverallScore: 80}, {OverallScore: 40}}), ShouldBeNil)
			So(verifyLeaderboardOrder([]Entry{{OverallScore: 40}, {OverallScore: 80}}), ShouldNotBeNil)
			So(verifyLeaderboardOrder(nil), ShouldBeNil)
		})

		Convey("Then creators without a job are listed in fid order", func() {
			touched := map[int64]struct{}{3: {}, 1: {}, 2: {}}
			missing := missingCreators(touched, []Job{{FID: 2, Status: "completed"}})
			So(missing, ShouldResemble, []int64{1, 3})
		})

		Convey("Then job states are tallied", func() {
			c, f, p := countJobs([]Job{{Status: "completed"}, {Status: "failed"}, {Status: "queued"}, {Status: "processing"}})
			So([]int{c, f, p}, ShouldResemble, []int{1, 1, 2})
		})

		Convey("Then signatures are hex HMAC-SHA512", func() {
			body := []byte(`{"id":"x"}`)
			mac := hmac.New(sha512.New, []byte("k"))
			mac.Write(body)
			So(Sign("k", body), ShouldEqual, hex.EncodeToString(mac.Sum(nil)))
		})
	})
}
