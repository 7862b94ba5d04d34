package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/somurie/internal/adapters/notify"
	"github.com/okian/somurie/internal/adapters/repository"
	service "github.com/okian/somurie/internal/app"
	"github.com/okian/somurie/internal/domain/model"
)

type captureSink struct {
	sent []notify.Notification
	err  error
}

func (c *captureSink) Broadcast(_ context.Context, n notify.Notification) error {
	c.sent = append(c.sent, n)
	return c.err
}

func TestNotifications(t *testing.T) {
	Convey("Given scores around a creator", t, func() {
		ctx := context.Background()
		day := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
		store := repository.NewMemoryStore()
		for fid, overall := range map[int64]int{2: 58, 3: 61, 4: 56, 5: 40, 6: 75} {
			_, err := store.UpsertScore(ctx, model.CreatorScore{
				CreatorID: fid, OverallScore: overall, ScoreDate: day,
				ShareableID: fmt.Sprintf("s%d", fid),
			})
			So(err, ShouldBeNil)
		}
		sink := &captureSink{}
		n := service.NewNotifications(store, sink)

		Convey("When creator 1 scores 60", func() {
			err := n.ScoreUpdated(ctx, model.CreatorScore{CreatorID: 1, OverallScore: 60, ScoreDate: day})

			Convey("Then only creators just beaten are alerted", func() {
				So(err, ShouldBeNil)
				targets := map[int64]bool{}
				for _, s := range sink.sent {
					targets[s.TargetID] = true
					So(s.Title, ShouldEqual, "Friend Alert!")
					So(s.Body, ShouldEqual, "@1 just beat your score with 60!")
					So(s.ActionURL, ShouldEqual, "/challenge/1")
				}
				So(targets, ShouldResemble, map[int64]bool{2: true, 4: true})
			})
		})

		Convey("When the lowest possible score arrives", func() {
			err := n.ScoreUpdated(ctx, model.CreatorScore{CreatorID: 1, OverallScore: 0, ScoreDate: day})

			Convey("Then nobody is alerted", func() {
				So(err, ShouldBeNil)
				So(sink.sent, ShouldBeEmpty)
			})
		})

		Convey("When delivery fails", func() {
			sink.err = errors.New("sink down")
			err := n.ScoreUpdated(ctx, model.CreatorScore{CreatorID: 1, OverallScore: 60, ScoreDate: day})

			Convey("Then the failures are returned", func() {
				So(err, ShouldNotBeNil)
				So(sink.sent, ShouldHaveLength, 2)
			})
		})

		Convey("When a challenge is sent", func() {
			err := n.Challenge(ctx, model.CreatorProfile{ID: 7, Handle: "ann"}, 3)

			Convey("Then the target is told who dared them", func() {
				So(err, ShouldBeNil)
				So(sink.sent, ShouldHaveLength, 1)
				So(sink.sent[0].TargetID, ShouldEqual, 3)
				So(sink.sent[0].Body, ShouldEqual, "@ann challenged you to beat their Creator Score!")
				So(sink.sent[0].ActionURL, ShouldEqual, "/score/calculate")
			})
		})
	})
}

func TestNotificationsCrowdedUpperBand(t *testing.T) {
	Convey("Given ten creators scoring just above a beaten one", t, func() {
		ctx := context.Background()
		day := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
		store := repository.NewMemoryStore()
		for i := 0; i < 10; i++ {
			fid := int64(10 + i)
			_, err := store.UpsertScore(ctx, model.CreatorScore{
				CreatorID: fid, OverallScore: 65 + i, ScoreDate: day,
				ShareableID: fmt.Sprintf("s%d", fid),
			})
			So(err, ShouldBeNil)
		}
		_, err := store.UpsertScore(ctx, model.CreatorScore{
			CreatorID: 2, OverallScore: 58, ScoreDate: day, ShareableID: "s2",
		})
		So(err, ShouldBeNil)
		sink := &captureSink{}
		n := service.NewNotifications(store, sink)

		Convey("When creator 1 scores 60", func() {
			err := n.ScoreUpdated(ctx, model.CreatorScore{CreatorID: 1, OverallScore: 60, ScoreDate: day})

			Convey("Then the creator just beaten is still alerted", func() {
				So(err, ShouldBeNil)
				So(sink.sent, ShouldHaveLength, 1)
				So(sink.sent[0].TargetID, ShouldEqual, 2)
			})
		})
	})
}
