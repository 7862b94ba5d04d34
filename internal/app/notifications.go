package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/somurie/internal/adapters/notify"
	"github.com/okian/somurie/internal/domain/model"
)

const (
	rivalLimit      = 10
	beatMargin      = 5
	challengeTarget = "/score/calculate"
)

// Broadcaster fans a notification out to its sinks.
type Broadcaster interface {
	Broadcast(ctx context.Context, n notify.Notification) error
}

// RivalFinder finds same-day scores near a given score.
type RivalFinder interface {
	ScoresInRange(ctx context.Context, day time.Time, lo, hi int, exclude int64, limit int) ([]model.CreatorScore, error)
}

// Challenger sends challenge notifications.
type Challenger interface {
	Challenge(ctx context.Context, challenger model.CreatorProfile, targetID int64) error
}

// Notifications builds user-facing notifications from score events.
type Notifications struct {
	rivals RivalFinder
	sink   Broadcaster
}

// NewNotifications creates the notification policy over rivals and sink.
func NewNotifications(rivals RivalFinder, sink Broadcaster) *Notifications {
	return &Notifications{rivals: rivals, sink: sink}
}

// ScoreUpdated alerts creators the new score just overtook by less than
// beatMargin points.
func (n *Notifications) ScoreUpdated(ctx context.Context, s model.CreatorScore) error {
	// Only the beaten band is queried so higher scorers cannot fill the limit.
	lo, hi := max(0, s.OverallScore-beatMargin+1), s.OverallScore-1
	if hi < lo {
		return nil
	}
	rivals, err := n.rivals.ScoresInRange(ctx, s.ScoreDate, lo, hi, s.CreatorID, rivalLimit)
	if err != nil {
		return fmt.Errorf("find rivals: %w", err)
	}

	var errs []error
	for _, r := range rivals {
		err := n.sink.Broadcast(ctx, notify.Notification{
			TargetID:  r.CreatorID,
			Title:     "Friend Alert!",
			Body:      fmt.Sprintf("@%d just beat your score with %d!", s.CreatorID, s.OverallScore),
			ActionURL: "/challenge/" + strconv.FormatInt(s.CreatorID, 10),
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Challenge tells targetID that challenger dared them.
func (n *Notifications) Challenge(ctx context.Context, challenger model.CreatorProfile, targetID int64) error {
	return n.sink.Broadcast(ctx, notify.Notification{
		TargetID:  targetID,
		Title:     "You've been challenged!",
		Body:      fmt.Sprintf("@%s challenged you to beat their Creator Score!", challenger.DisplayHandle()),
		ActionURL: challengeTarget,
	})
}
