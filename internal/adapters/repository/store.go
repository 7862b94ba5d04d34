// Package repository persists creator profiles, daily scores and the loan
// waitlist.
package repository

import (
	"context"
	"time"

	"github.com/okian/somurie/internal/domain/model"
	"github.com/okian/somurie/pkg/metrics"
)

// Store provides read/write access to persisted state. All day arguments are
// score dates as produced by model.StartOfDay.
type Store interface {
	// UpsertProfile creates the profile or overwrites its fields.
	UpsertProfile(ctx context.Context, p model.CreatorProfile) error
	// CreateProfileIfAbsent inserts p unless a profile with its id exists.
	CreateProfileIfAbsent(ctx context.Context, p model.CreatorProfile) (bool, error)
	// Profile returns ErrNotFound for unknown ids.
	Profile(ctx context.Context, id int64) (model.CreatorProfile, error)
	// Profiles returns the known profiles among ids.
	Profiles(ctx context.Context, ids []int64) (map[int64]model.CreatorProfile, error)
	// ListCreatorIDs returns every creator with a profile, ascending.
	ListCreatorIDs(ctx context.Context) ([]int64, error)

	// UpsertScore writes the score of (CreatorID, ScoreDate). An existing
	// row keeps its ShareableID. Returns the stored row.
	UpsertScore(ctx context.Context, s model.CreatorScore) (model.CreatorScore, error)
	// FindScore returns the creator's score for day, if any.
	FindScore(ctx context.Context, creatorID int64, day time.Time) (model.CreatorScore, bool, error)
	// ScoreByShareableID returns ErrNotFound for unknown ids.
	ScoreByShareableID(ctx context.Context, id string) (model.CreatorScore, error)
	// ShareableIDExists reports whether id is assigned to any score.
	ShareableIDExists(ctx context.Context, id string) (bool, error)
	// CountScoresOnDay counts day's scores, and those strictly below score,
	// ignoring the scores of exclude.
	CountScoresOnDay(ctx context.Context, day time.Time, score float64, exclude int64) (below, total int, err error)

	// TopScoresOnDay returns day's best scores.
	TopScoresOnDay(ctx context.Context, day time.Time, limit int) ([]model.CreatorScore, error)
	// TopScoresSince returns the best scores dated on or after since.
	TopScoresSince(ctx context.Context, since time.Time, limit int) ([]model.CreatorScore, error)
	// ScoresInRange returns day's scores within [lo, hi] other than exclude's.
	ScoresInRange(ctx context.Context, day time.Time, lo, hi int, exclude int64, limit int) ([]model.CreatorScore, error)

	// JoinWaitlist appends the creator unless already present. created is
	// false when the existing entry is returned.
	JoinWaitlist(ctx context.Context, creatorID int64, email string, at time.Time) (entry model.WaitlistEntry, created bool, err error)
	// WaitlistEntry returns ErrNotFound when the creator has not joined.
	WaitlistEntry(ctx context.Context, creatorID int64) (model.WaitlistEntry, error)
	WaitlistCount(ctx context.Context) (int, error)

	Close() error
}

// Result orderings: overall score desc, then creator id asc, then newest day.
func before(a, b model.CreatorScore) bool {
	if a.OverallScore != b.OverallScore {
		return a.OverallScore > b.OverallScore
	}
	if a.CreatorID != b.CreatorID {
		return a.CreatorID < b.CreatorID
	}
	return a.ScoreDate.After(b.ScoreDate)
}

func normalizeDay(t time.Time) time.Time { return t.UTC() }

func observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.RecordStoreLatency(op, float64(time.Since(start).Milliseconds()))
	}
}
