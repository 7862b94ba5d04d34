package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/somurie/internal/domain/model"
	"github.com/okian/somurie/internal/domain/signals"
)

// Leaderboard kinds.
const (
	LeaderboardAll     = "all"
	LeaderboardWeekly  = "weekly"
	LeaderboardFriends = "friends"
)

const (
	leaderboardLimit = 100
	friendsLimit     = 50
	friendsWindow    = 20
	weekDays         = 7
	trendingPosts    = 5
)

// LeaderboardEntry is one ranked creator.
type LeaderboardEntry struct {
	FID            int64  `json:"fid"`
	Username       string `json:"username"`
	OverallScore   int    `json:"overallScore"`
	Tier           int    `json:"tier"`
	PercentileRank int    `json:"percentileRank"`
	FollowerCount  int    `json:"followerCount"`
	HasBadge       bool   `json:"powerBadge"`
}

// Leaderboard ranks scores by kind. The friends board lists creators within
// a few points of fid's score today.
func (s *Service) Leaderboard(ctx context.Context, kind string, fid int64) ([]LeaderboardEntry, error) {
	today := s.today()

	var (
		scores []model.CreatorScore
		err    error
	)
	switch kind {
	case LeaderboardAll:
		scores, err = s.store.TopScoresOnDay(ctx, today, leaderboardLimit)
	case LeaderboardWeekly:
		scores, err = s.store.TopScoresSince(ctx, today.AddDate(0, 0, -weekDays), leaderboardLimit)
	case LeaderboardFriends:
		if fid <= 0 {
			return nil, invalid("FID required for friends leaderboard")
		}
		own, found, ferr := s.store.FindScore(ctx, fid, today)
		if ferr != nil {
			return nil, fmt.Errorf("find score: %w", ferr)
		}
		if !found {
			return []LeaderboardEntry{}, nil
		}
		scores, err = s.store.ScoresInRange(ctx, today,
			max(0, own.OverallScore-friendsWindow), min(100, own.OverallScore+friendsWindow),
			fid, friendsLimit)
	default:
		return nil, invalid("Invalid leaderboard type. Must be one of: all, weekly, friends")
	}
	if err != nil {
		return nil, fmt.Errorf("%s leaderboard: %w", kind, err)
	}

	ids := make([]int64, 0, len(scores))
	for _, sc := range scores {
		ids = append(ids, sc.CreatorID)
	}
	profiles, err := s.store.Profiles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}

	out := make([]LeaderboardEntry, 0, len(scores))
	for _, sc := range scores {
		p, ok := profiles[sc.CreatorID]
		if !ok {
			p = model.CreatorProfile{ID: sc.CreatorID}
		}
		out = append(out, LeaderboardEntry{
			FID:            sc.CreatorID,
			Username:       p.DisplayHandle(),
			OverallScore:   sc.OverallScore,
			Tier:           sc.Tier,
			PercentileRank: sc.PercentileRank,
			FollowerCount:  p.FollowerCount,
			HasBadge:       p.HasBadge,
		})
	}
	return out, nil
}

// MetricsView summarizes a creator's recent activity.
type MetricsView struct {
	FID              int64   `json:"fid"`
	Username         string  `json:"username"`
	Followers        int     `json:"followers"`
	Following        int     `json:"following"`
	Casts            int     `json:"casts"`
	EngagementRate   float64 `json:"engagementRate"`
	PostingFrequency float64 `json:"postingFrequency"`
	ViralCoefficient float64 `json:"viralCoefficient"`
	NetworkScore     float64 `json:"networkScore"`
	Degraded         bool    `json:"degraded"`
	signals.Totals
	FetchedAt string `json:"lastUpdated"`
}

// Metrics returns the activity summary of fid over the default window.
func (s *Service) Metrics(ctx context.Context, fid int64) (MetricsView, error) {
	m, err := s.metrics(ctx, fid)
	if err != nil {
		return MetricsView{}, err
	}
	return MetricsView{
		FID:              m.CreatorID,
		Username:         m.Profile().DisplayHandle(),
		Followers:        m.FollowerCount,
		Following:        m.FollowingCount,
		Casts:            len(m.Posts),
		EngagementRate:   m.EngagementRate,
		PostingFrequency: m.PostingFrequency,
		ViralCoefficient: m.ViralCoefficient,
		NetworkScore:     m.NetworkScore,
		Degraded:         m.Degraded,
		Totals:           signals.Sum(m.Posts),
		FetchedAt:        m.FetchedAt.UTC().Format(time.RFC3339),
	}, nil
}

// Trending returns fid's most engaging recent posts.
func (s *Service) Trending(ctx context.Context, fid int64) ([]model.PostMetric, error) {
	m, err := s.metrics(ctx, fid)
	if err != nil {
		return nil, err
	}
	return signals.TopPosts(m.Posts, trendingPosts), nil
}

func (s *Service) metrics(ctx context.Context, fid int64) (*model.RawMetrics, error) {
	if fid <= 0 {
		return nil, invalid("fid must be positive, got %d", fid)
	}
	m, err := s.fetcher.GetUserMetrics(ctx, fid, 0)
	if err != nil {
		return nil, fmt.Errorf("get metrics: %w", err)
	}
	return m, nil
}
