package signals

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/okian/somurie/internal/domain/model"
)

// Follower-count buckets standing in for real growth tracking.
const (
	growthSmall  = 100
	growthMedium = 1_000
	growthLarge  = 10_000

	badgeBonus   = 20.0
	networkCap   = 100.0
	networkRatio = 10.0
)

// GrowthRate maps a follower count onto a coarse growth rate. The result is
// a fraction in [0.10, 0.40], not a percentage: 0.20 means 20%.
func GrowthRate(followers int) float64 {
	switch {
	case followers < growthSmall:
		return 0.10
	case followers < growthMedium:
		return 0.20
	case followers < growthLarge:
		return 0.30
	default:
		return 0.40
	}
}

// NetworkScore rewards a high follower/following ratio and the badge.
func NetworkScore(followers, following int, badge bool) float64 {
	s := networkRatio * float64(followers) / float64(max(following, 1))
	if badge {
		s += badgeBonus
	}
	return math.Min(networkCap, s)
}

// Derive builds a RawMetrics snapshot from a profile and the posts inside the
// window.
func Derive(p model.CreatorProfile, posts []model.PostMetric, windowDays int, now time.Time) *model.RawMetrics {
	m := &model.RawMetrics{
		CreatorID:       p.ID,
		Handle:          p.Handle,
		DisplayName:     p.DisplayName,
		PfpURL:          p.PfpURL,
		FollowerCount:   p.FollowerCount,
		FollowingCount:  p.FollowingCount,
		HasBadge:        p.HasBadge,
		ReputationScore: p.ReputationScore,
		Posts:           posts,
		WindowDays:      windowDays,
		GrowthRate:      GrowthRate(p.FollowerCount),
		NetworkScore:    NetworkScore(p.FollowerCount, p.FollowingCount, p.HasBadge),
		FetchedAt:       now,
	}

	n := len(posts)
	if windowDays > 0 {
		m.PostingFrequency = float64(n) / float64(windowDays)
	}
	if n == 0 {
		return m
	}

	var total float64
	viral := 0
	for _, post := range posts {
		total += post.Engagement()
		if post.IsViral() {
			viral++
		}
	}
	m.EngagementRate = total / float64(n)
	m.ViralCoefficient = 100 * float64(viral) / float64(n)
	return m
}

// Fallback is the zero-valued snapshot returned when the upstream could not
// be reached. It is marked degraded.
func Fallback(fid int64, windowDays int, now time.Time) *model.RawMetrics {
	return &model.RawMetrics{
		CreatorID:  fid,
		Posts:      []model.PostMetric{},
		WindowDays: windowDays,
		Degraded:   true,
		FetchedAt:  now,
	}
}

// TopPosts returns up to n posts ordered by engagement, highest first.
func TopPosts(posts []model.PostMetric, n int) []model.PostMetric {
	out := slices.Clone(posts)
	slices.SortStableFunc(out, func(a, b model.PostMetric) int {
		return cmp.Compare(b.Engagement(), a.Engagement())
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Totals sums the reactions across posts.
type Totals struct {
	Likes   int `json:"totalLikes"`
	Recasts int `json:"totalRecasts"`
	Replies int `json:"totalReplies"`
}

// Sum aggregates reaction counts.
func Sum(posts []model.PostMetric) Totals {
	var t Totals
	for _, p := range posts {
		t.Likes += p.LikeCount
		t.Recasts += p.RecastCount
		t.Replies += p.ReplyCount
	}
	return t
}
