// Package model contains domain models passed between layers.
package model

import "time"

// CreatorProfile is the cached identity and social stats of one creator.
// The store holds at most one profile per ID.
type CreatorProfile struct {
	ID              int64     `gorm:"primaryKey;autoIncrement:false" json:"fid"`
	Handle          string    `gorm:"size:64;index" json:"username"`
	DisplayName     string    `gorm:"size:128" json:"displayName,omitempty"`
	PfpURL          string    `gorm:"size:512" json:"pfpUrl,omitempty"`
	FollowerCount   int       `gorm:"not null;default:0" json:"followerCount"`
	FollowingCount  int       `gorm:"not null;default:0" json:"followingCount"`
	HasBadge        bool      `gorm:"not null;default:false" json:"powerBadge"`
	ReputationScore float64   `gorm:"not null;default:0" json:"reputationScore"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// TableName pins the gorm table name.
func (CreatorProfile) TableName() string { return "creator_profiles" }

// DisplayHandle falls back to user_<fid> when the handle is unknown.
func (p CreatorProfile) DisplayHandle() string {
	if p.Handle != "" {
		return p.Handle
	}
	return PlaceholderHandle(p.ID)
}

// PostMetric is the engagement snapshot of one post.
type PostMetric struct {
	ID          string    `json:"hash"`
	Timestamp   time.Time `json:"timestamp"`
	LikeCount   int       `json:"likes"`
	RecastCount int       `json:"recasts"`
	ReplyCount  int       `json:"replies"`
}

// Engagement weights recasts and replies above likes.
func (p PostMetric) Engagement() float64 {
	return float64(p.LikeCount) + 2*float64(p.RecastCount) + 1.5*float64(p.ReplyCount)
}

// IsViral reports whether the post cleared the recast or like threshold.
func (p PostMetric) IsViral() bool {
	return p.RecastCount > 10 || p.LikeCount > 50
}

// PostsPage is one page of a creator's posts, newest first. An empty
// NextCursor marks the last page.
type PostsPage struct {
	Posts      []PostMetric
	NextCursor string
}

// RawMetrics is a snapshot of a creator's recent activity and the signals
// derived from it. Snapshots are immutable once built.
type RawMetrics struct {
	CreatorID       int64        `json:"fid"`
	Handle          string       `json:"username"`
	DisplayName     string       `json:"displayName,omitempty"`
	PfpURL          string       `json:"pfpUrl,omitempty"`
	FollowerCount   int          `json:"followerCount"`
	FollowingCount  int          `json:"followingCount"`
	HasBadge        bool         `json:"powerBadge"`
	ReputationScore float64      `json:"reputationScore"`
	Posts           []PostMetric `json:"posts"`
	WindowDays      int          `json:"windowDays"`

	EngagementRate   float64 `json:"engagementRate"`
	PostingFrequency float64 `json:"postingFrequency"`
	GrowthRate       float64 `json:"growthRate"` // fraction, 0.2 is 20%
	ViralCoefficient float64 `json:"viralCoefficient"`
	NetworkScore     float64 `json:"networkScore"`

	// Degraded marks a zero-valued fallback built after an upstream failure.
	Degraded  bool      `json:"degraded"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Profile projects the identity fields onto a CreatorProfile.
func (m *RawMetrics) Profile() CreatorProfile {
	return CreatorProfile{
		ID:              m.CreatorID,
		Handle:          m.Handle,
		DisplayName:     m.DisplayName,
		PfpURL:          m.PfpURL,
		FollowerCount:   m.FollowerCount,
		FollowingCount:  m.FollowingCount,
		HasBadge:        m.HasBadge,
		ReputationScore: m.ReputationScore,
	}
}
