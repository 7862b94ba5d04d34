package model

import (
	"fmt"
	"time"
)

// Tier bounds.
const (
	MinTier = 1
	MaxTier = 6
)

var tierNames = [...]string{"", "Starter", "Bronze", "Silver", "Gold", "Platinum", "Diamond"} //nolint:gochecknoglobals // static table

// TierName returns the display name of a tier, "Unknown" when out of range.
func TierName(tier int) string {
	if tier < MinTier || tier > MaxTier {
		return "Unknown"
	}
	return tierNames[tier]
}

// PlaceholderHandle is the handle shown for creators with no known username.
func PlaceholderHandle(id int64) string {
	return fmt.Sprintf("user_%d", id)
}

// ScoreComponents holds the five sub-scores, each within [0,100].
type ScoreComponents struct {
	Engagement  float64 `json:"engagement"`
	Consistency float64 `json:"consistency"`
	Growth      float64 `json:"growth"`
	Quality     float64 `json:"quality"`
	Network     float64 `json:"network"`
}

// CreatorScore is one computed score for one creator on one calendar day.
// (CreatorID, ScoreDate) is unique and ShareableID is globally unique.
type CreatorScore struct {
	ID             uint            `gorm:"primaryKey" json:"-"`
	CreatorID      int64           `gorm:"not null;uniqueIndex:idx_creator_day,priority:1" json:"fid"`
	OverallScore   int             `gorm:"not null;index" json:"overallScore"`
	PercentileRank int             `gorm:"not null" json:"percentileRank"`
	Tier           int             `gorm:"not null" json:"tier"`
	Components     ScoreComponents `gorm:"embedded;embeddedPrefix:component_" json:"components"`
	ScoreDate      time.Time       `gorm:"not null;uniqueIndex:idx_creator_day,priority:2;index" json:"scoreDate"`
	ValidUntil     time.Time       `gorm:"not null" json:"validUntil"`
	ShareableID    string          `gorm:"size:32;not null;uniqueIndex" json:"shareableId"`
	// Provisional marks a score computed from degraded metrics.
	Provisional bool      `gorm:"not null;default:false" json:"provisional"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TableName pins the gorm table name.
func (CreatorScore) TableName() string { return "creator_scores" }

// TierName returns the display name of the score's tier.
func (s CreatorScore) TierName() string { return TierName(s.Tier) }

// ValidAt reports whether the score is still current at t.
func (s CreatorScore) ValidAt(t time.Time) bool {
	return t.Before(s.ValidUntil)
}

// StartOfDay truncates t to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// WaitlistEntry is a creator's place in the loan waitlist.
type WaitlistEntry struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	CreatorID int64     `gorm:"not null;uniqueIndex" json:"fid"`
	Email     string    `gorm:"size:254;not null" json:"email"`
	Position  int       `gorm:"not null" json:"position"`
	JoinedAt  time.Time `gorm:"not null" json:"joinedAt"`
}

// TableName pins the gorm table name.
func (WaitlistEntry) TableName() string { return "waitlist_entries" }
