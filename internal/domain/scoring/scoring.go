// Package scoring turns raw creator signals into a normalized, weighted and
// distribution-shaped creator score.
package scoring

import (
	"context"
	"fmt"
	"math"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/okian/somurie/internal/domain/model"
)

// Default scoring configuration constants.
const (
	shareIDAlphabet     = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	shareIDLength       = 10
	defaultShareRerolls = 5
	validity            = 24 * time.Hour
)

// History is the read side of persisted scores the calculator consults.
type History interface {
	// CountScoresOnDay returns how many scores exist for day and how many of
	// them are strictly below score. Scores of exclude are not counted.
	CountScoresOnDay(ctx context.Context, day time.Time, score float64, exclude int64) (below, total int, err error)

	// FindScore returns the creator's score for day, if any.
	FindScore(ctx context.Context, creatorID int64, day time.Time) (model.CreatorScore, bool, error)

	// ShareableIDExists reports whether id is already assigned.
	ShareableIDExists(ctx context.Context, id string) (bool, error)
}

// Calculator computes CreatorScores. It is safe for concurrent use.
type Calculator struct {
	history History
	weights Weights
	now     func() time.Time
	loc     *time.Location
	newID   func() (string, error)
	rerolls int
}

// NewCalculator creates a calculator backed by history.
func NewCalculator(history History, opts ...Option) (*Calculator, error) {
	c := &Calculator{
		history: history,
		weights: DefaultWeights(),
		now:     time.Now,
		loc:     time.UTC,
		newID: func() (string, error) {
			return gonanoid.Generate(shareIDAlphabet, shareIDLength)
		},
		rerolls: defaultShareRerolls,
	}

	for _, opt := range opts {
		opt(c)
	}

	if history == nil {
		return nil, ErrNoHistory
	}
	if !c.weights.valid() {
		return nil, fmt.Errorf("%w: sum=%.4f", ErrInvalidWeights, c.weights.Sum())
	}
	return c, nil
}

// Today returns the current score date.
func (c *Calculator) Today() time.Time {
	return model.StartOfDay(c.now(), c.loc)
}

// CalculateScore derives today's CreatorScore from m.
func (c *Calculator) CalculateScore(ctx context.Context, m *model.RawMetrics) (model.CreatorScore, error) {
	if m == nil {
		return model.CreatorScore{}, ErrNilMetrics
	}

	components := Adjust(Normalize(m), m)
	raw := Weighted(components, c.weights)

	day := c.Today()
	below, total, err := c.history.CountScoresOnDay(ctx, day, raw, m.CreatorID)
	if err != nil {
		return model.CreatorScore{}, fmt.Errorf("percentile lookup: %w", err)
	}
	percentile := Percentile(below, total)

	overall := int(math.Round(Shape(raw, percentile)))
	shareID, err := c.shareableID(ctx, m.CreatorID, day)
	if err != nil {
		return model.CreatorScore{}, err
	}

	return model.CreatorScore{
		CreatorID:      m.CreatorID,
		OverallScore:   overall,
		PercentileRank: percentile,
		Tier:           TierFor(overall),
		Components:     roundComponents(components),
		ScoreDate:      day,
		ValidUntil:     day.Add(validity),
		ShareableID:    shareID,
		Provisional:    m.Degraded,
	}, nil
}

// shareableID keeps the id of an existing same-day row, otherwise draws a
// fresh one and re-rolls on collision.
func (c *Calculator) shareableID(ctx context.Context, creatorID int64, day time.Time) (string, error) {
	existing, found, err := c.history.FindScore(ctx, creatorID, day)
	if err != nil {
		return "", fmt.Errorf("existing score lookup: %w", err)
	}
	if found && existing.ShareableID != "" {
		return existing.ShareableID, nil
	}

	for i := 0; i < c.rerolls; i++ {
		id, err := c.newID()
		if err != nil {
			return "", fmt.Errorf("generate shareable id: %w", err)
		}
		taken, err := c.history.ShareableIDExists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("shareable id lookup: %w", err)
		}
		if !taken {
			return id, nil
		}
	}
	return "", ErrShareIDExhausted
}
