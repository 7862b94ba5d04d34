// Package loan maps a creator score to indicative loan terms.
package loan

import (
	"fmt"
	"math"

	"github.com/okian/somurie/internal/domain/model"
)

const minRate = 0.05

type tierTerms struct {
	rate      float64
	maxAmount int
	graceDays int
}

var tiers = map[int]tierTerms{ //nolint:gochecknoglobals // static lookup table
	1: {rate: 0.15, maxAmount: 1000, graceDays: 14},
	2: {rate: 0.13, maxAmount: 2500, graceDays: 21},
	3: {rate: 0.11, maxAmount: 5000, graceDays: 30},
	4: {rate: 0.095, maxAmount: 7500, graceDays: 30},
	5: {rate: 0.08, maxAmount: 10000, graceDays: 45},
	6: {rate: 0.065, maxAmount: 15000, graceDays: 60},
}

type bonus struct {
	applies func(model.ScoreComponents) bool
	delta   float64
	label   string
}

var bonuses = []bonus{ //nolint:gochecknoglobals // static lookup table
	{func(c model.ScoreComponents) bool { return c.Consistency > 80 }, -0.005, "Consistency bonus: -0.5% APR"},
	{func(c model.ScoreComponents) bool { return c.Engagement > 85 }, -0.01, "High engagement bonus: -1% APR"},
	{func(c model.ScoreComponents) bool { return c.Network > 90 }, -0.005, "Network influence bonus: -0.5% APR"},
}

// Terms are the loan conditions offered for a score.
type Terms struct {
	InterestRate float64  `json:"interestRate"`
	MaxAmount    int      `json:"maxAmount"`
	GracePeriod  int      `json:"gracePeriod"`
	Tier         int      `json:"tier"`
	TierName     string   `json:"tierName"`
	Benefits     []string `json:"benefits"`
}

// For returns the terms for s. Unknown tiers get Starter terms.
func For(s model.CreatorScore) Terms {
	tier := s.Tier
	base, ok := tiers[tier]
	if !ok {
		tier = model.MinTier
		base = tiers[tier]
	}

	benefits := []string{
		fmt.Sprintf("%s Tier Benefits", model.TierName(tier)),
		fmt.Sprintf("Base rate: %.1f%% APR", base.rate*100),
	}
	adjust := 0.0
	for _, b := range bonuses {
		if b.applies(s.Components) {
			adjust += b.delta
			benefits = append(benefits, b.label)
		}
	}

	return Terms{
		InterestRate: math.Round(math.Max(minRate, base.rate+adjust)*10000) / 10000,
		MaxAmount:    base.maxAmount,
		GracePeriod:  base.graceDays,
		Tier:         s.Tier,
		TierName:     model.TierName(tier),
		Benefits:     benefits,
	}
}
