package scoring

import (
	"math"

	"github.com/okian/somurie/internal/domain/model"
)

// Formula constants.
const (
	maxComponent = 100.0
	halfCap      = 50.0

	engagementLogScale    = 25.0
	consistencyOptimum    = 2.0 // posts per day
	consistencyDeviation  = 20.0
	growthFollowerScale   = 10.0
	growthRateScale       = 100.0
	qualityReputationMult = 50.0

	spamFrequency     = 10.0
	spamPenalty       = 0.7
	lowRatioThreshold = 0.5
	lowRatioPenalty   = 0.8

	defaultPercentile = 50
	topQuintile       = 80
	belowTopCap       = 79.0
	compressionStart  = 80.0
	compressionScale  = 10.0
)

// Weights are the per-component multipliers of the weighted sum.
type Weights struct {
	Engagement  float64
	Consistency float64
	Growth      float64
	Quality     float64
	Network     float64
}

// DefaultWeights sum to 1 so the weighted sum stays within [0,100].
func DefaultWeights() Weights {
	return Weights{Engagement: 0.35, Consistency: 0.20, Growth: 0.20, Quality: 0.15, Network: 0.10}
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Engagement + w.Consistency + w.Growth + w.Quality + w.Network
}

func (w Weights) valid() bool {
	for _, v := range []float64{w.Engagement, w.Consistency, w.Growth, w.Quality, w.Network} {
		if v < 0 || math.IsNaN(v) {
			return false
		}
	}
	return math.Abs(w.Sum()-1) < 1e-9
}

// Normalize maps raw signals to components within [0,100].
func Normalize(m *model.RawMetrics) model.ScoreComponents {
	er := finite(m.EngagementRate)
	pf := finite(m.PostingFrequency)

	engagement := math.Min(maxComponent, engagementLogScale*math.Log10(math.Max(1, er)))
	consistency := clamp(maxComponent-consistencyDeviation*math.Abs(pf-consistencyOptimum), 0, maxComponent)
	growth := math.Min(halfCap, growthFollowerScale*math.Log10(math.Max(1, float64(m.FollowerCount)))) +
		clamp(growthRateScale*finite(m.GrowthRate), 0, halfCap)
	quality := clamp(finite(m.ViralCoefficient), 0, halfCap) +
		clamp(qualityReputationMult*finite(m.ReputationScore), 0, halfCap)
	network := clamp(finite(m.NetworkScore), 0, maxComponent)

	return model.ScoreComponents{
		Engagement:  engagement,
		Consistency: consistency,
		Growth:      growth,
		Quality:     quality,
		Network:     network,
	}
}

// Adjust applies the anti-gaming penalties: heavy posting dampens
// consistency and a low engagement-per-post ratio dampens quality.
func Adjust(c model.ScoreComponents, m *model.RawMetrics) model.ScoreComponents {
	pf := finite(m.PostingFrequency)
	if pf > spamFrequency {
		c.Consistency *= spamPenalty
	}
	if finite(m.EngagementRate)/math.Max(1, pf) < lowRatioThreshold {
		c.Quality *= lowRatioPenalty
	}
	return c
}

// Weighted sums the components under w.
func Weighted(c model.ScoreComponents, w Weights) float64 {
	return c.Engagement*w.Engagement +
		c.Consistency*w.Consistency +
		c.Growth*w.Growth +
		c.Quality*w.Quality +
		c.Network*w.Network
}

// Percentile converts a below/total count into a 0-100 rank.
// An empty population ranks at the median.
func Percentile(below, total int) int {
	if total <= 0 {
		return defaultPercentile
	}
	p := int(math.Round(float64(below) / float64(total) * 100))
	return int(clamp(float64(p), 0, 100))
}

// Shape enforces the distribution: only the top quintile may exceed 79 and
// scores above 80 are compressed logarithmically.
func Shape(score float64, percentile int) float64 {
	score = clamp(finite(score), 0, maxComponent)
	if percentile < topQuintile {
		return math.Min(score, belowTopCap)
	}
	if score > compressionStart {
		return math.Min(maxComponent, compressionStart+compressionScale*math.Log(1+(score-compressionStart)))
	}
	return score
}

// TierFor maps an overall score to tiers 1..6.
func TierFor(overall int) int {
	switch {
	case overall >= 90:
		return 6
	case overall >= 80:
		return 5
	case overall >= 70:
		return 4
	case overall >= 60:
		return 3
	case overall >= 40:
		return 2
	default:
		return 1
	}
}

// Round2 rounds to two decimals.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func roundComponents(c model.ScoreComponents) model.ScoreComponents {
	return model.ScoreComponents{
		Engagement:  Round2(c.Engagement),
		Consistency: Round2(c.Consistency),
		Growth:      Round2(c.Growth),
		Quality:     Round2(c.Quality),
		Network:     Round2(c.Network),
	}
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
