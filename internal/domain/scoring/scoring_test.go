package scoring_test

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/okian/somurie/internal/adapters/repository"
	"github.com/okian/somurie/internal/domain/model"
	"github.com/okian/somurie/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeHistory is an in-memory History.
type fakeHistory struct {
	mu       sync.Mutex
	scores   []model.CreatorScore
	taken    map[string]bool
	countErr error
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{taken: map[string]bool{}}
}

func (f *fakeHistory) add(s model.CreatorScore) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores = append(f.scores, s)
	f.taken[s.ShareableID] = true
}

func (f *fakeHistory) CountScoresOnDay(_ context.Context, day time.Time, score float64, exclude int64) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, 0, f.countErr
	}
	below, total := 0, 0
	for _, s := range f.scores {
		if !s.ScoreDate.Equal(day) || s.CreatorID == exclude {
			continue
		}
		total++
		if float64(s.OverallScore) < score {
			below++
		}
	}
	return below, total, nil
}

func (f *fakeHistory) FindScore(_ context.Context, id int64, day time.Time) (model.CreatorScore, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.scores {
		if s.CreatorID == id && s.ScoreDate.Equal(day) {
			return s, true, nil
		}
	}
	return model.CreatorScore{}, false, nil
}

func (f *fakeHistory) ShareableIDExists(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.taken[id], nil
}

var fixedNow = time.Date(2026, 5, 10, 15, 4, 5, 0, time.UTC)

func clock() time.Time { return fixedNow }

func TestNormalize(t *testing.T) {
	Convey("Given a creator with no posts and no followers", t, func() {
		m := &model.RawMetrics{}
		c := scoring.Normalize(m)

		Convey("Then engagement is zero and consistency sits 40 below the optimum", func() {
			So(c.Engagement, ShouldEqual, 0)
			So(c.Consistency, ShouldEqual, 60)
			So(c.Network, ShouldEqual, 0)
			So(c.Growth, ShouldEqual, 0)
			So(c.Quality, ShouldEqual, 0)
		})
	})

	Convey("Given a strong creator", t, func() {
		m := &model.RawMetrics{
			EngagementRate:   1000,
			PostingFrequency: 2,
			FollowerCount:    100000,
			GrowthRate:       0.4,
			ViralCoefficient: 80,
			ReputationScore:  1,
			NetworkScore:     150,
		}
		c := scoring.Normalize(m)

		Convey("Then each component follows its formula", func() {
			So(c.Engagement, ShouldAlmostEqual, 75, 1e-9)
			So(c.Consistency, ShouldEqual, 100)
			So(c.Growth, ShouldAlmostEqual, 50+40, 1e-9)
			So(c.Quality, ShouldEqual, 100)
			So(c.Network, ShouldEqual, 100)
		})
	})

	Convey("Given non-finite inputs", t, func() {
		m := &model.RawMetrics{EngagementRate: math.NaN(), PostingFrequency: math.Inf(1), NetworkScore: math.NaN()}
		c := scoring.Normalize(m)

		Convey("Then they are treated as zero", func() {
			So(c.Engagement, ShouldEqual, 0)
			So(c.Consistency, ShouldEqual, 60)
			So(c.Network, ShouldEqual, 0)
		})
	})
}

func TestAdjust(t *testing.T) {
	Convey("Given components of 100", t, func() {
		full := model.ScoreComponents{Engagement: 100, Consistency: 100, Growth: 100, Quality: 100, Network: 100}

		Convey("When posting more than 10 times a day with weak engagement", func() {
			got := scoring.Adjust(full, &model.RawMetrics{PostingFrequency: 12, EngagementRate: 3})

			Convey("Then consistency and quality are both penalized", func() {
				So(got.Consistency, ShouldAlmostEqual, 70, 1e-9)
				So(got.Quality, ShouldAlmostEqual, 80, 1e-9)
				So(got.Engagement, ShouldEqual, 100)
			})
		})

		Convey("When engagement per post is healthy", func() {
			got := scoring.Adjust(full, &model.RawMetrics{PostingFrequency: 2, EngagementRate: 10})

			Convey("Then nothing changes", func() {
				So(got, ShouldResemble, full)
			})
		})

		Convey("When frequency is below one the ratio uses one as divisor", func() {
			got := scoring.Adjust(full, &model.RawMetrics{PostingFrequency: 0.1, EngagementRate: 0.4})
			So(got.Quality, ShouldAlmostEqual, 80, 1e-9)
		})
	})
}

func TestPercentileAndShape(t *testing.T) {
	Convey("Percentile rounds the strictly-below share", t, func() {
		So(scoring.Percentile(0, 0), ShouldEqual, 50)
		So(scoring.Percentile(1, 3), ShouldEqual, 33)
		So(scoring.Percentile(2, 3), ShouldEqual, 67)
		So(scoring.Percentile(5, 5), ShouldEqual, 100)
	})

	Convey("Shape caps below the top quintile", t, func() {
		So(scoring.Shape(95, 79), ShouldEqual, 79)
		So(scoring.Shape(60, 10), ShouldEqual, 60)
	})

	Convey("Shape compresses above 80 for the top quintile", t, func() {
		So(scoring.Shape(80, 90), ShouldEqual, 80)
		So(scoring.Shape(85, 90), ShouldAlmostEqual, 80+10*math.Log(6), 1e-9)
		So(scoring.Shape(99, 100), ShouldEqual, 100)
		So(scoring.Shape(-3, 100), ShouldEqual, 0)
	})
}

func TestTierFor(t *testing.T) {
	Convey("Tier boundaries", t, func() {
		cases := map[int]int{0: 1, 39: 1, 40: 2, 59: 2, 60: 3, 70: 4, 79: 4, 80: 5, 89: 5, 90: 6, 100: 6}
		for score, tier := range cases {
			So(scoring.TierFor(score), ShouldEqual, tier)
		}
	})

	Convey("Tier never decreases as the score grows", t, func() {
		prev := scoring.TierFor(0)
		for s := 1; s <= 100; s++ {
			cur := scoring.TierFor(s)
			So(cur, ShouldBeGreaterThanOrEqualTo, prev)
			prev = cur
		}
	})
}

func TestNewCalculator(t *testing.T) {
	Convey("Construction validates inputs", t, func() {
		_, err := scoring.NewCalculator(nil)
		So(errors.Is(err, scoring.ErrNoHistory), ShouldBeTrue)

		_, err = scoring.NewCalculator(newFakeHistory(), scoring.WithWeights(scoring.Weights{Engagement: 0.5}))
		So(errors.Is(err, scoring.ErrInvalidWeights), ShouldBeTrue)

		c, err := scoring.NewCalculator(newFakeHistory())
		So(err, ShouldBeNil)
		So(c, ShouldNotBeNil)
	})
}

func TestCalculateScore(t *testing.T) {
	ctx := context.Background()

	Convey("Given a calculator with a fixed clock", t, func() {
		h := newFakeHistory()
		calc, err := scoring.NewCalculator(h, scoring.WithClock(clock))
		So(err, ShouldBeNil)
		today := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)

		strong := &model.RawMetrics{
			CreatorID: 42, EngagementRate: 10000, PostingFrequency: 2, FollowerCount: 1_000_000,
			GrowthRate: 0.4, ViralCoefficient: 100, ReputationScore: 1, NetworkScore: 100,
		}

		Convey("When no scores exist today", func() {
			s, err := calc.CalculateScore(ctx, strong)

			Convey("Then the percentile defaults to 50 and the score is capped at 79", func() {
				So(err, ShouldBeNil)
				So(s.PercentileRank, ShouldEqual, 50)
				So(s.OverallScore, ShouldEqual, 79)
				So(s.Tier, ShouldEqual, 4)
				So(s.ScoreDate, ShouldEqual, today)
				So(s.ValidUntil, ShouldEqual, today.Add(24*time.Hour))
				So(len(s.ShareableID), ShouldEqual, 10)
				So(s.Provisional, ShouldBeFalse)
			})
		})

		Convey("When the creator beats every score today", func() {
			for i := int64(1); i <= 9; i++ {
				h.add(model.CreatorScore{CreatorID: 100 + i, OverallScore: 30, ScoreDate: today, ShareableID: "x" + string(rune('a'+i))})
			}
			s, err := calc.CalculateScore(ctx, strong)

			Convey("Then the score may exceed 79 but is compressed", func() {
				So(err, ShouldBeNil)
				So(s.PercentileRank, ShouldEqual, 100)
				So(s.OverallScore, ShouldBeGreaterThan, 79)
				So(s.OverallScore, ShouldBeLessThanOrEqualTo, 100)
				So(s.Tier, ShouldBeGreaterThanOrEqualTo, 5)
			})
		})

		Convey("When the creator already has a score today", func() {
			h.add(model.CreatorScore{CreatorID: 42, OverallScore: 99, ScoreDate: today, ShareableID: "keepme1234"})
			s, err := calc.CalculateScore(ctx, strong)

			Convey("Then the shareable id is preserved and its own row is not counted", func() {
				So(err, ShouldBeNil)
				So(s.ShareableID, ShouldEqual, "keepme1234")
				So(s.PercentileRank, ShouldEqual, 50)
			})
		})

		Convey("When metrics are degraded", func() {
			s, err := calc.CalculateScore(ctx, &model.RawMetrics{CreatorID: 7, Degraded: true})

			Convey("Then the score is provisional", func() {
				So(err, ShouldBeNil)
				So(s.Provisional, ShouldBeTrue)
				So(s.Components.Consistency, ShouldEqual, 60)
			})
		})

		Convey("When the history lookup fails", func() {
			h.countErr = errors.New("db down")
			_, err := calc.CalculateScore(ctx, strong)
			So(err, ShouldNotBeNil)
		})

		Convey("When metrics are nil", func() {
			_, err := calc.CalculateScore(ctx, nil)
			So(errors.Is(err, scoring.ErrNilMetrics), ShouldBeTrue)
		})
	})

	Convey("Given a generator that collides first", t, func() {
		h := newFakeHistory()
		h.taken["dup"] = true
		ids := []string{"dup", "dup", "fresh"}
		calls := 0
		calc, err := scoring.NewCalculator(h, scoring.WithClock(clock), scoring.WithIDGenerator(func() (string, error) {
			id := ids[calls]
			calls++
			return id, nil
		}))
		So(err, ShouldBeNil)

		Convey("Then it re-rolls until a free id is found", func() {
			s, err := calc.CalculateScore(ctx, &model.RawMetrics{CreatorID: 1})
			So(err, ShouldBeNil)
			So(s.ShareableID, ShouldEqual, "fresh")
			So(calls, ShouldEqual, 3)
		})
	})

	Convey("Given a generator that always collides", t, func() {
		h := newFakeHistory()
		h.taken["dup"] = true
		calc, _ := scoring.NewCalculator(h, scoring.WithRerolls(2), scoring.WithIDGenerator(func() (string, error) { return "dup", nil }))

		Convey("Then allocation gives up", func() {
			_, err := calc.CalculateScore(ctx, &model.RawMetrics{CreatorID: 1})
			So(errors.Is(err, scoring.ErrShareIDExhausted), ShouldBeTrue)
		})
	})
}

func TestScoreBounds(t *testing.T) {
	Convey("For random metrics every output stays in range", t, func() {
		h := newFakeHistory()
		calc, err := scoring.NewCalculator(h, scoring.WithClock(clock))
		So(err, ShouldBeNil)
		today := calc.Today()
		rng := rand.New(rand.NewSource(7))

		for i := 0; i < 500; i++ {
			m := &model.RawMetrics{
				CreatorID:        int64(i + 1),
				EngagementRate:   rng.Float64() * 5000,
				PostingFrequency: rng.Float64() * 30,
				FollowerCount:    rng.Intn(2_000_000),
				GrowthRate:       rng.Float64(),
				ViralCoefficient: rng.Float64() * 100,
				ReputationScore:  rng.Float64(),
				NetworkScore:     rng.Float64() * 200,
			}
			s, err := calc.CalculateScore(context.Background(), m)
			So(err, ShouldBeNil)

			for _, v := range []float64{s.Components.Engagement, s.Components.Consistency, s.Components.Growth, s.Components.Quality, s.Components.Network} {
				So(v, ShouldBeBetweenOrEqual, 0, 100)
			}
			So(s.OverallScore, ShouldBeBetweenOrEqual, 0, 100)
			So(s.Tier, ShouldEqual, scoring.TierFor(s.OverallScore))
			if s.PercentileRank < 80 {
				So(s.OverallScore, ShouldBeLessThanOrEqualTo, 79)
			}
			So(s.ScoreDate, ShouldEqual, today)
			h.add(s)
		}
	})
}

func TestFirstScoreOfTheDay(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty store", t, func() {
		store := repository.NewMemoryStore(repository.WithClock(clock))
		calc, err := scoring.NewCalculator(store, scoring.WithClock(clock))
		So(err, ShouldBeNil)
		m := &model.RawMetrics{CreatorID: 1, EngagementRate: 300, PostingFrequency: 1, FollowerCount: 2000, NetworkScore: 40}

		Convey("When the first creator of the day is scored", func() {
			first, err := calc.CalculateScore(ctx, m)
			So(err, ShouldBeNil)

			Convey("Then the percentile is the neutral 50", func() {
				So(first.PercentileRank, ShouldEqual, 50)
			})

			Convey("Then a same-day recompute is not judged against its own row", func() {
				_, err := store.UpsertScore(ctx, first)
				So(err, ShouldBeNil)
				again, err := calc.CalculateScore(ctx, m)
				So(err, ShouldBeNil)
				So(again.PercentileRank, ShouldEqual, 50)
				So(again.OverallScore, ShouldEqual, first.OverallScore)
				So(again.ShareableID, ShouldEqual, first.ShareableID)
			})
		})
	})
}
