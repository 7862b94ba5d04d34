package loan

import (
	"testing"

	"github.com/okian/somurie/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFor(t *testing.T) {
	Convey("Given a Gold score with no bonuses", t, func() {
		terms := For(model.CreatorScore{Tier: 4})

		Convey("Then the base table applies", func() {
			So(terms.InterestRate, ShouldEqual, 0.095)
			So(terms.MaxAmount, ShouldEqual, 7500)
			So(terms.GracePeriod, ShouldEqual, 30)
			So(terms.TierName, ShouldEqual, "Gold")
			So(terms.Benefits, ShouldResemble, []string{"Gold Tier Benefits", "Base rate: 9.5% APR"})
		})
	})

	Convey("Given a Diamond score earning every bonus", t, func() {
		terms := For(model.CreatorScore{
			Tier:       6,
			Components: model.ScoreComponents{Consistency: 81, Engagement: 86, Network: 91},
		})

		Convey("Then the rate is floored at 5%", func() {
			So(terms.InterestRate, ShouldEqual, 0.05)
			So(terms.Benefits, ShouldHaveLength, 5)
			So(terms.Benefits[4], ShouldEqual, "Network influence bonus: -0.5% APR")
		})
	})

	Convey("Given a Starter score with an engagement bonus", t, func() {
		terms := For(model.CreatorScore{Tier: 1, Components: model.ScoreComponents{Engagement: 90}})

		Convey("Then one point comes off the rate", func() {
			So(terms.InterestRate, ShouldEqual, 0.14)
			So(terms.Benefits[2], ShouldEqual, "High engagement bonus: -1% APR")
		})
	})

	Convey("Given an out-of-range tier", t, func() {
		terms := For(model.CreatorScore{Tier: 9})

		Convey("Then Starter terms are used", func() {
			So(terms.MaxAmount, ShouldEqual, 1000)
			So(terms.TierName, ShouldEqual, "Starter")
			So(terms.Tier, ShouldEqual, 9)
		})
	})
}
