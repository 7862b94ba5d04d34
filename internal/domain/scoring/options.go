package scoring

import "time"

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithWeights overrides the component weights. They must sum to 1.
func WithWeights(w Weights) Option {
	return func(c *Calculator) {
		c.weights = w
	}
}

// WithClock sets the time source used for the score date.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLocation sets the zone whose midnight bounds a score day.
func WithLocation(loc *time.Location) Option {
	return func(c *Calculator) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithIDGenerator replaces the shareable id generator.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(c *Calculator) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// WithRerolls bounds shareable id collision retries.
func WithRerolls(n int) Option {
	return func(c *Calculator) {
		if n > 0 {
			c.rerolls = n
		}
	}
}
