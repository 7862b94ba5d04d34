package repository

import (
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/somurie/pkg/logger"
)

// Option applies a configuration option to a store.
type Option func(*options)

type options struct {
	now           func() time.Time
	log           logger.Logger
	gormLogLevel  gormlogger.LogLevel
	slowThreshold time.Duration
}

func defaultOptions() options {
	return options{
		now:           time.Now,
		log:           logger.Nop(),
		gormLogLevel:  gormlogger.Warn,
		slowThreshold: time.Second,
	}
}

// WithClock sets the time source for created/updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithSQLLogLevel sets the verbosity of SQL statement logging.
func WithSQLLogLevel(level gormlogger.LogLevel) Option {
	return func(o *options) {
		o.gormLogLevel = level
	}
}

// WithSlowThreshold sets when a statement is logged as slow.
func WithSlowThreshold(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.slowThreshold = d
		}
	}
}
