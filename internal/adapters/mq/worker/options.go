package worker

import (
	"github.com/okian/somurie/pkg/logger"
)

// Option applies a configuration option to a worker or pool.
type Option func(*config)

type config struct {
	name string
	log  logger.Logger
}

func newConfig(opts []Option) config {
	cfg := config{name: "worker", log: logger.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(c *config) {
		if name != "" {
			c.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}
