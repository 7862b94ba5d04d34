package signals

import "errors"

// Sentinel errors for metrics fetching.
var (
	ErrNoSource       = errors.New("signals: source is required")
	ErrNoLimiter      = errors.New("signals: rate limiter is required")
	ErrInvalidCreator = errors.New("signals: creator id must be positive")
	ErrUnknownCreator = errors.New("signals: creator does not exist upstream")
)
