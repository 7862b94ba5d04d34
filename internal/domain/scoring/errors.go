package scoring

import "errors"

// Sentinel kinds for scoring errors.
var (
	ErrNoHistory        = errors.New("score history is required")
	ErrInvalidWeights   = errors.New("component weights must be non-negative and sum to 1")
	ErrNilMetrics       = errors.New("metrics must not be nil")
	ErrShareIDExhausted = errors.New("could not allocate a unique shareable id")
)
