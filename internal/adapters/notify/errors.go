package notify

import "errors"

// Sentinel kinds for notification errors.
var (
	ErrDelivery  = errors.New("notification rejected by destination")
	ErrNoAddress = errors.New("redis address is required")
)
