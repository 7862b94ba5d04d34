package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("Invalid request body")
	ErrInvalidFID   = errors.New("Invalid FID")
	ErrBackpressure = errors.New("Too many pending jobs, try again later")
	ErrInternal     = errors.New("Internal server error")
)

const maxBodyBytes = 1 << 20
