package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicate      = errors.New("duplicate record")
	ErrInvalidLimit   = errors.New("invalid result limit")
	ErrUnsupportedDSN = errors.New("unsupported database dsn")
)
