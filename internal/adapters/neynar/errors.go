package neynar

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel kinds for upstream errors.
var (
	ErrUpstream        = errors.New("upstream social-graph api error")
	ErrUserNotFound    = errors.New("user not found upstream")
	ErrUnexpectedShape = errors.New("unexpected response shape")
)

// UpstreamError describes a failed call. It matches ErrUpstream.
type UpstreamError struct {
	Endpoint   string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s: %v", ErrUpstream, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("%s: %s (%d): %v", ErrUpstream, e.Endpoint, e.StatusCode, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrUpstream) match any UpstreamError.
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// Retryable reports whether another attempt could succeed: transport
// failures, throttling and server errors.
func (e *UpstreamError) Retryable() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// NotFound reports whether the requested user does not exist.
func (e *UpstreamError) NotFound() bool {
	return errors.Is(e.Err, ErrUserNotFound) ||
		(e.Endpoint == endpointUsers && e.StatusCode == http.StatusNotFound)
}

// IsRetryable reports whether err is an UpstreamError worth retrying.
func IsRetryable(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Retryable()
}
