// Package upstream executes provider HTTP calls: URL composition per wire
// format, auth header assembly, buffered and streaming request execution with
// trace propagation, and structured status errors.
package upstream

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// StatusError captures a non-2xx provider response. Body holds the upstream
// error payload verbatim so it can be relayed to the client.
type StatusError struct {
	StatusCode     int
	Body           string
	RetryAfterSecs int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream error (status %d): %s", e.StatusCode, e.Body)
}

// ParseRetryAfter fills RetryAfterSecs from a Retry-After header value,
// accepting both delta-seconds and HTTP-date forms. Invalid values leave the
// field zero.
func (e *StatusError) ParseRetryAfter(v string) {
	if v == "" {
		return
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs > 0 {
			e.RetryAfterSecs = secs
		}
		return
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			e.RetryAfterSecs = int(d.Seconds() + 0.5)
		}
	}
}
