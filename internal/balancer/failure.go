package balancer

import (
	"context"
	"math/rand"
	"time"

	"github.com/llmrouter/llmrouter/internal/state"
)

// Failure categories for upstream attempts.
const (
	CategoryOK             = "ok"
	CategoryInvalidRequest = "invalid_request"
	CategoryClientError    = "client_error"
	CategoryNotSupported   = "not_supported_error"
	CategoryRateLimited    = "rate_limited"
	CategoryServerError    = "server_error"
	CategoryNetworkError   = "network_error"
)

// Classification is the verdict on one upstream attempt and what the handler
// may do next.
type Classification struct {
	Category      string
	StatusCode    int
	RetryOrigin   bool
	AllowFallback bool
	TrackCooldown bool
	// RetryAfter carries the upstream's Retry-After hint for rate-limited
	// responses; zero means none.
	RetryAfter time.Duration
}

// Classify maps an upstream status to its failure category. status 0 means
// the request never produced a response (connection error or timeout).
func Classify(status int, retryAfter time.Duration) Classification {
	switch {
	case status == 0:
		return Classification{Category: CategoryNetworkError, RetryOrigin: true, AllowFallback: true, TrackCooldown: true}
	case status < 400:
		return Classification{Category: CategoryOK, StatusCode: status}
	case status == 400 || status == 422:
		return Classification{Category: CategoryInvalidRequest, StatusCode: status}
	case status == 404:
		return Classification{Category: CategoryNotSupported, StatusCode: status, AllowFallback: true}
	case status == 429:
		return Classification{Category: CategoryRateLimited, StatusCode: status, AllowFallback: true, TrackCooldown: true, RetryAfter: retryAfter}
	case status >= 500:
		return Classification{Category: CategoryServerError, StatusCode: status, RetryOrigin: true, AllowFallback: true, TrackCooldown: true}
	default:
		return Classification{Category: CategoryClientError, StatusCode: status, AllowFallback: true}
	}
}

// Retryable reports whether the failure counts toward the consecutive
// retryable-failure streak.
func (c Classification) Retryable() bool {
	return c.Category == CategoryServerError || c.Category == CategoryNetworkError
}

// CircuitOptions tunes failure-streak circuit tracking.
type CircuitOptions struct {
	// FailureThreshold is the streak length that opens the circuit;
	// 0 disables circuit tracking.
	FailureThreshold int
	// OpenFor is how long an opened circuit blocks the candidate.
	OpenFor time.Duration
}

// DefaultCircuit is the stock circuit policy.
var DefaultCircuit = CircuitOptions{FailureThreshold: 3, OpenFor: 30 * time.Second}

// RecordFailure folds one classified failure into the candidate's state.
func RecordFailure(ctx context.Context, store state.Store, candidateKey string, cls Classification, circuit CircuitOptions, now time.Time) error {
	st, err := store.GetCandidateState(ctx, candidateKey)
	if err != nil {
		return err
	}
	if st == nil {
		st = &state.CandidateState{}
	}
	nowMs := now.UnixMilli()

	if cls.Retryable() {
		st.ConsecutiveRetryableFailures++
	} else {
		st.ConsecutiveRetryableFailures = 0
	}
	if circuit.FailureThreshold > 0 && st.ConsecutiveRetryableFailures >= circuit.FailureThreshold {
		if open := nowMs + circuit.OpenFor.Milliseconds(); open > st.OpenUntil {
			st.OpenUntil = open
		}
	}
	if cls.TrackCooldown && cls.RetryAfter > 0 {
		if until := nowMs + cls.RetryAfter.Milliseconds(); until > st.CooldownUntil {
			st.CooldownUntil = until
		}
	}
	st.LastFailureAt = nowMs
	st.LastFailureStatus = cls.StatusCode
	st.LastFailureCategory = cls.Category
	st.UpdatedAt = nowMs
	return store.SetCandidateState(ctx, candidateKey, st)
}

// RecordSuccess clears the candidate's failure state.
func RecordSuccess(ctx context.Context, store state.Store, candidateKey string) error {
	return store.SetCandidateState(ctx, candidateKey, nil)
}

// Retry backoff bounds.
const (
	retryBaseDelay = 200 * time.Millisecond
	retryMaxDelay  = 2 * time.Second
)

// ComputeRetryDelay returns the sleep before origin-retry attempt n (1-based):
// capped exponential backoff with +/-50% jitter.
func ComputeRetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := retryBaseDelay
	for i := 1; i < attempt && d < retryMaxDelay; i++ {
		d *= 2
	}
	if d > retryMaxDelay {
		d = retryMaxDelay
	}
	jitter := 0.5 + rand.Float64()
	return time.Duration(float64(d) * jitter)
}
