// Package state persists the router's mutable runtime state: route cursors
// for round-robin scheduling, per-candidate health/cooldown records, and
// rate-limit bucket counters keyed by deterministic time windows. Three
// backends implement the same interface: in-memory, single-file JSON, and
// SQLite.
package state

import (
	"context"
	"net/url"
	"time"
)

// DefaultCandidateTTL bounds how long a candidate-state row outlives its
// last update or cooldown before PruneExpired may drop it.
const DefaultCandidateTTL = 15 * time.Minute

// CandidateState records the failure history and cooldown of one
// (requestModelId, targetFormat) candidate. All timestamps are UTC
// milliseconds since epoch.
type CandidateState struct {
	CooldownUntil                int64   `json:"cooldownUntil,omitempty"`
	OpenUntil                    int64   `json:"openUntil,omitempty"`
	ExpiresAt                    int64   `json:"expiresAt,omitempty"`
	ConsecutiveRetryableFailures int     `json:"consecutiveRetryableFailures,omitempty"`
	HealthScore                  float64 `json:"healthScore,omitempty"`
	LastFailureAt                int64   `json:"lastFailureAt,omitempty"`
	LastFailureStatus            int     `json:"lastFailureStatus,omitempty"`
	LastFailureCategory          string  `json:"lastFailureCategory,omitempty"`
	UpdatedAt                    int64   `json:"updatedAt"`
}

// BlockedUntil returns the later of the cooldown and circuit-open deadlines.
func (s *CandidateState) BlockedUntil() int64 {
	if s.OpenUntil > s.CooldownUntil {
		return s.OpenUntil
	}
	return s.CooldownUntil
}

// expiresAtWithTTL computes the row's effective expiry under the given TTL.
func (s *CandidateState) expiresAtWithTTL(ttl time.Duration) int64 {
	exp := s.ExpiresAt
	if v := s.BlockedUntil() + ttl.Milliseconds(); v > exp {
		exp = v
	}
	if v := s.UpdatedAt + ttl.Milliseconds(); v > exp {
		exp = v
	}
	return exp
}

// BucketUsage is one window's consumption under a rate-limit bucket.
type BucketUsage struct {
	Count     int   `json:"count"`
	ExpiresAt int64 `json:"expiresAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

// PruneResult reports what PruneExpired removed.
type PruneResult struct {
	PrunedBuckets         int `json:"prunedBuckets"`
	PrunedCandidateStates int `json:"prunedCandidateStates"`
}

// Store is the capability set shared by all state backends.
type Store interface {
	GetRouteCursor(ctx context.Context, routeKey string) (int, error)
	SetRouteCursor(ctx context.Context, routeKey string, v int) error

	// GetCandidateState returns nil when no row exists.
	GetCandidateState(ctx context.Context, candidateKey string) (*CandidateState, error)
	// SetCandidateState with a nil state deletes the row.
	SetCandidateState(ctx context.Context, candidateKey string, st *CandidateState) error

	ReadBucketUsage(ctx context.Context, bucketKey, windowKey string) (int, error)
	// IncrementBucketUsage adds amount to the window counter and returns the
	// new count. expiresAt stamps the window end on first write.
	IncrementBucketUsage(ctx context.Context, bucketKey, windowKey string, amount int, expiresAt, now time.Time) (int, error)

	PruneExpired(ctx context.Context, now time.Time) (PruneResult, error)
	Close() error
}

// RouteKey builds the cursor key for a resolved route as seen from one
// source format.
func RouteKey(routeType, routeRef, sourceFormat string) string {
	return "route:" + url.QueryEscape(routeType) + ":" + url.QueryEscape(routeRef) +
		"@" + url.QueryEscape(sourceFormat)
}

// CandidateKey builds the state key for a (requestModelId, targetFormat)
// candidate.
func CandidateKey(requestModelID, targetFormat string) string {
	return "candidate:" + url.QueryEscape(requestModelID) + "@" + url.QueryEscape(targetFormat)
}

// BucketKey builds the usage key for a provider's rate-limit bucket.
func BucketKey(providerID, bucketID string) string {
	return "bucket:" + url.QueryEscape(providerID) + ":" + url.QueryEscape(bucketID)
}
