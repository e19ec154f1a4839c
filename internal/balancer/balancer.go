// Package balancer ranks a route plan's candidates under a scheduling
// strategy, combining cooldown state, circuit state, and rate-limit headroom
// into a deterministic order with an advancing route cursor.
package balancer

import (
	"context"
	"time"

	"github.com/llmrouter/llmrouter/internal/ratelimit"
	"github.com/llmrouter/llmrouter/internal/route"
	"github.com/llmrouter/llmrouter/internal/state"
)

// Skip reasons attached to ineligible entries.
const (
	SkipCooldown       = "cooldown"
	SkipQuotaExhausted = "quota-exhausted"
)

// Entry is one candidate annotated with everything the ranking needs.
type Entry struct {
	Candidate *route.Candidate
	State     *state.CandidateState
	RateLimit ratelimit.Evaluation

	HealthFactor     float64
	Blocked          bool
	RateLimitBlocked bool
	Eligible         bool
	SkipReasons      []string
}

// Result is the ranking outcome. Entries holds the eligible candidates in
// scheduling order followed by the ineligible ones in input order; Selected
// is the first eligible entry, nil when none is.
type Result struct {
	Entries  []*Entry
	Selected *Entry
	Skipped  []*Entry

	RouteCursor         int
	NextCursor          int
	ShouldAdvanceCursor bool
	Strategy            string
}

// Rank builds entries for the candidates and orders them under the strategy.
// It reads state but never writes; CommitCursor persists the cursor advance
// after the caller has settled on the selected candidate.
func Rank(ctx context.Context, store state.Store, candidates []*route.Candidate, strategy, routeKey string, now time.Time) (*Result, error) {
	cursor, err := store.GetRouteCursor(ctx, routeKey)
	if err != nil {
		return nil, err
	}

	nowMs := now.UnixMilli()
	entries := make([]*Entry, 0, len(candidates))
	var eligible, ineligible []*Entry
	for _, c := range candidates {
		st, err := store.GetCandidateState(ctx, state.CandidateKey(c.RequestModelID, string(c.TargetFormat)))
		if err != nil {
			return nil, err
		}
		ev, err := ratelimit.Evaluate(ctx, store, c.Provider, c.ModelID, now)
		if err != nil {
			return nil, err
		}
		e := &Entry{
			Candidate:    c,
			State:        st,
			RateLimit:    ev,
			HealthFactor: healthFactor(st),
		}
		if st != nil && st.BlockedUntil() > nowMs {
			e.Blocked = true
			e.SkipReasons = append(e.SkipReasons, SkipCooldown)
		}
		if !ev.Eligible {
			e.RateLimitBlocked = true
			e.SkipReasons = append(e.SkipReasons, SkipQuotaExhausted)
		}
		e.Eligible = !e.Blocked && !e.RateLimitBlocked
		entries = append(entries, e)
		if e.Eligible {
			eligible = append(eligible, e)
		} else {
			ineligible = append(ineligible, e)
		}
	}

	res := &Result{
		Skipped:     ineligible,
		RouteCursor: cursor,
		NextCursor:  cursor,
		Strategy:    strategy,
	}
	switch strategy {
	case route.StrategyRoundRobin:
		if n := len(eligible); n > 0 {
			eligible = rotate(eligible, cursor%n)
			res.NextCursor = (cursor + 1) % n
			res.ShouldAdvanceCursor = true
		}
	case route.StrategyWeightedRR, route.StrategyQuotaAwareWeighted:
		if len(eligible) > 0 {
			eligible, res.NextCursor = rankWeighted(eligible, strategy, cursor)
			res.ShouldAdvanceCursor = true
		}
	default:
		// ordered: keep input order, cursor untouched.
	}

	res.Entries = append(eligible, ineligible...)
	if len(eligible) > 0 {
		res.Selected = eligible[0]
	}
	return res, nil
}

// CommitCursor persists the cursor advance decided by Rank. Call it once per
// request, before the first upstream attempt of the selected candidate.
func CommitCursor(ctx context.Context, store state.Store, routeKey string, res *Result) error {
	if !res.ShouldAdvanceCursor {
		return nil
	}
	return store.SetRouteCursor(ctx, routeKey, res.NextCursor)
}

// healthFactor discounts a candidate by its recent retryable failures and its
// recorded health score, floored at 0.05 so a sick candidate stays schedulable.
func healthFactor(st *state.CandidateState) float64 {
	fails := 0
	score := 1.0
	if st != nil {
		fails = st.ConsecutiveRetryableFailures
		if st.HealthScore > 0 {
			score = st.HealthScore
		}
	}
	return clamp(1/(1+0.5*float64(fails))*clamp(score, 0.05, 1), 0.05, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func rotate(entries []*Entry, by int) []*Entry {
	if len(entries) == 0 || by == 0 {
		return entries
	}
	by %= len(entries)
	return append(append([]*Entry{}, entries[by:]...), entries[:by]...)
}
