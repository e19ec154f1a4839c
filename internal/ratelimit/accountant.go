package ratelimit

import (
	"context"
	"time"

	"github.com/llmrouter/llmrouter/internal/config"
	"github.com/llmrouter/llmrouter/internal/state"
)

// Bucket is one rate-limit rule resolved against the current instant: the
// store keys it reads and writes plus its budget.
type Bucket struct {
	BucketID  string
	BucketKey string
	WindowKey string
	Requests  int
	Window    WindowRange
}

// BucketStatus is a Bucket plus its observed consumption.
type BucketStatus struct {
	Bucket
	Used      int
	Remaining int
	Ratio     float64
}

// Evaluation is the pre-call verdict for one candidate.
type Evaluation struct {
	// Eligible is false iff at least one applicable bucket is exhausted.
	Eligible bool
	// RemainingCapacityRatio is the minimum remaining/requests across
	// applicable buckets, or 1 when the candidate has none.
	RemainingCapacityRatio float64
	Buckets                []BucketStatus
}

// ApplicableBuckets resolves which of the provider's rate limits cover the
// given model at the given instant. A bucket applies when its budget is
// positive and its model selector names the model or is the "all" token.
func ApplicableBuckets(p *config.Provider, modelID string, now time.Time) []Bucket {
	if p == nil || len(p.RateLimits) == 0 {
		return nil
	}
	var out []Bucket
	for i := range p.RateLimits {
		rl := &p.RateLimits[i]
		if rl.Requests <= 0 || len(rl.Models) == 0 {
			continue
		}
		if !bucketCoversModel(rl.Models, modelID) {
			continue
		}
		wr := ResolveWindow(rl.Window, now)
		out = append(out, Bucket{
			BucketID:  rl.ID,
			BucketKey: state.BucketKey(p.ID, rl.ID),
			WindowKey: wr.Key,
			Requests:  rl.Requests,
			Window:    wr,
		})
	}
	return out
}

func bucketCoversModel(models []string, modelID string) bool {
	for _, m := range models {
		if m == "all" || m == modelID {
			return true
		}
	}
	return false
}

// Evaluate reads current usage for every applicable bucket and reports
// whether the candidate may be called and how much headroom it has.
func Evaluate(ctx context.Context, store state.Store, p *config.Provider, modelID string, now time.Time) (Evaluation, error) {
	buckets := ApplicableBuckets(p, modelID, now)
	ev := Evaluation{Eligible: true, RemainingCapacityRatio: 1}
	for _, b := range buckets {
		used, err := store.ReadBucketUsage(ctx, b.BucketKey, b.WindowKey)
		if err != nil {
			return Evaluation{}, err
		}
		remaining := b.Requests - used
		if remaining < 0 {
			remaining = 0
		}
		ratio := float64(remaining) / float64(b.Requests)
		if remaining == 0 {
			ev.Eligible = false
		}
		if ratio < ev.RemainingCapacityRatio {
			ev.RemainingCapacityRatio = ratio
		}
		ev.Buckets = append(ev.Buckets, BucketStatus{
			Bucket:    b,
			Used:      used,
			Remaining: remaining,
			Ratio:     ratio,
		})
	}
	return ev, nil
}

// Consume charges one request to every applicable bucket. Call it only after
// the upstream was actually reached (a response arrived or a non-network
// status was observed).
func Consume(ctx context.Context, store state.Store, p *config.Provider, modelID string, now time.Time) error {
	for _, b := range ApplicableBuckets(p, modelID, now) {
		if _, err := store.IncrementBucketUsage(ctx, b.BucketKey, b.WindowKey, 1, b.Window.EndsAt, now); err != nil {
			return err
		}
	}
	return nil
}
