package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/llmrouter/llmrouter/internal/config"
	"github.com/llmrouter/llmrouter/internal/state"
)

func testProvider() *config.Provider {
	return &config.Provider{
		ID: "openrouter",
		Models: []config.Model{
			{ID: "gpt-4o-mini"},
			{ID: "gpt-4o"},
		},
		RateLimits: []config.RateLimit{
			{ID: "daily-all", Models: []string{"all"}, Requests: 100,
				Window: config.Window{Unit: config.UnitDay, Size: 1}},
			{ID: "mini-burst", Models: []string{"gpt-4o-mini"}, Requests: 2,
				Window: config.Window{Unit: config.UnitMinute, Size: 1}},
		},
	}
}

func TestApplicableBuckets(t *testing.T) {
	now := time.Date(2026, 2, 28, 15, 42, 30, 0, time.UTC)
	p := testProvider()

	buckets := ApplicableBuckets(p, "gpt-4o-mini", now)
	if len(buckets) != 2 {
		t.Fatalf("gpt-4o-mini: got %d buckets, want 2", len(buckets))
	}
	if buckets[0].BucketKey != "bucket:openrouter:daily-all" {
		t.Errorf("bucketKey = %q", buckets[0].BucketKey)
	}
	if buckets[1].WindowKey != "minute:1:2026-02-28T15:42Z" {
		t.Errorf("windowKey = %q", buckets[1].WindowKey)
	}

	if got := ApplicableBuckets(p, "gpt-4o", now); len(got) != 1 {
		t.Errorf("gpt-4o: got %d buckets, want 1 (the all bucket)", len(got))
	}
	if got := ApplicableBuckets(&config.Provider{ID: "x"}, "m", now); got != nil {
		t.Errorf("provider without limits: got %v, want nil", got)
	}
}

func TestEvaluateAndConsume(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 28, 15, 42, 30, 0, time.UTC)
	p := testProvider()
	store := state.NewMemory()

	ev, err := Evaluate(ctx, store, p, "gpt-4o-mini", now)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !ev.Eligible {
		t.Error("fresh candidate should be eligible")
	}
	if ev.RemainingCapacityRatio != 1 {
		t.Errorf("ratio = %v, want 1", ev.RemainingCapacityRatio)
	}

	// Drain the tight per-minute bucket.
	for i := 0; i < 2; i++ {
		if err := Consume(ctx, store, p, "gpt-4o-mini", now); err != nil {
			t.Fatalf("Consume: %v", err)
		}
	}
	ev, err = Evaluate(ctx, store, p, "gpt-4o-mini", now)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ev.Eligible {
		t.Error("candidate should be exhausted after draining mini-burst")
	}
	if ev.RemainingCapacityRatio != 0 {
		t.Errorf("ratio = %v, want 0", ev.RemainingCapacityRatio)
	}

	// The wide daily bucket still has headroom for the other model.
	ev, err = Evaluate(ctx, store, p, "gpt-4o", now)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !ev.Eligible {
		t.Error("gpt-4o should still be eligible")
	}
	if want := 0.98; ev.RemainingCapacityRatio != want {
		t.Errorf("ratio = %v, want %v", ev.RemainingCapacityRatio, want)
	}
}

func TestEvaluateRatioIsMinimum(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 28, 15, 42, 30, 0, time.UTC)
	p := testProvider()
	store := state.NewMemory()

	// One consumption: daily goes to 99/100, burst to 1/2.
	if err := Consume(ctx, store, p, "gpt-4o-mini", now); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	ev, err := Evaluate(ctx, store, p, "gpt-4o-mini", now)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ev.RemainingCapacityRatio != 0.5 {
		t.Errorf("ratio = %v, want 0.5 (tightest bucket)", ev.RemainingCapacityRatio)
	}
	if len(ev.Buckets) != 2 {
		t.Fatalf("got %d bucket statuses, want 2", len(ev.Buckets))
	}
	if ev.Buckets[0].Used != 1 || ev.Buckets[0].Remaining != 99 {
		t.Errorf("daily bucket: used=%d remaining=%d", ev.Buckets[0].Used, ev.Buckets[0].Remaining)
	}
}

func TestConsumeRollsOverAtWindowBoundary(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 28, 15, 42, 30, 0, time.UTC)
	p := testProvider()
	store := state.NewMemory()

	for i := 0; i < 2; i++ {
		if err := Consume(ctx, store, p, "gpt-4o-mini", now); err != nil {
			t.Fatalf("Consume: %v", err)
		}
	}
	next := now.Add(time.Minute)
	ev, err := Evaluate(ctx, store, p, "gpt-4o-mini", next)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !ev.Eligible {
		t.Error("new minute window should reset the burst bucket")
	}
}
