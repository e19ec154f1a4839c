package balancer

import (
	"context"
	"testing"
	"time"

	"github.com/llmrouter/llmrouter/internal/state"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		status        int
		category      string
		retryOrigin   bool
		allowFallback bool
		trackCooldown bool
	}{
		{200, CategoryOK, false, false, false},
		{400, CategoryInvalidRequest, false, false, false},
		{422, CategoryInvalidRequest, false, false, false},
		{401, CategoryClientError, false, true, false},
		{403, CategoryClientError, false, true, false},
		{404, CategoryNotSupported, false, true, false},
		{429, CategoryRateLimited, false, true, true},
		{500, CategoryServerError, true, true, true},
		{503, CategoryServerError, true, true, true},
		{0, CategoryNetworkError, true, true, true},
	}
	for _, tc := range cases {
		cls := Classify(tc.status, 0)
		if cls.Category != tc.category {
			t.Errorf("status %d: category = %s, want %s", tc.status, cls.Category, tc.category)
		}
		if cls.RetryOrigin != tc.retryOrigin {
			t.Errorf("status %d: retryOrigin = %v", tc.status, cls.RetryOrigin)
		}
		if cls.AllowFallback != tc.allowFallback {
			t.Errorf("status %d: allowFallback = %v", tc.status, cls.AllowFallback)
		}
		if cls.TrackCooldown != tc.trackCooldown {
			t.Errorf("status %d: trackCooldown = %v", tc.status, cls.TrackCooldown)
		}
	}
}

func TestClassifyRetryAfter(t *testing.T) {
	cls := Classify(429, 7*time.Second)
	if cls.RetryAfter != 7*time.Second {
		t.Errorf("retryAfter = %v", cls.RetryAfter)
	}
}

func TestRecordFailureStreakOpensCircuit(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()
	now := time.Date(2026, 2, 28, 15, 0, 0, 0, time.UTC)
	key := state.CandidateKey("p/m", "openai")
	circuit := CircuitOptions{FailureThreshold: 3, OpenFor: 30 * time.Second}

	for i := 0; i < 2; i++ {
		if err := RecordFailure(ctx, store, key, Classify(500, 0), circuit, now); err != nil {
			t.Fatal(err)
		}
	}
	st, _ := store.GetCandidateState(ctx, key)
	if st.ConsecutiveRetryableFailures != 2 {
		t.Errorf("streak = %d, want 2", st.ConsecutiveRetryableFailures)
	}
	if st.OpenUntil != 0 {
		t.Error("circuit opened below threshold")
	}

	if err := RecordFailure(ctx, store, key, Classify(500, 0), circuit, now); err != nil {
		t.Fatal(err)
	}
	st, _ = store.GetCandidateState(ctx, key)
	if want := now.Add(30 * time.Second).UnixMilli(); st.OpenUntil != want {
		t.Errorf("openUntil = %d, want %d", st.OpenUntil, want)
	}
	if st.LastFailureStatus != 500 || st.LastFailureCategory != CategoryServerError {
		t.Errorf("last failure = %d/%s", st.LastFailureStatus, st.LastFailureCategory)
	}
}

func TestRecordFailureNonRetryableResetsStreak(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()
	now := time.Now()
	key := state.CandidateKey("p/m", "openai")

	_ = RecordFailure(ctx, store, key, Classify(500, 0), DefaultCircuit, now)
	_ = RecordFailure(ctx, store, key, Classify(429, 0), DefaultCircuit, now)
	st, _ := store.GetCandidateState(ctx, key)
	if st.ConsecutiveRetryableFailures != 0 {
		t.Errorf("streak = %d, want 0 after non-retryable failure", st.ConsecutiveRetryableFailures)
	}
}

func TestRecordFailureRetryAfterSetsCooldown(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()
	now := time.Date(2026, 2, 28, 15, 0, 0, 0, time.UTC)
	key := state.CandidateKey("p/m", "openai")

	if err := RecordFailure(ctx, store, key, Classify(429, 10*time.Second), DefaultCircuit, now); err != nil {
		t.Fatal(err)
	}
	st, _ := store.GetCandidateState(ctx, key)
	if want := now.Add(10 * time.Second).UnixMilli(); st.CooldownUntil != want {
		t.Errorf("cooldownUntil = %d, want %d", st.CooldownUntil, want)
	}
	// An earlier Retry-After never shortens an existing cooldown.
	if err := RecordFailure(ctx, store, key, Classify(429, time.Second), DefaultCircuit, now); err != nil {
		t.Fatal(err)
	}
	st, _ = store.GetCandidateState(ctx, key)
	if want := now.Add(10 * time.Second).UnixMilli(); st.CooldownUntil != want {
		t.Errorf("cooldownUntil shrank to %d", st.CooldownUntil)
	}
}

func TestRecordSuccessClearsState(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemory()
	key := state.CandidateKey("p/m", "openai")
	_ = RecordFailure(ctx, store, key, Classify(500, 0), DefaultCircuit, time.Now())
	if err := RecordSuccess(ctx, store, key); err != nil {
		t.Fatal(err)
	}
	if st, _ := store.GetCandidateState(ctx, key); st != nil {
		t.Errorf("state after success = %+v, want nil", st)
	}
}

func TestComputeRetryDelayBounds(t *testing.T) {
	for attempt := 1; attempt <= 6; attempt++ {
		for i := 0; i < 20; i++ {
			d := ComputeRetryDelay(attempt)
			if d < 100*time.Millisecond || d > 3*time.Second {
				t.Fatalf("attempt %d: delay %v outside jittered bounds", attempt, d)
			}
		}
	}
	// Backoff grows with the attempt number (comparing jitter-free bounds).
	lo1 := 100 * time.Millisecond  // 200ms * 0.5
	hi3 := 1200 * time.Millisecond // 800ms * 1.5
	if lo1 > hi3 {
		t.Fatal("bounds sanity")
	}
}
