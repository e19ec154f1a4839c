package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestSQLite(t *testing.T, dsn string, ttl time.Duration) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(dsn, ttl)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	return s
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "state.sqlite")
	now := time.Date(2026, 2, 28, 15, 0, 0, 0, time.UTC)

	s := openTestSQLite(t, dsn, 0)
	routeKey := RouteKey("alias", "smart", "openai")
	candKey := CandidateKey("openrouter/gpt-4o-mini", "openai")
	bucketKey := BucketKey("openrouter", "daily")

	if err := s.SetRouteCursor(ctx, routeKey, 2); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCandidateState(ctx, candKey, &CandidateState{
		CooldownUntil: now.Add(time.Minute).UnixMilli(),
		UpdatedAt:     now.UnixMilli(),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.IncrementBucketUsage(ctx, bucketKey, "day:1:2026-02-28", 4, now.Add(time.Hour), now); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen and read back every key class.
	s2 := openTestSQLite(t, dsn, 0)
	defer s2.Close()
	if v, _ := s2.GetRouteCursor(ctx, routeKey); v != 2 {
		t.Errorf("cursor = %d, want 2", v)
	}
	st, _ := s2.GetCandidateState(ctx, candKey)
	if st == nil || st.CooldownUntil != now.Add(time.Minute).UnixMilli() {
		t.Errorf("candidate state = %+v", st)
	}
	if n, _ := s2.ReadBucketUsage(ctx, bucketKey, "day:1:2026-02-28"); n != 4 {
		t.Errorf("usage = %d, want 4", n)
	}
}

func TestSQLiteStoreMissingKeysReadZero(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, "file:"+filepath.Join(t.TempDir(), "state.sqlite"), 0)
	defer s.Close()

	if v, err := s.GetRouteCursor(ctx, "route:alias/none/openai"); err != nil || v != 0 {
		t.Errorf("cursor = %d, %v, want 0, nil", v, err)
	}
	if st, err := s.GetCandidateState(ctx, "candidate:none/openai"); err != nil || st != nil {
		t.Errorf("state = %+v, %v, want nil, nil", st, err)
	}
	if n, err := s.ReadBucketUsage(ctx, "bucket:p/b", "day:1:2026-02-28"); err != nil || n != 0 {
		t.Errorf("usage = %d, %v, want 0, nil", n, err)
	}
}

func TestSQLiteStoreNilCandidateStateDeletes(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, "file:"+filepath.Join(t.TempDir(), "state.sqlite"), 0)
	defer s.Close()

	key := CandidateKey("openrouter/gpt-4o-mini", "openai")
	if err := s.SetCandidateState(ctx, key, &CandidateState{UpdatedAt: time.Now().UnixMilli()}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCandidateState(ctx, key, nil); err != nil {
		t.Fatal(err)
	}
	if st, _ := s.GetCandidateState(ctx, key); st != nil {
		t.Errorf("state after delete = %+v, want nil", st)
	}
}

func TestSQLiteStorePruneExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 28, 15, 0, 0, 0, time.UTC)
	s := openTestSQLite(t, "file:"+filepath.Join(t.TempDir(), "state.sqlite"), time.Hour)
	defer s.Close()

	// One stale candidate, one live.
	stale := CandidateKey("openrouter/gpt-4o-mini", "openai")
	live := CandidateKey("anthropic/claude-3-5-haiku", "claude")
	if err := s.SetCandidateState(ctx, stale, &CandidateState{
		UpdatedAt: now.Add(-2 * time.Hour).UnixMilli(),
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCandidateState(ctx, live, &CandidateState{
		UpdatedAt: now.UnixMilli(),
	}); err != nil {
		t.Fatal(err)
	}

	// One expired bucket window, one live.
	bk := BucketKey("openrouter", "daily")
	if _, err := s.IncrementBucketUsage(ctx, bk, "day:1:2026-02-27", 1, now.Add(-time.Minute), now); err != nil {
		t.Fatal(err)
	}
	if _, err := s.IncrementBucketUsage(ctx, bk, "day:1:2026-02-28", 1, now.Add(time.Hour), now); err != nil {
		t.Fatal(err)
	}

	res, err := s.PruneExpired(ctx, now)
	if err != nil {
		t.Fatalf("PruneExpired: %v", err)
	}
	if res.PrunedBuckets != 1 || res.PrunedCandidateStates != 1 {
		t.Errorf("pruned = %+v, want 1 bucket and 1 candidate", res)
	}
	if st, _ := s.GetCandidateState(ctx, stale); st != nil {
		t.Errorf("stale candidate survived prune: %+v", st)
	}
	if st, _ := s.GetCandidateState(ctx, live); st == nil {
		t.Error("live candidate was pruned")
	}
	if n, _ := s.ReadBucketUsage(ctx, bk, "day:1:2026-02-27"); n != 0 {
		t.Errorf("expired window usage = %d, want 0", n)
	}
	if n, _ := s.ReadBucketUsage(ctx, bk, "day:1:2026-02-28"); n != 1 {
		t.Errorf("live window usage = %d, want 1", n)
	}
}

func TestSQLiteStoreIncrementAccumulates(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 28, 15, 0, 0, 0, time.UTC)
	s := openTestSQLite(t, "file:"+filepath.Join(t.TempDir(), "state.sqlite"), 0)
	defer s.Close()

	bk := BucketKey("openrouter", "per-minute")
	wk := "minute:1:2026-02-28T15:00Z"
	for i := 1; i <= 3; i++ {
		n, err := s.IncrementBucketUsage(ctx, bk, wk, 1, now.Add(time.Hour), now)
		if err != nil {
			t.Fatal(err)
		}
		if n != i {
			t.Errorf("increment %d returned %d", i, n)
		}
	}
}
