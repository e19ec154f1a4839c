package ratelimit

import (
	"testing"
	"time"

	"github.com/llmrouter/llmrouter/internal/config"
)

func TestResolveWindowKeys(t *testing.T) {
	now := time.Date(2026, 2, 28, 15, 42, 30, 0, time.UTC)
	cases := []struct {
		unit config.WindowUnit
		size int
		want string
	}{
		{config.UnitSecond, 1, "second:1:2026-02-28T15:42:30Z"},
		{config.UnitSecond, 30, "second:30:2026-02-28T15:42:30Z"},
		{config.UnitMinute, 1, "minute:1:2026-02-28T15:42Z"},
		{config.UnitMinute, 15, "minute:15:2026-02-28T15:30Z"},
		{config.UnitHour, 1, "hour:1:2026-02-28T15:00Z"},
		{config.UnitHour, 6, "hour:6:2026-02-28T12:00Z"},
		{config.UnitDay, 1, "day:1:2026-02-28"},
		{config.UnitWeek, 1, "week:1:2026-02-23"},
		{config.UnitMonth, 1, "month:1:2026-02"},
		{config.UnitMonth, 3, "month:3:2026-01"},
	}
	for _, tc := range cases {
		got := ResolveWindow(config.Window{Unit: tc.unit, Size: tc.size}, now)
		if got.Key != tc.want {
			t.Errorf("%s size=%d: key = %q, want %q", tc.unit, tc.size, got.Key, tc.want)
		}
	}
}

func TestResolveWindowContainsNow(t *testing.T) {
	now := time.Date(2026, 2, 28, 15, 42, 30, 0, time.UTC)
	for _, unit := range []config.WindowUnit{
		config.UnitSecond, config.UnitMinute, config.UnitHour,
		config.UnitDay, config.UnitWeek, config.UnitMonth,
	} {
		for _, size := range []int{1, 2, 5} {
			wr := ResolveWindow(config.Window{Unit: unit, Size: size}, now)
			if now.Before(wr.StartsAt) || !now.Before(wr.EndsAt) {
				t.Errorf("%s size=%d: now %v outside [%v, %v)", unit, size, now, wr.StartsAt, wr.EndsAt)
			}
		}
	}
}

func TestResolveWindowBoundaryAgreement(t *testing.T) {
	now := time.Date(2026, 2, 28, 15, 42, 30, 0, time.UTC)
	for _, unit := range []config.WindowUnit{
		config.UnitSecond, config.UnitMinute, config.UnitHour,
		config.UnitDay, config.UnitWeek, config.UnitMonth,
	} {
		w := config.Window{Unit: unit, Size: 2}
		wr := ResolveWindow(w, now)
		atStart := ResolveWindow(w, wr.StartsAt)
		atLast := ResolveWindow(w, wr.EndsAt.Add(-time.Millisecond))
		if atStart.Key != wr.Key || atLast.Key != wr.Key {
			t.Errorf("%s: keys disagree across window: start=%q last=%q key=%q", unit, atStart.Key, atLast.Key, wr.Key)
		}
		next := ResolveWindow(w, wr.EndsAt)
		if next.Key == wr.Key {
			t.Errorf("%s: endsAt should fall into the next window, got same key %q", unit, wr.Key)
		}
		if !next.StartsAt.Equal(wr.EndsAt) {
			t.Errorf("%s: next window starts at %v, want %v", unit, next.StartsAt, wr.EndsAt)
		}
	}
}

func TestResolveWindowWeekAnchorIsMonday(t *testing.T) {
	// A Sunday belongs to the week that started the previous Monday.
	sunday := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	wr := ResolveWindow(config.Window{Unit: config.UnitWeek, Size: 1}, sunday)
	if got := wr.StartsAt.Format("2006-01-02"); got != "2026-02-23" {
		t.Errorf("week start = %s, want 2026-02-23", got)
	}
	if wr.StartsAt.Weekday() != time.Monday {
		t.Errorf("week starts on %v, want Monday", wr.StartsAt.Weekday())
	}
}

func TestResolveWindowMonthGrouping(t *testing.T) {
	// Quarter windows: Feb 2026 falls in the Jan-Mar quarter.
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	wr := ResolveWindow(config.Window{Unit: config.UnitMonth, Size: 3}, now)
	if got := wr.StartsAt.Format("2006-01"); got != "2026-01" {
		t.Errorf("quarter start = %s, want 2026-01", got)
	}
	if got := wr.EndsAt.Format("2006-01"); got != "2026-04" {
		t.Errorf("quarter end = %s, want 2026-04", got)
	}
}

func TestResolveWindowNormalizesSize(t *testing.T) {
	now := time.Date(2026, 2, 28, 15, 42, 30, 0, time.UTC)
	got := ResolveWindow(config.Window{Unit: config.UnitDay, Size: 0}, now)
	want := ResolveWindow(config.Window{Unit: config.UnitDay, Size: 1}, now)
	if got.Key != want.Key {
		t.Errorf("size=0 key = %q, want %q", got.Key, want.Key)
	}
}
