// Package ratelimit implements the rate-limit accountant: deterministic UTC
// time-window resolution and pre-call/post-call bucket accounting against a
// state store.
package ratelimit

import (
	"fmt"
	"time"

	"github.com/llmrouter/llmrouter/internal/config"
)

// weekAnchor is Monday 1970-01-05T00:00Z, the origin for grouped ISO weeks.
var weekAnchor = time.Date(1970, 1, 5, 0, 0, 0, 0, time.UTC)

const (
	dayMs  = 24 * 60 * 60 * 1000
	weekMs = 7 * dayMs
)

// WindowRange is a resolved window instance: a half-open UTC interval
// [StartsAt, EndsAt) with its canonical key "<unit>:<size>:<label>".
type WindowRange struct {
	StartsAt time.Time
	EndsAt   time.Time
	Key      string
}

// ResolveWindow maps (window, now) onto the deterministic UTC interval that
// contains now. It is a pure function of its inputs.
func ResolveWindow(w config.Window, now time.Time) WindowRange {
	size := w.Size
	if size <= 0 {
		size = 1
	}
	now = now.UTC()

	var startsAt, endsAt time.Time
	switch w.Unit {
	case config.UnitSecond, config.UnitMinute, config.UnitHour, config.UnitDay:
		unitMs := map[config.WindowUnit]int64{
			config.UnitSecond: 1000,
			config.UnitMinute: 60 * 1000,
			config.UnitHour:   60 * 60 * 1000,
			config.UnitDay:    dayMs,
		}[w.Unit]
		span := unitMs * int64(size)
		start := floorDiv(now.UnixMilli(), span) * span
		startsAt = time.UnixMilli(start).UTC()
		endsAt = time.UnixMilli(start + span).UTC()

	case config.UnitWeek:
		weekStart := startOfISOWeek(now)
		weeksFromAnchor := floorDiv(weekStart.UnixMilli()-weekAnchor.UnixMilli(), weekMs)
		grouped := floorDiv(weeksFromAnchor, int64(size)) * int64(size)
		startsAt = time.UnixMilli(weekAnchor.UnixMilli() + grouped*weekMs).UTC()
		endsAt = startsAt.Add(time.Duration(size) * 7 * 24 * time.Hour)

	case config.UnitMonth:
		idx := int64(now.Year())*12 + int64(now.Month()) - 1
		grouped := floorDiv(idx, int64(size)) * int64(size)
		startsAt = monthIndexToTime(grouped)
		endsAt = monthIndexToTime(grouped + int64(size))

	default:
		// Unknown unit: treat as a single day so a misconfigured bucket
		// still resolves deterministically.
		return ResolveWindow(config.Window{Unit: config.UnitDay, Size: size}, now)
	}

	return WindowRange{
		StartsAt: startsAt,
		EndsAt:   endsAt,
		Key:      fmt.Sprintf("%s:%d:%s", w.Unit, size, windowLabel(w.Unit, startsAt)),
	}
}

// windowLabel renders the window start in the unit's canonical form.
func windowLabel(unit config.WindowUnit, startsAt time.Time) string {
	switch unit {
	case config.UnitSecond:
		return startsAt.Format("2006-01-02T15:04:05Z")
	case config.UnitMinute, config.UnitHour:
		return startsAt.Format("2006-01-02T15:04Z")
	case config.UnitMonth:
		return startsAt.Format("2006-01")
	default: // day, week
		return startsAt.Format("2006-01-02")
	}
}

// startOfISOWeek truncates t to 00:00Z of its Monday.
func startOfISOWeek(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7 // Monday=0 .. Sunday=6
	return day.AddDate(0, 0, -offset)
}

// monthIndexToTime converts a zero-based absolute month index (year*12+month)
// back to the first instant of that month.
func monthIndexToTime(idx int64) time.Time {
	year := floorDiv(idx, 12)
	month := idx - year*12
	return time.Date(int(year), time.Month(month+1), 1, 0, 0, 0, 0, time.UTC)
}

// floorDiv is integer division rounding toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
