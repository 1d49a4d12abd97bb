// Package timeparse turns natural-language time phrases into absolute
// instants plus an optional recurrence tag. It is a pure function of the
// phrase and a reference instant; callers pass time.Now().
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Result is a successfully parsed time expression.
type Result struct {
	At         time.Time
	Recurrence string // "", "daily", "weekly", "monthly", "yearly", "every_N_<unit>"
}

var (
	// ErrPastTime is returned by Validate for instants already behind us.
	ErrPastTime = errors.New("time is in the past")
	// ErrTooFarOut is returned by Validate for instants more than two years away.
	ErrTooFarOut = errors.New("time is too far in the future")
)

var (
	relativeRe  = regexp.MustCompile(`\bin (\d+) (minute|minutes|min|mins|hour|hours|hr|hrs|day|days)\b`)
	fromNowRe   = regexp.MustCompile(`\b(\d+) (minute|minutes|min|mins|hour|hours|hr|hrs|day|days) from now\b`)
	clockRe     = regexp.MustCompile(`\bat (\d{1,2}):?(\d{2})?\s*(am|pm)?\b`)
	bareClockRe = regexp.MustCompile(`\b(\d{1,2})\s*(am|pm)\b`)
	weekdayRe   = regexp.MustCompile(`\b(?:next |this |on )?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)

	everyUnitRe = regexp.MustCompile(`\bevery (day|week|month|year)\b`)
	everyNRe    = regexp.MustCompile(`\bevery (\d+) (minutes|hours|days|weeks)\b`)
	plainRecRe  = regexp.MustCompile(`\b(daily|weekly|monthly|yearly)\b`)
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// defaultHour is used for date-only phrases like "tomorrow" or "next monday".
const defaultHour = 9

// Parse interprets a natural-language time phrase relative to ref.
// Returns false when no time expression is recognized. Instants that have
// already passed today roll forward to the next occurrence.
func Parse(phrase string, ref time.Time) (Result, bool) {
	s := strings.ToLower(strings.TrimSpace(phrase))
	if s == "" {
		return Result{}, false
	}

	rec := detectRecurrence(s)

	if at, ok := parseRelative(s, ref); ok {
		return Result{At: at, Recurrence: rec}, true
	}

	if at, ok := parseDayWord(s, ref); ok {
		return Result{At: at, Recurrence: rec}, true
	}

	if at, ok := parseClock(s, ref); ok {
		return Result{At: at, Recurrence: rec}, true
	}

	// A bare recurrence phrase ("every day", "daily") still needs an
	// anchor instant; fire at the next default hour.
	if rec != "" {
		return Result{At: nextAtHour(ref, defaultHour, 0), Recurrence: rec}, true
	}

	return Result{}, false
}

// Validate rejects instants in the past (beyond one minute of slack) or
// more than two years out.
func Validate(at, ref time.Time) error {
	if at.Before(ref.Add(-time.Minute)) {
		return ErrPastTime
	}
	if at.After(ref.AddDate(2, 0, 0)) {
		return ErrTooFarOut
	}
	return nil
}

func parseRelative(s string, ref time.Time) (time.Time, bool) {
	m := relativeRe.FindStringSubmatch(s)
	if m == nil {
		m = fromNowRe.FindStringSubmatch(s)
	}
	if m == nil {
		return time.Time{}, false
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}

	unit := m[2]
	switch {
	case strings.HasPrefix(unit, "min"):
		return ref.Add(time.Duration(n) * time.Minute), true
	case strings.HasPrefix(unit, "hour"), strings.HasPrefix(unit, "hr"):
		return ref.Add(time.Duration(n) * time.Hour), true
	case strings.HasPrefix(unit, "day"):
		return ref.AddDate(0, 0, n), true
	}

	return time.Time{}, false
}

func parseDayWord(s string, ref time.Time) (time.Time, bool) {
	var base time.Time
	var found bool

	switch {
	case strings.Contains(s, "tomorrow"):
		base = ref.AddDate(0, 0, 1)
		found = true
	case strings.Contains(s, "today"), strings.Contains(s, "tonight"):
		base = ref
		found = true
	default:
		if m := weekdayRe.FindStringSubmatch(s); m != nil {
			target := weekdays[m[1]]
			days := (int(target) - int(ref.Weekday()) + 7) % 7
			if days == 0 {
				days = 7
			}
			base = ref.AddDate(0, 0, days)
			found = true
		}
	}

	if !found {
		return time.Time{}, false
	}

	hour, minute, hasClock := extractClock(s)
	if !hasClock {
		hour, minute = defaultHour, 0
	}

	at := time.Date(base.Year(), base.Month(), base.Day(), hour, minute, 0, 0, ref.Location())
	if at.Before(ref) || at.Equal(ref) {
		at = at.AddDate(0, 0, 1)
	}
	return at, true
}

func parseClock(s string, ref time.Time) (time.Time, bool) {
	hour, minute, ok := extractClock(s)
	if !ok {
		return time.Time{}, false
	}

	at := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, ref.Location())
	// Time already passed today means the next occurrence
	if at.Before(ref) || at.Equal(ref) {
		at = at.AddDate(0, 0, 1)
	}
	return at, true
}

func extractClock(s string) (hour, minute int, ok bool) {
	var hStr, mStr, period string

	if m := clockRe.FindStringSubmatch(s); m != nil {
		hStr, mStr, period = m[1], m[2], m[3]
	} else if m := bareClockRe.FindStringSubmatch(s); m != nil {
		hStr, period = m[1], m[2]
	} else {
		return 0, 0, false
	}

	hour, err := strconv.Atoi(hStr)
	if err != nil || hour > 23 {
		return 0, 0, false
	}
	if mStr != "" {
		minute, err = strconv.Atoi(mStr)
		if err != nil || minute > 59 {
			return 0, 0, false
		}
	}

	switch period {
	case "pm":
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 {
		return 0, 0, false
	}

	return hour, minute, true
}

func detectRecurrence(s string) string {
	if m := everyNRe.FindStringSubmatch(s); m != nil {
		return fmt.Sprintf("every_%s_%s", m[1], m[2])
	}

	if m := everyUnitRe.FindStringSubmatch(s); m != nil {
		switch m[1] {
		case "day":
			return "daily"
		case "week":
			return "weekly"
		case "month":
			return "monthly"
		case "year":
			return "yearly"
		}
	}

	if m := plainRecRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}

	return ""
}

func nextAtHour(ref time.Time, hour, minute int) time.Time {
	at := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, ref.Location())
	if at.Before(ref) || at.Equal(ref) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}
