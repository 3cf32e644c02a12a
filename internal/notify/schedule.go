// Package notify sends the daily reminder, the weekly summary and the
// monthly budget alert.
//
// Each periodic notification has its own schedule that decides whether it is
// due from the time it last went out and the current time.
package notify

import (
	"fmt"
	"strings"
	"time"
)

// Schedule is the strategy interface for periodic notifications.
type Schedule interface {
	// IsDue reports whether the notification should go out at now given the
	// time it was last sent. A zero last means it was never sent.
	IsDue(last, now time.Time) bool
}

// Clock is a time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" in 24-hour form.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return Clock{}, fmt.Errorf("invalid time of day %q: must be HH:MM", s)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// on returns c on the calendar day of t, in t's location.
func (c Clock) on(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, t.Location())
}

// DailyReminder is due once a day, at or after At.
type DailyReminder struct {
	At Clock
}

// IsDue returns true once now has passed today's occurrence and the last send
// was before it.
func (s DailyReminder) IsDue(last, now time.Time) bool {
	occurrence := s.At.on(now)
	if now.Before(occurrence) {
		return false
	}
	return last.IsZero() || last.Before(occurrence)
}

// WeeklySummary is due once a week, on Day at or after At.
type WeeklySummary struct {
	Day time.Weekday
	At  Clock
}

// IsDue returns true on Day once now has passed the occurrence and the last
// send was before it. A missed day is not caught up later in the week.
func (s WeeklySummary) IsDue(last, now time.Time) bool {
	if now.Weekday() != s.Day {
		return false
	}
	occurrence := s.At.on(now)
	if now.Before(occurrence) {
		return false
	}
	return last.IsZero() || last.Before(occurrence)
}

// BudgetAlert fires at most once per calendar month.
type BudgetAlert struct{}

// IsDue returns true if nothing was sent yet in now's month.
func (BudgetAlert) IsDue(last, now time.Time) bool {
	if last.IsZero() {
		return true
	}
	return last.Year() != now.Year() || last.Month() != now.Month()
}
