package core

import (
	"errors"
	"strings"
	"time"

	"github.com/jinzhu/now"
)

const (
	// UserDateLayout is the layout users type custom periods in.
	UserDateLayout = "02.01.2006"
	// DisplayDateLayout is how list rows render a date.
	DisplayDateLayout = "02 Jan 2006"
)

// Period is a preset date window offered next to the custom range.
type Period string

const (
	PeriodLast7Days    Period = "last_7_days"
	PeriodLast30Days   Period = "last_30_days"
	PeriodLast90Days   Period = "last_90_days"
	PeriodCurrentMonth Period = "current_month"
	PeriodCurrentYear  Period = "current_year"
)

var ErrUnknownPeriod = errors.New("unknown period")

// Periods lists the presets in the order they are offered.
var Periods = []Period{PeriodLast7Days, PeriodLast30Days, PeriodLast90Days, PeriodCurrentMonth, PeriodCurrentYear}

// Range returns the inclusive ISO date bounds of the period relative to t.
// "Last N days" spans from t minus N days through t.
func (p Period) Range(t time.Time) (start, end string, err error) {
	switch p {
	case PeriodLast7Days:
		return FormatDate(t.AddDate(0, 0, -7)), FormatDate(t), nil
	case PeriodLast30Days:
		return FormatDate(t.AddDate(0, 0, -30)), FormatDate(t), nil
	case PeriodLast90Days:
		return FormatDate(t.AddDate(0, 0, -90)), FormatDate(t), nil
	case PeriodCurrentMonth:
		n := now.With(t)
		return FormatDate(n.BeginningOfMonth()), FormatDate(n.EndOfMonth()), nil
	case PeriodCurrentYear:
		n := now.With(t)
		return FormatDate(n.BeginningOfYear()), FormatDate(n.EndOfYear()), nil
	default:
		return "", "", ErrUnknownPeriod
	}
}

// Filter returns the date-range filter for the period relative to t.
func (p Period) Filter(t time.Time) (Filter, error) {
	start, end, err := p.Range(t)
	if err != nil {
		return Filter{}, err
	}
	return ByDateRange(start, end), nil
}

// FormatDate renders t in the stored yyyy-MM-dd layout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseUserDate converts a dd.MM.yyyy date typed by the user to yyyy-MM-dd.
func ParseUserDate(s string) (string, error) {
	t, err := time.Parse(UserDateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", ErrInvalidDate
	}
	return FormatDate(t), nil
}

// FormatDisplayDate renders a stored date for list rows. When the value does
// not parse it is returned unchanged with ok=false.
func FormatDisplayDate(s string) (formatted string, ok bool) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return s, false
	}
	return t.Format(DisplayDateLayout), true
}
