package calendar

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string as midnight in loc.
// A nil loc means UTC.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate formats a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DateOnly drops the time of day, keeping the location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// IsWeekend reports whether t is a Saturday or a Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// UpcomingWeekendDays returns the Saturdays and Sundays on or after from,
// covering the given number of weekends. When from is a Sunday the first
// weekend is only that Sunday.
func UpcomingWeekendDays(from time.Time, weeks int) ([]time.Time, error) {
	if weeks <= 0 {
		return nil, nil
	}

	count := weeks * 2
	if from.Weekday() == time.Sunday {
		count--
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   DateOnly(from),
		Byweekday: []rrule.Weekday{rrule.SA, rrule.SU},
		Wkst:      rrule.MO,
		Count:     count,
	})
	if err != nil {
		return nil, fmt.Errorf("build weekend rule: %w", err)
	}

	days := r.All()
	for i, d := range days {
		days[i] = d.In(from.Location())
	}
	return days, nil
}
