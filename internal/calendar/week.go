// Package calendar provides the date arithmetic behind weekend planning:
// week buckets, support rota recurrence and weekend enumeration.
package calendar

import (
	"math"
	"time"
)

// week is the nominal length of a week. Wall-clock differences between two
// Mondays can be an hour off this across a DST change.
const week = 7 * 24 * time.Hour

// RecurrenceSettings describes a rota that repeats every IntervalWeeks weeks,
// counted from the week containing AnchorDate.
type RecurrenceSettings struct {
	IntervalWeeks int       `json:"interval_weeks"`
	AnchorDate    time.Time `json:"anchor_date"`
}

// Interval returns the effective interval. Values below 1 mean weekly.
func (s RecurrenceSettings) Interval() int {
	if s.IntervalWeeks < 1 {
		return 1
	}
	return s.IntervalWeeks
}

// WeekStart returns midnight on the Monday of the week containing date,
// in date's own location.
//
// Sunday belongs to the week that started six days earlier:
//
//	Mon 2023-10-23 -> 2023-10-23
//	Tue 2023-10-24 -> 2023-10-23
//	Sun 2023-10-29 -> 2023-10-23
func WeekStart(date time.Time) time.Time {
	weekday := int(date.Weekday()) // Sunday = 0 ... Saturday = 6

	offset := weekday - 1
	if weekday == 0 {
		offset = 6
	}

	// Build from the civil date so the result is midnight even on days
	// whose length is not 24h.
	y, m, d := date.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, date.Location())
}

// WeeksBetween returns the signed number of week buckets from the week of
// from to the week of to.
func WeeksBetween(from, to time.Time) int {
	diff := WeekStart(to).Sub(WeekStart(from))
	return int(math.Round(float64(diff) / float64(week)))
}

// IsActiveWeek reports whether target falls in an active week of the rota.
// The anchor week is always active, and weeks before the anchor follow the
// same cadence as weeks after it.
func IsActiveWeek(target time.Time, settings RecurrenceSettings) bool {
	diff := WeeksBetween(settings.AnchorDate, target)
	if diff < 0 {
		diff = -diff
	}
	return diff%settings.Interval() == 0
}

// ActiveWeeks returns the week buckets among the weeks consecutive weeks
// starting with the week of from that are active under settings.
func ActiveWeeks(from time.Time, weeks int, settings RecurrenceSettings) []time.Time {
	var out []time.Time
	start := WeekStart(from)
	for i := 0; i < weeks; i++ {
		monday := start.AddDate(0, 0, 7*i)
		if IsActiveWeek(monday, settings) {
			out = append(out, monday)
		}
	}
	return out
}
