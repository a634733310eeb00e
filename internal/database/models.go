package database

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/zapponejosh/weekend-planner/internal/calendar"
)

// DayStatus is the availability of a weekend day.
type DayStatus string

const (
	StatusOpen DayStatus = "open"
	StatusBusy DayStatus = "busy"
)

// IsValid checks if a status is one of the known values.
func (s DayStatus) IsValid() bool {
	return s == StatusOpen || s == StatusBusy
}

// MaxPlanLength is the longest plan accepted, in characters.
const MaxPlanLength = 500

// WeekendDay is the stored state of one Saturday or Sunday.
// Days without a row are open, unplanned and off support.
type WeekendDay struct {
	Date      string    `json:"date"` // YYYY-MM-DD
	Status    DayStatus `json:"status"`
	Plan      string    `json:"plan"`
	Support   bool      `json:"support"` // manual support flag
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultDay returns the state of a day nobody has touched.
func DefaultDay(date string) WeekendDay {
	return WeekendDay{Date: date, Status: StatusOpen}
}

// IsDefault reports whether the day carries no user state.
func (d WeekendDay) IsDefault() bool {
	return d.Status == StatusOpen && d.Plan == "" && !d.Support
}

// Validate checks the day before it is written.
func (d WeekendDay) Validate() error {
	var errs []error

	date, err := calendar.ParseDate(d.Date, time.UTC)
	if err != nil {
		errs = append(errs, fmt.Errorf("date must be YYYY-MM-DD, got %q", d.Date))
	} else if !calendar.IsWeekend(date) {
		errs = append(errs, fmt.Errorf("%s is a %s, not a weekend day", d.Date, date.Weekday()))
	}

	if !d.Status.IsValid() {
		errs = append(errs, fmt.Errorf("status must be open or busy, got %q", d.Status))
	}

	if n := utf8.RuneCountInString(d.Plan); n > MaxPlanLength {
		errs = append(errs, fmt.Errorf("plan is %d characters, max %d", n, MaxPlanLength))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Recurrence is the stored support rota.
type Recurrence struct {
	Enabled       bool      `json:"enabled"`
	IntervalWeeks int       `json:"interval_weeks"`
	AnchorDate    string    `json:"anchor_date,omitempty"` // YYYY-MM-DD, empty while never set
	UpdatedAt     time.Time `json:"updated_at"`
}

// Validate checks the rota before it is written.
func (r Recurrence) Validate() error {
	var errs []error

	if r.IntervalWeeks < 0 {
		errs = append(errs, fmt.Errorf("interval_weeks must not be negative, got %d", r.IntervalWeeks))
	}

	if r.AnchorDate != "" {
		if _, err := calendar.ParseDate(r.AnchorDate, time.UTC); err != nil {
			errs = append(errs, fmt.Errorf("anchor_date must be YYYY-MM-DD, got %q", r.AnchorDate))
		}
	} else if r.Enabled {
		errs = append(errs, errors.New("anchor_date is required when the rota is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Settings converts the stored rota into evaluator settings in loc.
func (r Recurrence) Settings(loc *time.Location) (calendar.RecurrenceSettings, error) {
	anchor, err := calendar.ParseDate(r.AnchorDate, loc)
	if err != nil {
		return calendar.RecurrenceSettings{}, err
	}
	return calendar.RecurrenceSettings{
		IntervalWeeks: r.IntervalWeeks,
		AnchorDate:    anchor,
	}, nil
}

// Preference keys.
const (
	PrefBackgroundImage = "background_image"
)
