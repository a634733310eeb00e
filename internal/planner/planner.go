// Package planner resolves weekend days against the stored plans and the
// support rota, and coordinates the local store with the remote mirror and
// the suggestion service.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zapponejosh/weekend-planner/internal/calendar"
	"github.com/zapponejosh/weekend-planner/internal/database"
	"github.com/zapponejosh/weekend-planner/internal/logger"
	"github.com/zapponejosh/weekend-planner/internal/suggest"
)

// Store is the local persistence the planner needs. *database.DB
// implements it.
type Store interface {
	GetDay(ctx context.Context, date string) (*database.WeekendDay, error)
	ListDays(ctx context.Context, from, to string) ([]database.WeekendDay, error)
	ListAllDays(ctx context.Context) ([]database.WeekendDay, error)
	UpsertDay(ctx context.Context, day *database.WeekendDay) error
	GetRecurrence(ctx context.Context) (*database.Recurrence, error)
	SaveRecurrence(ctx context.Context, r *database.Recurrence) error
	GetPreference(ctx context.Context, key string) (string, error)
	SetPreference(ctx context.Context, key, value string) error
	DeletePreference(ctx context.Context, key string) error
	WithTx(ctx context.Context, fn func(*database.Tx) error) error
}

// Service is the weekend planner.
type Service struct {
	store     Store
	mirror    Mirror
	suggester suggest.Suggester
	loc       *time.Location
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a planner. A nil mirror disables remote sync, a nil suggester
// falls back to the built-in idea list and a nil loc means UTC.
func New(store Store, mirror Mirror, suggester suggest.Suggester, loc *time.Location, log *slog.Logger) *Service {
	if mirror == nil {
		mirror = NoopMirror{}
	}
	if suggester == nil {
		suggester = suggest.NewStatic()
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:     store,
		mirror:    mirror,
		suggester: suggester,
		loc:       loc,
		logger:    log,
		now:       time.Now,
	}
}

// Location returns the zone weekends are planned in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Today returns midnight today in the planning zone.
func (s *Service) Today() time.Time {
	return calendar.DateOnly(s.now().In(s.loc))
}

// stamp is the updated_at recorded for an edit. Millisecond precision is
// what the mirror keeps, so a pushed copy compares equal to the local one.
func (s *Service) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// ParseDate parses a YYYY-MM-DD date in the planning zone.
func (s *Service) ParseDate(date string) (time.Time, error) {
	t, err := calendar.ParseDate(date, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", database.ErrInvalid, err)
	}
	return t, nil
}

// =============================================================================
// Resolved views
// =============================================================================

// Day is a weekend day with its support status resolved.
type Day struct {
	Date          string             `json:"date"`
	Weekday       string             `json:"weekday"`
	Status        database.DayStatus `json:"status"`
	Plan          string             `json:"plan"`
	ManualSupport bool               `json:"manual_support"`
	RotaSupport   bool               `json:"rota_support"`
	OnSupport     bool               `json:"on_support"`
	UpdatedAt     *time.Time         `json:"updated_at,omitempty"`
}

// Weekend groups the Saturday and Sunday of one week.
// Saturday is nil when the listing starts on a Sunday.
type Weekend struct {
	WeekStart  string `json:"week_start"`
	RotaActive bool   `json:"rota_active"`
	Saturday   *Day   `json:"saturday,omitempty"`
	Sunday     *Day   `json:"sunday,omitempty"`
}

// rota is the support rota as the resolver sees it.
type rota struct {
	enabled  bool
	settings calendar.RecurrenceSettings
}

func (r rota) active(date time.Time) bool {
	return r.enabled && calendar.IsActiveWeek(date, r.settings)
}

func (s *Service) loadRota(ctx context.Context) (rota, error) {
	rec, err := s.store.GetRecurrence(ctx)
	if err != nil {
		return rota{}, fmt.Errorf("load recurrence: %w", err)
	}
	if !rec.Enabled {
		return rota{}, nil
	}
	settings, err := rec.Settings(s.loc)
	if err != nil {
		// A rota without a usable anchor cannot be evaluated; treat it as off.
		s.logger.Warn("support rota has no valid anchor", slog.String("anchor_date", rec.AnchorDate))
		return rota{}, nil
	}
	return rota{enabled: true, settings: settings}, nil
}

func resolve(date time.Time, stored database.WeekendDay, r rota, touched bool) Day {
	day := Day{
		Date:          calendar.FormatDate(date),
		Weekday:       date.Weekday().String(),
		Status:        stored.Status,
		Plan:          stored.Plan,
		ManualSupport: stored.Support,
		RotaSupport:   r.active(date),
	}
	if day.Status == "" {
		day.Status = database.StatusOpen
	}
	day.OnSupport = day.ManualSupport || day.RotaSupport
	if touched && !stored.UpdatedAt.IsZero() {
		ts := stored.UpdatedAt
		day.UpdatedAt = &ts
	}
	return day
}

// Weekends returns the weekends starting on or after from.
func (s *Service) Weekends(ctx context.Context, from time.Time, weeks int) ([]Weekend, error) {
	dates, err := calendar.UpcomingWeekendDays(from.In(s.loc), weeks)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return []Weekend{}, nil
	}

	stored, err := s.store.ListDays(ctx, calendar.FormatDate(dates[0]), calendar.FormatDate(dates[len(dates)-1]))
	if err != nil {
		return nil, fmt.Errorf("list days: %w", err)
	}
	byDate := make(map[string]database.WeekendDay, len(stored))
	for _, d := range stored {
		byDate[d.Date] = d
	}

	r, err := s.loadRota(ctx)
	if err != nil {
		return nil, err
	}

	weekends := make([]Weekend, 0, weeks)
	for _, date := range dates {
		key := calendar.FormatDate(calendar.WeekStart(date))
		if len(weekends) == 0 || weekends[len(weekends)-1].WeekStart != key {
			weekends = append(weekends, Weekend{WeekStart: key, RotaActive: r.active(date)})
		}
		w := &weekends[len(weekends)-1]

		sd, touched := byDate[calendar.FormatDate(date)]
		day := resolve(date, sd, r, touched)
		if date.Weekday() == time.Saturday {
			w.Saturday = &day
		} else {
			w.Sunday = &day
		}
	}

	return weekends, nil
}

// Day returns one resolved weekend day.
func (s *Service) Day(ctx context.Context, date string) (*Day, error) {
	t, err := s.weekendDate(date)
	if err != nil {
		return nil, err
	}

	stored, touched, err := s.storedDay(ctx, date)
	if err != nil {
		return nil, err
	}

	r, err := s.loadRota(ctx)
	if err != nil {
		return nil, err
	}

	day := resolve(t, stored, r, touched)
	return &day, nil
}

func (s *Service) weekendDate(date string) (time.Time, error) {
	t, err := s.ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	if !calendar.IsWeekend(t) {
		return time.Time{}, fmt.Errorf("%w: %s is a %s, not a weekend day", database.ErrInvalid, date, t.Weekday())
	}
	return t, nil
}

func (s *Service) storedDay(ctx context.Context, date string) (database.WeekendDay, bool, error) {
	d, err := s.store.GetDay(ctx, date)
	if err != nil {
		if database.IsNotFound(err) {
			return database.DefaultDay(date), false, nil
		}
		return database.WeekendDay{}, false, fmt.Errorf("get day: %w", err)
	}
	return *d, true, nil
}

// DayUpdate is a partial change to a day. Nil fields are left alone.
type DayUpdate struct {
	Status  *database.DayStatus `json:"status,omitempty"`
	Plan    *string             `json:"plan,omitempty"`
	Support *bool               `json:"support,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u DayUpdate) Empty() bool {
	return u.Status == nil && u.Plan == nil && u.Support == nil
}

// UpdateDay applies a partial update, stores it and mirrors it.
func (s *Service) UpdateDay(ctx context.Context, date string, u DayUpdate) (*Day, error) {
	if _, err := s.weekendDate(date); err != nil {
		return nil, err
	}
	if u.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", database.ErrInvalid)
	}

	stored, _, err := s.storedDay(ctx, date)
	if err != nil {
		return nil, err
	}

	if u.Status != nil {
		stored.Status = *u.Status
	}
	if u.Plan != nil {
		stored.Plan = strings.TrimSpace(*u.Plan)
	}
	if u.Support != nil {
		stored.Support = *u.Support
	}
	stored.UpdatedAt = s.stamp()

	if err := s.store.UpsertDay(ctx, &stored); err != nil {
		return nil, err
	}

	logger.Debug(ctx, s.logger, "day updated",
		slog.String("date", date),
		slog.String("status", string(stored.Status)),
		slog.Bool("support", stored.Support),
	)

	if err := s.mirror.PushDay(ctx, stored); err != nil {
		logger.Warn(ctx, s.logger, "mirror push failed", slog.String("date", date), slog.Any("error", err))
	}

	return s.Day(ctx, date)
}

// ClearDay resets a day to open, unplanned and off manual support. The
// reset is stored as a timestamped edit, so it replaces older copies of the
// day on other devices when they sync.
func (s *Service) ClearDay(ctx context.Context, date string) (*Day, error) {
	if _, err := s.weekendDate(date); err != nil {
		return nil, err
	}

	stored, _, err := s.storedDay(ctx, date)
	if err != nil {
		return nil, err
	}

	cleared := database.DefaultDay(date)
	cleared.CreatedAt = stored.CreatedAt
	cleared.UpdatedAt = s.stamp()
	if err := s.store.UpsertDay(ctx, &cleared); err != nil {
		return nil, fmt.Errorf("clear day: %w", err)
	}

	logger.Debug(ctx, s.logger, "day cleared", slog.String("date", date))

	if err := s.mirror.PushDay(ctx, cleared); err != nil {
		logger.Warn(ctx, s.logger, "mirror push failed", slog.String("date", date), slog.Any("error", err))
	}

	return s.Day(ctx, date)
}

// =============================================================================
// Support rota
// =============================================================================

// Recurrence returns the stored support rota.
func (s *Service) Recurrence(ctx context.Context) (*database.Recurrence, error) {
	return s.store.GetRecurrence(ctx)
}

// RecurrenceUpdate is a partial change to the rota. Nil fields are left alone.
type RecurrenceUpdate struct {
	Enabled       *bool   `json:"enabled,omitempty"`
	IntervalWeeks *int    `json:"interval_weeks,omitempty"`
	AnchorDate    *string `json:"anchor_date,omitempty"`
}

// UpdateRecurrence applies a partial rota change, stores it and mirrors it.
func (s *Service) UpdateRecurrence(ctx context.Context, u RecurrenceUpdate) (*database.Recurrence, error) {
	rec, err := s.store.GetRecurrence(ctx)
	if err != nil {
		return nil, fmt.Errorf("load recurrence: %w", err)
	}

	if u.Enabled != nil {
		rec.Enabled = *u.Enabled
	}
	if u.IntervalWeeks != nil {
		rec.IntervalWeeks = *u.IntervalWeeks
	}
	if u.AnchorDate != nil {
		rec.AnchorDate = strings.TrimSpace(*u.AnchorDate)
	}
	// Enabling without an anchor starts the rota this week.
	if rec.Enabled && rec.AnchorDate == "" {
		rec.AnchorDate = calendar.FormatDate(calendar.WeekStart(s.Today()))
	}
	rec.UpdatedAt = s.stamp()

	if err := s.store.SaveRecurrence(ctx, rec); err != nil {
		return nil, err
	}

	logger.Info(ctx, s.logger, "support rota updated",
		slog.Bool("enabled", rec.Enabled),
		slog.Int("interval_weeks", rec.IntervalWeeks),
		slog.String("anchor_date", rec.AnchorDate),
	)

	if err := s.mirror.PushRecurrence(ctx, *rec); err != nil {
		logger.Warn(ctx, s.logger, "mirror push failed", slog.String("record", "recurrence"), slog.Any("error", err))
	}

	return rec, nil
}

// RotaCheck reports how the rota applies to one date.
type RotaCheck struct {
	Date      string `json:"date"`
	WeekStart string `json:"week_start"`
	Enabled   bool   `json:"enabled"`
	Active    bool   `json:"active"`
}

// CheckDate evaluates the stored rota for any date, weekend or not.
func (s *Service) CheckDate(ctx context.Context, date string) (*RotaCheck, error) {
	t, err := s.ParseDate(date)
	if err != nil {
		return nil, err
	}
	r, err := s.loadRota(ctx)
	if err != nil {
		return nil, err
	}
	return &RotaCheck{
		Date:      calendar.FormatDate(t),
		WeekStart: calendar.FormatDate(calendar.WeekStart(t)),
		Enabled:   r.enabled,
		Active:    r.active(t),
	}, nil
}

// SupportDays returns the weekend days on support (manual or rota) in the
// given window.
func (s *Service) SupportDays(ctx context.Context, from time.Time, weeks int) ([]Day, error) {
	weekends, err := s.Weekends(ctx, from, weeks)
	if err != nil {
		return nil, err
	}
	var out []Day
	for _, w := range weekends {
		for _, d := range []*Day{w.Saturday, w.Sunday} {
			if d != nil && d.OnSupport {
				out = append(out, *d)
			}
		}
	}
	return out, nil
}

// =============================================================================
// Summary
// =============================================================================

// Summary counts the state of the weekends in a window.
type Summary struct {
	From         string `json:"from"`
	Weekends     int    `json:"weekends"`
	Days         int    `json:"days"`
	Open         int    `json:"open"`
	Busy         int    `json:"busy"`
	Planned      int    `json:"planned"`
	Support      int    `json:"support"`
	FreeWeekends int    `json:"free_weekends"` // both days open and off support
}

// Summarize counts open, busy, planned and support days in the window.
func (s *Service) Summarize(ctx context.Context, from time.Time, weeks int) (*Summary, error) {
	weekends, err := s.Weekends(ctx, from, weeks)
	if err != nil {
		return nil, err
	}

	sum := &Summary{From: calendar.FormatDate(from.In(s.loc)), Weekends: len(weekends)}
	for _, w := range weekends {
		free := true
		for _, d := range []*Day{w.Saturday, w.Sunday} {
			if d == nil {
				continue
			}
			sum.Days++
			switch d.Status {
			case database.StatusBusy:
				sum.Busy++
			default:
				sum.Open++
			}
			if d.Plan != "" {
				sum.Planned++
			}
			if d.OnSupport {
				sum.Support++
			}
			if d.Status != database.StatusOpen || d.OnSupport {
				free = false
			}
		}
		if free {
			sum.FreeWeekends++
		}
	}
	return sum, nil
}

// =============================================================================
// Suggestions
// =============================================================================

// Suggestion is a proposed plan for a day. It is not stored.
type Suggestion struct {
	Date string `json:"date"`
	Text string `json:"text"`
}

// Suggest proposes an activity for a weekend day.
func (s *Service) Suggest(ctx context.Context, date string) (*Suggestion, error) {
	t, err := s.weekendDate(date)
	if err != nil {
		return nil, err
	}

	day, err := s.Day(ctx, date)
	if err != nil {
		return nil, err
	}

	sibling := t.AddDate(0, 0, 1)
	if t.Weekday() == time.Sunday {
		sibling = t.AddDate(0, 0, -1)
	}
	other, _, err := s.storedDay(ctx, calendar.FormatDate(sibling))
	if err != nil {
		return nil, err
	}

	var plans []string
	for _, p := range []string{day.Plan, other.Plan} {
		if p != "" {
			plans = append(plans, p)
		}
	}

	text, err := s.suggester.Suggest(ctx, suggest.Request{
		Date:       t,
		OnSupport:  day.OnSupport,
		Busy:       day.Status == database.StatusBusy,
		OtherPlans: plans,
	})
	if err != nil {
		return nil, fmt.Errorf("suggest: %w", err)
	}

	return &Suggestion{Date: date, Text: text}, nil
}

// ErrMirrorDisabled is returned by Sync when no remote mirror is configured.
var ErrMirrorDisabled = errors.New("remote mirror not configured")
