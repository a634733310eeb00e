package planner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zapponejosh/weekend-planner/internal/database"
	"github.com/zapponejosh/weekend-planner/internal/logger"
	"github.com/zapponejosh/weekend-planner/internal/suggest"
)

// =============================================================================
// TEST SETUP HELPERS
// =============================================================================

// fakeMirror stores pushed records in memory. A non-zero precision cuts
// updated_at the way a BSON datetime does.
type fakeMirror struct {
	days       map[string]database.WeekendDay
	recurrence *database.Recurrence
	pushed     []string
	precision  time.Duration
	err        error
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{days: map[string]database.WeekendDay{}}
}

func (m *fakeMirror) PushDay(_ context.Context, day database.WeekendDay) error {
	if m.err != nil {
		return m.err
	}
	if m.precision > 0 {
		day.UpdatedAt = day.UpdatedAt.Truncate(m.precision)
	}
	m.days[day.Date] = day
	m.pushed = append(m.pushed, day.Date)
	return nil
}

func (m *fakeMirror) PullDays(context.Context) ([]database.WeekendDay, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]database.WeekendDay, 0, len(m.days))
	for _, d := range m.days {
		out = append(out, d)
	}
	return out, nil
}

func (m *fakeMirror) PushRecurrence(_ context.Context, r database.Recurrence) error {
	if m.err != nil {
		return m.err
	}
	if m.precision > 0 {
		r.UpdatedAt = r.UpdatedAt.Truncate(m.precision)
	}
	m.recurrence = &r
	return nil
}

func (m *fakeMirror) PullRecurrence(context.Context) (*database.Recurrence, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.recurrence, nil
}

type fakeSuggester struct {
	req suggest.Request
	err error
}

func (f *fakeSuggester) Suggest(_ context.Context, req suggest.Request) (string, error) {
	f.req = req
	if f.err != nil {
		return "", f.err
	}
	return "Picnic in the park", nil
}

type testEnv struct {
	db        *database.DB
	svc       *Service
	mirror    *fakeMirror
	suggester *fakeSuggester
}

// setupTest creates a planner over a fresh in-memory database. The clock is
// pinned to Wednesday 2023-10-25.
func setupTest(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:            ":memory:",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	}, logger.Discard())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	mirror := newFakeMirror()
	sg := &fakeSuggester{}
	svc := New(db, mirror, sg, time.UTC, logger.Discard())
	svc.now = func() time.Time { return time.Date(2023, 10, 25, 12, 0, 0, 0, time.UTC) }

	return &testEnv{db: db, svc: svc, mirror: mirror, suggester: sg}
}

func ptr[T any](v T) *T { return &v }

func enableRota(t *testing.T, env *testEnv, anchor string, interval int) {
	t.Helper()
	_, err := env.svc.UpdateRecurrence(context.Background(), RecurrenceUpdate{
		Enabled:       ptr(true),
		IntervalWeeks: ptr(interval),
		AnchorDate:    ptr(anchor),
	})
	if err != nil {
		t.Fatalf("UpdateRecurrence() error = %v", err)
	}
}

// =============================================================================
// WEEKENDS
// =============================================================================

func TestWeekends_DefaultsWhenEmpty(t *testing.T) {
	env := setupTest(t)

	weekends, err := env.svc.Weekends(context.Background(), env.svc.Today(), 3)
	if err != nil {
		t.Fatalf("Weekends() error = %v", err)
	}
	if len(weekends) != 3 {
		t.Fatalf("len(weekends) = %d, want 3", len(weekends))
	}

	wantStarts := []string{"2023-10-23", "2023-10-30", "2023-11-06"}
	for i, w := range weekends {
		if w.WeekStart != wantStarts[i] {
			t.Errorf("weekends[%d].WeekStart = %s, want %s", i, w.WeekStart, wantStarts[i])
		}
		if w.RotaActive {
			t.Errorf("weekends[%d].RotaActive = true with rota off", i)
		}
		for _, d := range []*Day{w.Saturday, w.Sunday} {
			if d == nil {
				t.Fatalf("weekends[%d] missing a day", i)
			}
			if d.Status != database.StatusOpen || d.Plan != "" || d.OnSupport || d.UpdatedAt != nil {
				t.Errorf("day %s = %+v, want untouched default", d.Date, d)
			}
		}
	}
	if weekends[0].Saturday.Date != "2023-10-28" || weekends[0].Sunday.Date != "2023-10-29" {
		t.Errorf("first weekend = %s/%s", weekends[0].Saturday.Date, weekends[0].Sunday.Date)
	}
}

func TestWeekends_StartingOnSunday(t *testing.T) {
	env := setupTest(t)

	from := time.Date(2023, 10, 29, 0, 0, 0, 0, time.UTC)
	weekends, err := env.svc.Weekends(context.Background(), from, 2)
	if err != nil {
		t.Fatalf("Weekends() error = %v", err)
	}
	if len(weekends) != 2 {
		t.Fatalf("len(weekends) = %d, want 2", len(weekends))
	}
	if weekends[0].Saturday != nil {
		t.Errorf("first weekend Saturday = %+v, want nil", weekends[0].Saturday)
	}
	if weekends[0].Sunday == nil || weekends[0].Sunday.Date != "2023-10-29" {
		t.Errorf("first weekend Sunday = %+v", weekends[0].Sunday)
	}
}

func TestWeekends_ResolvesRotaAndStoredDays(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	// Every second week from the week of 2023-10-23.
	enableRota(t, env, "2023-10-23", 2)

	if _, err := env.svc.UpdateDay(ctx, "2023-11-04", DayUpdate{
		Status: ptr(database.StatusBusy),
		Plan:   ptr("  Wedding  "),
	}); err != nil {
		t.Fatalf("UpdateDay() error = %v", err)
	}
	if _, err := env.svc.UpdateDay(ctx, "2023-11-05", DayUpdate{Support: ptr(true)}); err != nil {
		t.Fatalf("UpdateDay() error = %v", err)
	}

	weekends, err := env.svc.Weekends(ctx, env.svc.Today(), 3)
	if err != nil {
		t.Fatalf("Weekends() error = %v", err)
	}

	wantActive := []bool{true, false, true}
	for i, w := range weekends {
		if w.RotaActive != wantActive[i] {
			t.Errorf("weekends[%d].RotaActive = %v, want %v", i, w.RotaActive, wantActive[i])
		}
		if w.Saturday.RotaSupport != wantActive[i] || w.Sunday.RotaSupport != wantActive[i] {
			t.Errorf("weekends[%d] day rota support does not match the week", i)
		}
	}

	sat := weekends[1].Saturday
	if sat.Status != database.StatusBusy || sat.Plan != "Wedding" {
		t.Errorf("Saturday = %+v, want busy Wedding", sat)
	}
	if sat.UpdatedAt == nil {
		t.Error("stored day has no UpdatedAt")
	}

	sun := weekends[1].Sunday
	if !sun.ManualSupport || sun.RotaSupport || !sun.OnSupport {
		t.Errorf("Sunday = %+v, want manual support only", sun)
	}
}

func TestWeekends_RotaWithoutAnchorIsOff(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	// Stored directly to get an enabled rota with a broken anchor past validation.
	if _, err := env.db.Exec(`UPDATE recurrence_settings SET enabled = 1, anchor_date = 'bogus' WHERE id = 1`); err != nil {
		t.Fatalf("update recurrence: %v", err)
	}

	weekends, err := env.svc.Weekends(ctx, env.svc.Today(), 1)
	if err != nil {
		t.Fatalf("Weekends() error = %v", err)
	}
	if weekends[0].RotaActive {
		t.Error("RotaActive = true with an unparseable anchor")
	}
}

// =============================================================================
// DAYS
// =============================================================================

func TestDay_RejectsWeekday(t *testing.T) {
	env := setupTest(t)

	for _, date := range []string{"2023-10-25", "not-a-date", ""} {
		_, err := env.svc.Day(context.Background(), date)
		if !database.IsInvalid(err) {
			t.Errorf("Day(%q) error = %v, want ErrInvalid", date, err)
		}
	}
}

func TestUpdateDay_MirrorsAndKeepsOtherFields(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	if _, err := env.svc.UpdateDay(ctx, "2023-10-28", DayUpdate{Plan: ptr("Hike")}); err != nil {
		t.Fatalf("UpdateDay() error = %v", err)
	}
	day, err := env.svc.UpdateDay(ctx, "2023-10-28", DayUpdate{Status: ptr(database.StatusBusy)})
	if err != nil {
		t.Fatalf("UpdateDay() error = %v", err)
	}

	if day.Plan != "Hike" || day.Status != database.StatusBusy {
		t.Errorf("day = %+v, want busy with plan Hike", day)
	}
	if len(env.mirror.pushed) != 2 {
		t.Errorf("mirror pushes = %v, want 2", env.mirror.pushed)
	}
	if got := env.mirror.days["2023-10-28"]; got.Plan != "Hike" {
		t.Errorf("mirrored day = %+v", got)
	}
}

func TestUpdateDay_Errors(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	tests := []struct {
		name string
		date string
		u    DayUpdate
	}{
		{"weekday", "2023-10-25", DayUpdate{Plan: ptr("x")}},
		{"empty update", "2023-10-28", DayUpdate{}},
		{"bad status", "2023-10-28", DayUpdate{Status: ptr(database.DayStatus("maybe"))}},
		{"plan too long", "2023-10-28", DayUpdate{Plan: ptr(strings.Repeat("a", database.MaxPlanLength+1))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.UpdateDay(ctx, tt.date, tt.u)
			if !database.IsInvalid(err) {
				t.Errorf("UpdateDay() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestUpdateDay_MirrorFailureDoesNotFail(t *testing.T) {
	env := setupTest(t)
	env.mirror.err = errors.New("network down")

	day, err := env.svc.UpdateDay(context.Background(), "2023-10-28", DayUpdate{Plan: ptr("Hike")})
	if err != nil {
		t.Fatalf("UpdateDay() error = %v, want nil", err)
	}
	if day.Plan != "Hike" {
		t.Errorf("Plan = %q, want Hike", day.Plan)
	}
}

func TestClearDay(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	if _, err := env.svc.UpdateDay(ctx, "2023-10-29", DayUpdate{Status: ptr(database.StatusBusy), Support: ptr(true)}); err != nil {
		t.Fatalf("UpdateDay() error = %v", err)
	}

	day, err := env.svc.ClearDay(ctx, "2023-10-29")
	if err != nil {
		t.Fatalf("ClearDay() error = %v", err)
	}
	if day.Status != database.StatusOpen || day.Plan != "" || day.OnSupport {
		t.Errorf("cleared day = %+v, want default", day)
	}
	if day.UpdatedAt == nil {
		t.Error("cleared day has no UpdatedAt")
	}
	remote, ok := env.mirror.days["2023-10-29"]
	if !ok || !remote.IsDefault() {
		t.Errorf("mirror copy = %+v, want the cleared day", remote)
	}

	// Clearing an untouched day is not an error.
	if _, err := env.svc.ClearDay(ctx, "2023-11-04"); err != nil {
		t.Errorf("ClearDay(untouched) error = %v", err)
	}
}

// =============================================================================
// SUPPORT ROTA
// =============================================================================

func TestUpdateRecurrence_EnableWithoutAnchorUsesThisWeek(t *testing.T) {
	env := setupTest(t)

	rec, err := env.svc.UpdateRecurrence(context.Background(), RecurrenceUpdate{Enabled: ptr(true)})
	if err != nil {
		t.Fatalf("UpdateRecurrence() error = %v", err)
	}
	if rec.AnchorDate != "2023-10-23" {
		t.Errorf("AnchorDate = %q, want 2023-10-23", rec.AnchorDate)
	}
	if rec.IntervalWeeks != 1 {
		t.Errorf("IntervalWeeks = %d, want 1", rec.IntervalWeeks)
	}
	if env.mirror.recurrence == nil || !env.mirror.recurrence.Enabled {
		t.Errorf("mirrored recurrence = %+v", env.mirror.recurrence)
	}
}

func TestUpdateRecurrence_Validation(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	if _, err := env.svc.UpdateRecurrence(ctx, RecurrenceUpdate{IntervalWeeks: ptr(-1)}); !database.IsInvalid(err) {
		t.Errorf("negative interval error = %v, want ErrInvalid", err)
	}
	if _, err := env.svc.UpdateRecurrence(ctx, RecurrenceUpdate{AnchorDate: ptr("2023-13-01")}); !database.IsInvalid(err) {
		t.Errorf("bad anchor error = %v, want ErrInvalid", err)
	}

	rec, err := env.svc.UpdateRecurrence(ctx, RecurrenceUpdate{IntervalWeeks: ptr(0)})
	if err != nil {
		t.Fatalf("UpdateRecurrence(0) error = %v", err)
	}
	if rec.IntervalWeeks != 1 {
		t.Errorf("IntervalWeeks = %d, want 1", rec.IntervalWeeks)
	}
}

func TestCheckDate(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	enableRota(t, env, "2023-10-23", 2)

	tests := []struct {
		date      string
		weekStart string
		active    bool
	}{
		{"2023-10-25", "2023-10-23", true},
		{"2023-10-29", "2023-10-23", true},
		{"2023-10-30", "2023-10-30", false},
		{"2023-11-12", "2023-11-06", true},
		{"2023-10-16", "2023-10-16", false},
	}

	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			got, err := env.svc.CheckDate(ctx, tt.date)
			if err != nil {
				t.Fatalf("CheckDate() error = %v", err)
			}
			if got.WeekStart != tt.weekStart || got.Active != tt.active || !got.Enabled {
				t.Errorf("CheckDate(%s) = %+v, want week %s active %v", tt.date, got, tt.weekStart, tt.active)
			}
		})
	}

	if _, err := env.svc.CheckDate(ctx, "tomorrow"); !database.IsInvalid(err) {
		t.Errorf("CheckDate(bad) error = %v, want ErrInvalid", err)
	}
}

func TestSupportDays(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	enableRota(t, env, "2023-10-30", 3)

	if _, err := env.svc.UpdateDay(ctx, "2023-10-28", DayUpdate{Support: ptr(true)}); err != nil {
		t.Fatalf("UpdateDay() error = %v", err)
	}

	days, err := env.svc.SupportDays(ctx, env.svc.Today(), 4)
	if err != nil {
		t.Fatalf("SupportDays() error = %v", err)
	}

	var got []string
	for _, d := range days {
		got = append(got, d.Date)
	}
	want := []string{"2023-10-28", "2023-11-04", "2023-11-05"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("SupportDays() = %v, want %v", got, want)
	}
}

// =============================================================================
// SUMMARY AND SUGGESTIONS
// =============================================================================

func TestSummarize(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	enableRota(t, env, "2023-11-06", 4)

	if _, err := env.svc.UpdateDay(ctx, "2023-10-28", DayUpdate{Status: ptr(database.StatusBusy), Plan: ptr("Wedding")}); err != nil {
		t.Fatalf("UpdateDay() error = %v", err)
	}
	if _, err := env.svc.UpdateDay(ctx, "2023-11-05", DayUpdate{Plan: ptr("Brunch")}); err != nil {
		t.Fatalf("UpdateDay() error = %v", err)
	}

	sum, err := env.svc.Summarize(ctx, env.svc.Today(), 3)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	want := Summary{
		From:         "2023-10-25",
		Weekends:     3,
		Days:         6,
		Open:         5,
		Busy:         1,
		Planned:      2,
		Support:      2, // week of 2023-11-06
		FreeWeekends: 1, // week of 2023-10-30
	}
	if *sum != want {
		t.Errorf("Summarize() = %+v, want %+v", *sum, want)
	}
}

func TestSuggest_PassesDayContext(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	enableRota(t, env, "2023-10-23", 1)

	if _, err := env.svc.UpdateDay(ctx, "2023-10-29", DayUpdate{Plan: ptr("Brunch")}); err != nil {
		t.Fatalf("UpdateDay() error = %v", err)
	}

	got, err := env.svc.Suggest(ctx, "2023-10-28")
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if got.Date != "2023-10-28" || got.Text != "Picnic in the park" {
		t.Errorf("Suggest() = %+v", got)
	}

	req := env.suggester.req
	if !req.OnSupport || req.Busy {
		t.Errorf("request = %+v, want on support and not busy", req)
	}
	if len(req.OtherPlans) != 1 || req.OtherPlans[0] != "Brunch" {
		t.Errorf("OtherPlans = %v, want [Brunch]", req.OtherPlans)
	}
}

func TestSuggest_Errors(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	if _, err := env.svc.Suggest(ctx, "2023-10-26"); !database.IsInvalid(err) {
		t.Errorf("Suggest(weekday) error = %v, want ErrInvalid", err)
	}

	env.suggester.err = suggest.ErrUnavailable
	if _, err := env.svc.Suggest(ctx, "2023-10-28"); !errors.Is(err, suggest.ErrUnavailable) {
		t.Errorf("Suggest() error = %v, want ErrUnavailable", err)
	}
}

// =============================================================================
// SYNC
// =============================================================================

func TestSync_NewerWins(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	older := time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2023, 10, 2, 0, 0, 0, 0, time.UTC)

	local := []database.WeekendDay{
		{Date: "2023-10-28", Status: database.StatusOpen, Plan: "local old", UpdatedAt: older},
		{Date: "2023-10-29", Status: database.StatusBusy, Plan: "local new", UpdatedAt: newer},
		{Date: "2023-11-04", Status: database.StatusOpen, Plan: "local only", UpdatedAt: older},
		{Date: "2023-11-05", Status: database.StatusOpen, Plan: "local tie", UpdatedAt: older},
	}
	for i := range local {
		if err := env.db.UpsertDay(ctx, &local[i]); err != nil {
			t.Fatalf("UpsertDay() error = %v", err)
		}
	}

	env.mirror.days = map[string]database.WeekendDay{
		"2023-10-28": {Date: "2023-10-28", Status: database.StatusBusy, Plan: "remote new", UpdatedAt: newer},
		"2023-10-29": {Date: "2023-10-29", Status: database.StatusOpen, Plan: "remote old", UpdatedAt: older},
		"2023-11-11": {Date: "2023-11-11", Status: database.StatusOpen, Plan: "remote only", UpdatedAt: older},
		"2023-11-05": {Date: "2023-11-05", Status: database.StatusOpen, Plan: "remote tie", UpdatedAt: older},
		"2023-11-08": {Date: "2023-11-08", Status: database.StatusOpen, Plan: "a Wednesday", UpdatedAt: newer},
	}

	res, err := env.svc.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if res.Pulled != 2 || res.Pushed != 2 {
		t.Errorf("Sync() = %+v, want 2 pulled and 2 pushed", res)
	}

	wantLocal := map[string]string{
		"2023-10-28": "remote new",
		"2023-10-29": "local new",
		"2023-11-04": "local only",
		"2023-11-05": "local tie",
		"2023-11-11": "remote only",
	}
	for date, plan := range wantLocal {
		d, err := env.db.GetDay(ctx, date)
		if err != nil {
			t.Fatalf("GetDay(%s) error = %v", date, err)
		}
		if d.Plan != plan {
			t.Errorf("local %s plan = %q, want %q", date, d.Plan, plan)
		}
	}

	if _, err := env.db.GetDay(ctx, "2023-11-08"); !database.IsNotFound(err) {
		t.Errorf("invalid remote day was stored, err = %v", err)
	}
	if got := env.mirror.days["2023-10-29"].Plan; got != "local new" {
		t.Errorf("remote 2023-10-29 plan = %q, want local new", got)
	}
	if got := env.mirror.days["2023-11-05"].Plan; got != "remote tie" {
		t.Errorf("remote tie was overwritten with %q", got)
	}
}

func TestSync_Recurrence(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	remote := database.Recurrence{
		Enabled:       true,
		IntervalWeeks: 3,
		AnchorDate:    "2023-10-09",
		UpdatedAt:     time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC),
	}
	env.mirror.recurrence = &remote

	res, err := env.svc.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if !res.RecurrencePulled {
		t.Errorf("RecurrencePulled = false, want true")
	}

	rec, err := env.svc.Recurrence(ctx)
	if err != nil {
		t.Fatalf("Recurrence() error = %v", err)
	}
	if rec.IntervalWeeks != 3 || rec.AnchorDate != "2023-10-09" || !rec.Enabled {
		t.Errorf("local recurrence = %+v, want the remote rota", rec)
	}
}

func TestSync_Disabled(t *testing.T) {
	env := setupTest(t)
	svc := New(env.db, nil, nil, nil, logger.Discard())

	if _, err := svc.Sync(context.Background()); !errors.Is(err, ErrMirrorDisabled) {
		t.Errorf("Sync() error = %v, want ErrMirrorDisabled", err)
	}
}

func TestSync_PullError(t *testing.T) {
	env := setupTest(t)
	env.mirror.err = errors.New("timeout")

	if _, err := env.svc.Sync(context.Background()); err == nil {
		t.Error("Sync() error = nil, want pull error")
	}
}

// clock is a settable time source shared by test devices.
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

// pairDevices returns two planners with their own databases that share one
// mirror and one clock.
func pairDevices(t *testing.T) (a, b *testEnv, clk *clock) {
	t.Helper()
	a, b = setupTest(t), setupTest(t)
	b.mirror = a.mirror
	b.svc.mirror = a.mirror

	clk = &clock{t: time.Date(2023, 10, 25, 12, 0, 0, 0, time.UTC)}
	a.svc.now = clk.now
	b.svc.now = clk.now
	return a, b, clk
}

func mustSync(t *testing.T, env *testEnv) *SyncResult {
	t.Helper()
	res, err := env.svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	return res
}

func expectCleared(t *testing.T, name string, env *testEnv, date string) {
	t.Helper()
	day, err := env.svc.Day(context.Background(), date)
	if err != nil {
		t.Fatalf("%s: Day() error = %v", name, err)
	}
	if day.Plan != "" || day.Status != database.StatusOpen || day.ManualSupport {
		t.Errorf("%s: day = %+v, want cleared", name, day)
	}
}

func TestSync_ClearReachesOtherDevice(t *testing.T) {
	a, b, clk := pairDevices(t)
	ctx := context.Background()

	if _, err := a.svc.UpdateDay(ctx, "2023-10-28", DayUpdate{Plan: ptr("Hike"), Support: ptr(true)}); err != nil {
		t.Fatalf("UpdateDay() error = %v", err)
	}
	if res := mustSync(t, b); res.Pulled != 1 {
		t.Fatalf("first sync on b = %+v, want 1 pulled", res)
	}

	clk.advance(time.Minute)
	if _, err := a.svc.ClearDay(ctx, "2023-10-28"); err != nil {
		t.Fatalf("ClearDay() error = %v", err)
	}

	if res := mustSync(t, b); res.Pulled != 1 || res.Pushed != 0 {
		t.Errorf("sync on b after clear = %+v, want 1 pulled", res)
	}
	if res := mustSync(t, a); res.Pulled != 0 || res.Pushed != 0 {
		t.Errorf("sync on a after clear = %+v, want nothing moved", res)
	}

	expectCleared(t, "device a", a, "2023-10-28")
	expectCleared(t, "device b", b, "2023-10-28")
	if got := a.mirror.days["2023-10-28"]; !got.IsDefault() {
		t.Errorf("mirror copy = %+v, want cleared", got)
	}
}

func TestSync_ClearMadeOfflineStillWins(t *testing.T) {
	a, b, clk := pairDevices(t)
	ctx := context.Background()

	if _, err := a.svc.UpdateDay(ctx, "2023-10-29", DayUpdate{Plan: ptr("Brunch")}); err != nil {
		t.Fatalf("UpdateDay() error = %v", err)
	}
	mustSync(t, b)

	clk.advance(time.Hour)
	a.mirror.err = errors.New("offline")
	if _, err := a.svc.ClearDay(ctx, "2023-10-29"); err != nil {
		t.Fatalf("ClearDay() error = %v", err)
	}
	a.mirror.err = nil

	// b still holds the older copy; it must not overwrite the clear.
	if res := mustSync(t, b); res.Pushed != 0 {
		t.Errorf("sync on b = %+v, want nothing pushed", res)
	}
	if res := mustSync(t, a); res.Pushed != 1 {
		t.Errorf("sync on a = %+v, want the clear pushed", res)
	}
	if res := mustSync(t, b); res.Pulled != 1 {
		t.Errorf("second sync on b = %+v, want the clear pulled", res)
	}

	expectCleared(t, "device a", a, "2023-10-29")
	expectCleared(t, "device b", b, "2023-10-29")
}

func TestSync_ConvergesWithMillisecondMirror(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	env.mirror.precision = time.Millisecond
	env.svc.now = func() time.Time { return time.Date(2023, 10, 25, 12, 0, 0, 123456789, time.UTC) }

	if _, err := env.svc.UpdateDay(ctx, "2023-10-28", DayUpdate{Plan: ptr("Climbing")}); err != nil {
		t.Fatalf("UpdateDay() error = %v", err)
	}
	enableRota(t, env, "2023-10-23", 2)

	// A row carrying a full-precision timestamp.
	legacy := database.WeekendDay{
		Date:      "2023-11-04",
		Status:    database.StatusBusy,
		UpdatedAt: time.Date(2023, 10, 20, 8, 0, 0, 987654321, time.UTC),
	}
	if err := env.db.UpsertDay(ctx, &legacy); err != nil {
		t.Fatalf("UpsertDay() error = %v", err)
	}

	if res := mustSync(t, env); res.Pushed != 1 || res.Pulled != 0 {
		t.Errorf("sync 1 = %+v, want only the unsynced day pushed", res)
	}

	for i := 2; i <= 3; i++ {
		res := mustSync(t, env)
		if res.Pushed != 0 || res.Pulled != 0 || res.RecurrencePushed || res.RecurrencePulled {
			t.Errorf("sync %d = %+v, want nothing moved", i, res)
		}
	}
}

// =============================================================================
// BACKGROUND
// =============================================================================

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestBackground(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	if _, err := env.svc.Background(ctx); !database.IsNotFound(err) {
		t.Fatalf("Background() before set error = %v, want ErrNotFound", err)
	}

	bg, err := env.svc.SetBackground(ctx, pngHeader)
	if err != nil {
		t.Fatalf("SetBackground() error = %v", err)
	}
	if bg.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", bg.ContentType)
	}
	if !strings.HasPrefix(bg.DataURL, "data:image/png;base64,") {
		t.Errorf("DataURL = %q", bg.DataURL)
	}

	got, err := env.svc.Background(ctx)
	if err != nil {
		t.Fatalf("Background() error = %v", err)
	}
	if *got != *bg {
		t.Errorf("Background() = %+v, want %+v", got, bg)
	}

	if err := env.svc.ClearBackground(ctx); err != nil {
		t.Fatalf("ClearBackground() error = %v", err)
	}
	if _, err := env.svc.Background(ctx); !database.IsNotFound(err) {
		t.Errorf("Background() after clear error = %v, want ErrNotFound", err)
	}
}

func TestSetBackground_Rejects(t *testing.T) {
	env := setupTest(t)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"text", []byte("just some words, not a picture")},
		{"too large", append(append([]byte{}, pngHeader...), make([]byte, MaxBackgroundBytes)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.svc.SetBackground(context.Background(), tt.data); !database.IsInvalid(err) {
				t.Errorf("SetBackground() error = %v, want ErrInvalid", err)
			}
		})
	}
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func TestExportImport(t *testing.T) {
	src := setupTest(t)
	ctx := context.Background()

	enableRota(t, src, "2023-10-23", 2)
	if _, err := src.svc.UpdateDay(ctx, "2023-10-28", DayUpdate{Status: ptr(database.StatusBusy), Plan: ptr("Wedding")}); err != nil {
		t.Fatalf("UpdateDay() error = %v", err)
	}
	if _, err := src.svc.UpdateDay(ctx, "2023-11-05", DayUpdate{Support: ptr(true)}); err != nil {
		t.Fatalf("UpdateDay() error = %v", err)
	}
	if _, err := src.svc.SetBackground(ctx, pngHeader); err != nil {
		t.Fatalf("SetBackground() error = %v", err)
	}

	snap, err := src.svc.Export(ctx)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if snap.Version != SnapshotVersion || len(snap.Days) != 2 || snap.Background == "" {
		t.Fatalf("Export() = %+v", snap)
	}

	dst := setupTest(t)
	stats, err := dst.svc.Import(ctx, snap)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if stats.Days != 2 || !stats.Recurrence || !stats.Background {
		t.Errorf("Import() stats = %+v", stats)
	}
	if len(dst.mirror.pushed) != 2 || dst.mirror.recurrence == nil {
		t.Errorf("import was not mirrored: pushed %v, recurrence %v", dst.mirror.pushed, dst.mirror.recurrence)
	}

	day, err := dst.svc.Day(ctx, "2023-10-28")
	if err != nil {
		t.Fatalf("Day() error = %v", err)
	}
	if day.Plan != "Wedding" || day.Status != database.StatusBusy || !day.RotaSupport {
		t.Errorf("imported day = %+v", day)
	}
}

func TestImport_RollsBackOnInvalidDay(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	snap := &Snapshot{
		Version: SnapshotVersion,
		Days: []database.WeekendDay{
			{Date: "2023-10-28", Status: database.StatusOpen, Plan: "fine"},
			{Date: "2023-10-30", Status: database.StatusOpen, Plan: "a Monday"},
		},
	}

	if _, err := env.svc.Import(ctx, snap); !database.IsInvalid(err) {
		t.Fatalf("Import() error = %v, want ErrInvalid", err)
	}

	n, err := env.db.CountDays(ctx)
	if err != nil {
		t.Fatalf("CountDays() error = %v", err)
	}
	if n != 0 {
		t.Errorf("CountDays() = %d after rolled back import, want 0", n)
	}
	if len(env.mirror.pushed) != 0 {
		t.Errorf("mirror saw a rolled back import: %v", env.mirror.pushed)
	}
}

func TestImport_RejectsBadSnapshot(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	if _, err := env.svc.Import(ctx, &Snapshot{Version: 99}); !database.IsInvalid(err) {
		t.Errorf("unknown version error = %v, want ErrInvalid", err)
	}
	if _, err := env.svc.Import(ctx, &Snapshot{Background: "https://example.com/cat.png"}); !database.IsInvalid(err) {
		t.Errorf("non data URL background error = %v, want ErrInvalid", err)
	}
}
