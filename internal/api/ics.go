package api

import (
	"fmt"
	"net/http"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/zapponejosh/weekend-planner/internal/calendar"
	"github.com/zapponejosh/weekend-planner/internal/planner"
)

const calendarProductID = "-//weekend-planner//support rota//EN"

// SupportCalendar handles GET /api/v1/support.ics?from=&weeks=
// Every weekend day on support becomes an all-day event.
func (h *Handlers) SupportCalendar(w http.ResponseWriter, r *http.Request) {
	from, weeks, ok := h.window(w, r)
	if !ok {
		return
	}

	days, err := h.planner.SupportDays(r.Context(), from, weeks)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to build support calendar")
		return
	}

	cal, err := buildSupportCalendar(days, h.planner.Location(), time.Now().UTC())
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to build support calendar")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="support.ics"`)
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, cal.Serialize())
}

func buildSupportCalendar(days []planner.Day, loc *time.Location, stamp time.Time) (*ical.Calendar, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(calendarProductID)
	cal.SetXWRCalName("Support rota")
	cal.SetXWRTimezone(loc.String())

	for _, d := range days {
		start, err := calendar.ParseDate(d.Date, loc)
		if err != nil {
			return nil, fmt.Errorf("support day %q: %w", d.Date, err)
		}

		// UID is stable per date so calendar clients update rather than duplicate.
		ev := cal.AddEvent("support-" + d.Date + "@weekend-planner")
		ev.SetDtStampTime(stamp)
		ev.SetAllDayStartAt(start)
		ev.SetAllDayEndAt(start.AddDate(0, 0, 1))
		ev.SetSummary("On support")
		ev.SetDescription(supportDescription(d))
		ev.SetProperty(ical.ComponentPropertyTransp, "TRANSPARENT")
	}
	return cal, nil
}

func supportDescription(d planner.Day) string {
	reason := "rota week"
	switch {
	case d.ManualSupport && d.RotaSupport:
		reason = "rota week, also marked manually"
	case d.ManualSupport:
		reason = "marked manually"
	}
	if d.Plan != "" {
		return fmt.Sprintf("%s. Plan: %s", reason, d.Plan)
	}
	return reason
}
