// Command rota prints the support rota for the coming weeks.
//
// Usage:
//
//	go run ./cmd/rota -weeks 12
//	go run ./cmd/rota -anchor 2023-10-23 -interval 2 -from 2023-10-01
//
// Without -anchor the rota stored in the database is used, together with
// any days marked for support by hand.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/zapponejosh/weekend-planner/internal/calendar"
	"github.com/zapponejosh/weekend-planner/internal/config"
	"github.com/zapponejosh/weekend-planner/internal/database"
	"github.com/zapponejosh/weekend-planner/internal/logger"
	"github.com/zapponejosh/weekend-planner/internal/planner"
)

func main() {
	dbPath := flag.String("db", "data/weekends.db", "Path to SQLite database")
	tz := flag.String("tz", "UTC", "IANA time zone weekends are planned in")
	weeks := flag.Int("weeks", 8, "Number of weeks to print")
	fromStr := flag.String("from", "", "First date, YYYY-MM-DD (default today)")
	anchor := flag.String("anchor", "", "Anchor date; evaluates this rota instead of the stored one")
	interval := flag.Int("interval", 1, "Interval in weeks, used with -anchor")
	flag.Parse()

	if err := run(*dbPath, *tz, *fromStr, *anchor, *weeks, *interval); err != nil {
		fmt.Fprintln(os.Stderr, "rota:", err)
		os.Exit(1)
	}
}

func run(dbPath, tz, fromStr, anchor string, weeks, interval int) error {
	if weeks < 1 || weeks > config.MaxWeekendHorizon {
		return fmt.Errorf("weeks must be between 1 and %d", config.MaxWeekendHorizon)
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("load zone: %w", err)
	}

	from := calendar.DateOnly(time.Now().In(loc))
	if fromStr != "" {
		if from, err = calendar.ParseDate(fromStr, loc); err != nil {
			return err
		}
	}

	if anchor != "" {
		a, err := calendar.ParseDate(anchor, loc)
		if err != nil {
			return fmt.Errorf("anchor: %w", err)
		}
		printActiveWeeks(from, weeks, calendar.RecurrenceSettings{IntervalWeeks: interval, AnchorDate: a})
		return nil
	}

	return printStored(dbPath, loc, from, weeks)
}

// printActiveWeeks lists every week with its rota status.
func printActiveWeeks(from time.Time, weeks int, settings calendar.RecurrenceSettings) {
	fmt.Printf("=== Support rota: every %d week(s) from %s ===\n\n",
		settings.Interval(), calendar.FormatDate(calendar.WeekStart(settings.AnchorDate)))

	active := make(map[string]bool)
	for _, w := range calendar.ActiveWeeks(from, weeks, settings) {
		active[calendar.FormatDate(w)] = true
	}

	start := calendar.WeekStart(from)
	for i := 0; i < weeks; i++ {
		monday := start.AddDate(0, 0, 7*i)
		key := calendar.FormatDate(monday)
		mark := "  -"
		if active[key] {
			mark = "  ON SUPPORT"
		}
		fmt.Printf("  Week of %s (Sat %s)%s\n", key, calendar.FormatDate(monday.AddDate(0, 0, 5)), mark)
	}
}

// printStored resolves the stored rota and manual flags through the planner.
func printStored(dbPath string, loc *time.Location, from time.Time, weeks int) error {
	ctx := context.Background()
	log := logger.New(os.Stderr, "warn", "text")

	db, err := database.Open(database.DefaultConfig(dbPath), log)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if _, err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	svc := planner.New(db, nil, nil, loc, log)

	rec, err := svc.Recurrence(ctx)
	if err != nil {
		return err
	}
	if rec.Enabled {
		fmt.Printf("=== Support rota: every %d week(s) from %s ===\n\n", rec.IntervalWeeks, rec.AnchorDate)
	} else {
		fmt.Printf("=== Support rota: off (manual days only) ===\n\n")
	}

	weekends, err := svc.Weekends(ctx, from, weeks)
	if err != nil {
		return err
	}

	for _, w := range weekends {
		fmt.Printf("  Week of %s\n", w.WeekStart)
		for _, d := range []*planner.Day{w.Saturday, w.Sunday} {
			if d == nil {
				continue
			}
			fmt.Printf("    %-9s %s  %-5s %s\n", d.Weekday, d.Date, supportLabel(*d), d.Plan)
		}
	}
	return nil
}

func supportLabel(d planner.Day) string {
	switch {
	case d.RotaSupport && d.ManualSupport:
		return "both"
	case d.RotaSupport:
		return "rota"
	case d.ManualSupport:
		return "self"
	default:
		return "-"
	}
}
