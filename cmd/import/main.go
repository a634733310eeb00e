// Command import loads a weekend planner snapshot into the SQLite database.
//
// Usage:
//
//	go run ./cmd/import -json backup/weekends.json -db data/weekends.db
//
// This tool:
// 1. Parses the snapshot written by GET /api/v1/export
// 2. Creates/opens the SQLite database and runs migrations
// 3. Writes all days, the support rota and the background in one transaction
//
// Days already stored with the same date are replaced; other days are kept.
// Use -dry-run to validate a file without writing it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/zapponejosh/weekend-planner/internal/database"
	"github.com/zapponejosh/weekend-planner/internal/logger"
	"github.com/zapponejosh/weekend-planner/internal/planner"
)

func main() {
	// Parse command line flags
	jsonPath := flag.String("json", "weekends.json", "Path to snapshot JSON file")
	dbPath := flag.String("db", "data/weekends.db", "Path to SQLite database")
	dryRun := flag.Bool("dry-run", false, "Validate the snapshot without writing")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	log := logger.New(os.Stdout, level, "text")

	if err := run(*jsonPath, *dbPath, *dryRun, log); err != nil {
		log.Error("import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("import complete")
}

func run(jsonPath, dbPath string, dryRun bool, log *slog.Logger) error {
	ctx := context.Background()
	startTime := time.Now()

	// =========================================================================
	// Step 1: Read and parse JSON
	// =========================================================================
	log.Info("reading JSON file", slog.String("path", jsonPath))

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return fmt.Errorf("read JSON file: %w", err)
	}

	var snap planner.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse JSON: %w", err)
	}

	log.Info("parsed snapshot",
		slog.Int("version", snap.Version),
		slog.Int("days", len(snap.Days)),
		slog.Time("exported_at", snap.ExportedAt),
	)

	if dryRun {
		return validate(&snap, log)
	}

	// =========================================================================
	// Step 2: Open database and run migrations
	// =========================================================================
	log.Info("opening database", slog.String("path", dbPath))

	db, err := database.Open(database.DefaultConfig(dbPath), log)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	migrated, err := db.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info("migrations complete", slog.Int("applied", migrated))

	// =========================================================================
	// Step 3: Import in a transaction
	// =========================================================================
	svc := planner.New(db, nil, nil, time.UTC, log)

	stats, err := svc.Import(ctx, &snap)
	if err != nil {
		return err
	}

	// =========================================================================
	// Step 4: Verify import
	// =========================================================================
	dayCount, err := db.CountDays(ctx)
	if err != nil {
		return fmt.Errorf("count days: %w", err)
	}

	elapsed := time.Since(startTime)
	log.Info("import verified",
		slog.Int("stored_days", dayCount),
		slog.Duration("elapsed", elapsed),
	)

	// Print summary
	fmt.Println()
	fmt.Println("=== Import Summary ===")
	fmt.Printf("Days imported:       %d\n", stats.Days)
	fmt.Printf("Days stored total:   %d\n", dayCount)
	fmt.Printf("Support rota:        %v\n", stats.Recurrence)
	fmt.Printf("Background image:    %v\n", stats.Background)
	fmt.Printf("Time elapsed:        %v\n", elapsed.Round(time.Millisecond))

	return nil
}

// validate checks every record without opening the database.
func validate(snap *planner.Snapshot, log *slog.Logger) error {
	var bad, blank int
	for i, day := range snap.Days {
		if day.Status == "" {
			day.Status = database.StatusOpen
		}
		if err := day.Validate(); err != nil {
			log.Error("invalid day", slog.Int("index", i+1), slog.String("date", day.Date), slog.Any("error", err))
			bad++
			continue
		}
		if day.IsDefault() {
			log.Debug("day carries no plan", slog.String("date", day.Date))
			blank++
		}
	}
	if err := snap.Recurrence.Validate(); err != nil {
		log.Error("invalid recurrence", slog.Any("error", err))
		bad++
	}

	if bad > 0 {
		return fmt.Errorf("%d invalid records", bad)
	}
	log.Info("snapshot is valid",
		slog.Int("days", len(snap.Days)),
		slog.Int("blank_days", blank),
	)
	return nil
}
