package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zapponejosh/weekend-planner/internal/database"
	"github.com/zapponejosh/weekend-planner/internal/logger"
)

// SnapshotVersion is the current export format.
const SnapshotVersion = 1

// Snapshot is the whole planner state, as exported and imported.
type Snapshot struct {
	Version    int                   `json:"version"`
	ExportedAt time.Time             `json:"exported_at"`
	Days       []database.WeekendDay `json:"days"`
	Recurrence database.Recurrence   `json:"recurrence"`
	Background string                `json:"background,omitempty"`
}

// ImportStats reports what an import wrote.
type ImportStats struct {
	Days       int  `json:"days"`
	Recurrence bool `json:"recurrence"`
	Background bool `json:"background"`
}

// Export returns every stored day, the rota and the background.
func (s *Service) Export(ctx context.Context) (*Snapshot, error) {
	days, err := s.store.ListAllDays(ctx)
	if err != nil {
		return nil, fmt.Errorf("list days: %w", err)
	}
	if days == nil {
		days = []database.WeekendDay{}
	}

	rec, err := s.store.GetRecurrence(ctx)
	if err != nil {
		return nil, fmt.Errorf("load recurrence: %w", err)
	}

	bg, err := s.store.GetPreference(ctx, database.PrefBackgroundImage)
	if err != nil && !database.IsNotFound(err) {
		return nil, fmt.Errorf("load background: %w", err)
	}

	return &Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: s.now().UTC(),
		Days:       days,
		Recurrence: *rec,
		Background: bg,
	}, nil
}

// Import writes a snapshot in one transaction. Days in the snapshot replace
// stored days with the same date; other stored days are kept. The rota is
// replaced when the snapshot carries one.
func (s *Service) Import(ctx context.Context, snap *Snapshot) (*ImportStats, error) {
	if snap.Version != 0 && snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: unsupported snapshot version %d", database.ErrInvalid, snap.Version)
	}
	if snap.Background != "" && !validBackgroundURL(snap.Background) {
		return nil, fmt.Errorf("%w: background must be a base64 image data URL", database.ErrInvalid)
	}

	hasRota := snap.Recurrence.AnchorDate != "" || snap.Recurrence.Enabled
	stats := &ImportStats{}

	err := s.store.WithTx(ctx, func(tx *database.Tx) error {
		for i := range snap.Days {
			day := snap.Days[i]
			if day.Status == "" {
				day.Status = database.StatusOpen
			}
			if err := tx.UpsertDay(ctx, &day); err != nil {
				return fmt.Errorf("day %d (%s): %w", i+1, day.Date, err)
			}
			snap.Days[i] = day
			stats.Days++
		}

		if hasRota {
			rec := snap.Recurrence
			if err := tx.SaveRecurrence(ctx, &rec); err != nil {
				return fmt.Errorf("recurrence: %w", err)
			}
			snap.Recurrence = rec
			stats.Recurrence = true
		}

		if snap.Background != "" {
			if err := tx.SetPreference(ctx, database.PrefBackgroundImage, snap.Background); err != nil {
				return fmt.Errorf("background: %w", err)
			}
			stats.Background = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}

	// Mirror after commit so the remote never sees a rolled back import.
	for _, day := range snap.Days {
		if err := s.mirror.PushDay(ctx, day); err != nil {
			logger.Warn(ctx, s.logger, "mirror push failed", slog.String("date", day.Date), slog.Any("error", err))
			break
		}
	}
	if stats.Recurrence {
		if err := s.mirror.PushRecurrence(ctx, snap.Recurrence); err != nil {
			logger.Warn(ctx, s.logger, "mirror push failed", slog.String("record", "recurrence"), slog.Any("error", err))
		}
	}

	logger.Info(ctx, s.logger, "snapshot imported",
		slog.Int("days", stats.Days),
		slog.Bool("recurrence", stats.Recurrence),
		slog.Bool("background", stats.Background),
	)
	return stats, nil
}
