package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zapponejosh/weekend-planner/internal/database"
	"github.com/zapponejosh/weekend-planner/internal/logger"
)

// Mirror is the remote copy of the planner state. *remote.Mongo
// implements it.
type Mirror interface {
	PushDay(ctx context.Context, day database.WeekendDay) error
	PullDays(ctx context.Context) ([]database.WeekendDay, error)
	PushRecurrence(ctx context.Context, r database.Recurrence) error
	PullRecurrence(ctx context.Context) (*database.Recurrence, error)
}

// NoopMirror is used when no remote is configured.
type NoopMirror struct{}

func (NoopMirror) PushDay(context.Context, database.WeekendDay) error { return nil }
func (NoopMirror) PullDays(context.Context) ([]database.WeekendDay, error) {
	return nil, ErrMirrorDisabled
}
func (NoopMirror) PushRecurrence(context.Context, database.Recurrence) error { return nil }
func (NoopMirror) PullRecurrence(context.Context) (*database.Recurrence, error) {
	return nil, ErrMirrorDisabled
}

// SyncResult reports what a sync moved.
type SyncResult struct {
	Pulled           int  `json:"pulled"`            // remote days written locally
	Pushed           int  `json:"pushed"`            // local days written remotely
	RecurrencePulled bool `json:"recurrence_pulled"` // remote rota replaced the local one
	RecurrencePushed bool `json:"recurrence_pushed"`
}

// syncPrecision is the resolution updated_at values are compared at. The
// mirror stores milliseconds.
const syncPrecision = time.Millisecond

// newer reports whether a was updated after b at sync precision.
func newer(a, b time.Time) bool {
	return a.Truncate(syncPrecision).After(b.Truncate(syncPrecision))
}

// Sync merges the local store with the mirror. For each day the copy with
// the later updated_at wins; ties keep the local copy. A cleared day is an
// ordinary row in its default state, so clears propagate the same way.
func (s *Service) Sync(ctx context.Context) (*SyncResult, error) {
	if _, ok := s.mirror.(NoopMirror); ok {
		return nil, ErrMirrorDisabled
	}

	remoteDays, err := s.mirror.PullDays(ctx)
	if err != nil {
		return nil, fmt.Errorf("pull days: %w", err)
	}
	localDays, err := s.store.ListAllDays(ctx)
	if err != nil {
		return nil, fmt.Errorf("list local days: %w", err)
	}

	local := make(map[string]database.WeekendDay, len(localDays))
	for _, d := range localDays {
		local[d.Date] = d
	}

	res := &SyncResult{}
	remote := make(map[string]database.WeekendDay, len(remoteDays))

	for _, rd := range remoteDays {
		remote[rd.Date] = rd
		ld, ok := local[rd.Date]
		if ok && !newer(rd.UpdatedAt, ld.UpdatedAt) {
			continue
		}
		day := rd
		if err := s.store.UpsertDay(ctx, &day); err != nil {
			if database.IsInvalid(err) {
				logger.Warn(ctx, s.logger, "skipping invalid remote day", slog.String("date", rd.Date), slog.Any("error", err))
				continue
			}
			return res, fmt.Errorf("store remote day %s: %w", rd.Date, err)
		}
		res.Pulled++
	}

	for _, ld := range localDays {
		if rd, ok := remote[ld.Date]; ok && !newer(ld.UpdatedAt, rd.UpdatedAt) {
			continue
		}
		if err := s.mirror.PushDay(ctx, ld); err != nil {
			return res, fmt.Errorf("push day %s: %w", ld.Date, err)
		}
		res.Pushed++
	}

	if err := s.syncRecurrence(ctx, res); err != nil {
		return res, err
	}

	logger.Info(ctx, s.logger, "sync complete",
		slog.Int("pulled", res.Pulled),
		slog.Int("pushed", res.Pushed),
		slog.Bool("recurrence_pulled", res.RecurrencePulled),
		slog.Bool("recurrence_pushed", res.RecurrencePushed),
	)
	return res, nil
}

func (s *Service) syncRecurrence(ctx context.Context, res *SyncResult) error {
	remote, err := s.mirror.PullRecurrence(ctx)
	if err != nil {
		return fmt.Errorf("pull recurrence: %w", err)
	}
	local, err := s.store.GetRecurrence(ctx)
	if err != nil {
		return fmt.Errorf("load recurrence: %w", err)
	}

	switch {
	case remote != nil && newer(remote.UpdatedAt, local.UpdatedAt):
		if err := s.store.SaveRecurrence(ctx, remote); err != nil {
			return fmt.Errorf("store remote recurrence: %w", err)
		}
		res.RecurrencePulled = true
	case remote == nil || newer(local.UpdatedAt, remote.UpdatedAt):
		if local.UpdatedAt.IsZero() {
			// never configured locally, nothing worth pushing
			return nil
		}
		if err := s.mirror.PushRecurrence(ctx, *local); err != nil {
			return fmt.Errorf("push recurrence: %w", err)
		}
		res.RecurrencePushed = true
	}
	return nil
}
