// Package main is the entry point for the weekend planner API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zapponejosh/weekend-planner/internal/api"
	"github.com/zapponejosh/weekend-planner/internal/config"
	"github.com/zapponejosh/weekend-planner/internal/database"
	"github.com/zapponejosh/weekend-planner/internal/jobs"
	"github.com/zapponejosh/weekend-planner/internal/logger"
	"github.com/zapponejosh/weekend-planner/internal/planner"
	"github.com/zapponejosh/weekend-planner/internal/remote"
	"github.com/zapponejosh/weekend-planner/internal/suggest"
)

const (
	shutdownTimeout = 15 * time.Second
	syncTimeout     = time.Minute
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Setup structured logging
	log := logger.Setup(cfg)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting weekend planner",
		slog.Int("port", cfg.Port),
		slog.String("log_level", cfg.LogLevel),
		slog.String("timezone", cfg.Timezone),
	)

	// =========================================================================
	// Database
	// =========================================================================
	db, err := database.Open(database.DefaultConfig(cfg.DatabasePath), log)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	applied, err := db.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info("migrations complete", slog.Int("applied", applied))

	// =========================================================================
	// Optional collaborators
	// =========================================================================
	var mirror planner.Mirror
	if cfg.MirrorEnabled() {
		m, err := remote.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
		if err != nil {
			// The local store is authoritative; run without the mirror.
			log.Warn("remote mirror unavailable, continuing without it", slog.Any("error", err))
		} else {
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := m.Close(closeCtx); err != nil {
					log.Warn("close remote mirror", slog.Any("error", err))
				}
			}()
			mirror = m
		}
	}

	var suggester suggest.Suggester
	if cfg.SuggestionsEnabled() {
		g, err := suggest.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Warn("gemini unavailable, using built-in suggestions", slog.Any("error", err))
		} else {
			defer g.Close()
			suggester = &suggest.Fallback{
				Primary:   g,
				Secondary: suggest.NewStatic(),
				OnError: func(err error) {
					log.Warn("gemini suggestion failed, using built-in list", slog.Any("error", err))
				},
			}
			log.Info("gemini suggestions enabled", slog.String("model", cfg.GeminiModel))
		}
	}

	svc := planner.New(db, mirror, suggester, cfg.Location(), log)

	// =========================================================================
	// Scheduled mirror sync
	// =========================================================================
	if mirror != nil && cfg.SyncEnabled() {
		sched := jobs.New(cfg.Location(), log)
		err := sched.Add("mirror-sync", cfg.SyncSchedule, syncTimeout, func(ctx context.Context) error {
			_, err := svc.Sync(ctx)
			return err
		})
		if err != nil {
			return err
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), syncTimeout)
			defer cancel()
			sched.Stop(stopCtx)
		}()
	}

	// =========================================================================
	// HTTP server
	// =========================================================================
	handlers := api.NewHandlers(svc, db, cfg, log)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           api.SetupRoutes(handlers, cfg, log),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("weekend planner ready", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}
