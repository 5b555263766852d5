package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/choreflow/internal/chore"
	"github.com/dukerupert/choreflow/internal/config"
	"github.com/dukerupert/choreflow/internal/database"
	"github.com/dukerupert/choreflow/internal/logging"
	"github.com/dukerupert/choreflow/internal/server"
	"github.com/dukerupert/choreflow/internal/store"
)

type serveOptions struct {
	Port       string
	DBPath     string
	ChoresFile string
	LogLevel   string
}

func newServeCommand() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reset scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts.apply(&cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&opts.Port, "port", "", "listen port (overrides CHOREFLOW_PORT)")
	cmd.Flags().StringVar(&opts.DBPath, "db", "", "SQLite database path (overrides CHOREFLOW_DB_PATH)")
	cmd.Flags().StringVar(&opts.ChoresFile, "chores", "", "chores YAML file to load at startup (overrides CHOREFLOW_CHORES_FILE)")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "debug, info, warn or error (overrides CHOREFLOW_LOG_LEVEL)")
	return cmd
}

func (o *serveOptions) apply(cfg *config.Config) {
	if o.Port != "" {
		cfg.Port = o.Port
	}
	if o.DBPath != "" {
		cfg.DBPath = o.DBPath
	}
	if o.ChoresFile != "" {
		cfg.ChoresFile = o.ChoresFile
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	srv := server.New(db, server.Options{
		Location:     cfg.Location,
		LockTimeout:  cfg.LockTimeout,
		TickInterval: cfg.TickInterval,
	}, logger)

	if cfg.ChoresFile != "" {
		f, err := config.LoadChores(cfg.ChoresFile)
		if err != nil {
			return err
		}
		if err := seedChores(ctx, srv.ParticipantStore(), srv.Engine(), f); err != nil {
			return err
		}
		logger.Info("chores file loaded", "path", cfg.ChoresFile, "participants", len(f.Participants), "chores", len(f.Chores))
	}

	srv.Scheduler().Start(ctx)
	defer srv.Scheduler().Stop()
	go srv.RateLimiter().Run(ctx, 5*time.Minute)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("choreflow running", "addr", "http://localhost:"+cfg.Port, "timezone", cfg.Location.String())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// seedChores upserts the file's participants, then defines its chores.
// Existing instance state survives a restart.
func seedChores(ctx context.Context, participants *store.ParticipantStore, engine *chore.Engine, f *config.ChoresFile) error {
	for _, p := range f.Participants {
		if _, err := participants.Upsert(ctx, p.ID, p.Name, p.EffectiveRole()); err != nil {
			return fmt.Errorf("seed participant %s: %w", p.ID, err)
		}
		if p.PIN != "" {
			if err := participants.SetPIN(ctx, p.ID, p.PIN); err != nil {
				return fmt.Errorf("seed participant %s: %w", p.ID, err)
			}
		}
	}

	defs, err := f.Definitions()
	if err != nil {
		return err
	}
	for _, def := range defs {
		if _, err := engine.Define(ctx, def); err != nil {
			return fmt.Errorf("seed chore %s: %w", def.Name, err)
		}
		slog.Debug("chore seeded", "chore", def.Name)
	}
	return nil
}
