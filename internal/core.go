package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/marknest/internal/filetree"
	"github.com/starford/marknest/internal/sandbox"
	"github.com/starford/marknest/internal/storage"
	"github.com/starford/marknest/internal/store"
)

// Core bundles the storage layers every command needs.
type Core struct {
	Config  *Config
	Logger  *slog.Logger
	Sandbox *sandbox.Sandbox
	DB      *store.DB
	Files   *filetree.Service
}

// Open applies opts, installs the default logger and opens the notes base
// directory and metadata database. Callers must Close the returned Core.
func Open(opts []Option, svcOpts ...filetree.Option) (*Core, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("version", app.version),
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("notes_base", cfg.Notes.BaseDir),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	sb, err := sandbox.New(cfg.Notes.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("init notes base: %w", err)
	}
	db, err := store.Open(cfg.SQLite.Path, store.WithPreviewLength(cfg.Notes.PreviewLength))
	if err != nil {
		return nil, fmt.Errorf("init metadata store: %w", err)
	}

	return &Core{
		Config:  cfg,
		Logger:  logger,
		Sandbox: sb,
		DB:      db,
		Files:   filetree.New(sb, storage.NewFS(), db, svcOpts...),
	}, nil
}

// Close releases the database.
func (c *Core) Close() error {
	return c.DB.Close()
}

// ReconcileAll resyncs metadata for every registered user. Failures for one
// user do not stop the others; they are joined into the returned error.
func (c *Core) ReconcileAll(ctx context.Context) (filetree.ReconcileResult, error) {
	var total filetree.ReconcileResult
	ids, err := c.DB.UserIDs(ctx)
	if err != nil {
		return total, fmt.Errorf("list users: %w", err)
	}
	var errs []error
	for _, id := range ids {
		res, err := c.Files.Reconcile(ctx, id)
		if err != nil {
			c.Logger.Warn("reconcile failed", slog.String("user", id), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("user %s: %w", id, err))
			continue
		}
		total.Indexed += res.Indexed
		total.Removed += res.Removed
	}
	return total, errors.Join(errs...)
}
