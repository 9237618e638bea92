// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/marknest/internal/api"
	"github.com/starford/marknest/internal/auth"
	"github.com/starford/marknest/internal/filetree"
	"github.com/starford/marknest/internal/metrics"
	"github.com/starford/marknest/internal/sse"
	"github.com/starford/marknest/internal/store"
	"github.com/starford/marknest/internal/watch"
)

const treeEventThrottle = 2 * time.Second

// Run starts the HTTP server and, when enabled, the external-edit watcher.
func Run(ctx context.Context, opts ...Option) error {
	m := metrics.New()
	broker := sse.NewBroker(treeEventThrottle)
	defer broker.Close()

	core, err := Open(opts, filetree.WithNotifier(broker), filetree.WithRecorder(m))
	if err != nil {
		return err
	}
	defer core.Close()

	cfg, logger := core.Config, core.Logger

	// Pick up edits made while the server was down.
	if res, err := core.ReconcileAll(ctx); err != nil {
		logger.Warn("initial reconcile failed", slog.String("error", err.Error()))
	} else {
		m.ObserveReconcile(res.Indexed, res.Removed)
		logger.Info("initial reconcile done", slog.Int("indexed", res.Indexed), slog.Int("removed", res.Removed))
	}

	accounts := auth.New(core.DB, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	apiRouter := api.NewRouter(api.Deps{
		Files:      core.Files,
		Accounts:   accounts,
		Events:     broker,
		Feed:       api.FeedLimits{Default: cfg.Feed.DefaultLimit, Max: cfg.Feed.MaxLimit},
		LoginRate:  cfg.Auth.LoginRate,
		LoginBurst: cfg.Auth.LoginBurst,
	})

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newRootRouter(core.DB, m, apiRouter),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Open event streams would otherwise hold Shutdown until its deadline.
	httpServer.RegisterOnShutdown(func() {
		broker.Publish(sse.Event{Type: sse.ServerShutdown, Data: map[string]string{}})
		broker.Close()
	})

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Watch.Enabled {
		g.Go(func() error {
			err := watch.Watch(gCtx, core.Sandbox.Base(), core.Files, cfg.Watch.Debounce, logger,
				func(_ string, res filetree.ReconcileResult) {
					m.ObserveReconcile(res.Indexed, res.Removed)
				})
			if err != nil {
				// The API keeps working without the watcher.
				logger.Error("watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// newRootRouter mounts health, metrics and the API behind the shared middleware.
func newRootRouter(db *store.DB, m *metrics.Metrics, apiRouter http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			slog.Error("readiness check failed", slog.String("error", err.Error()))
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})

	r.Handle("/metrics", m.Handler())
	r.Mount("/api", apiRouter)
	return r
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, status)
}
