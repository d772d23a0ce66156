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

	"github.com/starford/contentgraph/internal/api"
	"github.com/starford/contentgraph/internal/fallback"
	"github.com/starford/contentgraph/internal/mcpserver"
	"github.com/starford/contentgraph/internal/snapshot"
	"github.com/starford/contentgraph/internal/sse"
)

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config
	logger := app.logger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("upstream", cfg.Upstream.BaseURL),
		slog.String("space", cfg.Upstream.Space),
		slog.String("environment", cfg.Upstream.Environment),
		slog.Duration("ttl", cfg.Cache.TTL),
		slog.Bool("snapshots", cfg.Snapshot.Enabled),
		slog.String("fallback_dir", cfg.Fallback.Dir),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	r := newRootRouter(c, cfg)
	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the fallback directory and announce document changes.
	if cfg.Fallback.Watch {
		g.Go(func() error {
			err := fallback.Watch(gCtx, c.fallback, cfg.Fallback.Dir, logger, func(kind, key string) {
				logger.Info("fallback document changed", slog.String("kind", kind), slog.String("key", key))
				c.broker.PublishChange(sse.ChangeFallback, key, time.Time{})
			})
			if err != nil {
				logger.Warn("fallback watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
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

		// SSE streams never finish on their own.
		c.broker.Close()

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

// errShutdown cancels the group so the watcher exits with the server.
var errShutdown = errors.New("shutdown")

func newRootRouter(c *components, cfg *Config) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","entries":%d}`, c.service.Stats().Entries)
	})
	r.Handle("/metrics", c.registry.Handler())

	// Mount API routes under /api; /api/events shares the auth group.
	r.Mount("/api", api.NewRouter(c.service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, c.broker))

	return r
}

// RunMCP serves the content graph tools over stdio until stdin closes.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := app.logger()

	c, err := buildComponents(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	logger.Info("MCP server starting on stdio", slog.String("version", app.version))
	return mcpserver.New(c.service, app.version).ServeStdio()
}

// ExportFallback writes every stored snapshot into the fallback directory
// and returns the number of documents written.
func ExportFallback(ctx context.Context, opts ...Option) (int, error) {
	app := newApplication(opts)
	if app.config == nil {
		return 0, fmt.Errorf("config is required")
	}
	cfg := app.config
	logger := app.logger()

	if !cfg.Snapshot.Enabled {
		return 0, fmt.Errorf("snapshot store is disabled")
	}
	db, err := snapshot.Open(cfg.Snapshot.Path)
	if err != nil {
		return 0, fmt.Errorf("init snapshots: %w", err)
	}
	defer db.Close()

	store, err := openFallback(cfg, logger)
	if err != nil {
		return 0, err
	}

	n, err := store.Export(ctx, db)
	if err != nil {
		return n, err
	}
	logger.Info("fallback exported", slog.Int("documents", n), slog.String("dir", cfg.Fallback.Dir))
	return n, nil
}
