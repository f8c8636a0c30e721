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
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/nbsync/internal/api"
	"github.com/starford/nbsync/internal/index"
	"github.com/starford/nbsync/internal/kvstore"
	"github.com/starford/nbsync/internal/mcpserver"
	"github.com/starford/nbsync/internal/models"
	"github.com/starford/nbsync/internal/nbservice"
	"github.com/starford/nbsync/internal/recovery"
	"github.com/starford/nbsync/internal/sse"
	"github.com/starford/nbsync/internal/storage"
)

// stack holds the long-lived components shared by every command.
type stack struct {
	workspace *storage.FS
	state     *kvstore.DB
	catalog   *index.DB
	recovery  *recovery.Store
	broker    *sse.Broker
	service   *nbservice.Service
}

func (s *stack) close() {
	if s.service != nil {
		s.service.Shutdown(context.Background())
	}
	if s.broker != nil {
		s.broker.Close()
	}
	if s.catalog != nil {
		s.catalog.Close()
	}
	if s.state != nil {
		s.state.Close()
	}
}

func setup(opts []Option) (*application, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	app.logger = slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(app.logger)
	return app, nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	return nil
}

// build opens storage, databases and the notebook service.
func build(app *application) (*stack, error) {
	cfg, logger := app.config, app.logger
	s := &stack{}

	for _, dir := range []string{
		cfg.Workspace.Path,
		cfg.Recovery.Dir,
		filepath.Dir(cfg.Recovery.SQLitePath),
		filepath.Dir(cfg.Index.SQLitePath),
	} {
		if err := ensureDir(dir); err != nil {
			return nil, err
		}
	}

	var err error
	if s.workspace, err = storage.NewFS(cfg.Workspace.Path); err != nil {
		return nil, fmt.Errorf("init workspace: %w", err)
	}
	backups, err := storage.NewFS(cfg.Recovery.Dir)
	if err != nil {
		return nil, fmt.Errorf("init backups: %w", err)
	}
	if s.state, err = kvstore.Open(cfg.Recovery.SQLitePath); err != nil {
		return nil, fmt.Errorf("init state: %w", err)
	}
	if cfg.Recovery.ClearSession {
		if err := s.state.ClearScope(kvstore.BucketSession); err != nil {
			logger.Warn("clear session state failed", slog.String("error", err.Error()))
		}
	}
	if s.catalog, err = index.Open(cfg.Index.SQLitePath); err != nil {
		s.close()
		return nil, fmt.Errorf("init index: %w", err)
	}

	s.recovery = recovery.NewStore(backups,
		s.state.Bucket(kvstore.BucketGlobal),
		s.state.Bucket(kvstore.BucketSession),
		s.workspace, logger)
	s.broker = sse.NewBroker(2 * time.Second)
	s.service = nbservice.NewService(nbservice.Options{
		Workspace:      s.workspace,
		Recovery:       s.recovery,
		Runtime:        cfg.Runtime.Provider(),
		Catalog:        s.catalog,
		Publisher:      s.broker,
		HistoryLimit:   cfg.History.Limit,
		BackupInterval: cfg.Recovery.BackupInterval,
		Logger:         logger,
	})

	if err := index.Sync(s.catalog, s.workspace, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
	return s, nil
}

func healthOK(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := setup(opts)
	if err != nil {
		return err
	}
	cfg, logger := app.config, app.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("workspace_path", cfg.Workspace.Path),
		slog.String("recovery_dir", cfg.Recovery.Dir),
		slog.String("state_sqlite_path", cfg.Recovery.SQLitePath),
		slog.String("index_sqlite_path", cfg.Index.SQLitePath),
		slog.String("log_level", cfg.App.LogLevel.String()))

	s, err := build(app)
	if err != nil {
		return err
	}
	defer s.close()

	apiRouter := api.NewRouter(s.service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, s.broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", healthOK)
	r.Get("/health/ready", healthOK)

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Keep the catalog current and reload open notebooks changed on disk.
	g.Go(func() error {
		err := index.Watch(gCtx, s.catalog, s.workspace, s.workspace.Root(), logger, func(kind, path string) {
			s.service.HandleFileEvent(gCtx, kind, path)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		return s.service.RunBackups(gCtx)
	})

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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// SSE streams never end on their own.
		s.broker.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		// Back up unsaved notebooks before the process exits.
		s.service.Shutdown(shutdownCtx)
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown stops the remaining goroutines once the signal handler is done.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := setup(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	s, err := build(app)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := s.service.RunBackups(ctx); err != nil {
			app.logger.Error("backups stopped", slog.String("error", err.Error()))
		}
	}()

	app.logger.Info("MCP server starting", slog.String("workspace_path", app.config.Workspace.Path))
	return mcpserver.New(s.service, app.version).ServeStdio()
}

// InspectRecovery reports the recovery record a load of loc would use,
// without consuming it.
func InspectRecovery(ctx context.Context, loc models.Location, opts ...Option) (recovery.Hit, bool, error) {
	app, err := setup(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return recovery.Hit{}, false, err
	}
	s, err := build(app)
	if err != nil {
		return recovery.Hit{}, false, err
	}
	defer s.close()
	hit, ok := s.recovery.Inspect(ctx, loc)
	return hit, ok, nil
}
