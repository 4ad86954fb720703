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

	"github.com/archlens/archlens/internal/api"
	"github.com/archlens/archlens/internal/builder"
	"github.com/archlens/archlens/internal/extract"
	"github.com/archlens/archlens/internal/graphservice"
	"github.com/archlens/archlens/internal/mcpserver"
	"github.com/archlens/archlens/internal/scan"
	"github.com/archlens/archlens/internal/snapshot"
	"github.com/archlens/archlens/internal/sse"
	"github.com/archlens/archlens/internal/storage"
)

// Run executes the scan pipeline once: load the baseline, rebuild the
// changed modules, aggregate, render and save the new snapshot.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	svc, closeFn, err := app.service(nil)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := svc.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	app.logger.Info("Scan finished",
		slog.String("project", res.Root),
		slog.Int("changed", len(res.Changed)),
		slog.String("diagram", res.Diagram))
	return nil
}

// Serve runs an initial scan and then serves the graph API over HTTP until
// ctx is canceled or a shutdown signal arrives.
func Serve(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg, logger := app.config, app.logger

	// SSE broker for scan notifications.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc, closeFn, err := app.service(func(res *graphservice.ScanResult) {
		broker.PublishScan(res.Changed, res.Entities)
	})
	if err != nil {
		return err
	}
	defer closeFn()

	if _, err := svc.Scan(ctx); err != nil {
		logger.Warn("initial scan failed", slog.String("error", err.Error()))
	}

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

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
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// ServeMCP serves the MCP tools over stdin/stdout.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	svc, closeFn, err := app.service(nil)
	if err != nil {
		return err
	}
	defer closeFn()

	app.logger.Info("Starting MCP server on stdio")
	return mcpserver.New(svc, app.version).ServeStdio()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	if app.logger == nil {
		// Stdout is reserved for the MCP stdio transport.
		app.logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: app.config.App.LogLevel,
		}))
		slog.SetDefault(app.logger)
	}

	cfg := app.config
	app.logger.Info("Configuration loaded",
		slog.String("project_root", cfg.ProjectRoot),
		slog.String("project_name", cfg.ProjectName),
		slog.String("snapshot_manager", cfg.SnapshotManager),
		slog.String("format", cfg.Format),
		slog.Bool("cache", cfg.Cache.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))
	return app, nil
}

// service wires the pipeline collaborators. onScan may be nil. The returned
// func releases the extraction cache.
func (a *application) service(onScan func(*graphservice.ScanResult)) (*graphservice.Service, func(), error) {
	cfg, logger := a.config, a.logger
	noop := func() {}

	files, err := storage.NewFS(cfg.ProjectRoot)
	if err != nil {
		return nil, noop, fmt.Errorf("init storage: %w", err)
	}

	store, err := snapshot.New(snapshot.Options{
		Backend: cfg.SnapshotManager,
		Root:    cfg.ProjectRoot,
		Dir:     cfg.SnapshotDir,
		File:    cfg.SnapshotFile,
		GitURL:  cfg.GitURL,
		S3:      cfg.S3,
		Logger:  logger,
	})
	if err != nil {
		return nil, noop, fmt.Errorf("init snapshot store: %w", err)
	}

	scanOpts := []scan.ScannerOption{scan.WithScanLogger(logger)}
	if cfg.RespectGitignore {
		scanOpts = append(scanOpts, scan.WithGitignore())
	}
	scanner, err := scan.NewScanner(cfg.ProjectRoot, cfg.FileExtensions, scan.CompileExclusions(cfg.ScanExclusions()), scanOpts...)
	if err != nil {
		return nil, noop, fmt.Errorf("init scanner: %w", err)
	}

	csharp := extract.NewCSharp(cfg.RootNamespace, logger)
	var ex extract.Extractor = csharp
	closeFn := noop
	if cfg.Cache.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Cache.Path), 0o755); err != nil {
			return nil, noop, fmt.Errorf("create cache dir: %w", err)
		}
		cache, err := extract.OpenCache(cfg.Cache.Path, cfg.Cache.Size)
		if err != nil {
			return nil, noop, fmt.Errorf("init extraction cache: %w", err)
		}
		ex = extract.Cached(csharp, cache, csharp.Variant(), logger)
		closeFn = func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close extraction cache", slog.String("error", err.Error()))
			}
		}
	}

	svc := graphservice.New(graphservice.Deps{
		Root:     cfg.ProjectRoot,
		Store:    store,
		Detector: scan.NewDetector(scanner, cfg.Workers, logger),
		Builder:  builder.New(cfg.ProjectRoot, cfg.ProjectName, cfg.FileExtensions, ex, logger),
		Files:    files,
		Format:   cfg.Format,
		OnScan:   onScan,
		Logger:   logger,
	})
	return svc, closeFn, nil
}
