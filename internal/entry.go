// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/starford/marginalia/internal/api"
	"github.com/starford/marginalia/internal/frontmatter"
	"github.com/starford/marginalia/internal/index"
	"github.com/starford/marginalia/internal/library"
	"github.com/starford/marginalia/internal/mcpserver"
	"github.com/starford/marginalia/internal/metrics"
	"github.com/starford/marginalia/internal/noteservice"
	"github.com/starford/marginalia/internal/remote"
	"github.com/starford/marginalia/internal/render"
	"github.com/starford/marginalia/internal/sse"
	"github.com/starford/marginalia/internal/storage"
	"github.com/starford/marginalia/internal/syncer"
	"github.com/starford/marginalia/internal/writer"
)

// runtime holds the components shared by every command.
type runtime struct {
	cfg          *Config
	logger       *slog.Logger
	closeLog     func() error
	store        *storage.FS
	db           *index.DB
	registry     *prometheus.Registry
	collector    *metrics.Collector
	syncer       *syncer.Syncer
	svc          *noteservice.Service
	trackingProp string
}

func (rt *runtime) Close() {
	if rt.db != nil {
		rt.db.Close()
	}
	_ = rt.closeLog()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{
		version:   "dev",
		logOutput: os.Stdout,
		out:       os.Stdout,
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// bootstrap wires storage, index, remote client, renderer, writer and the
// sync orchestrator. extra notifiers receive sync feedback next to the log.
func (app *application) bootstrap(extra ...syncer.Notifier) (*runtime, error) {
	cfg := app.config

	// Initialize structured JSON logger.
	logger, closeLog := newLogger(cfg.App, app.logOutput)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("base_folder", cfg.Vault.BaseFolder),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("track_files", cfg.Frontmatter.Tracking()),
		slog.String("log_level", cfg.App.Level().String()))

	rt := &runtime{cfg: cfg, logger: logger, closeLog: closeLog}

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		rt.Close()
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	// Initialize storage.
	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	rt.store = store

	// Initialize SQLite index.
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("init index: %w", err)
	}
	rt.db = db

	// Templates.
	renderer := render.NewTextTemplate()
	var engine *frontmatter.Engine
	if cfg.Frontmatter.Enabled {
		tmpl := cfg.Frontmatter.Template
		if cfg.Frontmatter.TemplateFile != "" {
			if tmpl, err = readTemplate(cfg.Frontmatter.TemplateFile); err != nil {
				rt.Close()
				return nil, err
			}
		}
		engine = frontmatter.NewEngine(renderer, frontmatter.Options{
			Template:         tmpl,
			TrackFiles:       cfg.Frontmatter.TrackFiles,
			TrackingProperty: cfg.Frontmatter.TrackingProperty,
			MultilineFields:  cfg.Frontmatter.MultilineFields,
		})
		rt.trackingProp = engine.TrackingProperty()
	}
	bodyTmpl := render.DefaultBodyTemplate
	if cfg.Frontmatter.BodyTemplateFile != "" {
		if bodyTmpl, err = readTemplate(cfg.Frontmatter.BodyTemplateFile); err != nil {
			rt.Close()
			return nil, err
		}
	}

	// Metrics.
	rt.registry = prometheus.NewRegistry()
	rt.collector = metrics.NewCollector(rt.registry)

	// Remote client.
	httpClient := app.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Remote.Timeout}
	}
	client := remote.NewClient(httpClient, logger, remote.Options{
		BaseURL:           cfg.Remote.BaseURL,
		Token:             cfg.Remote.Token,
		PageSize:          cfg.Remote.PageSize,
		RequestsPerMinute: cfg.Remote.RequestsPerMinute,
		DefaultRetryAfter: cfg.Remote.DefaultRetryAfter,
	})
	client.SetObserver(rt.collector)

	// Deduplicating writer.
	w := writer.New(store, db, writer.Options{
		BaseFolder:       cfg.Vault.BaseFolder,
		TrackingProperty: rt.trackingProp,
		ProtectedFields:  cfg.Frontmatter.ProtectedFields,
		DeleteDuplicates: cfg.Frontmatter.DeleteDuplicates,
		SetFileTimes:     cfg.Vault.SetFileTimes,
		Concurrency:      cfg.Vault.Concurrency,
	}, logger)
	w.SetObserver(rt.collector)

	notifier := syncer.Fanout{syncer.LogNotifier{Logger: logger}}
	notifier = append(notifier, extra...)

	rt.syncer = syncer.New(syncer.Config{
		Remote:       client,
		DB:           db,
		Store:        store,
		Engine:       engine,
		Renderer:     renderer,
		BodyTemplate: bodyTmpl,
		Writer:       w,
		Filter: library.Filter{
			ExcludeTags:      cfg.Filter.ExcludeTags,
			IncludeDeleted:   cfg.Filter.IncludeDeleted,
			IncludeDiscarded: cfg.Filter.IncludeDiscarded,
		},
		Kind:     cfg.Remote.Kind,
		Metrics:  rt.collector,
		Notifier: notifier,
		Logger:   logger,
	})
	rt.svc = noteservice.NewService(store, db, rt.trackingProp)
	return rt, nil
}

func readTemplate(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", path, err)
	}
	return string(data), nil
}

// SyncOnce runs a single sync pass and prints its summary.
func SyncOnce(ctx context.Context, full bool, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := app.bootstrap()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := rt.syncer.Sync(ctx, syncer.Options{Full: full})
	if err != nil {
		return err
	}
	printResult(app.out, res)
	return nil
}

func printResult(out io.Writer, res *syncer.Result) {
	mode := "delta"
	if res.Full {
		mode = "full"
	}
	fmt.Fprintf(out, "%s sync: %d fetched, %d documents, %d highlights\n", mode, res.Fetched, res.Documents, res.Highlights)
	fmt.Fprintf(out, "files: %s\n", res.Report.String())
	for _, f := range res.Report.Failures {
		fmt.Fprintf(out, "  failed: %v\n", f)
	}
	for _, err := range res.RenderFailures {
		fmt.Fprintf(out, "  render: %v\n", err)
	}
}

// Status prints the checkpoint and index counters without contacting the remote.
func Status(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	db, err := index.Open(app.config.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	cp, ok, err := db.Checkpoint()
	if err != nil {
		return err
	}
	total, tracked, err := db.Count()
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintf(app.out, "checkpoint: %s\n", cp.Format(time.RFC3339))
	} else {
		fmt.Fprintln(app.out, "checkpoint: none (next sync is full)")
	}
	fmt.Fprintf(app.out, "indexed files: %d (%d tracked)\n", total, tracked)
	return nil
}

// ServeMCP exposes the sync tools over MCP stdio. Logs must not go to stdout.
func ServeMCP(_ context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := app.bootstrap()
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := index.Sync(rt.db, rt.store, rt.trackingProp, rt.logger); err != nil {
		rt.logger.Warn("initial index sync failed", slog.String("error", err.Error()))
	}

	contract := mcpserver.FormatContract(app.config.Vault.BaseFolder, rt.trackingProp, app.config.Frontmatter.ProtectedFields)
	srv := mcpserver.New(rt.svc, rt.syncer, app.version, contract)
	rt.logger.Info("MCP server starting on stdio")
	return srv.ServeStdio()
}

// Run starts the long-running service: HTTP API, SSE, metrics, vault
// watcher and the optional sync schedule.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// SSE broker.
	broker := sse.NewBroker(250 * time.Millisecond)
	defer broker.Close()

	rt, err := app.bootstrap(broker)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger

	// Run initial index sync.
	if _, err := index.Sync(rt.db, rt.store, rt.trackingProp, logger); err != nil {
		logger.Warn("initial index sync failed", slog.String("error", err.Error()))
	}

	apiRouter := api.NewRouter(rt.svc, rt.syncer, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
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
		if err := rt.db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"index unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", metrics.Handler(rt.registry))

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gCtx := errgroup.WithContext(ctx)

	// Keep the identity index current between passes.
	g.Go(func() error {
		w := &index.Watcher{
			DB:           rt.db,
			Store:        rt.store,
			Root:         cfg.Vault.Path,
			TrackingProp: rt.trackingProp,
			Logger:       logger,
			OnChange:     broker.PublishFileEvent,
		}
		if err := w.Run(gCtx); err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	if cfg.App.SyncInterval > 0 {
		g.Go(func() error {
			logger.Info("Scheduled sync enabled", slog.Duration("interval", cfg.App.SyncInterval))
			return rt.syncer.Schedule(gCtx, cfg.App.SyncInterval)
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

	// Handle shutdown.
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	err = g.Wait()
	rt.syncer.Wait()
	if err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
