// Package app builds the long-lived services from configuration and runs
// them as a one-shot batch or as a long-running server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/listingwatch/internal/api"
	"github.com/JakeFAU/listingwatch/internal/config"
	"github.com/JakeFAU/listingwatch/internal/extract"
	"github.com/JakeFAU/listingwatch/internal/fetcher"
	collyfetcher "github.com/JakeFAU/listingwatch/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/listingwatch/internal/fetcher/headless"
	"github.com/JakeFAU/listingwatch/internal/headless/detector"
	"github.com/JakeFAU/listingwatch/internal/metrics"
	"github.com/JakeFAU/listingwatch/internal/orchestrator"
	"github.com/JakeFAU/listingwatch/internal/policy/ratelimit"
	"github.com/JakeFAU/listingwatch/internal/schedule"
	"github.com/JakeFAU/listingwatch/internal/scraper"
	"github.com/JakeFAU/listingwatch/internal/storage/memory"
	"github.com/JakeFAU/listingwatch/internal/storage/postgres"
	"github.com/JakeFAU/listingwatch/internal/storage/sqlite"
)

const shutdownTimeout = 10 * time.Second

// ErrUnknownSource is returned when a requested source is not configured.
var ErrUnknownSource = errors.New("unknown source")

// App contains the application's dependencies.
type App struct {
	cfg          *config.Config
	logger       *zap.Logger
	store        scraper.Store
	headless     *headlessfetcher.Renderer
	orchestrator *orchestrator.Orchestrator
}

// Build creates the application's dependencies. The store is the only
// component whose failure is fatal; a headless renderer that cannot start
// is logged and skipped.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.String("storage", cfg.Storage.Driver),
		zap.Int("sources", len(cfg.Sources)),
		zap.Bool("headless", cfg.Headless.Enabled))

	store, err := OpenStore(ctx, cfg.Storage, logger.Named("store"))
	if err != nil {
		return nil, err
	}
	app.store = store

	f, err := app.setupFetcher()
	if err != nil {
		app.closeStore()
		return nil, err
	}

	kw := cfg.KeywordSet()
	ex := extract.New(extract.Config{
		MinTitleLen:       cfg.Scrape.MinTitleLen,
		MaxDescriptionLen: cfg.Scrape.MaxDescriptionLen,
	}, kw, scraper.SystemClock{})

	app.orchestrator = orchestrator.New(f, ex, store, scraper.SystemClock{}, orchestrator.Config{
		Delay:      cfg.Delay(),
		Indicators: kw.Indicators(),
	}, logger.Named("orchestrator"))
	return app, nil
}

// OpenStore selects and opens the configured store.
func OpenStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (scraper.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		logger.Info("using sqlite store", zap.String("path", cfg.SQLitePath))
		store, err := sqlite.Open(ctx, cfg.SQLitePath, sqlite.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("sqlite store init failed: %w", err)
		}
		return store, nil
	case config.DriverPostgres:
		logger.Info("using postgres store")
		store, err := postgres.Open(ctx, postgres.Config{
			DSN:      cfg.PostgresDSN,
			MaxConns: int32(cfg.MaxConns), //nolint:gosec // validated small positive value
		})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		return store, nil
	case config.DriverMemory:
		logger.Info("using in-memory store")
		return memory.NewStore(nil), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func (a *App) setupFetcher() (*fetcher.Fetcher, error) {
	cfg := a.cfg
	opts := fetcher.Options{
		HTTP: collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.HTTP.UserAgent,
			Timeout:   cfg.FetchTimeout(),
		}),
		Limiter: ratelimit.New(ratelimit.Config{PerHostRPS: cfg.HTTP.RatePerHost, Burst: cfg.HTTP.Burst}),
		Logger:  a.logger.Named("fetcher"),
	}
	if cfg.Headless.Enabled {
		renderer, err := headlessfetcher.New(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSeconds) * time.Second,
			Settle:            time.Duration(cfg.Headless.SettleMillis) * time.Millisecond,
			ExecPath:          cfg.Headless.ExecPath,
		})
		if err != nil {
			a.logger.Warn("headless renderer init failed; continuing with http only", zap.Error(err))
		} else {
			a.headless = renderer
			opts.Headless = renderer
			opts.Detector = detector.NewHeuristic(cfg.Headless.PromotionThreshold)
		}
	}
	f, err := fetcher.New(opts)
	if err != nil {
		return nil, fmt.Errorf("fetcher init failed: %w", err)
	}
	return f, nil
}

// Store returns the opened store.
func (a *App) Store() scraper.Store {
	return a.store
}

// Sources returns the configured sources in batch order.
func (a *App) Sources() []scraper.Source {
	return a.cfg.Sources
}

// RunOnce runs a single batch in the foreground. A non-empty name restricts
// the batch to that source.
func (a *App) RunOnce(ctx context.Context, force bool, name string) (orchestrator.Summary, error) {
	sources := a.cfg.Sources
	if name != "" {
		sources = nil
		for _, s := range a.cfg.Sources {
			if s.Name == name {
				sources = []scraper.Source{s}
				break
			}
		}
		if sources == nil {
			return orchestrator.Summary{}, fmt.Errorf("%w: %s", ErrUnknownSource, name)
		}
	}
	return a.orchestrator.RunBatch(ctx, sources, force, nil), nil
}

// Serve runs the HTTP API and the optional cron schedule until ctx ends. A
// running batch is asked to stop and allowed to finish its current source.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	controller := orchestrator.NewController(ctx, a.orchestrator, a.cfg.Sources, a.logger.Named("controller"))
	apiServer := api.NewServer(controller, a.store, a.cfg.Sources, api.Config{
		AuthEnabled: a.cfg.Auth.Enabled,
		APIKey:      a.cfg.Auth.APIKey,
	}, a.logger.Named("api"))

	var scheduler *schedule.Scheduler
	if a.cfg.Schedule.Cron != "" {
		var err error
		scheduler, err = schedule.New(a.cfg.Schedule.Cron, controller, a.logger.Named("schedule"))
		if err != nil {
			return fmt.Errorf("scheduler init failed: %w", err)
		}
		scheduler.Start()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	controller.Wait()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases the store and the headless browser.
func (a *App) Close() {
	if a.headless != nil {
		if err := a.headless.Close(); err != nil {
			a.logger.Warn("headless renderer close failed", zap.Error(err))
		}
	}
	a.closeStore()
	a.logger.Info("shutdown complete")
}

func (a *App) closeStore() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("store close failed", zap.Error(err))
	}
}
