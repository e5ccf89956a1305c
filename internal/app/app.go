package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gmsas95/ddtscan/internal/api"
	"github.com/gmsas95/ddtscan/internal/archive"
	"github.com/gmsas95/ddtscan/internal/batch"
	"github.com/gmsas95/ddtscan/internal/config"
	"github.com/gmsas95/ddtscan/internal/cron"
	"github.com/gmsas95/ddtscan/internal/domain"
	"github.com/gmsas95/ddtscan/internal/filter"
	"github.com/gmsas95/ddtscan/internal/geometry"
	"github.com/gmsas95/ddtscan/internal/session"
	"github.com/gmsas95/ddtscan/internal/stamp"
	"github.com/gmsas95/ddtscan/internal/store"
	"github.com/gmsas95/ddtscan/internal/workflow"
)

type App struct {
	Config     *config.Config
	ConfigPath string
	Store      *store.Store
	Logger     *zap.Logger
	Pipeline   *filter.Pipeline
	Processor  *session.Processor
	Sessions   *session.Manager
	Stamper    *stamp.Engine
	Exporter   archive.Exporter
	Workflow   *workflow.Service
	Batch      *batch.Processor
	CronRunner *cron.Runner
	Version    string
}

// New wires the services around an open store.
func New(ctx context.Context, cfg *config.Config, st *store.Store, logger *zap.Logger, version string) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	exporter, err := archive.New(ctx, cfg.Archive, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up archive: %w", err)
	}

	proc, pipeline := NewProcessor(cfg, logger)
	stamper := stamp.FromConfig(cfg.Stamp, logger)
	svc := workflow.New(st, stamper, exporter, logger)

	return &App{
		Config:    cfg,
		Store:     st,
		Logger:    logger,
		Pipeline:  pipeline,
		Processor: proc,
		Sessions: session.NewManager(proc, st, session.ManagerConfig{
			Budget:      session.BudgetFromConfig(cfg.Scanner),
			MaxSessions: cfg.Scanner.MaxSessions,
		}, logger),
		Stamper:  stamper,
		Exporter: exporter,
		Workflow: svc,
		Batch:    batch.NewProcessor(svc, batch.ConfigFrom(cfg.Batch), logger),
		Version:  version,
	}, nil
}

// NewProcessor builds the correction stage alone, for offline use.
func NewProcessor(cfg *config.Config, logger *zap.Logger) (*session.Processor, *filter.Pipeline) {
	pipeline := filter.FromConfig(cfg.Filter, logger)
	proc := session.NewProcessor(session.ProcessorConfig{
		Limits:      Limits(cfg.Scanner),
		Format:      domain.PageFormat(cfg.Stamp.PageFormat),
		JPEGQuality: cfg.Stamp.JPEGQuality,
		Workers:     cfg.Scanner.Workers,
	}, pipeline, logger)
	return proc, pipeline
}

func Limits(cfg config.ScannerConfig) geometry.Limits {
	l := geometry.DefaultLimits()
	if cfg.MaxDimension > 0 {
		l.MaxDimension = cfg.MaxDimension
	}
	if cfg.MaxMegapixels > 0 {
		l.MaxPixels = int64(cfg.MaxMegapixels) * 1024 * 1024
	}
	return l
}

// Server builds the HTTP API over the wired services.
func (app *App) Server() *api.Server {
	api.Version = app.Version
	return api.New(app.Config, api.Deps{
		Store:    app.Store,
		Sessions: app.Sessions,
		Workflow: app.Workflow,
		Batch:    app.Batch,
	}, app.Logger)
}

// ReloadFilter applies new filter parameters to subsequent corrections.
func (app *App) ReloadFilter(cfg *config.Config) {
	app.Pipeline.SetParams(filter.ParamsFromConfig(cfg.Filter))
	app.Logger.Info("Filter parameters reloaded",
		zap.Int("threshold_block", cfg.Filter.ThresholdBlock),
		zap.Float64("contrast_gain", cfg.Filter.ContrastGain))
}

// RunServer serves until SIGINT/SIGTERM or ctx ends, then drains sessions.
func (app *App) RunServer(ctx context.Context) error {
	if app.Config.Cron.Enabled {
		runner, err := cron.NewRunner(cron.ConfigFrom(app.Config), app.Sessions, app.Store, app.Logger)
		if err != nil {
			return err
		}
		app.CronRunner = runner
		if err := app.CronRunner.Start(); err != nil {
			app.Logger.Error("Failed to start cron runner", zap.Error(err))
		}
	}

	if app.ConfigPath != "" {
		err := config.Watch(app.ConfigPath, app.Config.Storage.DataDir, app.ReloadFilter, func(err error) {
			app.Logger.Warn("Ignoring invalid config change", zap.Error(err))
		})
		if err != nil {
			app.Logger.Warn("Config hot reload disabled", zap.Error(err))
		}
	}

	server := app.Server()
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	app.Logger.Info("Server started",
		zap.String("address", app.Config.Server.Address),
		zap.Int("port", app.Config.Server.Port),
		zap.String("url", fmt.Sprintf("http://localhost:%d", app.Config.Server.Port)),
		zap.String("archive", exporterName(app.Exporter)),
		zap.String("version", app.Version),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var serveErr error
	select {
	case <-quit:
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	app.Logger.Info("Shutting down...")

	if app.CronRunner != nil {
		app.CronRunner.Stop()
	}

	if err := server.Shutdown(); err != nil {
		app.Logger.Error("Server shutdown error", zap.Error(err))
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app.Sessions.Close(drainCtx)

	return serveErr
}

func (app *App) Close() error {
	var errs []error
	if app.Sessions != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		app.Sessions.Close(ctx)
		cancel()
	}
	if app.Store != nil {
		errs = append(errs, app.Store.Close())
	}
	return errors.Join(errs...)
}

func exporterName(e archive.Exporter) string {
	if e == nil {
		return "none"
	}
	return e.Name()
}
