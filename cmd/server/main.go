package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AngelCh415/dealpipe/internal/automation"
	"github.com/AngelCh415/dealpipe/internal/catalog"
	"github.com/AngelCh415/dealpipe/internal/config"
	"github.com/AngelCh415/dealpipe/internal/crm"
	"github.com/AngelCh415/dealpipe/internal/dashboard"
	"github.com/AngelCh415/dealpipe/internal/engine"
	"github.com/AngelCh415/dealpipe/internal/httpx"
	"github.com/AngelCh415/dealpipe/internal/metrics"
	"github.com/AngelCh415/dealpipe/internal/scheduler"
	"github.com/AngelCh415/dealpipe/internal/workflow"
)

type backend interface {
	dashboard.DealSource
	workflow.CRM
	automation.CRM
}

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("config", slog.String("err", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Error("catalog", slog.String("err", err.Error()))
		os.Exit(1)
	}
	be, err := newBackend(cfg, logger)
	if err != nil {
		logger.Error("crm backend", slog.String("err", err.Error()))
		os.Exit(1)
	}

	m := metrics.New()
	dash := dashboard.NewService(be, engine.New(cat), logger, m, cfg.Location)
	acts := workflow.NewActions(be, cat, logger, m)

	sched := scheduler.New(logger, cfg.HTTPTimeout*time.Duration(cfg.FetchRetries+1))
	if cfg.SnapshotSchedule != "" {
		if err := sched.AddJob(cfg.SnapshotSchedule, scheduler.NewSnapshotJob(dash, m, logger)); err != nil {
			logger.Error("snapshot schedule", slog.String("schedule", cfg.SnapshotSchedule), slog.String("err", err.Error()))
			os.Exit(1)
		}
	}
	if cfg.SyncSchedule != "" {
		sync := automation.NewSync(be, cat, logger, m, cfg.Location).DryRun(cfg.SyncDryRun)
		if err := sched.AddJob(cfg.SyncSchedule, sync); err != nil {
			logger.Error("sync schedule", slog.String("schedule", cfg.SyncSchedule), slog.String("err", err.Error()))
			os.Exit(1)
		}
	}

	r := httpx.NewRouter(httpx.Deps{
		Log:            logger,
		Dashboards:     dash,
		Actions:        acts,
		Catalog:        cat,
		Metrics:        m,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start()
	go func() {
		logger.Info("starting server", slog.String("port", cfg.Port), slog.String("crm_mode", cfg.CRMMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.String("err", err.Error()))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error("shutdown", slog.String("err", err.Error()))
	}
	sched.Stop()
}

func newBackend(cfg config.Config, log *slog.Logger) (backend, error) {
	if cfg.CRMMode == config.ModeMemory {
		if cfg.CRMSeedPath == "" {
			return crm.NewMemory(), nil
		}
		return crm.LoadSeed(cfg.CRMSeedPath)
	}
	if cfg.CRMToken == "" {
		log.Warn("CRM_ACCESS_TOKEN is empty; CRM calls will be rejected")
	}
	return crm.NewClient(crm.NewHTTPClient(cfg.HTTPTimeout), crm.Options{
		BaseURL: cfg.CRMBaseURL,
		Token:   cfg.CRMToken,
		Retries: cfg.FetchRetries,
	}, log), nil
}
