package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/atkinslab/smap-extract/internal/adapter/earthengine"
	httpadapter "github.com/atkinslab/smap-extract/internal/adapter/http"
	kafkaadapter "github.com/atkinslab/smap-extract/internal/adapter/kafka"
	"github.com/atkinslab/smap-extract/internal/adapter/netcdf"
	"github.com/atkinslab/smap-extract/internal/adapter/npy"
	"github.com/atkinslab/smap-extract/internal/config"
	"github.com/atkinslab/smap-extract/internal/domain"
	"github.com/atkinslab/smap-extract/internal/observability"
	"github.com/atkinslab/smap-extract/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := earthengine.NewClient(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to build earth engine client", "error", err)
		os.Exit(1)
	}

	store := npy.NewStore(cfg.OutputDir, logger, metrics)

	// Sidecar and notifier are feature-flagged; nil disables the stage.
	var sidecar pipeline.SidecarWriter
	if cfg.NetCDFEnabled {
		sidecar = netcdf.NewWriter(cfg.NetCDFDir, cfg.CRS, cfg.ScaleMeters, logger)
		logger.Info("netcdf sidecar enabled", "dir", cfg.NetCDFDir)
	}

	var notifier pipeline.Notifier
	var notifierCloser interface{ Close() error }
	if cfg.KafkaEnabled {
		n := kafkaadapter.NewNotifier(cfg, logger)
		notifier = n
		notifierCloser = n
		logger.Info("kafka notifier enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}

	bands := make([]domain.Band, len(cfg.Bands))
	for i, b := range cfg.Bands {
		bands[i] = domain.Band(b)
	}

	job := pipeline.New(pipeline.Options{
		Dates: domain.Range{
			YearStart: cfg.YearStart, YearEnd: cfg.YearEnd,
			MonthStart: cfg.MonthStart, MonthEnd: cfg.MonthEnd,
			DayStart: cfg.DayStart, DayEnd: cfg.DayEnd,
		},
		Bands:            bands,
		FillValue:        cfg.FillValue,
		MinQueryInterval: cfg.EEMinQueryInterval,
	}, client, store, sidecar, notifier, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, job, logger)

	// Serve health and metrics for the duration of the run.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	done := make(chan error, 1)
	go func() { done <- job.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("job error", "error", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		<-done
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if notifierCloser != nil {
		if err := notifierCloser.Close(); err != nil {
			logger.Error("kafka notifier close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
