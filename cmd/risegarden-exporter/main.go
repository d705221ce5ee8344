package main

import (
	"context"
	"fmt"
	"os"

	"github.com/andreweacott/risegarden-exporter/pkg/collector"
	"github.com/andreweacott/risegarden-exporter/pkg/config"
	"github.com/andreweacott/risegarden-exporter/pkg/coordinator"
	"github.com/andreweacott/risegarden-exporter/pkg/entrystore"
	"github.com/andreweacott/risegarden-exporter/pkg/integration"
	"github.com/andreweacott/risegarden-exporter/pkg/logger"
	"github.com/andreweacott/risegarden-exporter/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}

	log.Info("risegarden-exporter starting", "version", version, "config", cfg.String())

	ctx := SetupGracefulShutdown(log)
	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("risegarden-exporter stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	registry := prometheus.NewRegistry()
	exporterMetrics, err := metrics.NewExporterMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to register exporter metrics: %w", err)
	}

	store, err := entrystore.Open(cfg.EntryPath, entrystore.Entry{
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return fmt.Errorf("failed to open entry %s: %w", cfg.EntryPath, err)
	}

	in, err := integration.Setup(ctx, store, integration.Options{
		TokenURL:     cfg.TokenURL(),
		APIBaseURL:   cfg.APIBase,
		PollInterval: cfg.PollIntervalDuration(),
		Breaker: coordinator.CircuitBreakerConfig{
			MaxConsecutiveFailures: uint32(cfg.BreakerFailures),
			Timeout:                cfg.PollIntervalDuration() * 5,
		},
		ScheduleTTL: cfg.ScheduleTTLDuration(),
		Logger:      log,
		Metrics:     exporterMetrics,
	})
	if err != nil {
		return err
	}
	defer in.Unload()

	log.Info("Account entry ready", "title", in.Title(), "entry_path", store.Path())

	if err := registry.Register(collector.NewGardenCollector(in, metrics.NewMetricDescriptors(), log)); err != nil {
		return fmt.Errorf("failed to register garden collector: %w", err)
	}

	return StartServer(ctx, cfg, NewHandler(registry, in, log), log)
}
