package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/serpstack/aiops-engine/internal/alerting"
	"github.com/serpstack/aiops-engine/internal/anomaly"
	"github.com/serpstack/aiops-engine/internal/api"
	"github.com/serpstack/aiops-engine/internal/config"
	"github.com/serpstack/aiops-engine/internal/correlation"
	"github.com/serpstack/aiops-engine/internal/executor"
	"github.com/serpstack/aiops-engine/internal/metrics"
	"github.com/serpstack/aiops-engine/internal/pipeline"
	"github.com/serpstack/aiops-engine/internal/remediation"
	"github.com/serpstack/aiops-engine/internal/rules"
	"github.com/serpstack/aiops-engine/internal/storage"
	"github.com/serpstack/aiops-engine/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting aiops-engine", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var store storage.Provider = storage.NoopProvider{}
	if cfg.Storage.Enabled && cfg.Storage.Addr != "" {
		provider, err := storage.NewValkeyProvider(storage.ValkeyConfig{
			Addr:         cfg.Storage.Addr,
			Username:     cfg.Storage.Username,
			Password:     cfg.Storage.Password,
			DB:           cfg.Storage.DB,
			DialTimeout:  cfg.Storage.DialTimeout,
			ReadTimeout:  cfg.Storage.ReadTimeout,
			WriteTimeout: cfg.Storage.WriteTimeout,
			MaxRetries:   cfg.Storage.MaxRetries,
			TLS:          cfg.Storage.TLS,
		})
		if err != nil {
			logger.Warn("valkey storage unavailable, falling back to noop", slog.Any("error", err))
		} else {
			store = provider
			defer provider.Close()
		}
	}

	correlator := correlation.NewEngine(cfg.Correlation, logger)

	detector := anomaly.NewDetector(cfg.Anomaly, logger, store)
	if err := detector.LoadState(context.Background()); err != nil {
		logger.Info("no persisted detector state", slog.Any("error", err))
	}

	optimizer := alerting.NewOptimizer(cfg.Alerting, logger)

	var actionExecutor executor.Executor = &executor.Simulated{}
	if cfg.Remediation.ExecutorURL != "" {
		actionExecutor = executor.NewWebhook(cfg.Remediation.ExecutorURL, cfg.Remediation.ExecutorTimeout)
	}
	remediator := remediation.NewEngine(cfg.Remediation, remediation.DefaultRegistry(actionExecutor), logger)

	loaders := wireRulePacks(cfg, logger, optimizer, remediator)

	pipe := pipeline.NewPipeline(cfg, logger, correlator, detector, optimizer, remediator, store)

	handler := api.NewHandler(cfg.Server, logger, pipe, detector, optimizer, remediator, loaders...)
	server, err := api.NewServer(cfg.Server, handler)
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("api server listening", slog.String("address", server.Address()))
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("api server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("aiops-engine stopped")
}

// wireRulePacks loads the suppression and remediation YAML packs, pushes
// them into the engines and optionally watches the files for hot reload.
func wireRulePacks(cfg *config.Config, logger *slog.Logger, optimizer *alerting.Optimizer, remediator *remediation.Engine) []*rules.Loader {
	var loaders []*rules.Loader

	apply := func(pack rules.Pack) {
		if len(pack.Suppression) > 0 {
			optimizer.SetRules(pack.Suppression)
		}
		if len(pack.Remediation) > 0 {
			remediator.SetRules(pack.Remediation)
		}
	}

	for _, path := range []string{cfg.Rules.SuppressionPath, cfg.Rules.RemediationPath} {
		if path == "" {
			continue
		}
		loader, err := rules.NewLoader(path, logger)
		if err != nil {
			logger.Error("failed to load rule pack", slog.String("path", path), slog.Any("error", err))
			os.Exit(1)
		}
		apply(loader.Pack())
		loader.OnChange(apply)
		if cfg.Rules.Watch {
			if _, err := loader.Watch(); err != nil {
				logger.Warn("rule pack watch unavailable", slog.String("path", path), slog.Any("error", err))
			}
		}
		loaders = append(loaders, loader)
	}
	return loaders
}
