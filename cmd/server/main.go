// Command server runs the options-strategy recommendation API: market-data
// provider, snapshot storage, background refresh jobs, and the HTTP surface.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AustinnAI/volaris/internal/config"
	"github.com/AustinnAI/volaris/internal/provider"
	"github.com/AustinnAI/volaris/internal/refresh"
	"github.com/AustinnAI/volaris/internal/retry"
	"github.com/AustinnAI/volaris/internal/server"
	"github.com/AustinnAI/volaris/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.Environment.LogLevel)
	logger.Infof("Starting volaris in %s mode", cfg.Environment.Mode)

	dataProvider := buildProvider(cfg)
	client := retry.NewClient(dataProvider, newRetryLogger(logger))

	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open storage")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close storage")
		}
	}()

	scheduler := refresh.NewScheduler(logger)
	if cfg.Refresh.Enabled {
		chainJob := refresh.NewChainRefreshJob(client, store, logger,
			cfg.Refresh.Watchlist, cfg.Refresh.TargetDTEs, cfg.Refresh.DTETolerance,
			cfg.Storage.RetentionDays)
		if err := scheduler.AddJob(cfg.Refresh.ChainSchedule, chainJob); err != nil {
			logger.WithError(err).Fatal("Failed to register chain refresh job")
		}
		ivJob := refresh.NewIVRefreshJob(client, store, logger, cfg.Refresh.Watchlist)
		if err := scheduler.AddJob(cfg.Refresh.IVSchedule, ivJob); err != nil {
			logger.WithError(err).Fatal("Failed to register IV refresh job")
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	svc := server.NewService(store, client, cfg.Analysis, cfg.Refresh.DTETolerance, logger)
	srv := server.NewServer(server.Config{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		AuthToken: cfg.Server.AuthToken,
	}, svc, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Infof("Received %s, shutting down", sig)
	case err := <-errCh:
		logger.WithError(err).Error("Server stopped unexpectedly")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("Graceful shutdown failed")
	}
	logger.Info("Server stopped")
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

// newRetryLogger adapts logrus for the retry client's stdlib logger.
func newRetryLogger(logger *logrus.Logger) *log.Logger {
	return log.New(logger.WriterLevel(logrus.DebugLevel), "", 0)
}

func buildProvider(cfg *config.Config) provider.Provider {
	if cfg.IsMockMode() {
		return provider.NewMockProvider()
	}
	tradier := provider.NewTradierClient(
		cfg.Provider.APIKey,
		cfg.Provider.APIEndpoint,
		cfg.ProviderTimeout(),
		cfg.Provider.RateLimitPerSec,
	)
	return provider.NewCircuitBreakerProvider(tradier)
}
