package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/ledger-backoffice/internal/config"
	"github.com/garyjia/ledger-backoffice/internal/container"
	"github.com/garyjia/ledger-backoffice/internal/infrastructure/observability"
	"github.com/garyjia/ledger-backoffice/internal/interfaces/http"
	"github.com/garyjia/ledger-backoffice/internal/textgen"
	"github.com/garyjia/ledger-backoffice/pkg/utils"
)

func main() {
	configPath := "configs/config.yaml"
	if p := os.Getenv("LEDGER_CONFIG"); p != "" {
		configPath = p
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    "ledger-server",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting ledger back office",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ToTracingConfig(), logger)
	if err != nil {
		logger.Fatal("Failed to set up tracing", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("Trace flush failed", zap.Error(err))
		}
	}()

	// Build all components
	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}
	if err := c.Start(ctx); err != nil {
		logger.Fatal("Failed to start container", zap.Error(err))
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container close failed", zap.Error(err))
		}
	}()

	services := c.Services()
	srv := http.NewServer(http.ServerConfig{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		MaxUploadSize: cfg.Server.MaxUploadSize,
	}, http.Dependencies{
		Import:        services.Import,
		Ledger:        services.Ledger,
		Justification: services.Justification,
		Health: func(ctx context.Context) (bool, []textgen.ProviderStatus) {
			h := c.Health(ctx)
			return h.Overall, h.Providers
		},
		CacheStats: c.Caches().Stats,
		Gatherer:   c.Metrics().Registry,
		Recorder:   c.Metrics(),
	}, container.NewServiceLogger(logger))

	// Serve until SIGINT or SIGTERM
	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("HTTP server failed", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}
