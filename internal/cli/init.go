// Package cli provides common CLI initialization utilities shared by
// cmd/ledger-api, cmd/ledger-jobs and cmd/ledger-notifier.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finledger/internal/backend"
	"finledger/internal/config"
	"finledger/internal/ledger"
	"finledger/internal/lock"
	"finledger/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(cfg *config.Config) *slog.Logger {
	logger := log.New(log.Config{
		Level:  log.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
		Output: os.Stdout,
	})
	slog.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads the .env file, the configuration and the logger.
// Exits the process on validation failure.
func LoadAndValidateConfig() (*config.Config, *slog.Logger) {
	LoadEnvFile()
	cfg := config.Load()
	logger := SetupLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg, logger
}

// InitBackend opens the configured store. Exits the process on failure.
func InitBackend(ctx context.Context, logger *slog.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", bcfg.Type)
		os.Exit(1)
	}
	return res
}

// InitLocker returns the Redis lock when REDIS_ADDRESS is set and the
// in-process keyed lock otherwise. The returned cleanup closes the Redis client.
func InitLocker(ctx context.Context, logger *slog.Logger, cfg *config.Config) (lock.Locker, func()) {
	if cfg.RedisAddress == "" {
		logger.Info("Using in-process user locks")
		return lock.NewKeyed(), func() {}
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	locker, client, err := lock.Dial(dialCtx, cfg.RedisAddress, cfg.LockTTL, logger)
	if err != nil {
		logger.Error("Failed to connect to Redis for user locks", "error", err, "address", cfg.RedisAddress)
		os.Exit(1)
	}
	logger.Info("Using Redis user locks", "address", cfg.RedisAddress, "ttl", cfg.LockTTL)
	return locker, func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close Redis client", "error", err)
		}
	}
}

// NewLedgerService wires the ledger service with the configured rounding and default reserve.
func NewLedgerService(logger *slog.Logger, cfg *config.Config, store ledger.Store, locker lock.Locker) *ledger.Service {
	return ledger.NewService(store, locker,
		ledger.WithRounding(cfg.Rounding()),
		ledger.WithDefaultReserve(cfg.DefaultReservePercentage),
		ledger.WithLogger(logger),
	)
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *slog.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup has run.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
