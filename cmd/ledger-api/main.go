package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"finledger/internal/cli"
	apphttp "finledger/internal/http"
	"finledger/internal/jobs"
	"finledger/internal/log"
	"finledger/internal/notify"
)

func main() {
	cfg, base := cli.LoadAndValidateConfig()
	logger := log.WithComponent(base, log.ComponentApp)
	logger.Info("Starting ledger-api", "port", cfg.Port, "backend", cfg.DataBackend)

	bootCtx := context.Background()
	res := cli.InitBackend(bootCtx, base, cfg)
	locker, closeLocker := cli.InitLocker(bootCtx, base, cfg)

	svc := cli.NewLedgerService(base, cfg, res.Backend, locker)
	runner := jobs.NewRunner(svc, notify.NewOutboxNotifier(res.Backend),
		jobs.WithConcurrency(cfg.JobsConcurrency),
		jobs.WithLogger(base))

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Ledger:             svc,
		SalaryJob:          jobs.NewSalaryCreditJob(runner),
		NeedsJob:           jobs.NewNeedsDeductionJob(runner),
		Readiness:          res.Backend,
		AdminToken:         cfg.AdminToken,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             base,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		closeLocker()
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Failed to close backend", "error", err)
			}
		}
	})

	logger.Info("HTTP server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
