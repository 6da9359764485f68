package main

import (
	"time"

	"finledger/internal/cli"
	"finledger/internal/jobs"
	"finledger/internal/log"
	"finledger/internal/notify"
)

func main() {
	cfg, base := cli.LoadAndValidateConfig()
	logger := log.WithComponent(base, log.ComponentApp)
	logger.Info("Starting ledger-jobs",
		"interval", cfg.JobsInterval,
		"concurrency", cfg.JobsConcurrency,
		"backend", cfg.DataBackend)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	res := cli.InitBackend(ctx, base, cfg)
	defer func() {
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Failed to close backend", "error", err)
			}
		}
	}()
	locker, closeLocker := cli.InitLocker(ctx, base, cfg)
	defer closeLocker()

	svc := cli.NewLedgerService(base, cfg, res.Backend, locker)
	runner := jobs.NewRunner(svc, notify.NewOutboxNotifier(res.Backend),
		jobs.WithConcurrency(cfg.JobsConcurrency),
		jobs.WithLogger(base))

	scheduler := jobs.NewScheduler(cfg.JobsInterval, base,
		jobs.NewSalaryCreditJob(runner),
		jobs.NewNeedsDeductionJob(runner))

	// Blocks until a shutdown signal cancels ctx; an in-flight run reports
	// its unstarted users as skipped.
	scheduler.Run(ctx)

	cli.WaitForShutdown(ctx, done)
	logger.Info("ledger-jobs stopped")
}
