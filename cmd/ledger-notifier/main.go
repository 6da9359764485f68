package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"finledger/internal/amqp"
	"finledger/internal/cli"
	"finledger/internal/config"
	"finledger/internal/log"
	"finledger/internal/notify"
	"finledger/internal/sheets"
	gsheet "finledger/internal/sheets/google"
	mem "finledger/internal/sheets/memory"
	"finledger/internal/worker"
)

func main() {
	cfg, base := cli.LoadAndValidateConfig()
	logger := log.WithComponent(base, log.ComponentApp)
	logger.Info("Starting ledger-notifier", "backend", cfg.DataBackend, "amqp", cfg.AMQPURL != "")

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	res := cli.InitBackend(ctx, base, cfg)
	defer func() {
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Failed to close backend", "error", err)
			}
		}
	}()

	var (
		publisher  notify.Publisher = notify.NewLogPublisher(base)
		amqpClient *amqp.Client
	)
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, base)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		publisher = amqpClient
	} else {
		logger.Info("AMQP disabled - notifications are written to the log only")
	}

	dispatcher := notify.NewDispatcher(res.Backend, publisher, base)
	dispatcher.BatchSize = cfg.NotifyBatchSize
	dispatcher.PollInterval = cfg.NotifyPollInterval
	dispatcher.MaxAttempts = cfg.NotifyMaxAttempts

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
	}()

	if amqpClient != nil {
		feed := newFeed(ctx, cfg, base)
		w := worker.NewNotificationWorker(feed, base)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := amqpClient.Consume(ctx, w.HandleNotification); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
			}
		}()
	} else {
		logger.Info("Skipping ledger feed consumer - no AMQP broker configured")
	}

	cli.WaitForShutdown(ctx, done)
	wg.Wait()
	logger.Info("ledger-notifier stopped")
}

// newFeed returns the Google Sheets feed when configured and an in-process
// feed otherwise.
func newFeed(ctx context.Context, cfg *config.Config, logger *slog.Logger) sheets.FeedWriter {
	if !cfg.SheetsFeedEnabled() {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, using in-memory feed")
		return mem.New()
	}
	client, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
		Logger:          logger,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	return client
}
