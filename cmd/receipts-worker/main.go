package main

import (
	"context"
	"errors"
	"os"
	"time"

	"receipts/internal/amqp"
	"receipts/internal/cli"
	"receipts/internal/config"
	applog "receipts/internal/log"
	"receipts/internal/sheets"
	gsheet "receipts/internal/sheets/google"
	memsheet "receipts/internal/sheets/memory"
	"receipts/internal/worker"
)

const resyncTimeout = 10 * time.Minute

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	logger.Info("Starting receipts-worker", applog.FieldOperation, applog.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()
	backend := cli.InitBackend(startCtx, logger, cfg)

	var mirror sheets.Mirror
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(startCtx)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
			os.Exit(1)
		}
		mirror = client
		logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		mirror = memsheet.New()
		logger.Warn("No GOOGLE_SPREADSHEET_ID provided, mirrored ledgers are kept in memory only")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}

	mirrorWorker := worker.NewMirrorWorker(backend.Docs, mirror)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		mirrorWorker.Stop()
		if err := amqpClient.Close(); err != nil {
			logger.Error("AMQP close error", applog.FieldError, err)
		}
		if err := backend.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	// Catch up on changes published while the worker was down
	logger.Info("Performing startup resync")
	resyncCtx, resyncCancel := context.WithTimeout(ctx, resyncTimeout)
	if err := mirrorWorker.ResyncAll(resyncCtx); err != nil {
		logger.Error("Startup resync incomplete", applog.FieldError, err)
	}
	resyncCancel()

	if cfg.MirrorResyncSchedule != "" {
		if err := mirrorWorker.StartResync(cfg.MirrorResyncSchedule, resyncTimeout); err != nil {
			logger.Error("Failed to schedule resync", applog.FieldError, err)
			os.Exit(1)
		}
	}

	go func() {
		err := amqpClient.ConsumeChanges(ctx, mirrorWorker.HandleChange)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", applog.FieldError, err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
