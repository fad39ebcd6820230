package main

import (
	"context"
	"os"
	"time"
	_ "time/tzdata"

	"neovest/internal/amqp"
	"neovest/internal/cli"
	"neovest/internal/config"
	applog "neovest/internal/log"
	gsheet "neovest/internal/sheets/google"
	"neovest/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting neovest-worker")

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)
	loc := cli.MustLocation(logger, cfg)

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	creds, err := cfg.ServiceAccountCredentials()
	if err != nil {
		logger.Error("Failed to load Google credentials", applog.FieldError, err.Error())
		os.Exit(1)
	}
	exporter, err := gsheet.New(context.Background(), gsheet.Config{
		SpreadsheetID: cfg.GoogleSpreadsheetID,
		SheetName:     cfg.GoogleSheetName,
		Credentials:   creds,
		Location:      loc,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets exporter", applog.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Google Sheets exporter initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err.Error())
		os.Exit(1)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(sqliteRepo, exporter, cfg.SyncBatchSize, cfg.SyncMaxAttempts, cfg.SyncInterval, logger)

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, nil)
	if err := syncWorker.Run(ctx, amqpClient); err != nil {
		logger.Error("Worker stopped with error", applog.FieldError, err.Error())
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
