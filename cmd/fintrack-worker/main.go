package main

import (
	"context"
	"os"

	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/services"
	ports "fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
	mem "fintrack/internal/sheets/memory"
	"fintrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting fintrack-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, nil)

	mirror, err := newMirror(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}

	processor := services.NewSyncProcessor(repo, mirror, services.SyncProcessorConfig{
		PollInterval: cfg.SyncInterval,
		BatchSize:    cfg.SyncBatchSize,
	}, logger)

	var source worker.EventSource
	if amqpClient := cli.InitAMQP(logger, cfg); amqpClient != nil {
		defer amqpClient.Close()
		source = amqpClient
	}

	w := worker.NewSyncWorker(processor, source, logger)
	if err := w.Run(ctx); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("fintrack-worker shutdown complete")
}

// newMirror returns the Sheets client, or an in-memory mirror when no
// spreadsheet is configured.
func newMirror(ctx context.Context, cfg *config.Config, logger *log.Logger) (ports.Mirror, error) {
	if cfg.GoogleSpreadsheetID == "" {
		logger.Warn("No spreadsheet configured, mirroring to memory")
		return mem.New(), nil
	}
	client, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	}, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Google Sheets mirror ready", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, nil
}
