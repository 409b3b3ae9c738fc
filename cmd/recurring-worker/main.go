package main

import (
	"context"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentRecurring)
	logger.Info("Starting recurring-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// Posted expenses are announced so fintrack-worker mirrors them.
	var publisher services.EventPublisher
	if amqpClient := cli.InitAMQP(logger, cfg); amqpClient != nil {
		defer amqpClient.Close()
		publisher = amqpClient
	}

	expenseService := services.NewExpenseService(repo, publisher, cfg.SummaryCacheTTL, logger)
	processor := services.NewRecurringProcessor(repo, expenseService, logger)

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
		}
	})

	run := func() {
		count, err := processor.ProcessDueExpenses(ctx, time.Now())
		if err != nil {
			logger.ErrorContext(ctx, "Recurring processing failed", log.FieldError, err)
			return
		}
		logger.InfoContext(ctx, "Recurring processing complete", "expenses_created", count)
	}

	if _, err := scheduler.AddFunc(cfg.RecurringSchedule, run); err != nil {
		logger.Error("Invalid recurring schedule", log.FieldError, err, "schedule", cfg.RecurringSchedule)
		os.Exit(1)
	}

	logger.Info("Running initial recurring processing", "schedule", cfg.RecurringSchedule)
	run()
	scheduler.Start()

	cli.WaitForShutdown(ctx, done)
	logger.Info("recurring-worker shutdown complete")
}
