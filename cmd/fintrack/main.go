package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"fintrack/internal/auth"
	"fintrack/internal/cli"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)

	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.RequireJWT(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// Without a broker the worker's sweep picks up unannounced expenses.
	var publisher services.EventPublisher
	if amqpClient := cli.InitAMQP(logger, cfg); amqpClient != nil {
		defer amqpClient.Close()
		publisher = amqpClient
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	expenses := services.NewExpenseService(repo, publisher, cfg.SummaryCacheTTL, logger)

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:           ":" + cfg.Port,
		Auth:           services.NewAuthService(repo, tokens, logger),
		Expenses:       expenses,
		Recurring:      services.NewRecurringService(repo, cfg.SummaryCacheTTL, cfg.ForecastMonths, logger),
		Advisor:        services.NewAdvisorService(repo, expenses, logger),
		Tokens:         tokens,
		DB:             repo,
		Logger:         logger,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		TrustedProxies: cfg.TrustedProxies,
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
	})
	if err != nil {
		logger.Error("Failed to configure server", log.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	logger.Info("Starting fintrack API", "port", cfg.Port, "db", cfg.SQLiteDBPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
