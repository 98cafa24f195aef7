package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"filegate-bot/internal/config"
	"filegate-bot/internal/db"
	"filegate-bot/internal/health"
	"filegate-bot/internal/scheduler"
	"filegate-bot/internal/telegram"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     slog.LevelInfo,
		AddSource: true,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting bot-service", "pid", os.Getpid())

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Configuration error", "error", err)
		os.Exit(1)
	}
	slog.Info("Configuration loaded",
		"db_dsn", cfg.DBDsn,
		"health_addr", cfg.HealthAddr,
		"owner_id", cfg.OwnerID,
	)

	repo, err := db.NewRepository(cfg.DBDsn)
	if err != nil {
		slog.Error("Failed to initialize database repository", "error", err, "dsn", cfg.DBDsn)
		os.Exit(1)
	}
	slog.Info("Database repository initialized")

	if err := repo.AutoMigrate(); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database migrations completed")

	sched := scheduler.NewScheduler()

	telegramService, err := telegram.New(cfg, repo, sched)
	if err != nil {
		slog.Error("Failed to create Telegram service", "error", err)
		os.Exit(1)
	}
	slog.Info("Telegram service created")

	// Catch payment windows that elapsed while the bot was down, then keep
	// sweeping in case a timer is ever lost.
	telegramService.SweepStalePayments()
	if err := sched.AddRecurring("*/10 * * * *", telegramService.SweepStalePayments); err != nil {
		slog.Error("Failed to register payment sweep job", "error", err)
		os.Exit(1)
	}

	healthServer := health.NewServer(cfg.HealthAddr, repo)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Health server failed", "error", err)
		}
	}()
	defer func() {
		if err := healthServer.Stop(); err != nil {
			slog.Error("Failed to stop health server", "error", err)
		}
	}()

	sched.Start()
	defer sched.Stop()

	slog.Info("Starting Telegram bot...")
	if err := telegramService.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Info("Telegram bot stopped by signal")
		} else {
			slog.Error("Telegram bot failed", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Bot service shutdown completed")
}
