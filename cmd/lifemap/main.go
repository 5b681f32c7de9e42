package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lifemap/internal/bot"
	"lifemap/internal/config"
	"lifemap/internal/repository"
	"lifemap/internal/server"
	"lifemap/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	device := repository.NewDeviceRepository(db)
	archive := service.NewArchiveService(
		repository.NewArchiveRepository(db),
		repository.NewCompletedTaskRepository(db),
		logger,
		cfg.BackupRetention,
	)
	archive.Now = cfg.Now
	planner := service.NewPlannerService(repository.NewGateway(db, logger), archive, device, logger, service.PlannerConfig{
		Areas:           cfg.Areas,
		Users:           cfg.Users,
		CompletionDelay: cfg.CompletionDelay,
	})
	planner.Now = cfg.Now
	defer planner.Shutdown()

	user, ok, err := planner.CurrentUser(ctx)
	if err != nil {
		logger.Warn("read remembered user", slog.String("error", err.Error()))
	}
	if !ok && cfg.User != "" {
		user, ok = cfg.User, true
	}
	if ok {
		if err := planner.Login(ctx, user); err != nil {
			logger.Warn("automatic login failed", slog.String("user", user), slog.String("error", err.Error()))
		}
	} else {
		logger.Info("no user remembered; waiting for a login")
	}

	scheduler := service.NewSchedulerService(cfg.Location, logger)
	if _, err := scheduler.ScheduleInterval(cfg.CleanupInterval, "maintenance", planner.RunMaintenance); err != nil {
		logger.Error("schedule maintenance", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var telegramBot *bot.Bot
	if cfg.TelegramToken != "" {
		telegramBot, err = bot.New(cfg.TelegramToken, planner, service.NewSummaryService(planner), device, cfg.Location, logger)
		if err != nil {
			logger.Error("bot", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if _, err := scheduler.ScheduleDaily(cfg.SummaryTime, "daily summary", func(ctx context.Context) {
			if err := telegramBot.SendDailySummary(ctx); err != nil {
				logger.Error("daily summary", slog.String("error", err.Error()))
			}
		}); err != nil {
			logger.Error("schedule daily summary", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	scheduler.Start()
	defer scheduler.Stop()

	var httpServer *http.Server
	if cfg.HTTPAddr != "" {
		httpServer = &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: server.New(planner, logger).Engine(),
		}
		go func() {
			logger.Info("starting server", slog.String("addr", httpServer.Addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
				stop()
			}
		}()
	}

	if telegramBot != nil {
		go func() {
			if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("bot stopped with error", slog.String("error", err.Error()))
			}
		}()
	}

	<-ctx.Done()

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server", slog.String("error", err.Error()))
		}
	}
	logger.Info("shutdown complete")
}
