package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tapscore-bot/internal/api"
	"tapscore-bot/internal/bot"
	"tapscore-bot/internal/config"
	"tapscore-bot/internal/database"
	"tapscore-bot/internal/gameday"
	"tapscore-bot/internal/leaderboard"
	"tapscore-bot/internal/logger"
	"tapscore-bot/internal/notify"
	"tapscore-bot/internal/repository"
	"tapscore-bot/internal/rewards"
	"tapscore-bot/internal/telegram"
	"tapscore-bot/internal/worker"
)

const (
	notifyQueueSize = 1024
	notifyWorkers   = 4
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg := config.LoadConfig()

	zl, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Could not build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(cfg, zl)
	if err != nil {
		zl.Fatal("could not connect to database", zap.Error(err))
	}

	rdb, err := database.ConnectRedis(cfg, zl)
	if err != nil {
		zl.Fatal("could not connect to redis", zap.Error(err))
	}
	defer func() { _ = rdb.Close() }()

	tg, err := telegram.NewClient(cfg.BotToken, zl)
	if err != nil {
		zl.Fatal("could not create telegram client", zap.Error(err))
	}

	dispatcher := notify.NewDispatcher(tg, zl, notifyQueueSize)
	dispatcher.Start(notifyWorkers)

	days := gameday.New(cfg.Location)
	store := repository.New(db)
	board := leaderboard.New(store)
	engine := rewards.NewEngine(store, board, tg, dispatcher, zl)
	scheduler := worker.NewScheduler(engine, store, rdb, days, cfg.ResetHour, zl)
	startBot := bot.NewBot(tg.Bot, store, cfg.WebAppURL, zl)

	go scheduler.Start(ctx)

	switch {
	case cfg.BotMode == config.BotModePolling && !tg.Configured():
		zl.Warn("BOT_MODE=polling needs TELEGRAM_BOT_TOKEN, start events are disabled")
	case cfg.BotMode == config.BotModePolling:
		go func() {
			if err := startBot.Start(ctx); err != nil {
				zl.Error("bot polling stopped", zap.Error(err))
			}
		}()
	}

	app := api.NewApp(api.New(cfg, store, board, engine, scheduler, startBot, days, zl))
	go func() {
		zl.Info("http server listening", zap.String("addr", cfg.HTTPAddr), zap.String("bot_mode", cfg.BotMode))
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			zl.Error("http server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		zl.Error("http shutdown failed", zap.Error(err))
	}
	dispatcher.Stop(shutdownCtx)
}
