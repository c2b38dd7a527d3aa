package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/kkkkikiki/promotion/internal/app"
	"github.com/kkkkikiki/promotion/internal/config"
	"github.com/kkkkikiki/promotion/internal/events"
	"github.com/kkkkikiki/promotion/internal/logger"
)

func main() {
	concurrency := flag.Int("concurrency", 20, "number of first-login events processed in parallel")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	log := logger.New(cfg).Named("worker")
	defer log.Sync() //nolint:errcheck

	// enrollments from the worker must be visible to the API process
	if cfg.App.Storage != config.StoragePostgres {
		log.Fatal("the worker requires postgres storage", zap.String("storage", cfg.App.Storage))
	}

	promo, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize promotion core", zap.Error(err))
	}
	defer func() {
		if err := promo.Close(); err != nil {
			log.Error("error closing database connections", zap.Error(err))
		}
	}()

	mux := asynq.NewServeMux()
	events.NewHandler(promo.Allocator, time.Duration(cfg.Server.RequestTimeout)*time.Second, log).Register(mux)

	srv := events.NewServer(promo.Redis(), *concurrency, log)
	if err := srv.Start(mux); err != nil {
		log.Fatal("failed to start worker", zap.Error(err))
	}
	log.Info("worker running",
		zap.String("queue", events.QueueUserEvents),
		zap.Int("concurrency", *concurrency))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker")
	srv.Shutdown()
	log.Info("worker exited gracefully")
}
