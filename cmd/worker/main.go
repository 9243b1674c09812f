package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"emailtracker/internal/bootstrap"
	"emailtracker/internal/config"
	"emailtracker/internal/model"
	"emailtracker/internal/mqhandler"
	"emailtracker/pkg/logger"
	"emailtracker/pkg/mq"
	"emailtracker/pkg/otel"
	"emailtracker/pkg/util"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting backup repair worker...")

	shutdownOtel, err := otel.Init(cfg.Otel, "email-tracker-worker", log)
	if err != nil {
		log.Fatal("OpenTelemetry initialization failed", zap.Error(err))
	}
	defer shutdownOtel()

	if cfg.MQ.URL == "" {
		log.Fatal("MQ url is required by the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init storage; the worker repairs the same primary/backup pair the server writes
	storage, err := bootstrap.OpenStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal("Storage initialization failed", zap.Error(err))
	}
	defer storage.Close()

	// Init Redis (dedup + retry counters)
	rdb, err := storage.RedisClient(cfg)
	if err != nil {
		log.Fatal("Redis initialization failed", zap.Error(err))
	}
	deduper := util.NewDeduper(rdb, cfg.Worker.DedupTTL, log)
	retries := util.NewRetryCounter(rdb, 24*time.Hour)

	// DLQ publisher
	publisher, err := mq.NewPublisher(cfg.MQ, log)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	repairHandler := mqhandler.NewBackupRepairHandler(
		storage.Store,
		deduper,
		retries,
		publisher,
		cfg.Worker.MaxRepairAttempts,
		log,
	)

	log.Info("Initializing backup repair consumer", zap.String("queue", cfg.Worker.Queue))
	consumer, err := mq.NewConsumer(cfg.MQ, cfg.Worker.Queue, model.RoutingKeyBackupRepair, log)
	if err != nil {
		log.Fatal("failed to init backup repair consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(repairHandler.HandleBackupRepair)

	log.Info("Worker is ready to process messages")
	if err := consumer.Run(ctx); err != nil {
		log.Error("backup repair consumer stopped", zap.Error(err))
	}
	log.Info("Worker stopped")
}
