package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"briefd/internal/config"
	"briefd/internal/repository"
	"briefd/internal/scheduler"
	"briefd/pkg/db"
	"briefd/pkg/logger"
	"briefd/pkg/mq"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Starting scheduler service...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("fetch_tick_seconds", cfg.Pipeline.FetchTickSeconds),
		zap.Int("brief_tick_seconds", cfg.Pipeline.BriefTickSeconds),
	)

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	sourceRepo := repository.NewSourceRepository(dbConn)
	briefRepo := repository.NewBriefRepository(dbConn)
	itemRepo := repository.NewItemRepository(dbConn)

	fetchScheduler := scheduler.NewFetchScheduler(sourceRepo, publisher,
		time.Duration(cfg.Pipeline.StuckSourceMinutes)*time.Minute, log.Named("fetch"))
	briefScheduler := scheduler.NewBriefScheduler(briefRepo, publisher,
		time.Duration(cfg.Pipeline.StuckBriefMinutes)*time.Minute, log.Named("brief"))
	itemSweeper := scheduler.NewItemSweeper(itemRepo, publisher,
		time.Duration(cfg.Pipeline.ItemRequeueMinutes)*time.Minute,
		cfg.Pipeline.ItemSweepBatch, log.Named("sweep"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Each scheduling loop runs as a single periodic trigger, never
	// concurrently with itself.
	go fetchScheduler.Run(ctx, time.Duration(cfg.Pipeline.FetchTickSeconds)*time.Second)
	go briefScheduler.Run(ctx, time.Duration(cfg.Pipeline.BriefTickSeconds)*time.Second)
	go itemSweeper.Run(ctx, time.Duration(cfg.Pipeline.ItemSweepSeconds)*time.Second)

	log.Info("Schedulers running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("Shutting down schedulers")
	cancel()
}
