package main

import (
	"time"

	"go.uber.org/zap"

	"briefd/internal/config"
	"briefd/internal/fetcher"
	"briefd/internal/mqhandler"
	"briefd/internal/repository"
	"briefd/internal/service"
	"briefd/pkg/db"
	"briefd/pkg/logger"
	"briefd/pkg/mq"
	redisclient "briefd/pkg/redis"
	"briefd/pkg/util"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Starting worker service...",
		zap.Int("fetch_workers", cfg.Pipeline.FetchWorkers),
		zap.Int("process_workers", cfg.Pipeline.ProcessWorkers),
	)

	rdb := redisclient.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	// The TTL only matters when a holder crashes without releasing; the
	// brief stuck sweep is the backstop behind that.
	deduper := util.NewDeduper(rdb, 10*time.Minute, log)
	retryCounter := util.NewRetryCounter(rdb, 24*time.Hour)

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

	// Repositories
	sourceRepo := repository.NewSourceRepository(dbConn)
	itemRepo := repository.NewItemRepository(dbConn)
	briefRepo := repository.NewBriefRepository(dbConn)
	reportRepo := repository.NewReportRepository(dbConn)

	// Fetchers
	fetchTimeout := time.Duration(cfg.Pipeline.FetchTimeoutSeconds) * time.Second
	webExtractor := fetcher.NewWebExtractor(time.Duration(cfg.Pipeline.WebExtractTimeoutSeconds)*time.Second, log)
	registry := fetcher.NewRegistry(
		fetcher.NewFeedFetcher(fetchTimeout, log),
		fetcher.NewSocialFetcher(cfg.Social, fetchTimeout, log),
		fetcher.NewWebFetcher(webExtractor),
	)

	scoringClient := service.NewScoringClient(cfg.Scoring.URL, time.Duration(cfg.Scoring.TimeoutSeconds)*time.Second)

	// Handlers
	fetchHandler := mqhandler.NewFetchHandler(sourceRepo, itemRepo, registry, publisher, fetchTimeout, log)
	processHandler := mqhandler.NewProcessHandler(
		itemRepo, sourceRepo, briefRepo,
		scoringClient, webExtractor,
		retryCounter,
		cfg.Pipeline.MaxProcessRetries,
		cfg.Pipeline.FullContentThreshold,
		time.Duration(cfg.Pipeline.WebExtractTimeoutSeconds)*time.Second,
		log,
	)
	reportHandler := mqhandler.NewReportHandler(
		briefRepo, itemRepo, reportRepo, deduper,
		cfg.Pipeline.MaxReportItems, log,
	)

	// (1) Fetch worker pool
	consumerFetch, err := mq.NewConsumer(cfg.MQ.URL, "source.fetch.q", mq.RouteSourceFetch, cfg.Pipeline.FetchWorkers, log)
	if err != nil {
		log.Fatal("failed to init fetch consumer", zap.Error(err))
	}
	consumerFetch.SetHandler(fetchHandler.Handle)
	go func() {
		if err := consumerFetch.StartConsuming(); err != nil {
			log.Fatal("fetch consumer failed", zap.Error(err))
		}
	}()
	defer consumerFetch.Close()

	// (2) Processing worker pool
	consumerProcess, err := mq.NewConsumer(cfg.MQ.URL, "item.process.q", mq.RouteItemProcess, cfg.Pipeline.ProcessWorkers, log)
	if err != nil {
		log.Fatal("failed to init process consumer", zap.Error(err))
	}
	consumerProcess.SetHandler(processHandler.Handle)
	go func() {
		if err := consumerProcess.StartConsuming(); err != nil {
			log.Fatal("process consumer failed", zap.Error(err))
		}
	}()
	defer consumerProcess.Close()

	// (3) Report worker
	consumerReport, err := mq.NewConsumer(cfg.MQ.URL, "brief.execute.q", mq.RouteBriefExecute, 1, log)
	if err != nil {
		log.Fatal("failed to init report consumer", zap.Error(err))
	}
	consumerReport.SetHandler(reportHandler.Handle)
	go func() {
		if err := consumerReport.StartConsuming(); err != nil {
			log.Fatal("report consumer failed", zap.Error(err))
		}
	}()
	defer consumerReport.Close()

	log.Info("All consumers started, worker is ready to process jobs")

	select {}
}
