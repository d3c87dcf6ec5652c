package main

import (
	"time"

	"go.uber.org/zap"

	"briefd/internal/config"
	"briefd/internal/fetcher"
	"briefd/internal/handler"
	"briefd/internal/httpserver"
	"briefd/internal/ingest"
	"briefd/internal/repository"
	"briefd/internal/scheduler"
	"briefd/internal/service"
	"briefd/pkg/blob"
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

	log.Info("Starting api service...",
		zap.String("db_host", cfg.DB.Host),
		zap.String("port", cfg.Server.Port),
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

	blobStore, err := blob.NewStore(cfg.Blob, log)
	if err != nil {
		log.Fatal("Failed to init blob store", zap.Error(err))
	}

	// Repositories
	briefRepo := repository.NewBriefRepository(dbConn)
	sourceRepo := repository.NewSourceRepository(dbConn)
	itemRepo := repository.NewItemRepository(dbConn)
	reportRepo := repository.NewReportRepository(dbConn)
	emailRepo := repository.NewInboundEmailRepository(dbConn)

	// Fetchers are needed here for add-source validation.
	fetchTimeout := time.Duration(cfg.Pipeline.FetchTimeoutSeconds) * time.Second
	webExtractor := fetcher.NewWebExtractor(time.Duration(cfg.Pipeline.WebExtractTimeoutSeconds)*time.Second, log)
	registry := fetcher.NewRegistry(
		fetcher.NewFeedFetcher(fetchTimeout, log),
		fetcher.NewSocialFetcher(cfg.Social, fetchTimeout, log),
		fetcher.NewWebFetcher(webExtractor),
	)

	scoringClient := service.NewScoringClient(cfg.Scoring.URL, time.Duration(cfg.Scoring.TimeoutSeconds)*time.Second)
	briefService := service.NewBriefService(briefRepo, sourceRepo, registry, cfg.Pipeline.EmailDomain, log)
	briefScheduler := scheduler.NewBriefScheduler(briefRepo, publisher,
		time.Duration(cfg.Pipeline.StuckBriefMinutes)*time.Minute, log)
	ingestService := ingest.NewService(sourceRepo, itemRepo, emailRepo, blobStore, scoringClient, publisher, log)

	// Handlers
	briefHandler := handler.NewBriefHandler(briefService, briefScheduler, briefRepo, sourceRepo, reportRepo, log)
	inboundHandler := handler.NewInboundHandler(ingestService, log)
	readHandler := handler.NewReadHandler(itemRepo, reportRepo)

	router := httpserver.NewRouter(briefHandler, inboundHandler, readHandler)

	log.Info("API listening", zap.String("port", cfg.Server.Port))
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatal("Server failed", zap.Error(err))
	}
}
