package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/offerhub-api/internal/application/dispatch"
	"github.com/offerhub-api/internal/application/offer"
	"github.com/offerhub-api/internal/config"
	"github.com/offerhub-api/internal/infrastructure/dynamo"
	"github.com/offerhub-api/internal/infrastructure/push"
	s3infra "github.com/offerhub-api/internal/infrastructure/s3"
	"github.com/offerhub-api/internal/pkg/id"
)

// Sweeper cadence and per-cycle cap for expiring stale offers.
const (
	sweepInterval = time.Hour
	sweepLimit    = 200
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, reading from environment")
	}

	cfg := config.Load()

	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	offerRepo := dynamo.NewOfferRepo(dynamoClient, cfg.DynamoTables.Offers, cfg.DynamoTables.Listings)
	listingRepo := dynamo.NewListingRepo(dynamoClient, cfg.DynamoTables.Listings)
	notificationRepo := dynamo.NewNotificationRepo(dynamoClient, cfg.DynamoTables.Notifications, cfg.DynamoTables.NotificationDedup)
	tokenRepo := dynamo.NewPushTokenRepo(dynamoClient, cfg.DynamoTables.PushTokens)
	queueRepo := dynamo.NewQueueRepo(dynamoClient, cfg.DynamoTables.QueueItems)

	// Native relay (optional — platforms without an ARN use the universal relay).
	var native push.Sender
	if sender, err := push.NewSNSSender(cfg); err == nil {
		native = sender
	} else {
		logger.Warn("native push relay not available", "err", err)
	}
	universal := push.NewRelaySender(cfg.PushRelayURL)

	dispatchCfg := dispatch.Config{
		WorkerID:     id.New(),
		Workers:      cfg.DispatchWorkers,
		PollInterval: cfg.DispatchPollInterval,
		Lease:        cfg.DispatchLease,
		SendTimeout:  cfg.DispatchSendTimeout,
		MaxAttempts:  cfg.DispatchMaxAttempts,
		BackoffBase:  cfg.DispatchBackoffBase,
		BackoffCap:   cfg.DispatchBackoffCap,
	}

	// Dead-letter archive (optional).
	var dispatcher *dispatch.Dispatcher
	if cfg.S3DeadLetterBucket != "" {
		archive := s3infra.NewStore(s3infra.NewClient(cfg), cfg.S3DeadLetterBucket)
		dispatcher = dispatch.New(queueRepo, notificationRepo, tokenRepo, native, universal, archive, dispatchCfg, logger)
	} else {
		dispatcher = dispatch.New(queueRepo, notificationRepo, tokenRepo, native, universal, nil, dispatchCfg, logger)
	}

	// The sweeper only flips statuses, so it needs no event sink.
	offerSvc := offer.NewService(offerRepo, listingRepo, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go dispatcher.Run(ctx)

	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := offerSvc.ExpireStale(ctx, cfg.OfferTTL, sweepLimit)
				if err != nil {
					logger.Error("offer expiry sweep failed", "err", err)
				} else if n > 0 {
					logger.Info("expired stale offers", "count", n)
				}
			}
		}
	}()

	logger.Info("dispatcher started", "workers", cfg.DispatchWorkers, "poll_interval", cfg.DispatchPollInterval.String())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("dispatcher stopping")
	cancel()
	// Give in-flight sends a moment to finish.
	time.Sleep(2 * time.Second)
	logger.Info("dispatcher stopped")
}
