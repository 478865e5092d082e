package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/offerhub-api/internal/config"
	"github.com/offerhub-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/offerhub-api/internal/infrastructure/jwt"
	transporthttp "github.com/offerhub-api/internal/transport/http"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, reading from environment")
	}

	cfg := config.Load()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	// JWT provider (optional — graceful fallback if keys are missing).
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		logger.Warn("JWT provider not available", "err", err)
	}

	deps := &transporthttp.Deps{
		OfferRepo:        dynamo.NewOfferRepo(dynamoClient, cfg.DynamoTables.Offers, cfg.DynamoTables.Listings),
		ListingRepo:      dynamo.NewListingRepo(dynamoClient, cfg.DynamoTables.Listings),
		NotificationRepo: dynamo.NewNotificationRepo(dynamoClient, cfg.DynamoTables.Notifications, cfg.DynamoTables.NotificationDedup),
		PushTokenRepo:    dynamo.NewPushTokenRepo(dynamoClient, cfg.DynamoTables.PushTokens),
		QueueRepo:        dynamo.NewQueueRepo(dynamoClient, cfg.DynamoTables.QueueItems),
		JWTProvider:      jwtProvider,
	}

	router := transporthttp.NewRouter(cfg, deps, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
