package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hireflowhq/delivery-api/internal/aggregator"
	"github.com/hireflowhq/delivery-api/internal/config"
	"github.com/hireflowhq/delivery-api/internal/handler"
	"github.com/hireflowhq/delivery-api/internal/handler/deliveries"
	"github.com/hireflowhq/delivery-api/internal/handler/webhook"
	"github.com/hireflowhq/delivery-api/internal/middleware"
	"github.com/hireflowhq/delivery-api/internal/repository/postgres"
	"github.com/hireflowhq/delivery-api/internal/router"
	deliveryService "github.com/hireflowhq/delivery-api/internal/service/delivery"
	"github.com/hireflowhq/delivery-api/pkg/logger"
	"github.com/hireflowhq/delivery-api/pkg/messaging/redis"
	"github.com/hireflowhq/delivery-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	appLogger := logger.NewLogger(&logger.Config{
		Level:      level,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Pretty:     cfg.Log.Pretty,
	})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		appLogger.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	appMetrics := metrics.NewMetrics("delivery", "api")

	baseRepo := postgres.NewBaseRepository(db)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)
	emailRepo := postgres.NewEmailMessageRepository(baseRepo, outboxRepo)
	whatsappRepo := postgres.NewWhatsAppMessageRepository(baseRepo, outboxRepo)

	deliverySvc := deliveryService.NewService(emailRepo, whatsappRepo, appLogger, appMetrics)

	broker, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), appLogger.Zerolog())
	if err != nil {
		appLogger.Fatal(err, "failed to connect to Redis")
	}
	defer broker.Close()

	store := aggregator.RepoStore{Emails: emailRepo, WhatsApps: whatsappRepo}

	webhookHandler := webhook.NewHandler(deliverySvc, appLogger, appMetrics)
	deliveryHandler := deliveries.NewHandler(store, broker, appLogger, appMetrics)
	healthHandler := handler.NewHealthHandler(db)

	r := router.NewRouter(webhookHandler, deliveryHandler, healthHandler, router.RouterConfig{
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
		CORSConfig:     middleware.DefaultCORSConfig(),
		WebhookToken:   cfg.Webhook.SharedSecret,
		MetricsPrefix:  "delivery_api",
	})
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		WriteTimeout: 0, // SSE streams stay open indefinitely
	}

	go func() {
		appLogger.Info("Starting API server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal(err, "failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Fatal(err, "server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
