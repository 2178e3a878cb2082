package main

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/convenience-store/internal/bootstrap"
	"github.com/dmehra2102/convenience-store/internal/inventory/application"
	invhttp "github.com/dmehra2102/convenience-store/internal/inventory/infrastructure/http"
	invkafka "github.com/dmehra2102/convenience-store/internal/inventory/infrastructure/kafka"
	invredis "github.com/dmehra2102/convenience-store/internal/inventory/infrastructure/redis"
	"github.com/dmehra2102/convenience-store/pkg/config"
	"github.com/dmehra2102/convenience-store/pkg/idempotency"
	"github.com/dmehra2102/convenience-store/pkg/logging"
	"github.com/dmehra2102/convenience-store/pkg/shutdown"
	"github.com/dmehra2102/convenience-store/pkg/tracing"
)

// inventory-service follows the store event stream and keeps the list of
// products waiting on a restock.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "inventory-service", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = shutdown.Drain(5*time.Second, tp.Shutdown) }()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	idem := idempotency.NewStore(rdb, cfg.IdempotencyTTL, log)

	svc := application.NewService(log, invredis.NewAlertStore(rdb))
	consumer := invkafka.NewConsumer(log, []string{cfg.KafkaAddr}, cfg.OutboxTopic, cfg.AlertGroup, svc, idem)
	go func() {
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("consumer stopped", "err", err)
			cancel()
		}
	}()

	alerts := invhttp.NewHandler(log, svc)
	router := bootstrap.NewRouter(alerts.Register)

	bootstrap.Serve(ctx, log, cfg.HTTPAddr, router, cancel)
	log.Info("inventory-service shutdown")
}
