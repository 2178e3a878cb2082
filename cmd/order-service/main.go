package main

import (
	"context"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/convenience-store/internal/bootstrap"
	orderhttp "github.com/dmehra2102/convenience-store/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/convenience-store/internal/order/infrastructure/kafka"
	paymenthttp "github.com/dmehra2102/convenience-store/internal/payment/infrastructure/http"
	"github.com/dmehra2102/convenience-store/pkg/config"
	"github.com/dmehra2102/convenience-store/pkg/idempotency"
	"github.com/dmehra2102/convenience-store/pkg/logging"
	"github.com/dmehra2102/convenience-store/pkg/outbox"
	"github.com/dmehra2102/convenience-store/pkg/shutdown"
	"github.com/dmehra2102/convenience-store/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "order-service", cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = shutdown.Drain(5*time.Second, tp.Shutdown) }()

	stores, err := bootstrap.OpenStores(ctx, cfg, log)
	if err != nil {
		log.Error("store init failed", "err", err)
		os.Exit(1)
	}
	defer stores.Close()

	svc, err := bootstrap.NewServices(cfg, log, stores)
	if err != nil {
		log.Error("service init failed", "err", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	idem := idempotency.NewStore(rdb, cfg.IdempotencyTTL, log)

	// Outbox relay
	writer := orderkafka.NewWriter(log, []string{cfg.KafkaAddr})
	defer writer.Close()
	if err := orderkafka.EnsureTopic(ctx, cfg.KafkaAddr, cfg.OutboxTopic, 3); err != nil {
		log.Warn("outbox topic not ensured", "topic", cfg.OutboxTopic, "err", err)
	}
	dispatch := outbox.NewDispatcher(log, writer, cfg.OutboxTopic)
	relay := outbox.NewRelay(log, stores.Outbox, dispatch, "order-service-relay")
	go func() {
		if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("relay stopped with error", "err", err)
		}
	}()

	orders := orderhttp.NewHandler(log, svc.Orders, idem)
	payments := paymenthttp.NewHandler(log, svc.Payments)
	router := bootstrap.NewRouter(func(r chi.Router) {
		orders.Register(r)
		payments.RegisterCheckout(r)
		// a memory store cannot be shared with the callback receiver
		if stores.Driver == config.DriverMemory {
			payments.RegisterCallbacks(r)
		}
	})

	bootstrap.Serve(ctx, log, cfg.HTTPAddr, router, cancel)
	log.Info("order-service shutdown complete")
}
