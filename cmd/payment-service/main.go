package main

import (
	"context"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmehra2102/convenience-store/internal/bootstrap"
	paymenthttp "github.com/dmehra2102/convenience-store/internal/payment/infrastructure/http"
	"github.com/dmehra2102/convenience-store/pkg/config"
	"github.com/dmehra2102/convenience-store/pkg/logging"
	"github.com/dmehra2102/convenience-store/pkg/shutdown"
	"github.com/dmehra2102/convenience-store/pkg/tracing"
)

// payment-service receives the provider's return redirects and IPN calls.
// Events it writes are relayed by order-service from the shared outbox.
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
	if cfg.StoreDriver != config.DriverPostgres {
		log.Error("payment-service needs the shared postgres store", "store_driver", cfg.StoreDriver)
		os.Exit(1)
	}

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "payment-service", cfg.OTLPEndpoint, log)
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

	payments := paymenthttp.NewHandler(log, svc.Payments)
	router := bootstrap.NewRouter(func(r chi.Router) {
		payments.RegisterCallbacks(r)
	})

	bootstrap.Serve(ctx, log, cfg.HTTPAddr, router, cancel)
	log.Info("payment-service shutdown complete")
}
