// Package bootstrap builds the storage and service graph shared by the
// binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	invpg "github.com/dmehra2102/convenience-store/internal/inventory/infrastructure/postgres"
	orderapp "github.com/dmehra2102/convenience-store/internal/order/application"
	orderpg "github.com/dmehra2102/convenience-store/internal/order/infrastructure/postgres"
	paymentapp "github.com/dmehra2102/convenience-store/internal/payment/application"
	paymentpg "github.com/dmehra2102/convenience-store/internal/payment/infrastructure/postgres"
	"github.com/dmehra2102/convenience-store/internal/payment/infrastructure/vnpay"
	"github.com/dmehra2102/convenience-store/internal/storage/memory"
	"github.com/dmehra2102/convenience-store/pkg/codegen"
	"github.com/dmehra2102/convenience-store/pkg/config"
	"github.com/dmehra2102/convenience-store/pkg/database"
	"github.com/dmehra2102/convenience-store/pkg/outbox"
)

type Stores struct {
	Driver   string
	Orders   orderapp.OrderRepository
	Payments paymentapp.PaymentRepository
	Outbox   outbox.Store
	Close    func()
}

// OpenStores connects the configured driver. Postgres is migrated on start;
// the memory driver is seeded with the starter catalog.
func OpenStores(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Stores, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		m := memory.New()
		m.SeedCatalog()
		log.Warn("using in-memory store, data is lost on exit")
		return &Stores{Driver: cfg.StoreDriver, Orders: m.Orders(), Payments: m.Payments(), Outbox: m, Close: func() {}}, nil

	case config.DriverPostgres:
		pool, err := database.Connect(ctx, cfg.PGURL)
		if err != nil {
			return nil, fmt.Errorf("pg connect: %w", err)
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("pg migrate: %w", err)
		}
		return postgresStores(log, pool), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func postgresStores(log *slog.Logger, pool *pgxpool.Pool) *Stores {
	stock := invpg.NewRepository(log)
	return &Stores{
		Driver:   config.DriverPostgres,
		Orders:   orderpg.NewRepository(log, pool, stock),
		Payments: paymentpg.NewRepository(log, pool, stock),
		Outbox:   outbox.NewPostgresStore(log, pool),
		Close:    pool.Close,
	}
}

type Services struct {
	Orders   *orderapp.Service
	Payments *paymentapp.Service
}

func NewServices(cfg *config.Config, log *slog.Logger, st *Stores) (*Services, error) {
	gw, err := vnpay.New(cfg.VNPay)
	if err != nil {
		return nil, err
	}
	codes := codegen.New()
	orders := orderapp.NewService(log, st.Orders, codes)
	return &Services{
		Orders:   orders,
		Payments: paymentapp.NewService(log, st.Payments, orders, codes, gw),
	}, nil
}
