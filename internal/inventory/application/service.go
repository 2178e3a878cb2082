package application

import (
	"context"
	"log/slog"

	"github.com/dmehra2102/convenience-store/internal/inventory/domain"
)

type Service struct {
	log    *slog.Logger
	alerts AlertStore
}

func NewService(log *slog.Logger, alerts AlertStore) *Service {
	return &Service{log: log, alerts: alerts}
}

// OutOfStock opens a restock alert for a product that a paid order emptied.
func (s *Service) OutOfStock(ctx context.Context, ev domain.ProductOutOfStock) error {
	opened, err := s.alerts.Raise(ctx, domain.RestockAlert{ProductID: ev.ProductID, Code: ev.Code, Since: ev.At})
	if err != nil {
		return err
	}
	if opened {
		s.log.Warn("product out of stock, restock needed", "product_id", ev.ProductID, "code", ev.Code)
	}
	return nil
}

func (s *Service) OpenAlerts(ctx context.Context) ([]domain.RestockAlert, error) {
	return s.alerts.Open(ctx)
}
