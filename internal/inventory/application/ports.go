package application

import (
	"context"

	"github.com/dmehra2102/convenience-store/internal/inventory/domain"
)

type AlertStore interface {
	// Raise records the alert unless one is already open for the product.
	// It reports whether a new alert was opened.
	Raise(ctx context.Context, a domain.RestockAlert) (bool, error)
	Open(ctx context.Context) ([]domain.RestockAlert, error)
}
