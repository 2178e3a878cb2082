package memory

import (
	"github.com/shopspring/decimal"

	invdomain "github.com/dmehra2102/convenience-store/internal/inventory/domain"
)

// SeedCatalog loads the same starter catalog the Postgres schema inserts.
func (s *Store) SeedCatalog() {
	for _, p := range []invdomain.Product{
		{ID: "00000000-0000-4000-8000-000000000001", Code: "P0001", Name: "Bottled Water 500ml", Price: decimal.NewFromInt(8000), StockQty: 200},
		{ID: "00000000-0000-4000-8000-000000000002", Code: "P0002", Name: "Sparkling Water 500ml", Price: decimal.NewFromInt(12000), StockQty: 150},
		{ID: "00000000-0000-4000-8000-000000000003", Code: "P1001", Name: "Potato Chips Original", Price: decimal.NewFromInt(18000), StockQty: 120},
		{ID: "00000000-0000-4000-8000-000000000004", Code: "P1002", Name: "Chocolate Bar 55g", Price: decimal.NewFromInt(22000), StockQty: 100},
		{ID: "00000000-0000-4000-8000-000000000005", Code: "P2001", Name: "Fresh Milk 1L", Price: decimal.NewFromInt(32000), StockQty: 80},
	} {
		p.Status = invdomain.StatusActive
		s.PutProduct(p)
	}
}
