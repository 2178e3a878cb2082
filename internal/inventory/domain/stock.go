package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/convenience-store/pkg/apperr"
)

type ProductStatus string

const (
	StatusActive     ProductStatus = "ACTIVE"
	StatusOutOfStock ProductStatus = "OUT_OF_STOCK"
	StatusInactive   ProductStatus = "INACTIVE"
)

type Product struct {
	ID       string
	Code     string
	Name     string
	Price    decimal.Decimal
	StockQty int
	Status   ProductStatus
}

// Line is a quantity of one product leaving the shelf.
type Line struct {
	ProductID   string
	ProductCode string
	Quantity    int
}

// CheckAvailable is the advisory check made when an order is placed. Nothing
// is reserved; Take is the real guard.
func (p Product) CheckAvailable(qty int) error {
	if p.Status == StatusInactive {
		return apperr.Validationf("Product is inactive: %s", p.Code)
	}
	if p.StockQty < qty {
		return apperr.Validationf("Insufficient stock for product: %s", p.Code)
	}
	return nil
}

// Take removes qty from stock. A product that reaches zero is OUT_OF_STOCK.
func (p *Product) Take(qty int) error {
	remaining := p.StockQty - qty
	if remaining < 0 {
		return InsufficientStock(p.Code)
	}
	p.StockQty = remaining
	if remaining == 0 {
		p.Status = StatusOutOfStock
	}
	return nil
}

func InsufficientStock(code string) error {
	return apperr.Validationf("Insufficient stock while completing payment for product: %s", code)
}

// SortLines orders lines by product id so concurrent commits lock rows in the
// same order.
func SortLines(lines []Line) []Line {
	out := make([]Line, len(lines))
	copy(out, lines)
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

const (
	AggregateProduct = "product"

	EventProductOutOfStock = "ProductOutOfStock"
)

type ProductOutOfStock struct {
	ProductID string    `json:"productId"`
	Code      string    `json:"code"`
	At        time.Time `json:"at"`
}

// RestockAlert is what the alert consumer keeps for products waiting on a
// restock.
type RestockAlert struct {
	ProductID string
	Code      string
	Since     time.Time
}
