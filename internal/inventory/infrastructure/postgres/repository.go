package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/dmehra2102/convenience-store/internal/inventory/domain"
	"github.com/dmehra2102/convenience-store/pkg/database"
)

const productColumns = `id, code, name, price, stock_qty, status`

// Repository runs against whatever transaction the caller holds, so stock
// changes commit together with the order and payment rows.
type Repository struct {
	log *slog.Logger
}

func NewRepository(log *slog.Logger) *Repository {
	return &Repository{log: log}
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Price, &p.StockQty, &p.Status)
	return p, err
}

// ProductsByIDs returns the products found; missing ids are simply absent.
func (r *Repository) ProductsByIDs(ctx context.Context, q database.DBTX, ids []string) (map[string]domain.Product, error) {
	rows, err := q.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// Commit takes every line off the shelf with a conditional decrement. A line
// that would drive stock below zero matches no row, and the caller's
// transaction must be rolled back.
func (r *Repository) Commit(ctx context.Context, q database.DBTX, lines []domain.Line) ([]domain.Product, error) {
	var depleted []domain.Product
	for _, l := range domain.SortLines(lines) {
		p, err := scanProduct(q.QueryRow(ctx, `
			UPDATE products
			SET stock_qty = stock_qty - $2,
			    status = CASE WHEN stock_qty - $2 = 0 THEN 'OUT_OF_STOCK' ELSE status END,
			    updated_at = now()
			WHERE id = $1 AND stock_qty >= $2
			RETURNING `+productColumns, l.ProductID, l.Quantity))
		if errors.Is(err, pgx.ErrNoRows) {
			r.log.Warn("stock commit refused", "product_id", l.ProductID, "quantity", l.Quantity)
			return nil, domain.InsufficientStock(l.ProductCode)
		}
		if err != nil {
			return nil, fmt.Errorf("commit stock %s: %w", l.ProductID, err)
		}
		if p.StockQty == 0 {
			depleted = append(depleted, p)
		}
	}
	return depleted, nil
}
