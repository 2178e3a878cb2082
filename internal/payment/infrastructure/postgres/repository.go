package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	invdomain "github.com/dmehra2102/convenience-store/internal/inventory/domain"
	invpg "github.com/dmehra2102/convenience-store/internal/inventory/infrastructure/postgres"
	orderdomain "github.com/dmehra2102/convenience-store/internal/order/domain"
	orderpg "github.com/dmehra2102/convenience-store/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/convenience-store/internal/payment/application"
	"github.com/dmehra2102/convenience-store/internal/payment/domain"
	"github.com/dmehra2102/convenience-store/pkg/apperr"
	"github.com/dmehra2102/convenience-store/pkg/codegen"
	"github.com/dmehra2102/convenience-store/pkg/database"
	"github.com/dmehra2102/convenience-store/pkg/outbox"
)

type Repository struct {
	log   *slog.Logger
	pool  *pgxpool.Pool
	stock *invpg.Repository
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool, stock *invpg.Repository) *Repository {
	return &Repository{log: log, pool: pool, stock: stock}
}

func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx application.PaymentTx) error) error {
	return database.WithTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(ctx, &paymentTx{tx: tx, stock: r.stock})
	})
}

type paymentTx struct {
	tx    pgx.Tx
	stock *invpg.Repository
}

func (t *paymentTx) LockOrder(ctx context.Context, orderID string) (orderdomain.Order, error) {
	return orderpg.LockOrder(ctx, t.tx, orderID)
}

func (t *paymentTx) InsertPayment(ctx context.Context, p domain.Payment) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO payments (id, order_id, provider, txn_ref, amount, currency, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.OrderID, p.Provider, p.TxnRef, p.Amount, p.Currency, p.Status, p.CreatedAt, p.UpdatedAt)
	if database.IsUniqueViolation(err, "payments_txn_ref_key") {
		return fmt.Errorf("txn ref %s: %w", p.TxnRef, codegen.ErrCodeTaken)
	}
	return err
}

func (t *paymentTx) LockPayment(ctx context.Context, txnRef string) (domain.Payment, error) {
	var (
		p        domain.Payment
		bankCode *string
		rawQuery *string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, order_id, provider, txn_ref, amount, currency, status, bank_code, raw_query, pay_date, created_at, updated_at
		FROM payments WHERE txn_ref = $1
		FOR UPDATE`, txnRef).
		Scan(&p.ID, &p.OrderID, &p.Provider, &p.TxnRef, &p.Amount, &p.Currency, &p.Status, &bankCode, &rawQuery, &p.PayDate, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, apperr.NotFoundf("Payment not found with txnRef: %s", txnRef)
	}
	if err != nil {
		return domain.Payment{}, err
	}
	if bankCode != nil {
		p.BankCode = *bankCode
	}
	if rawQuery != nil {
		p.RawQuery = *rawQuery
	}
	return p, nil
}

func (t *paymentTx) UpdatePayment(ctx context.Context, p domain.Payment) error {
	_, err := t.tx.Exec(ctx, `UPDATE payments
		SET status = $2, bank_code = NULLIF($3,''), raw_query = NULLIF($4,''), pay_date = $5, updated_at = $6
		WHERE id = $1`,
		p.ID, p.Status, p.BankCode, p.RawQuery, p.PayDate, p.UpdatedAt)
	return err
}

func (t *paymentTx) OrderLines(ctx context.Context, orderID string) ([]invdomain.Line, error) {
	return orderpg.OrderLines(ctx, t.tx, orderID)
}

func (t *paymentTx) CommitStock(ctx context.Context, lines []invdomain.Line) ([]invdomain.Product, error) {
	return t.stock.Commit(ctx, t.tx, lines)
}

func (t *paymentTx) SetOrderStatus(ctx context.Context, orderID string, status orderdomain.OrderStatus, at time.Time) error {
	return orderpg.SetStatus(ctx, t.tx, orderID, status, at)
}

func (t *paymentTx) AppendEvent(ctx context.Context, ev outbox.Event) error {
	return outbox.Append(ctx, t.tx, ev)
}
