package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	invdomain "github.com/dmehra2102/convenience-store/internal/inventory/domain"
	invpg "github.com/dmehra2102/convenience-store/internal/inventory/infrastructure/postgres"
	"github.com/dmehra2102/convenience-store/internal/order/application"
	"github.com/dmehra2102/convenience-store/internal/order/domain"
	"github.com/dmehra2102/convenience-store/pkg/apperr"
	"github.com/dmehra2102/convenience-store/pkg/codegen"
	"github.com/dmehra2102/convenience-store/pkg/database"
	"github.com/dmehra2102/convenience-store/pkg/outbox"
)

type Repository struct {
	log      *slog.Logger
	pool     *pgxpool.Pool
	products *invpg.Repository
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool, products *invpg.Repository) *Repository {
	return &Repository{log: log, pool: pool, products: products}
}

func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx application.OrderTx) error) error {
	return database.WithTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(ctx, &orderTx{tx: tx, products: r.products})
	})
}

type orderTx struct {
	tx       pgx.Tx
	products *invpg.Repository
}

func (t *orderTx) ProductsByIDs(ctx context.Context, ids []string) (map[string]invdomain.Product, error) {
	return t.products.ProductsByIDs(ctx, t.tx, ids)
}

func (t *orderTx) UpsertUserByPhone(ctx context.Context, u domain.User) (domain.User, error) {
	var out domain.User
	err := t.tx.QueryRow(ctx, `
		INSERT INTO users (id, name, phone, address) VALUES ($1,$2,$3,$4)
		ON CONFLICT (phone) DO UPDATE SET name = EXCLUDED.name, address = EXCLUDED.address, updated_at = now()
		RETURNING id, name, phone, address, point`,
		u.ID, u.Name, u.Phone, u.Address).
		Scan(&out.ID, &out.Name, &out.Phone, &out.Address, &out.Points)
	return out, err
}

func (t *orderTx) AddPoints(ctx context.Context, userID string, points int) error {
	_, err := t.tx.Exec(ctx, `UPDATE users SET point = point + $2, updated_at = now() WHERE id = $1`, userID, points)
	return err
}

func (t *orderTx) InsertOrder(ctx context.Context, o domain.Order) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO orders (id, code, user_id, total_amount, status, note, created_at, updated_at)
		VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8)`,
		o.ID, o.Code, o.UserID, o.Total, o.Status, o.Note, o.CreatedAt, o.UpdatedAt)
	if database.IsUniqueViolation(err, "orders_code_key") {
		return fmt.Errorf("order code %s: %w", o.Code, codegen.ErrCodeTaken)
	}
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, item := range o.Items {
		batch.Queue(`INSERT INTO order_items (id, order_id, product_id, unit_price, quantity, line_total)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			item.ID, o.ID, item.ProductID, item.UnitPrice, item.Quantity, item.LineTotal)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *orderTx) AppendEvent(ctx context.Context, ev outbox.Event) error {
	return outbox.Append(ctx, t.tx, ev)
}

const orderColumns = `id, code, COALESCE(user_id, ''), total_amount, status, note, created_at, updated_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.Code, &o.UserID, &o.Total, &o.Status, &o.Note, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func notFound(id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFoundf("Order not found with id: %s", id)
	}
	return err
}

// LockOrder reads the order row and holds its lock until q commits.
func LockOrder(ctx context.Context, q database.DBTX, id string) (domain.Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return domain.Order{}, notFound(id, err)
	}
	return o, nil
}

func SetStatus(ctx context.Context, q database.DBTX, id string, status domain.OrderStatus, at time.Time) error {
	ct, err := q.Exec(ctx, `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`, id, status, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFoundf("Order not found with id: %s", id)
	}
	return nil
}

func items(ctx context.Context, q database.DBTX, orderID string) ([]domain.OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT oi.id, oi.product_id, p.code, p.name, oi.unit_price, oi.quantity, oi.line_total
		FROM order_items oi JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1
		ORDER BY p.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.ProductID, &it.ProductCode, &it.ProductName, &it.UnitPrice, &it.Quantity, &it.LineTotal); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// OrderLines is the stock the order takes once paid.
func OrderLines(ctx context.Context, q database.DBTX, orderID string) ([]invdomain.Line, error) {
	its, err := items(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	return domain.Order{Items: its}.Lines(), nil
}

// Get assembles the order view from several queries run on one snapshot.
func (r *Repository) Get(ctx context.Context, id string) (domain.Details, error) {
	var d domain.Details
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := database.WithTx(ctx, r.pool, opts, func(tx pgx.Tx) error {
		o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
		if err != nil {
			return notFound(id, err)
		}
		if o.Items, err = items(ctx, tx, id); err != nil {
			return err
		}
		d.Order = o

		if d.Payments, err = payments(ctx, tx, id); err != nil {
			return err
		}

		if o.UserID != "" {
			var u domain.User
			err := tx.QueryRow(ctx, `SELECT id, name, COALESCE(phone, ''), address, point FROM users WHERE id = $1`, o.UserID).
				Scan(&u.ID, &u.Name, &u.Phone, &u.Address, &u.Points)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
			if err == nil {
				d.User = &u
			}
		}
		return nil
	})
	return d, err
}

func payments(ctx context.Context, q database.DBTX, orderID string) ([]domain.PaymentAttempt, error) {
	rows, err := q.Query(ctx, `
		SELECT id, provider, txn_ref, amount, currency, status, COALESCE(bank_code, ''), pay_date, created_at
		FROM payments WHERE order_id = $1
		ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.PaymentAttempt{}
	for rows.Next() {
		var p domain.PaymentAttempt
		if err := rows.Scan(&p.ID, &p.Provider, &p.TxnRef, &p.Amount, &p.Currency, &p.Status, &p.BankCode, &p.PayDate, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *Repository) Search(ctx context.Context, q application.SearchQuery) (application.Page, error) {
	var (
		where []string
		args  []any
	)
	if q.Code != "" {
		args = append(args, "%"+likeEscaper.Replace(q.Code)+"%")
		where = append(where, fmt.Sprintf("o.code ILIKE $%d", len(args)))
	}
	if q.From != nil {
		args = append(args, *q.From)
		where = append(where, fmt.Sprintf("o.created_at >= $%d", len(args)))
	}
	if q.To != nil {
		args = append(args, *q.To)
		where = append(where, fmt.Sprintf("o.created_at <= $%d", len(args)))
	}
	filter := ""
	if len(where) > 0 {
		filter = " WHERE " + strings.Join(where, " AND ")
	}

	page := application.Page{Items: []domain.Summary{}, Page: q.Page, Size: q.Size}
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM orders o`+filter, args...).Scan(&page.Total); err != nil {
		return application.Page{}, err
	}

	args = append(args, q.Size, q.Page*q.Size)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT o.id, o.code, o.status, COALESCE(u.name, ''), o.total_amount,
		       (SELECT count(*) FROM order_items oi WHERE oi.order_id = o.id), o.created_at
		FROM orders o LEFT JOIN users u ON u.id = o.user_id%s
		ORDER BY o.created_at DESC, o.code DESC
		LIMIT $%d OFFSET $%d`, filter, len(args)-1, len(args)), args...)
	if err != nil {
		return application.Page{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var s domain.Summary
		if err := rows.Scan(&s.ID, &s.Code, &s.Status, &s.CustomerName, &s.Total, &s.ItemCount, &s.CreatedAt); err != nil {
			return application.Page{}, err
		}
		page.Items = append(page.Items, s)
	}
	return page, rows.Err()
}
