package application

import (
	"context"
	"time"

	invdomain "github.com/dmehra2102/convenience-store/internal/inventory/domain"
	orderdomain "github.com/dmehra2102/convenience-store/internal/order/domain"
	"github.com/dmehra2102/convenience-store/internal/payment/domain"
	"github.com/dmehra2102/convenience-store/pkg/outbox"
)

// Gateway is one provider variant: how its pay URL is laid out and how its
// callbacks are authenticated and read.
type Gateway interface {
	Provider() domain.Provider
	Currency() string
	PaymentURL(c domain.Checkout) (string, error)
	// ParseCallback authenticates params and returns a PaymentError when the
	// signature or a field is invalid.
	ParseCallback(params map[string]string) (domain.Callback, error)
}

type PaymentRepository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx PaymentTx) error) error
}

// PaymentTx locks rows for the rest of the transaction. Lookups of missing
// rows return a NotFound error.
type PaymentTx interface {
	LockOrder(ctx context.Context, orderID string) (orderdomain.Order, error)
	InsertPayment(ctx context.Context, p domain.Payment) error
	LockPayment(ctx context.Context, txnRef string) (domain.Payment, error)
	UpdatePayment(ctx context.Context, p domain.Payment) error
	OrderLines(ctx context.Context, orderID string) ([]invdomain.Line, error)
	// CommitStock takes every line off the shelf or fails with a Validation
	// error. It returns the products that reached zero.
	CommitStock(ctx context.Context, lines []invdomain.Line) ([]invdomain.Product, error)
	SetOrderStatus(ctx context.Context, orderID string, status orderdomain.OrderStatus, at time.Time) error
	AppendEvent(ctx context.Context, ev outbox.Event) error
}

type OrderReader interface {
	GetOrder(ctx context.Context, id string) (orderdomain.Details, error)
}

type Codes interface {
	ID() string
	TxnRef() string
	Now() time.Time
}
