package application

import (
	"context"
	"time"

	invdomain "github.com/dmehra2102/convenience-store/internal/inventory/domain"
	"github.com/dmehra2102/convenience-store/internal/order/domain"
	"github.com/dmehra2102/convenience-store/pkg/outbox"
)

type OrderRepository interface {
	// WithinTx runs fn in one transaction. fn returning an error rolls
	// everything back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx OrderTx) error) error
	// Get returns a NotFound error when the order does not exist.
	Get(ctx context.Context, id string) (domain.Details, error)
	Search(ctx context.Context, q SearchQuery) (Page, error)
}

type OrderTx interface {
	ProductsByIDs(ctx context.Context, ids []string) (map[string]invdomain.Product, error)
	// UpsertUserByPhone inserts u, or refreshes name and address of the user
	// already holding u.Phone, and returns the stored row.
	UpsertUserByPhone(ctx context.Context, u domain.User) (domain.User, error)
	AddPoints(ctx context.Context, userID string, points int) error
	InsertOrder(ctx context.Context, o domain.Order) error
	AppendEvent(ctx context.Context, ev outbox.Event) error
}

type Codes interface {
	ID() string
	OrderCode() string
	Now() time.Time
}
