package application

import (
	"context"
	"log/slog"

	"github.com/dmehra2102/convenience-store/internal/order/domain"
	"github.com/dmehra2102/convenience-store/pkg/apperr"
	"github.com/dmehra2102/convenience-store/pkg/codegen"
	"github.com/dmehra2102/convenience-store/pkg/outbox"
	"github.com/dmehra2102/convenience-store/pkg/tracing"
)

type Service struct {
	log   *slog.Logger
	repo  OrderRepository
	codes Codes
}

func NewService(log *slog.Logger, repo OrderRepository, codes Codes) *Service {
	return &Service{log: log, repo: repo, codes: codes}
}

// CreateOrder places a PENDING order. Stock is only checked here, it is taken
// when the order is paid.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (domain.Details, error) {
	if err := in.validate(); err != nil {
		return domain.Details{}, err
	}

	ids := make([]string, 0, len(in.Items))
	for _, it := range in.Items {
		ids = append(ids, it.ProductID)
	}

	var out domain.Details
	// a colliding order code rolls back and is drawn again
	err := codegen.Retry(func() error {
		return s.repo.WithinTx(ctx, func(ctx context.Context, tx OrderTx) error {
			products, err := tx.ProductsByIDs(ctx, ids)
			if err != nil {
				return err
			}
			if len(products) != len(ids) {
				return apperr.NotFoundf("One or more products not found")
			}

			items := make([]domain.OrderItem, 0, len(in.Items))
			for _, it := range in.Items {
				p := products[it.ProductID]
				if err := p.CheckAvailable(it.Quantity); err != nil {
					return err
				}
				items = append(items, domain.NewItem(s.codes.ID(), p, it.Quantity))
			}

			orderID := s.codes.ID()
			order := domain.NewOrder(orderID, s.codes.OrderCode(), "", in.Note, items, s.codes.Now())

			var user *domain.User
			if c := in.customer(); c.Complete() {
				u, err := tx.UpsertUserByPhone(ctx, domain.User{ID: s.codes.ID(), Name: c.Name, Phone: c.Phone, Address: c.Address})
				if err != nil {
					return err
				}
				if points := domain.EarnedPoints(order.Total); points > 0 && !u.IsGuest() {
					if err := tx.AddPoints(ctx, u.ID, points); err != nil {
						return err
					}
					u.Points += points
				}
				order.UserID = u.ID
				user = &u
			}

			if err := tx.InsertOrder(ctx, order); err != nil {
				return err
			}
			ev, err := outbox.NewEvent(domain.AggregateOrder, order.ID, domain.EventOrderCreated, domain.NewOrderCreated(order), tracing.Traceparent(ctx))
			if err != nil {
				return err
			}
			if err := tx.AppendEvent(ctx, ev); err != nil {
				return err
			}

			out = domain.Details{Order: order, User: user, Payments: []domain.PaymentAttempt{}}
			return nil
		})
	})
	if err != nil {
		return domain.Details{}, err
	}

	s.log.Info("order created", "order_id", out.Order.ID, "code", out.Order.Code, "total", out.Order.Total.String())
	return out, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Details, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) SearchOrders(ctx context.Context, q SearchQuery) (Page, error) {
	return s.repo.Search(ctx, q.normalize())
}
