package application

import (
	"context"
	"log/slog"

	invdomain "github.com/dmehra2102/convenience-store/internal/inventory/domain"
	orderdomain "github.com/dmehra2102/convenience-store/internal/order/domain"
	"github.com/dmehra2102/convenience-store/internal/payment/domain"
	"github.com/dmehra2102/convenience-store/pkg/apperr"
	"github.com/dmehra2102/convenience-store/pkg/codegen"
	"github.com/dmehra2102/convenience-store/pkg/outbox"
	"github.com/dmehra2102/convenience-store/pkg/tracing"
)

const (
	AckConfirmed = "00"
	AckRejected  = "99"
)

// Ack is the body returned to a provider's server to server notification.
type Ack struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

type Service struct {
	log      *slog.Logger
	repo     PaymentRepository
	orders   OrderReader
	codes    Codes
	gateways map[domain.Provider]Gateway
}

func NewService(log *slog.Logger, repo PaymentRepository, orders OrderReader, codes Codes, gateways ...Gateway) *Service {
	byProvider := make(map[domain.Provider]Gateway, len(gateways))
	for _, g := range gateways {
		byProvider[g.Provider()] = g
	}
	return &Service{log: log, repo: repo, orders: orders, codes: codes, gateways: byProvider}
}

func (s *Service) gateway(p domain.Provider) (Gateway, error) {
	g, ok := s.gateways[p]
	if !ok {
		return nil, apperr.Paymentf("Unsupported payment provider: %s", p)
	}
	return g, nil
}

// Initiate records a PENDING attempt for the order and returns the URL the
// customer is sent to.
func (s *Service) Initiate(ctx context.Context, provider domain.Provider, orderID, clientIP string) (string, error) {
	g, err := s.gateway(provider)
	if err != nil {
		return "", err
	}

	var url string
	err = codegen.Retry(func() error {
		return s.repo.WithinTx(ctx, func(ctx context.Context, tx PaymentTx) error {
			o, err := tx.LockOrder(ctx, orderID)
			if err != nil {
				return err
			}
			switch o.Status {
			case orderdomain.StatusPaid:
				return apperr.Paymentf("Order is already paid")
			case orderdomain.StatusCanceled:
				return apperr.Paymentf("Order has been canceled")
			}

			now := s.codes.Now()
			p := domain.NewPending(s.codes.ID(), o.ID, g.Provider(), s.codes.TxnRef(), o.Total, g.Currency(), now)
			if err := tx.InsertPayment(ctx, p); err != nil {
				return err
			}
			url, err = g.PaymentURL(domain.Checkout{
				TxnRef:    p.TxnRef,
				OrderCode: o.Code,
				Amount:    p.Amount,
				ClientIP:  clientIP,
				At:        now,
			})
			return err
		})
	})
	if err != nil {
		return "", err
	}

	s.log.Info("payment initiated", "order_id", orderID, "provider", provider)
	return url, nil
}

// HandleReturn reconciles the browser redirect and returns the order as it
// stands afterwards.
func (s *Service) HandleReturn(ctx context.Context, provider domain.Provider, params map[string]string) (orderdomain.Details, error) {
	orderID, err := s.reconcile(ctx, provider, params)
	if err != nil {
		return orderdomain.Details{}, err
	}
	return s.orders.GetOrder(ctx, orderID)
}

// HandleIPN reconciles a server to server notification. Payment errors are
// answered with a rejection ack rather than returned.
func (s *Service) HandleIPN(ctx context.Context, provider domain.Provider, params map[string]string) (Ack, error) {
	if _, err := s.reconcile(ctx, provider, params); err != nil {
		if apperr.IsKind(err, apperr.KindPayment) {
			s.log.Warn("ipn rejected", "provider", provider, "reason", apperr.Message(err))
			return Ack{RspCode: AckRejected, Message: apperr.Message(err)}, nil
		}
		return Ack{}, err
	}
	return Ack{RspCode: AckConfirmed, Message: "Confirm Success"}, nil
}

func (s *Service) reconcile(ctx context.Context, provider domain.Provider, params map[string]string) (string, error) {
	g, err := s.gateway(provider)
	if err != nil {
		return "", err
	}
	cb, err := g.ParseCallback(params)
	if err != nil {
		return "", err
	}

	var orderID string
	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx PaymentTx) error {
		p, err := tx.LockPayment(ctx, cb.TxnRef)
		if err != nil {
			return err
		}
		orderID = p.OrderID
		if err := p.VerifyAmount(cb); err != nil {
			return err
		}

		next, changed := p.Apply(cb, s.codes.Now())
		if !changed {
			if p.Status.Terminal() && p.Status != cb.Outcome {
				s.log.Warn("callback conflicts with settled payment", "txn_ref", p.TxnRef, "status", p.Status, "callback", cb.Outcome)
			} else {
				s.log.Info("duplicate callback ignored", "txn_ref", p.TxnRef, "status", p.Status)
			}
			return nil
		}

		if err := tx.UpdatePayment(ctx, next); err != nil {
			return err
		}
		if err := appendEvent(ctx, tx, domain.AggregatePayment, next.ID, domain.SettledEventType(next.Status), domain.NewPaymentSettled(next)); err != nil {
			return err
		}
		return s.settleOrder(ctx, tx, next)
	})
	if err != nil {
		return "", err
	}
	return orderID, nil
}

func (s *Service) settleOrder(ctx context.Context, tx PaymentTx, p domain.Payment) error {
	o, err := tx.LockOrder(ctx, p.OrderID)
	if err != nil {
		return err
	}
	next, changed := orderdomain.Settle(o.Status, p.Status == domain.StatusPaid)
	if !changed {
		if o.Status == orderdomain.StatusPaid && p.Status == domain.StatusPaid {
			s.log.Warn("order already paid by another attempt", "order_id", o.ID, "txn_ref", p.TxnRef)
		}
		return nil
	}

	if next == orderdomain.StatusPaid {
		lines, err := tx.OrderLines(ctx, o.ID)
		if err != nil {
			return err
		}
		depleted, err := tx.CommitStock(ctx, invdomain.SortLines(lines))
		if err != nil {
			return err
		}
		for _, prod := range depleted {
			ev := invdomain.ProductOutOfStock{ProductID: prod.ID, Code: prod.Code, At: p.UpdatedAt}
			if err := appendEvent(ctx, tx, invdomain.AggregateProduct, prod.ID, invdomain.EventProductOutOfStock, ev); err != nil {
				return err
			}
		}
	}

	if err := tx.SetOrderStatus(ctx, o.ID, next, p.UpdatedAt); err != nil {
		return err
	}
	settled := orderdomain.OrderSettled{OrderID: o.ID, Code: o.Code, PaymentID: p.ID, Status: string(next)}
	if err := appendEvent(ctx, tx, orderdomain.AggregateOrder, o.ID, orderdomain.SettledEventType(next), settled); err != nil {
		return err
	}

	s.log.Info("order settled", "order_id", o.ID, "status", next, "txn_ref", p.TxnRef)
	return nil
}

func appendEvent(ctx context.Context, tx PaymentTx, aggregate, id, eventType string, payload any) error {
	ev, err := outbox.NewEvent(aggregate, id, eventType, payload, tracing.Traceparent(ctx))
	if err != nil {
		return err
	}
	return tx.AppendEvent(ctx, ev)
}
