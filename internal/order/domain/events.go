package domain

import "github.com/shopspring/decimal"

const (
	AggregateOrder = "order"

	EventOrderCreated  = "OrderCreated"
	EventOrderPaid     = "OrderPaid"
	EventOrderCanceled = "OrderCanceled"
)

type OrderCreated struct {
	OrderID string           `json:"orderId"`
	Code    string           `json:"code"`
	UserID  string           `json:"userId,omitempty"`
	Total   decimal.Decimal  `json:"total"`
	Items   []OrderItemEvent `json:"items"`
}

type OrderItemEvent struct {
	ProductID string `json:"productId"`
	Code      string `json:"code"`
	Quantity  int    `json:"quantity"`
}

// OrderSettled is the payload of both OrderPaid and OrderCanceled.
type OrderSettled struct {
	OrderID   string `json:"orderId"`
	Code      string `json:"code"`
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
}

func NewOrderCreated(o Order) OrderCreated {
	items := make([]OrderItemEvent, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemEvent{ProductID: it.ProductID, Code: it.ProductCode, Quantity: it.Quantity})
	}
	return OrderCreated{OrderID: o.ID, Code: o.Code, UserID: o.UserID, Total: o.Total, Items: items}
}

func SettledEventType(s OrderStatus) string {
	if s == StatusPaid {
		return EventOrderPaid
	}
	return EventOrderCanceled
}
