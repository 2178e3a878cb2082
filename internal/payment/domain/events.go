package domain

import "github.com/shopspring/decimal"

const (
	AggregatePayment = "payment"

	EventPaymentSucceeded = "PaymentSucceeded"
	EventPaymentFailed    = "PaymentFailed"
	EventPaymentCanceled  = "PaymentCanceled"
)

type PaymentSettled struct {
	PaymentID string          `json:"paymentId"`
	OrderID   string          `json:"orderId"`
	TxnRef    string          `json:"txnRef"`
	Provider  Provider        `json:"provider"`
	Status    Status          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	BankCode  string          `json:"bankCode,omitempty"`
}

func NewPaymentSettled(p Payment) PaymentSettled {
	return PaymentSettled{
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		TxnRef:    p.TxnRef,
		Provider:  p.Provider,
		Status:    p.Status,
		Amount:    p.Amount,
		BankCode:  p.BankCode,
	}
}

func SettledEventType(s Status) string {
	switch s {
	case StatusPaid:
		return EventPaymentSucceeded
	case StatusCanceled:
		return EventPaymentCanceled
	default:
		return EventPaymentFailed
	}
}
