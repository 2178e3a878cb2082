package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/convenience-store/pkg/apperr"
)

type Provider string

const ProviderVNPay Provider = "VNPAY"

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusPaid     Status = "PAID"
	StatusFailed   Status = "FAILED"
	StatusCanceled Status = "CANCELED"
)

// Terminal statuses are never left once reached.
func (s Status) Terminal() bool { return s != StatusPending }

type Payment struct {
	ID        string
	OrderID   string
	Provider  Provider
	TxnRef    string
	Amount    decimal.Decimal
	Currency  string
	Status    Status
	BankCode  string
	RawQuery  string
	PayDate   *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewPending(id, orderID string, provider Provider, txnRef string, amount decimal.Decimal, currency string, now time.Time) Payment {
	return Payment{
		ID:        id,
		OrderID:   orderID,
		Provider:  provider,
		TxnRef:    txnRef,
		Amount:    amount,
		Currency:  currency,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Checkout is what a gateway needs to build the hosted payment page URL.
type Checkout struct {
	TxnRef    string
	OrderCode string
	Amount    decimal.Decimal
	ClientIP  string
	At        time.Time
}

// Callback is a provider notification that already passed signature checks.
type Callback struct {
	TxnRef string
	// AmountMinor is the amount as sent by the provider, in minor units.
	AmountMinor string
	MinorDigits int32
	Outcome     Status
	BankCode    string
	RawQuery    string
	PayDate     *time.Time
}

// Amount converts AmountMinor back to major units. Only whole minor unit
// values are accepted.
func (c Callback) Amount() (decimal.Decimal, error) {
	raw := strings.TrimSpace(c.AmountMinor)
	if raw == "" {
		return decimal.Zero, apperr.Paymentf("Missing amount")
	}
	minor, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperr.Wrap(apperr.KindPayment, err, "Invalid amount")
	}
	if !minor.IsInteger() || minor.IsNegative() {
		return decimal.Zero, apperr.Paymentf("Invalid amount")
	}
	return minor.Shift(-c.MinorDigits), nil
}

// VerifyAmount checks the callback amount against the amount that was
// requested when the payment was initiated.
func (p Payment) VerifyAmount(cb Callback) error {
	got, err := cb.Amount()
	if err != nil {
		return err
	}
	if !got.Equal(p.Amount) {
		return apperr.Paymentf("Amount mismatch")
	}
	return nil
}

// Apply moves a pending payment to the callback outcome. It reports false when
// nothing changes: the payment is already settled or the callback carries no
// new state.
func (p Payment) Apply(cb Callback, now time.Time) (Payment, bool) {
	if p.Status.Terminal() || cb.Outcome == p.Status {
		return p, false
	}
	p.Status = cb.Outcome
	if cb.BankCode != "" {
		p.BankCode = cb.BankCode
	}
	p.RawQuery = cb.RawQuery
	if cb.PayDate != nil {
		p.PayDate = cb.PayDate
	}
	p.UpdatedAt = now
	return p, true
}
