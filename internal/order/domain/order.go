package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	invdomain "github.com/dmehra2102/convenience-store/internal/inventory/domain"
)

type OrderStatus string

const (
	StatusPending  OrderStatus = "PENDING"
	StatusPaid     OrderStatus = "PAID"
	StatusCanceled OrderStatus = "CANCELED"
)

// GuestPhone is the sentinel phone number of the shared walk-in account. It
// never earns loyalty points.
const GuestPhone = "0000000000"

type Order struct {
	ID        string
	Code      string
	UserID    string
	Note      string
	Status    OrderStatus
	Total     decimal.Decimal
	Items     []OrderItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItem snapshots the product as it was when the order was placed.
type OrderItem struct {
	ID          string
	ProductID   string
	ProductCode string
	ProductName string
	UnitPrice   decimal.Decimal
	Quantity    int
	LineTotal   decimal.Decimal
}

func NewItem(id string, p invdomain.Product, qty int) OrderItem {
	return OrderItem{
		ID:          id,
		ProductID:   p.ID,
		ProductCode: p.Code,
		ProductName: p.Name,
		UnitPrice:   p.Price,
		Quantity:    qty,
		LineTotal:   p.Price.Mul(decimal.NewFromInt(int64(qty))),
	}
}

func NewOrder(id, code, userID, note string, items []OrderItem, now time.Time) Order {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal)
	}
	return Order{
		ID:        id,
		Code:      code,
		UserID:    userID,
		Note:      note,
		Status:    StatusPending,
		Total:     total,
		Items:     items,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Lines is the stock the order takes off the shelf once it is paid.
func (o Order) Lines() []invdomain.Line {
	lines := make([]invdomain.Line, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, invdomain.Line{
			ProductID:   item.ProductID,
			ProductCode: item.ProductCode,
			Quantity:    item.Quantity,
		})
	}
	return lines
}

// Settle returns the status an order moves to after a payment settles, and
// whether it changed. A paid order is final. A canceled order can still be
// paid by a late successful attempt.
func Settle(current OrderStatus, paid bool) (OrderStatus, bool) {
	switch {
	case current == StatusPaid:
		return current, false
	case paid:
		return StatusPaid, true
	case current == StatusPending:
		return StatusCanceled, true
	default:
		return current, false
	}
}

// EarnedPoints is one percent of the order total, rounded down.
func EarnedPoints(total decimal.Decimal) int {
	return int(total.Div(decimal.NewFromInt(100)).Floor().IntPart())
}

type Customer struct {
	Name    string
	Phone   string
	Address string
}

func (c Customer) Normalize() Customer {
	return Customer{
		Name:    strings.TrimSpace(c.Name),
		Phone:   strings.TrimSpace(c.Phone),
		Address: strings.TrimSpace(c.Address),
	}
}

// Complete reports whether the customer can be linked to a user account.
func (c Customer) Complete() bool {
	n := c.Normalize()
	return n.Name != "" && n.Phone != "" && n.Address != ""
}

type User struct {
	ID      string
	Name    string
	Phone   string
	Address string
	Points  int
}

func (u User) IsGuest() bool { return u.Phone == GuestPhone }

// PaymentAttempt is the order side view of a payment row.
type PaymentAttempt struct {
	ID        string
	Provider  string
	TxnRef    string
	Amount    decimal.Decimal
	Currency  string
	Status    string
	BankCode  string
	PayDate   *time.Time
	CreatedAt time.Time
}

// Details is an order with everything the detail endpoint shows.
type Details struct {
	Order    Order
	User     *User
	Payments []PaymentAttempt
}

type Summary struct {
	ID           string
	Code         string
	Status       OrderStatus
	CustomerName string
	Total        decimal.Decimal
	ItemCount    int
	CreatedAt    time.Time
}
