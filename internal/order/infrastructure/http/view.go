package http

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/convenience-store/internal/order/application"
	"github.com/dmehra2102/convenience-store/internal/order/domain"
)

type OrderView struct {
	ID        string          `json:"id"`
	Code      string          `json:"code"`
	Status    string          `json:"status"`
	Total     decimal.Decimal `json:"totalAmount"`
	Note      string          `json:"note,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	Customer  *CustomerView   `json:"customer,omitempty"`
	Items     []ItemView      `json:"items"`
	Payments  []PaymentView   `json:"payments"`
}

type CustomerView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Points  int    `json:"points"`
}

type ItemView struct {
	ProductID   string          `json:"productId"`
	ProductCode string          `json:"productCode"`
	ProductName string          `json:"productName"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

type PaymentView struct {
	ID        string          `json:"id"`
	Provider  string          `json:"provider"`
	TxnRef    string          `json:"txnRef"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
	BankCode  string          `json:"bankCode,omitempty"`
	PayDate   *time.Time      `json:"payDate,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

func NewOrderView(d domain.Details) OrderView {
	o := d.Order
	v := OrderView{
		ID:        o.ID,
		Code:      o.Code,
		Status:    string(o.Status),
		Total:     o.Total,
		Note:      o.Note,
		CreatedAt: o.CreatedAt,
		Items:     make([]ItemView, 0, len(o.Items)),
		Payments:  make([]PaymentView, 0, len(d.Payments)),
	}
	if u := d.User; u != nil {
		v.Customer = &CustomerView{ID: u.ID, Name: u.Name, Phone: u.Phone, Address: u.Address, Points: u.Points}
	}
	for _, it := range o.Items {
		v.Items = append(v.Items, ItemView{
			ProductID:   it.ProductID,
			ProductCode: it.ProductCode,
			ProductName: it.ProductName,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			LineTotal:   it.LineTotal,
		})
	}
	for _, p := range d.Payments {
		v.Payments = append(v.Payments, PaymentView(p))
	}
	return v
}

type SummaryView struct {
	ID           string          `json:"id"`
	Code         string          `json:"code"`
	Status       string          `json:"status"`
	CustomerName string          `json:"customerName,omitempty"`
	Total        decimal.Decimal `json:"totalAmount"`
	ItemCount    int             `json:"itemCount"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type PageView struct {
	Content       []SummaryView `json:"content"`
	Page          int           `json:"page"`
	Size          int           `json:"size"`
	TotalElements int64         `json:"totalElements"`
	TotalPages    int64         `json:"totalPages"`
}

func newPageView(p application.Page) PageView {
	v := PageView{
		Content:       make([]SummaryView, 0, len(p.Items)),
		Page:          p.Page,
		Size:          p.Size,
		TotalElements: p.Total,
	}
	if p.Size > 0 {
		v.TotalPages = (p.Total + int64(p.Size) - 1) / int64(p.Size)
	}
	for _, s := range p.Items {
		v.Content = append(v.Content, SummaryView{
			ID:           s.ID,
			Code:         s.Code,
			Status:       string(s.Status),
			CustomerName: s.CustomerName,
			Total:        s.Total,
			ItemCount:    s.ItemCount,
			CreatedAt:    s.CreatedAt,
		})
	}
	return v
}
