package application

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmehra2102/convenience-store/internal/order/domain"
	"github.com/dmehra2102/convenience-store/pkg/apperr"
)

const (
	maxNameLen    = 150
	maxAddressLen = 255
	maxNoteLen    = 500

	DefaultPageSize = 10
	MaxPageSize     = 100
)

var phonePattern = regexp.MustCompile(`^[0-9]{9,11}$`)

type CreateOrderInput struct {
	CustomerName    string
	CustomerPhone   string
	CustomerAddress string
	Note            string
	Items           []ItemInput
}

type ItemInput struct {
	ProductID string
	Quantity  int
}

func (in CreateOrderInput) customer() domain.Customer {
	return domain.Customer{Name: in.CustomerName, Phone: in.CustomerPhone, Address: in.CustomerAddress}.Normalize()
}

func (in CreateOrderInput) validate() error {
	if len(in.Items) == 0 {
		return apperr.Validationf("Order must contain at least one item")
	}
	for _, it := range in.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return apperr.Validationf("Product id is required")
		}
		if it.Quantity < 1 {
			return apperr.Validationf("Quantity must be at least 1")
		}
	}
	c := in.customer()
	if utf8.RuneCountInString(c.Name) > maxNameLen {
		return apperr.Validationf("Customer name must be at most %d characters", maxNameLen)
	}
	if c.Phone != "" && !phonePattern.MatchString(c.Phone) {
		return apperr.Validationf("Customer phone must be 9 to 11 digits")
	}
	if utf8.RuneCountInString(c.Address) > maxAddressLen {
		return apperr.Validationf("Customer address must be at most %d characters", maxAddressLen)
	}
	if utf8.RuneCountInString(in.Note) > maxNoteLen {
		return apperr.Validationf("Note must be at most %d characters", maxNoteLen)
	}

	seen := make(map[string]struct{}, len(in.Items))
	for _, it := range in.Items {
		if _, dup := seen[it.ProductID]; dup {
			return apperr.Validationf("Duplicate product detected in order items")
		}
		seen[it.ProductID] = struct{}{}
	}
	return nil
}

type SearchQuery struct {
	Code string
	From *time.Time
	To   *time.Time
	Page int
	Size int
}

type Page struct {
	Items []domain.Summary
	Page  int
	Size  int
	Total int64
}

func (q SearchQuery) normalize() SearchQuery {
	q.Code = strings.TrimSpace(q.Code)
	if q.Page < 0 {
		q.Page = 0
	}
	switch {
	case q.Size < 1:
		q.Size = DefaultPageSize
	case q.Size > MaxPageSize:
		q.Size = MaxPageSize
	}
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		q.From, q.To = q.To, q.From
	}
	return q
}

const dateOnly = "2006-01-02"

// local date-times carry no zone and are read as UTC
var localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05"}

// ParseBound reads a search bound given as RFC 3339, as a local date-time
// or as a plain date. A plain date covers the whole day: start of day for a
// lower bound, last nanosecond for an upper one.
func ParseBound(raw string, upper bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	day, err := time.Parse(dateOnly, raw)
	if err != nil {
		return nil, apperr.Validationf("Invalid date: %s", raw)
	}
	if upper {
		day = day.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &day, nil
}
