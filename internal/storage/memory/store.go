// Package memory keeps the whole store in process. Transactions hold one
// mutex and work on a copy of the state that replaces the committed state
// only when the transaction succeeds.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	invdomain "github.com/dmehra2102/convenience-store/internal/inventory/domain"
	orderapp "github.com/dmehra2102/convenience-store/internal/order/application"
	orderdomain "github.com/dmehra2102/convenience-store/internal/order/domain"
	paymentapp "github.com/dmehra2102/convenience-store/internal/payment/application"
	paydomain "github.com/dmehra2102/convenience-store/internal/payment/domain"
	"github.com/dmehra2102/convenience-store/pkg/apperr"
	"github.com/dmehra2102/convenience-store/pkg/codegen"
	"github.com/dmehra2102/convenience-store/pkg/outbox"
)

type state struct {
	products map[string]invdomain.Product
	users    map[string]orderdomain.User
	phones   map[string]string
	orders   map[string]orderdomain.Order
	codes    map[string]string
	payments map[string]paydomain.Payment
	txnRefs  map[string]string
	events   []outbox.Event
	lastID   int64
}

func newState() *state {
	return &state{
		products: map[string]invdomain.Product{},
		users:    map[string]orderdomain.User{},
		phones:   map[string]string{},
		orders:   map[string]orderdomain.Order{},
		codes:    map[string]string{},
		payments: map[string]paydomain.Payment{},
		txnRefs:  map[string]string{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// clone is shallow per entity. Entities are stored by value and order items
// are never edited after insert.
func (s *state) clone() *state {
	events := make([]outbox.Event, len(s.events))
	copy(events, s.events)
	return &state{
		products: cloneMap(s.products),
		users:    cloneMap(s.users),
		phones:   cloneMap(s.phones),
		orders:   cloneMap(s.orders),
		codes:    cloneMap(s.codes),
		payments: cloneMap(s.payments),
		txnRefs:  cloneMap(s.txnRefs),
		events:   events,
		lastID:   s.lastID,
	}
}

type Store struct {
	mu     sync.Mutex
	st     *state
	leases map[int64]time.Time
	now    func() time.Time
}

func New() *Store {
	return &Store{st: newState(), leases: map[int64]time.Time{}, now: func() time.Time { return time.Now().UTC() }}
}

// PutProduct inserts or replaces a catalog row.
func (s *Store) PutProduct(p invdomain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[p.ID] = p
}

func (s *Store) Product(id string) (invdomain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.products[id]
	return p, ok
}

func (s *Store) UserByPhone(phone string) (orderdomain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.st.phones[phone]
	if !ok {
		return orderdomain.User{}, false
	}
	return s.st.users[id], true
}

func (s *Store) Payment(txnRef string) (paydomain.Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.st.txnRefs[txnRef]
	if !ok {
		return paydomain.Payment{}, false
	}
	return s.st.payments[id], true
}

// Events returns a copy of the outbox in insertion order.
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]outbox.Event, len(s.st.events))
	copy(out, s.st.events)
	return out
}

func (s *Store) update(ctx context.Context, fn func(tx *tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(&tx{st: work, now: s.now}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }

func (s *Store) Payments() *PaymentRepository { return &PaymentRepository{s: s} }

type OrderRepository struct{ s *Store }

func (r *OrderRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx orderapp.OrderTx) error) error {
	return r.s.update(ctx, func(t *tx) error { return fn(ctx, t) })
}

func (r *OrderRepository) Get(ctx context.Context, id string) (orderdomain.Details, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.st

	o, ok := st.orders[id]
	if !ok {
		return orderdomain.Details{}, orderNotFound(id)
	}
	d := orderdomain.Details{Order: o, Payments: []orderdomain.PaymentAttempt{}}
	if u, ok := st.users[o.UserID]; ok {
		d.User = &u
	}
	for _, p := range st.payments {
		if p.OrderID == id {
			d.Payments = append(d.Payments, attempt(p))
		}
	}
	sort.Slice(d.Payments, func(i, j int) bool { return d.Payments[i].CreatedAt.Before(d.Payments[j].CreatedAt) })
	return d, nil
}

func (r *OrderRepository) Search(ctx context.Context, q orderapp.SearchQuery) (orderapp.Page, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.st

	code := strings.ToLower(q.Code)
	var matched []orderdomain.Summary
	for _, o := range st.orders {
		if code != "" && !strings.Contains(strings.ToLower(o.Code), code) {
			continue
		}
		if q.From != nil && o.CreatedAt.Before(*q.From) {
			continue
		}
		if q.To != nil && o.CreatedAt.After(*q.To) {
			continue
		}
		sum := orderdomain.Summary{
			ID:        o.ID,
			Code:      o.Code,
			Status:    o.Status,
			Total:     o.Total,
			ItemCount: len(o.Items),
			CreatedAt: o.CreatedAt,
		}
		if u, ok := st.users[o.UserID]; ok {
			sum.CustomerName = u.Name
		}
		matched = append(matched, sum)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].Code > matched[j].Code
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := orderapp.Page{Items: []orderdomain.Summary{}, Page: q.Page, Size: q.Size, Total: int64(len(matched))}
	start := q.Page * q.Size
	if start < len(matched) {
		end := min(start+q.Size, len(matched))
		page.Items = matched[start:end]
	}
	return page, nil
}

type PaymentRepository struct{ s *Store }

func (r *PaymentRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx paymentapp.PaymentTx) error) error {
	return r.s.update(ctx, func(t *tx) error { return fn(ctx, t) })
}

func attempt(p paydomain.Payment) orderdomain.PaymentAttempt {
	return orderdomain.PaymentAttempt{
		ID:        p.ID,
		Provider:  string(p.Provider),
		TxnRef:    p.TxnRef,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Status:    string(p.Status),
		BankCode:  p.BankCode,
		PayDate:   p.PayDate,
		CreatedAt: p.CreatedAt,
	}
}

func orderNotFound(id string) error {
	return apperr.NotFoundf("Order not found with id: %s", id)
}

// tx serves both the order and the payment transaction ports.
type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) ProductsByIDs(_ context.Context, ids []string) (map[string]invdomain.Product, error) {
	out := make(map[string]invdomain.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.st.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *tx) UpsertUserByPhone(_ context.Context, u orderdomain.User) (orderdomain.User, error) {
	if id, ok := t.st.phones[u.Phone]; ok {
		existing := t.st.users[id]
		existing.Name = u.Name
		existing.Address = u.Address
		t.st.users[id] = existing
		return existing, nil
	}
	u.Points = 0
	t.st.users[u.ID] = u
	t.st.phones[u.Phone] = u.ID
	return u, nil
}

func (t *tx) AddPoints(_ context.Context, userID string, points int) error {
	u, ok := t.st.users[userID]
	if !ok {
		return fmt.Errorf("user %s not found", userID)
	}
	u.Points += points
	t.st.users[userID] = u
	return nil
}

func (t *tx) InsertOrder(_ context.Context, o orderdomain.Order) error {
	if _, dup := t.st.codes[o.Code]; dup {
		return fmt.Errorf("order code %s: %w", o.Code, codegen.ErrCodeTaken)
	}
	t.st.orders[o.ID] = o
	t.st.codes[o.Code] = o.ID
	return nil
}

func (t *tx) AppendEvent(_ context.Context, ev outbox.Event) error {
	t.st.lastID++
	ev.ID = t.st.lastID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = t.now()
	}
	ev.Status = outbox.StatusPending
	t.st.events = append(t.st.events, ev)
	return nil
}

func (t *tx) LockOrder(_ context.Context, orderID string) (orderdomain.Order, error) {
	o, ok := t.st.orders[orderID]
	if !ok {
		return orderdomain.Order{}, orderNotFound(orderID)
	}
	return o, nil
}

func (t *tx) InsertPayment(_ context.Context, p paydomain.Payment) error {
	if _, dup := t.st.txnRefs[p.TxnRef]; dup {
		return fmt.Errorf("txn ref %s: %w", p.TxnRef, codegen.ErrCodeTaken)
	}
	t.st.payments[p.ID] = p
	t.st.txnRefs[p.TxnRef] = p.ID
	return nil
}

func (t *tx) LockPayment(_ context.Context, txnRef string) (paydomain.Payment, error) {
	id, ok := t.st.txnRefs[txnRef]
	if !ok {
		return paydomain.Payment{}, apperr.NotFoundf("Payment not found with txnRef: %s", txnRef)
	}
	return t.st.payments[id], nil
}

func (t *tx) UpdatePayment(_ context.Context, p paydomain.Payment) error {
	if _, ok := t.st.payments[p.ID]; !ok {
		return fmt.Errorf("payment %s not found", p.ID)
	}
	t.st.payments[p.ID] = p
	return nil
}

func (t *tx) OrderLines(_ context.Context, orderID string) ([]invdomain.Line, error) {
	o, ok := t.st.orders[orderID]
	if !ok {
		return nil, orderNotFound(orderID)
	}
	return o.Lines(), nil
}

func (t *tx) CommitStock(_ context.Context, lines []invdomain.Line) ([]invdomain.Product, error) {
	var depleted []invdomain.Product
	for _, l := range lines {
		p, ok := t.st.products[l.ProductID]
		if !ok {
			return nil, invdomain.InsufficientStock(l.ProductCode)
		}
		if err := p.Take(l.Quantity); err != nil {
			return nil, err
		}
		t.st.products[p.ID] = p
		if p.StockQty == 0 {
			depleted = append(depleted, p)
		}
	}
	return depleted, nil
}

func (t *tx) SetOrderStatus(_ context.Context, orderID string, status orderdomain.OrderStatus, at time.Time) error {
	o, ok := t.st.orders[orderID]
	if !ok {
		return orderNotFound(orderID)
	}
	o.Status = status
	o.UpdatedAt = at
	t.st.orders[orderID] = o
	return nil
}
