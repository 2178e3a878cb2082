package application_test

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	invdomain "github.com/dmehra2102/convenience-store/internal/inventory/domain"
	"github.com/dmehra2102/convenience-store/internal/order/application"
	"github.com/dmehra2102/convenience-store/internal/order/domain"
	"github.com/dmehra2102/convenience-store/internal/storage/memory"
	"github.com/dmehra2102/convenience-store/pkg/apperr"
	"github.com/dmehra2102/convenience-store/pkg/codegen"
)

// stepClock moves one minute forward on every read.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

func newService(t *testing.T) (*application.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	store.PutProduct(invdomain.Product{ID: "water", Code: "P0001", Name: "Water", Price: decimal.NewFromInt(8000), StockQty: 10, Status: invdomain.StatusActive})
	store.PutProduct(invdomain.Product{ID: "chips", Code: "P0002", Name: "Chips", Price: decimal.NewFromInt(12000), StockQty: 5, Status: invdomain.StatusActive})
	store.PutProduct(invdomain.Product{ID: "old", Code: "P0099", Name: "Discontinued", Price: decimal.NewFromInt(1000), StockQty: 5, Status: invdomain.StatusInactive})

	clock := &stepClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	codes := codegen.NewWith(clock.now, rand.Reader)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return application.NewService(log, store.Orders(), codes), store
}

func basket() []application.ItemInput {
	return []application.ItemInput{{ProductID: "water", Quantity: 2}, {ProductID: "chips", Quantity: 1}}
}

func TestCreateOrderWithCustomer(t *testing.T) {
	svc, store := newService(t)

	got, err := svc.CreateOrder(context.Background(), application.CreateOrderInput{
		CustomerName:    " An Nguyen ",
		CustomerPhone:   "0901234567",
		CustomerAddress: "12 Le Loi, HCM",
		Note:            "no bag",
		Items:           basket(),
	})
	require.NoError(t, err)

	o := got.Order
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.True(t, decimal.NewFromInt(28000).Equal(o.Total))
	assert.Regexp(t, `^ORD-\d{14}-[A-Z0-9]{6}$`, o.Code)
	require.Len(t, o.Items, 2)
	assert.Equal(t, "P0001", o.Items[0].ProductCode)
	assert.True(t, decimal.NewFromInt(16000).Equal(o.Items[0].LineTotal))
	assert.Empty(t, got.Payments)

	require.NotNil(t, got.User)
	assert.Equal(t, "An Nguyen", got.User.Name)
	assert.Equal(t, 280, got.User.Points)
	assert.Equal(t, got.User.ID, o.UserID)

	stored, ok := store.UserByPhone("0901234567")
	require.True(t, ok)
	assert.Equal(t, 280, stored.Points)

	water, _ := store.Product("water")
	assert.Equal(t, 10, water.StockQty, "placing an order does not take stock")

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventOrderCreated, events[0].Type)
	assert.Equal(t, o.ID, events[0].AggregateID)
}

func TestCreateOrderReturningCustomerAccumulatesPoints(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	in := application.CreateOrderInput{CustomerName: "An", CustomerPhone: "0901234567", CustomerAddress: "HCM", Items: basket()}

	first, err := svc.CreateOrder(ctx, in)
	require.NoError(t, err)

	in.CustomerName = "An N."
	in.CustomerAddress = "Hanoi"
	second, err := svc.CreateOrder(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, first.User.ID, second.User.ID)
	u, _ := store.UserByPhone("0901234567")
	assert.Equal(t, 560, u.Points)
	assert.Equal(t, "An N.", u.Name)
	assert.Equal(t, "Hanoi", u.Address)
}

func TestCreateOrderGuestEarnsNothing(t *testing.T) {
	svc, store := newService(t)

	got, err := svc.CreateOrder(context.Background(), application.CreateOrderInput{
		CustomerName: "Guest", CustomerPhone: domain.GuestPhone, CustomerAddress: "-", Items: basket(),
	})
	require.NoError(t, err)

	require.NotNil(t, got.User)
	assert.Equal(t, 0, got.User.Points)
	u, _ := store.UserByPhone(domain.GuestPhone)
	assert.Equal(t, 0, u.Points)
}

func TestCreateOrderWithoutFullCustomerHasNoUser(t *testing.T) {
	svc, store := newService(t)

	got, err := svc.CreateOrder(context.Background(), application.CreateOrderInput{
		CustomerName: "An", CustomerPhone: "0901234567", Items: basket(),
	})
	require.NoError(t, err)

	assert.Nil(t, got.User)
	assert.Empty(t, got.Order.UserID)
	_, ok := store.UserByPhone("0901234567")
	assert.False(t, ok)
}

func TestCreateOrderRejects(t *testing.T) {
	tests := []struct {
		name    string
		in      application.CreateOrderInput
		kind    apperr.Kind
		message string
	}{
		{
			name:    "no items",
			in:      application.CreateOrderInput{},
			kind:    apperr.KindValidation,
			message: "Order must contain at least one item",
		},
		{
			name:    "zero quantity",
			in:      application.CreateOrderInput{Items: []application.ItemInput{{ProductID: "water", Quantity: 0}}},
			kind:    apperr.KindValidation,
			message: "Quantity must be at least 1",
		},
		{
			name:    "duplicate product",
			in:      application.CreateOrderInput{Items: []application.ItemInput{{ProductID: "water", Quantity: 1}, {ProductID: "water", Quantity: 2}}},
			kind:    apperr.KindValidation,
			message: "Duplicate product detected in order items",
		},
		{
			name:    "bad phone",
			in:      application.CreateOrderInput{CustomerPhone: "09-123", Items: basket()},
			kind:    apperr.KindValidation,
			message: "Customer phone must be 9 to 11 digits",
		},
		{
			name:    "long note",
			in:      application.CreateOrderInput{Note: strings.Repeat("x", 501), Items: basket()},
			kind:    apperr.KindValidation,
			message: "Note must be at most 500 characters",
		},
		{
			name:    "unknown product",
			in:      application.CreateOrderInput{Items: []application.ItemInput{{ProductID: "water", Quantity: 1}, {ProductID: "ghost", Quantity: 1}}},
			kind:    apperr.KindNotFound,
			message: "One or more products not found",
		},
		{
			name:    "inactive product",
			in:      application.CreateOrderInput{Items: []application.ItemInput{{ProductID: "old", Quantity: 1}}},
			kind:    apperr.KindValidation,
			message: "Product is inactive: P0099",
		},
		{
			name:    "not enough stock",
			in:      application.CreateOrderInput{Items: []application.ItemInput{{ProductID: "chips", Quantity: 6}}},
			kind:    apperr.KindValidation,
			message: "Insufficient stock for product: P0002",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newService(t)

			_, err := svc.CreateOrder(context.Background(), tt.in)

			assert.True(t, apperr.IsKind(err, tt.kind), "got %v", err)
			assert.Equal(t, tt.message, apperr.Message(err))
			assert.Empty(t, store.Events())
		})
	}
}

func TestGetOrder(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, application.CreateOrderInput{Items: basket()})
	require.NoError(t, err)

	got, err := svc.GetOrder(ctx, created.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Order.Code, got.Order.Code)
	assert.Len(t, got.Order.Items, 2)
	assert.Nil(t, got.User)

	_, err = svc.GetOrder(ctx, "missing")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestSearchOrders(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	var codes []string
	var created []time.Time
	for i := 0; i < 3; i++ {
		d, err := svc.CreateOrder(ctx, application.CreateOrderInput{
			CustomerName: "An", CustomerPhone: "0901234567", CustomerAddress: "HCM",
			Items: []application.ItemInput{{ProductID: "water", Quantity: 1}},
		})
		require.NoError(t, err)
		codes = append(codes, d.Order.Code)
		created = append(created, d.Order.CreatedAt)
	}

	t.Run("newest first", func(t *testing.T) {
		page, err := svc.SearchOrders(ctx, application.SearchQuery{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.Total)
		assert.Equal(t, application.DefaultPageSize, page.Size)
		require.Len(t, page.Items, 3)
		assert.Equal(t, codes[2], page.Items[0].Code)
		assert.Equal(t, "An", page.Items[0].CustomerName)
		assert.Equal(t, 1, page.Items[0].ItemCount)
	})

	t.Run("code is case insensitive", func(t *testing.T) {
		page, err := svc.SearchOrders(ctx, application.SearchQuery{Code: strings.ToLower(codes[1][4:])})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, codes[1], page.Items[0].Code)
	})

	t.Run("inclusive range with reversed bounds", func(t *testing.T) {
		page, err := svc.SearchOrders(ctx, application.SearchQuery{From: &created[1], To: &created[0]})
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.Total)
	})

	t.Run("paging", func(t *testing.T) {
		page, err := svc.SearchOrders(ctx, application.SearchQuery{Page: 1, Size: 2})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, codes[0], page.Items[0].Code)

		page, err = svc.SearchOrders(ctx, application.SearchQuery{Page: -3, Size: 1000})
		require.NoError(t, err)
		assert.Equal(t, 0, page.Page)
		assert.Equal(t, application.MaxPageSize, page.Size)
	})
}

func TestParseBound(t *testing.T) {
	from, err := application.ParseBound("2024-03-09", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), *from)

	to, err := application.ParseBound("2024-03-09", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 9, 23, 59, 59, 999999999, time.UTC), *to)

	exact, err := application.ParseBound("2024-03-09T10:00:00Z", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC), *exact)

	local, err := application.ParseBound("2024-03-09T00:00:00", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), *local)

	local, err = application.ParseBound("2024-03-09T23:59:59", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 9, 23, 59, 59, 0, time.UTC), *local)

	spaced, err := application.ParseBound("2024-03-09 10:00:00", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC), *spaced)

	none, err := application.ParseBound(" ", false)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = application.ParseBound("yesterday", false)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestConcurrentOrdersShareOneNewCustomer(t *testing.T) {
	svc, store := newService(t)
	const n = 8

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		userIDs = map[string]bool{}
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := svc.CreateOrder(context.Background(), application.CreateOrderInput{
				CustomerName: "Binh", CustomerPhone: "0912345678", CustomerAddress: "Da Nang", Items: basket(),
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			userIDs[d.User.ID] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, userIDs, 1)
	u, ok := store.UserByPhone("0912345678")
	require.True(t, ok)
	assert.True(t, userIDs[u.ID])
	assert.Equal(t, n*280, u.Points)
}

// queuedCodes hands out fixed order codes before falling back to the
// generator.
type queuedCodes struct {
	*codegen.Generator
	mu    sync.Mutex
	codes []string
}

func (c *queuedCodes) OrderCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.codes) == 0 {
		return c.Generator.OrderCode()
	}
	code := c.codes[0]
	c.codes = c.codes[1:]
	return code
}

func TestCreateOrderDrawsNewCodeOnCollision(t *testing.T) {
	store := memory.New()
	store.PutProduct(invdomain.Product{ID: "water", Code: "P0001", Name: "Water", Price: decimal.NewFromInt(8000), StockQty: 10, Status: invdomain.StatusActive})
	codes := &queuedCodes{Generator: codegen.New(), codes: []string{"ORD-A", "ORD-A", "ORD-B"}}
	svc := application.NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), store.Orders(), codes)
	in := application.CreateOrderInput{Items: []application.ItemInput{{ProductID: "water", Quantity: 1}}}

	first, err := svc.CreateOrder(context.Background(), in)
	require.NoError(t, err)
	second, err := svc.CreateOrder(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "ORD-A", first.Order.Code)
	assert.Equal(t, "ORD-B", second.Order.Code)
	assert.Len(t, store.Events(), 2, "the rolled back attempt leaves no event")
}

func TestCreateOrderGivesUpAfterRepeatedCollisions(t *testing.T) {
	store := memory.New()
	store.PutProduct(invdomain.Product{ID: "water", Code: "P0001", Name: "Water", Price: decimal.NewFromInt(8000), StockQty: 10, Status: invdomain.StatusActive})
	codes := &queuedCodes{Generator: codegen.New(), codes: []string{"ORD-A", "ORD-A", "ORD-A", "ORD-A"}}
	svc := application.NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), store.Orders(), codes)
	in := application.CreateOrderInput{Items: []application.ItemInput{{ProductID: "water", Quantity: 1}}}

	_, err := svc.CreateOrder(context.Background(), in)
	require.NoError(t, err)
	_, err = svc.CreateOrder(context.Background(), in)

	assert.ErrorIs(t, err, codegen.ErrCodeTaken)
}
