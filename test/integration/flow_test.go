//go:build integration

package integration

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/convenience-store/internal/bootstrap"
	orderapp "github.com/dmehra2102/convenience-store/internal/order/application"
	orderdomain "github.com/dmehra2102/convenience-store/internal/order/domain"
	orderkafka "github.com/dmehra2102/convenience-store/internal/order/infrastructure/kafka"
	"github.com/dmehra2102/convenience-store/internal/payment/application"
	paydomain "github.com/dmehra2102/convenience-store/internal/payment/domain"
	"github.com/dmehra2102/convenience-store/pkg/config"
	"github.com/dmehra2102/convenience-store/pkg/database"
	"github.com/dmehra2102/convenience-store/pkg/outbox"
	"github.com/dmehra2102/convenience-store/pkg/signature"
)

const (
	secret    = "INTEGRATIONSECRET"
	chocolate = "00000000-0000-4000-8000-000000000004"
	topic     = "store.events"
)

var env *Env

func TestMain(m *testing.M) {
	var err error
	env, err = Setup(context.Background())
	if err != nil {
		slog.Error("containers failed to start", "err", err)
		os.Exit(1)
	}
	code := m.Run()
	env.Teardown(context.Background())
	os.Exit(code)
}

type harness struct {
	stores   *bootstrap.Stores
	services *bootstrap.Services
	log      *slog.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		StoreDriver: config.DriverPostgres,
		PGURL:       env.PGURL,
		VNPay: config.VNPay{
			TmnCode:    "TMN01",
			HashSecret: secret,
			PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
			ReturnURL:  "http://localhost:8080/api/payments/vnpay/return",
			Version:    "2.1.0",
			Command:    "pay",
			CurrCode:   "VND",
			Locale:     "vn",
		},
	}
	stores, err := bootstrap.OpenStores(ctx, cfg, log)
	require.NoError(t, err)
	t.Cleanup(stores.Close)

	services, err := bootstrap.NewServices(cfg, log, stores)
	require.NoError(t, err)
	return &harness{stores: stores, services: services, log: log}
}

func setStock(t *testing.T, productID string, qty int) {
	t.Helper()
	ctx := context.Background()
	pool, err := database.Connect(ctx, env.PGURL)
	require.NoError(t, err)
	defer pool.Close()
	_, err = pool.Exec(ctx, `UPDATE products SET stock_qty = $2, status = 'ACTIVE' WHERE id = $1`, productID, qty)
	require.NoError(t, err)
}

// checkout creates an order and starts a payment, returning the signed
// success callback the provider would send for it.
func (h *harness) checkout(t *testing.T, qty int) (string, map[string]string) {
	t.Helper()
	ctx := context.Background()
	d, err := h.services.Orders.CreateOrder(ctx, orderapp.CreateOrderInput{
		CustomerName:  "Lan",
		CustomerPhone: "0901234567",
		Items:         []orderapp.ItemInput{{ProductID: chocolate, Quantity: qty}},
	})
	require.NoError(t, err)

	raw, err := h.services.Payments.Initiate(ctx, paydomain.ProviderVNPay, d.Order.ID, "203.0.113.9")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)

	params := map[string]string{
		"vnp_TxnRef":            u.Query().Get("vnp_TxnRef"),
		"vnp_Amount":            u.Query().Get("vnp_Amount"),
		"vnp_ResponseCode":      "00",
		"vnp_TransactionStatus": "00",
		"vnp_BankCode":          "NCB",
		"vnp_PayDate":           time.Now().Format("20060102150405"),
	}
	codec, err := signature.New(secret)
	require.NoError(t, err)
	params["vnp_SecureHash"] = codec.Sign(params)
	return d.Order.ID, params
}

func TestConcurrentPaymentsNeverOversell(t *testing.T) {
	h := newHarness(t)
	setStock(t, chocolate, 5)

	callbacks := make([]map[string]string, 6)
	for i := range callbacks {
		_, callbacks[i] = h.checkout(t, 2)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		confirmed int
		refused   int
	)
	for _, params := range callbacks {
		wg.Add(1)
		go func(params map[string]string) {
			defer wg.Done()
			ack, err := h.services.Payments.HandleIPN(context.Background(), paydomain.ProviderVNPay, params)
			mu.Lock()
			defer mu.Unlock()
			if err == nil && ack.RspCode == application.AckConfirmed {
				confirmed++
			} else {
				refused++
			}
		}(params)
	}
	wg.Wait()

	assert.Equal(t, 2, confirmed)
	assert.Equal(t, 4, refused)

	ctx := context.Background()
	pool, err := database.Connect(ctx, env.PGURL)
	require.NoError(t, err)
	defer pool.Close()
	var stock int
	require.NoError(t, pool.QueryRow(ctx, `SELECT stock_qty FROM products WHERE id = $1`, chocolate).Scan(&stock))
	assert.Equal(t, 1, stock)
}

func TestPaidOrderIsVisibleAndRedeliveryIsIdempotent(t *testing.T) {
	h := newHarness(t)
	setStock(t, chocolate, 50)
	ctx := context.Background()

	orderID, params := h.checkout(t, 3)

	ack, err := h.services.Payments.HandleIPN(ctx, paydomain.ProviderVNPay, params)
	require.NoError(t, err)
	assert.Equal(t, application.Ack{RspCode: "00", Message: "Confirm Success"}, ack)

	ack, err = h.services.Payments.HandleIPN(ctx, paydomain.ProviderVNPay, params)
	require.NoError(t, err)
	assert.Equal(t, "00", ack.RspCode)

	d, err := h.services.Orders.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPaid, d.Order.Status)
	require.Len(t, d.Payments, 1)
	assert.Equal(t, "NCB", d.Payments[0].BankCode)
	require.NotNil(t, d.User)
	assert.Equal(t, "0901234567", d.User.Phone)

	page, err := h.services.Orders.SearchOrders(ctx, orderapp.SearchQuery{Code: d.Order.Code})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, orderID, page.Items[0].ID)

	var stock int
	pool, err := database.Connect(ctx, env.PGURL)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, pool.QueryRow(ctx, `SELECT stock_qty FROM products WHERE id = $1`, chocolate).Scan(&stock))
	assert.Equal(t, 47, stock)
}

func TestRelayPublishesSettlement(t *testing.T) {
	h := newHarness(t)
	setStock(t, chocolate, 50)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	orderID, params := h.checkout(t, 1)
	_, err := h.services.Payments.HandleIPN(ctx, paydomain.ProviderVNPay, params)
	require.NoError(t, err)

	require.NoError(t, orderkafka.EnsureTopic(ctx, env.KAddr[0], topic, 1))
	writer := orderkafka.NewWriter(h.log, env.KAddr)
	defer writer.Close()
	relay := outbox.NewRelay(h.log, h.stores.Outbox, outbox.NewDispatcher(h.log, writer, topic), "it-relay")

	// earlier tests leave their own events behind, drain everything
	for {
		n, err := relay.Tick(ctx)
		require.NoError(t, err)
		if n == 0 {
			break
		}
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     env.KAddr,
		Topic:       topic,
		StartOffset: kafka.FirstOffset,
		MaxWait:     500 * time.Millisecond,
	})
	defer reader.Close()

	seen := map[string]bool{}
	for !seen[orderdomain.EventOrderPaid] || !seen[paydomain.EventPaymentSucceeded] {
		msg, err := reader.ReadMessage(ctx)
		require.NoError(t, err)
		var eventType string
		for _, hdr := range msg.Headers {
			if hdr.Key == outbox.EventTypeHeader {
				eventType = string(hdr.Value)
			}
		}
		if eventType == orderdomain.EventOrderPaid && string(msg.Key) != orderID {
			continue
		}
		seen[eventType] = true
	}
}

func TestConcurrentDuplicateCallbacksCommitOnce(t *testing.T) {
	h := newHarness(t)
	setStock(t, chocolate, 10)

	_, params := h.checkout(t, 2)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ack, err := h.services.Payments.HandleIPN(context.Background(), paydomain.ProviderVNPay, params)
			if assert.NoError(t, err) {
				assert.Equal(t, application.AckConfirmed, ack.RspCode)
			}
		}()
	}
	wg.Wait()

	ctx := context.Background()
	pool, err := database.Connect(ctx, env.PGURL)
	require.NoError(t, err)
	defer pool.Close()
	var stock, succeeded int
	require.NoError(t, pool.QueryRow(ctx, `SELECT stock_qty FROM products WHERE id = $1`, chocolate).Scan(&stock))
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM outbox WHERE type = $1 AND convert_from(payload, 'UTF8') LIKE '%' || $2 || '%'`,
		paydomain.EventPaymentSucceeded, params["vnp_TxnRef"]).Scan(&succeeded))
	assert.Equal(t, 8, stock)
	assert.Equal(t, 1, succeeded)
}
