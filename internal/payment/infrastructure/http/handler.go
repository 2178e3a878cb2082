package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	orderhttp "github.com/dmehra2102/convenience-store/internal/order/infrastructure/http"
	"github.com/dmehra2102/convenience-store/internal/payment/application"
	"github.com/dmehra2102/convenience-store/internal/payment/domain"
	"github.com/dmehra2102/convenience-store/pkg/apperr"
	"github.com/dmehra2102/convenience-store/pkg/httpx"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("payment-http"),
	}
}

// Register mounts the checkout and the callback routes.
func (h *Handler) Register(r chi.Router) {
	h.RegisterCheckout(r)
	h.RegisterCallbacks(r)
}

func (h *Handler) RegisterCheckout(r chi.Router) {
	r.Post("/orders/{id}/payments/vnpay", h.initiate(domain.ProviderVNPay))
}

// RegisterCallbacks mounts the routes the provider calls back on.
func (h *Handler) RegisterCallbacks(r chi.Router) {
	r.Get("/payments/vnpay/return", h.paymentReturn(domain.ProviderVNPay))
	r.Get("/payments/vnpay/ipn", h.ipn(domain.ProviderVNPay))
	r.Post("/payments/vnpay/ipn", h.ipn(domain.ProviderVNPay))
}

func (h *Handler) initiate(provider domain.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := httpx.Span(r, h.tracer, "InitiatePayment")
		defer span.End()

		orderID := chi.URLParam(r, "id")
		span.SetAttributes(attribute.String("order.id", orderID), attribute.String("payment.provider", string(provider)))

		url, err := h.service.Initiate(ctx, provider, orderID, httpx.ClientIP(r))
		if err != nil {
			span.RecordError(err)
			httpx.Error(w, r, h.log, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"paymentUrl": url})
	}
}

func (h *Handler) paymentReturn(provider domain.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := httpx.Span(r, h.tracer, "PaymentReturn")
		defer span.End()

		d, err := h.service.HandleReturn(ctx, provider, params(r))
		if err != nil {
			span.RecordError(err)
			httpx.Error(w, r, h.log, err)
			return
		}
		httpx.JSON(w, http.StatusOK, orderhttp.NewOrderView(d))
	}
}

func (h *Handler) ipn(provider domain.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := httpx.Span(r, h.tracer, "PaymentIPN")
		defer span.End()

		if err := r.ParseForm(); err != nil {
			httpx.Error(w, r, h.log, apperr.Wrap(apperr.KindValidation, err, "Malformed callback"))
			return
		}
		ack, err := h.service.HandleIPN(ctx, provider, params(r))
		if err != nil {
			span.RecordError(err)
			httpx.Error(w, r, h.log, err)
			return
		}
		span.SetAttributes(attribute.String("payment.ack", ack.RspCode))
		httpx.JSON(w, http.StatusOK, ack)
	}
}

// params flattens the callback fields, keeping the first value of each.
func params(r *http.Request) map[string]string {
	values := r.URL.Query()
	if r.Form != nil {
		values = r.Form
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
