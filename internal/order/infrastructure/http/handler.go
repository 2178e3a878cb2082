package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/convenience-store/internal/order/application"
	"github.com/dmehra2102/convenience-store/pkg/apperr"
	"github.com/dmehra2102/convenience-store/pkg/httpx"
	"github.com/dmehra2102/convenience-store/pkg/idempotency"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	idem    *idempotency.Store
	tracer  trace.Tracer
}

// NewHandler wires the order endpoints. idem may be nil, in which case
// Idempotency-Key headers are ignored.
func NewHandler(log *slog.Logger, service *application.Service, idem *idempotency.Store) *Handler {
	return &Handler{
		log:     log,
		service: service,
		idem:    idem,
		tracer:  otel.Tracer("order-http"),
	}
}

type createOrderReq struct {
	CustomerName    string        `json:"customerName"`
	CustomerPhone   string        `json:"customerPhone"`
	CustomerAddress string        `json:"customerAddress"`
	Note            string        `json:"note"`
	Items           []itemRequest `json:"items"`
}

type itemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) Register(r chi.Router) {
	create := http.Handler(http.HandlerFunc(h.createOrder))
	if h.idem != nil {
		create = h.idem.Middleware(create)
	}
	r.Method(http.MethodPost, "/orders", create)
	r.Get("/orders", h.searchOrders)
	r.Get("/orders/{id}", h.getOrder)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := httpx.Span(r, h.tracer, "CreateOrder")
	defer span.End()

	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.Error(w, r, h.log, apperr.Wrap(apperr.KindValidation, err, "Malformed request body"))
		return
	}

	in := application.CreateOrderInput{
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		CustomerAddress: req.CustomerAddress,
		Note:            req.Note,
		Items:           make([]application.ItemInput, 0, len(req.Items)),
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, application.ItemInput{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	d, err := h.service.CreateOrder(ctx, in)
	if err != nil {
		span.RecordError(err)
		httpx.Error(w, r, h.log, err)
		return
	}
	span.SetAttributes(attribute.String("order.id", d.Order.ID))
	httpx.JSON(w, http.StatusCreated, NewOrderView(d))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := httpx.Span(r, h.tracer, "GetOrder")
	defer span.End()

	d, err := h.service.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewOrderView(d))
}

func (h *Handler) searchOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := httpx.Span(r, h.tracer, "SearchOrders")
	defer span.End()

	q, err := searchQuery(r)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	page, err := h.service.SearchOrders(ctx, q)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newPageView(page))
}

func searchQuery(r *http.Request) (application.SearchQuery, error) {
	v := r.URL.Query()
	q := application.SearchQuery{Code: v.Get("code")}

	var err error
	if q.From, err = application.ParseBound(v.Get("from"), false); err != nil {
		return q, err
	}
	if q.To, err = application.ParseBound(v.Get("to"), true); err != nil {
		return q, err
	}
	if q.Page, err = intParam(v.Get("page"), 0); err != nil {
		return q, err
	}
	if q.Size, err = intParam(v.Get("size"), application.DefaultPageSize); err != nil {
		return q, err
	}
	return q, nil
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validationf("Invalid number: %s", raw)
	}
	return n, nil
}
