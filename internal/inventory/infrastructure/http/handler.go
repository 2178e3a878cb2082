package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/convenience-store/internal/inventory/application"
	"github.com/dmehra2102/convenience-store/pkg/httpx"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{log: log, service: service, tracer: otel.Tracer("inventory-http")}
}

type alertView struct {
	ProductID string    `json:"productId"`
	Code      string    `json:"code"`
	Since     time.Time `json:"since"`
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/inventory/restock-alerts", h.openAlerts)
}

func (h *Handler) openAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, span := httpx.Span(r, h.tracer, "OpenRestockAlerts")
	defer span.End()

	alerts, err := h.service.OpenAlerts(ctx)
	if err != nil {
		httpx.Error(w, r, h.log, err)
		return
	}
	out := make([]alertView, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, alertView(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}
