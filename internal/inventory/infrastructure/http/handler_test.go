package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/dmehra2102/convenience-store/internal/inventory/application"
	"github.com/dmehra2102/convenience-store/internal/inventory/domain"
)

type stubAlerts struct {
	open []domain.RestockAlert
	err  error
}

func (s stubAlerts) Raise(context.Context, domain.RestockAlert) (bool, error) { return true, nil }

func (s stubAlerts) Open(context.Context) ([]domain.RestockAlert, error) { return s.open, s.err }

func serve(alerts stubAlerts) *httptest.ResponseRecorder {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	NewHandler(log, application.NewService(log, alerts)).Register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inventory/restock-alerts", nil))
	return rec
}

func TestOpenAlerts(t *testing.T) {
	since := time.Date(2024, 1, 1, 5, 15, 0, 0, time.UTC)

	rec := serve(stubAlerts{open: []domain.RestockAlert{{ProductID: "p1", Code: "P0001", Since: since}}})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"productId":"p1","code":"P0001","since":"2024-01-01T05:15:00Z"}]`, rec.Body.String())
}

func TestOpenAlertsEmpty(t *testing.T) {
	rec := serve(stubAlerts{})

	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestOpenAlertsFailure(t *testing.T) {
	rec := serve(stubAlerts{err: errors.New("redis down")})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}
