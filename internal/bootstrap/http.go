package bootstrap

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmehra2102/convenience-store/pkg/httpx"
	"github.com/dmehra2102/convenience-store/pkg/shutdown"
)

// NewRouter returns the base router every binary serves: request ids, panic
// recovery and a health probe. mount registers the /api routes.
func NewRouter(mount func(r chi.Router)) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", mount)
	return r
}

// Serve runs the HTTP server until ctx is done, then drains in-flight requests.
func Serve(ctx context.Context, log *slog.Logger, addr string, h http.Handler, cancel context.CancelFunc) {
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("http listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	if err := shutdown.Drain(10*time.Second, srv.Shutdown); err != nil {
		log.Error("http shutdown", "err", err)
	}
}
