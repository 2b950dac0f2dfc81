package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/suncoastpay/orchestrator/internal/fanout"
	"github.com/suncoastpay/orchestrator/internal/idempotency"
)

// NewRouter assembles the HTTP surface: the three mutating endpoints
// (initiate and confirm wrapped in the idempotency middleware, quote
// not), the two SSE fan-out endpoints, and /healthz and /readyz, which
// both answer 200 "ok" without checking any dependency. Grounded on
// anthonyalando8-pxyz's payment-service router.go, adapted from zap
// logging to the teacher's log/slog and from a single webhook/callback
// surface to this system's quote/initiate/confirm/events routes.
func NewRouter(h *Handlers, idem *idempotency.Store, streams *fanout.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", "X-User-Id"},
		ExposedHeaders:   []string{"Idempotent-Replayed"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// The mutating endpoints get a hard ceiling; the SSE endpoints
		// below are deliberately outside this group since they are
		// meant to hold the connection open indefinitely.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Post("/quote", h.Quote)
			r.With(idem.Middleware("initiate", UserID)).Post("/initiate", h.Initiate)
			r.With(idem.Middleware("confirm", UserID)).Post("/confirm", h.Confirm)
		})

		r.Get("/events/{paymentId}", streams.PaymentEvents)
		r.Get("/events/user/{userId}", streams.UserEvents)
	})

	return r
}
