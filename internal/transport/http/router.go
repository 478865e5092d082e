package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/offerhub-api/internal/application/notification"
	"github.com/offerhub-api/internal/application/offer"
	"github.com/offerhub-api/internal/application/pushtoken"
	"github.com/offerhub-api/internal/config"
	"github.com/offerhub-api/internal/transport/http/handler"
	appmiddleware "github.com/offerhub-api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 5 requests/second, burst of 10 — applied to offer mutations.
	mutationRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	generator := notification.NewGenerator(deps.NotificationRepo, deps.QueueRepo, notification.GeneratorConfig{
		DedupWindow:         cfg.DedupWindow,
		NotifyLosingBidders: cfg.NotifyLosingBidders,
	}, log)
	offerSvc := offer.NewService(deps.OfferRepo, deps.ListingRepo, generator, log)
	notifSvc := notification.NewService(deps.NotificationRepo)
	tokenSvc := pushtoken.NewService(deps.PushTokenRepo)

	healthH := handler.NewHealthHandler()
	offerH := handler.NewOfferHandler(offerSvc)
	notifH := handler.NewNotificationHandler(notifSvc)
	tokenH := handler.NewPushTokenHandler(tokenSvc)
	eventH := handler.NewEventHandler(generator)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.With(mutationRL.Limit).Post("/offers", offerH.Submit)
			r.Get("/offers/{id}", offerH.Get)
			r.With(mutationRL.Limit).Post("/offers/{id}/accept", offerH.Accept)
			r.With(mutationRL.Limit).Post("/offers/{id}/reject", offerH.Reject)
			r.With(mutationRL.Limit).Post("/offers/{id}/counter", offerH.Counter)
			r.With(mutationRL.Limit).Post("/offers/{id}/withdraw", offerH.Withdraw)
			r.Get("/listings/{id}/offers", offerH.ListForListing)

			r.Post("/push-tokens", tokenH.Upsert)
			r.Delete("/push-tokens/{token}", tokenH.Deactivate)

			r.Get("/notifications", notifH.List)
			r.Put("/notifications/read", notifH.MarkRead)

			r.Post("/events/messages", eventH.NewMessage)
		})
	})

	return r
}
