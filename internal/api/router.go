package api

import (
	"net/http"
	"time"

	"hotel-relay/internal/auth"
	"hotel-relay/internal/chat"
	"hotel-relay/internal/email"
	"hotel-relay/internal/middleware"
	"hotel-relay/internal/pubsub"
	"hotel-relay/internal/repository"
	"hotel-relay/internal/reviews"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Deps struct {
	Relay     *chat.Relay
	Store     repository.MessageRepo
	Broker    pubsub.Broker
	Issuer    *auth.Issuer
	Directory *auth.Directory
	Email     email.Sender
	Reviews   *reviews.Catalog
	Origins   *middleware.OriginPolicy
	Proxies   *middleware.ProxyPolicy
	Session   SessionOptions

	BookingRecipient string
	Logger           zerolog.Logger
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(d.Proxies.RealIP)
	r.Use(middleware.Logger(d.Logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(d.Origins.CORS())

	r.NotFound(NotFoundHandler())
	r.Get("/", RootHandler())
	r.Get("/healthz", HealthHandler(d.Store, d.Broker, d.Logger))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/relay", d.Relay.Routes)

	loginLimiter := middleware.NewRateLimiter(5, 12*time.Second)
	bookingLimiter := middleware.NewRateLimiter(3, 20*time.Second)

	r.Route("/api", func(r chi.Router) {
		r.With(bookingLimiter.Middleware).Post("/booking", BookingHandler(d.Email, d.BookingRecipient, d.Logger))
		r.Get("/reviews", ReviewsHandler(d.Reviews))

		r.Route("/admin", func(r chi.Router) {
			r.With(loginLimiter.Middleware).Post("/login", LoginHandler(d.Directory, d.Issuer, d.Session, d.Logger))
			r.Post("/logout", LogoutHandler(d.Session))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireStaff(d.Issuer, d.Logger))
				r.Get("/me", MeHandler())
				r.Get("/relay-token", RelayTokenHandler(d.Directory, d.Issuer, d.Session, d.Logger))
			})
		})
	})

	return r
}
