package api

import (
	"context"
	"net/http"
	"time"

	"hotel-relay/internal/pubsub"
	"hotel-relay/internal/repository"
	"hotel-relay/internal/reviews"

	"github.com/rs/zerolog"
)

func RootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Chat relay is running"))
	}
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Broker string `json:"broker,omitempty"`
}

// Pinger is a dependency that answers a ping. The in-process broker has
// nothing to check and is left out of the report.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports whether the message store, and the broker when it
// is a remote one, answer a ping.
func HealthHandler(store repository.MessageRepo, broker pubsub.Broker, logger zerolog.Logger) http.HandlerFunc {
	remote, _ := broker.(Pinger)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		resp := healthResponse{Status: "ok", Store: "ok"}

		if err := store.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("health check: store unreachable")
			status = http.StatusServiceUnavailable
			resp.Status, resp.Store = "degraded", "unreachable"
		}
		if remote != nil {
			resp.Broker = "ok"
			if err := remote.Ping(ctx); err != nil {
				logger.Warn().Err(err).Msg("health check: broker unreachable")
				status = http.StatusServiceUnavailable
				resp.Status, resp.Broker = "degraded", "unreachable"
			}
		}
		writeJSON(w, status, resp)
	}
}

func ReviewsHandler(catalog *reviews.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, catalog.Summary())
	}
}

func NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	}
}
