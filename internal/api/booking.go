package api

import (
	"context"
	"net/http"
	"time"

	"hotel-relay/internal/email"
	"hotel-relay/internal/metrics"
	"hotel-relay/internal/types"

	"github.com/rs/zerolog"
)

func BookingHandler(sender email.Sender, recipient string, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload types.BookingRequest
		if err := decodeAndValidate(w, r, &payload); err != nil {
			metrics.BookingRequests.WithLabelValues("invalid").Inc()
			writeValidationError(w, err)
			return
		}

		checkIn, _ := time.Parse(time.DateOnly, payload.CheckIn)
		checkOut, _ := time.Parse(time.DateOnly, payload.CheckOut)
		if !checkOut.After(checkIn) {
			metrics.BookingRequests.WithLabelValues("invalid").Inc()
			writeError(w, http.StatusBadRequest, "checkOut must be after checkIn")
			return
		}

		subject, body, err := email.RenderBooking(payload)
		if err != nil {
			metrics.BookingRequests.WithLabelValues("failed").Inc()
			logger.Error().Err(err).Msg("failed to render booking email")
			writeError(w, http.StatusInternalServerError, "failed to send booking request")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()

		if err := sender.Send(ctx, recipient, subject, body); err != nil {
			metrics.BookingRequests.WithLabelValues("failed").Inc()
			logger.Error().Err(err).Str("guest_email", payload.Email).Msg("failed to send booking email")
			writeError(w, http.StatusBadGateway, "failed to send booking request")
			return
		}

		metrics.BookingRequests.WithLabelValues("sent").Inc()
		logger.Info().Str("check_in", payload.CheckIn).Str("check_out", payload.CheckOut).Int("guests", payload.Guests).Msg("booking request forwarded")
		writeJSON(w, http.StatusOK, types.StatusResponse{Success: true, Message: "Booking request sent successfully"})
	}
}
