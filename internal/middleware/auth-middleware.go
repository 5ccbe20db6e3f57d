package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"hotel-relay/internal/auth"
	"hotel-relay/internal/domain"
	"hotel-relay/internal/types"

	"github.com/rs/zerolog"
)

type contextKey string

const ClaimsKey contextKey = "claims"

// RequireStaff rejects requests without a valid staff token and stores the
// verified claims in the request context.
func RequireStaff(issuer *auth.Issuer, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := issuer.StaffFromRequest(r)
			switch {
			case errors.Is(err, domain.ErrUnauthenticated):
				unauthenticated(w)
				return
			case errors.Is(err, auth.ErrNotStaff):
				logger.Warn().Err(err).Msg("token without staff role")
				unauthenticated(w)
				return
			case err != nil:
				logger.Info().Err(err).Str("ip", ClientIP(r)).Msg("rejected session token")
				unauthenticated(w)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*auth.CustomClaims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*auth.CustomClaims)
	return claims, ok
}

func unauthenticated(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(types.AuthResponse{Authenticated: false})
}
