package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"hotel-relay/internal/auth"
	"hotel-relay/internal/domain"
	"hotel-relay/internal/metrics"
	"hotel-relay/internal/middleware"
	"hotel-relay/internal/types"

	"github.com/rs/zerolog"
)

// SessionOptions controls the admin session cookie.
type SessionOptions struct {
	TTL      time.Duration
	RelayTTL time.Duration
	Secure   bool
}

func (o SessionOptions) cookie(value string, expires time.Time, maxAge int) *http.Cookie {
	sameSite := http.SameSiteLaxMode
	if o.Secure {
		sameSite = http.SameSiteNoneMode
	}
	return &http.Cookie{
		Name:     auth.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: sameSite,
	}
}

func LoginHandler(dir *auth.Directory, issuer *auth.Issuer, opts SessionOptions, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload types.LoginRequest
		ip := middleware.ClientIP(r)

		if err := decodeAndValidate(w, r, &payload); err != nil {
			metrics.AdminLogins.WithLabelValues("invalid").Inc()
			writeValidationError(w, err)
			return
		}

		user, err := dir.Authenticate(strings.TrimSpace(payload.Username), payload.Password)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidCredentials) {
				metrics.AdminLogins.WithLabelValues("rejected").Inc()
				logger.Warn().Str("ip", ip).Msg("admin login rejected")
				writeError(w, http.StatusUnauthorized, "invalid credentials")
				return
			}
			logger.Error().Err(err).Msg("admin login failed")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		token, expiresAt, err := issuer.GenerateToken(user, opts.TTL)
		if err != nil {
			logger.Error().Err(err).Str("username", user.Username).Msg("failed to sign session token")
			writeError(w, http.StatusInternalServerError, "failed to create session")
			return
		}

		http.SetCookie(w, opts.cookie(token, expiresAt, int(opts.TTL.Seconds())))
		metrics.AdminLogins.WithLabelValues("success").Inc()
		logger.Info().Str("username", user.Username).Str("ip", ip).Msg("admin logged in")

		writeJSON(w, http.StatusOK, types.AuthResponse{
			Authenticated: true,
			User:          &types.StaffDTO{Username: user.Username, DisplayName: user.DisplayName, Role: user.Role},
		})
	}
}

// MeHandler runs behind RequireStaff.
func MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.ClaimsFromContext(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, types.AuthResponse{Authenticated: false})
			return
		}
		writeJSON(w, http.StatusOK, types.AuthResponse{
			Authenticated: true,
			User:          &types.StaffDTO{Username: claims.Username, DisplayName: claims.DisplayName, Role: claims.Role},
		})
	}
}

func LogoutHandler(opts SessionOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, opts.cookie("", time.Unix(0, 0), -1))
		writeJSON(w, http.StatusOK, types.StatusResponse{Success: true, Message: "logged out"})
	}
}

// RelayTokenHandler issues a short-lived token that a staff console passes
// as ?token= when its socket cannot carry the session cookie.
func RelayTokenHandler(dir *auth.Directory, issuer *auth.Issuer, opts SessionOptions, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.ClaimsFromContext(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, types.AuthResponse{Authenticated: false})
			return
		}
		user, ok := dir.Lookup(claims.Username)
		if !ok {
			logger.Warn().Str("username", claims.Username).Msg("relay token requested for removed staff user")
			writeJSON(w, http.StatusUnauthorized, types.AuthResponse{Authenticated: false})
			return
		}

		token, expiresAt, err := issuer.GenerateToken(user, opts.RelayTTL)
		if err != nil {
			logger.Error().Err(err).Str("username", user.Username).Msg("failed to sign relay token")
			writeError(w, http.StatusInternalServerError, "failed to create relay token")
			return
		}
		writeJSON(w, http.StatusOK, types.RelayTokenResponse{Token: token, ExpiresAt: expiresAt})
	}
}
