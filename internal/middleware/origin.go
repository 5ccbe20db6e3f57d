package middleware

import (
	"fmt"
	"net/http"
	"regexp"
	"slices"

	"github.com/go-chi/cors"
)

// OriginPolicy is the allow-list shared by CORS and the WebSocket upgrade:
// exact origins plus one pattern for the hosting platform's preview domains.
type OriginPolicy struct {
	exact   []string
	pattern *regexp.Regexp
}

func NewOriginPolicy(exact []string, pattern string) (*OriginPolicy, error) {
	p := &OriginPolicy{exact: exact}
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("origin pattern: %w", err)
		}
		p.pattern = re
	}
	return p, nil
}

func (p *OriginPolicy) Allowed(origin string) bool {
	if origin == "" {
		return false
	}
	if slices.Contains(p.exact, origin) {
		return true
	}
	return p.pattern != nil && p.pattern.MatchString(origin)
}

// CheckOrigin fits websocket.Upgrader. Requests without an Origin header
// come from non-browser clients and are accepted.
func (p *OriginPolicy) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || p.Allowed(origin)
}

func (p *OriginPolicy) CORS() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return p.Allowed(origin)
		},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
