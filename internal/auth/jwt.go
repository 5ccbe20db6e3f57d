package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"hotel-relay/internal/domain"
	"hotel-relay/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuerName = "hotel-relay"

	// CookieName holds the admin session token.
	CookieName = "access_token"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNotStaff     = errors.New("token lacks staff role")
)

type CustomClaims struct {
	Username    string `json:"username"`
	DisplayName string `json:"name"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

func (c *CustomClaims) IsStaff() bool {
	return c != nil && c.Role == models.RoleStaff
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	key []byte
	now func() time.Time
}

func NewIssuer(key string) *Issuer {
	return &Issuer{key: []byte(key), now: time.Now}
}

func (i *Issuer) GenerateToken(user models.StaffUser, ttl time.Duration) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(ttl)

	claims := &CustomClaims{
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (i *Issuer) ValidateToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.key, nil
	},
		jwt.WithIssuer(issuerName),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenFromRequest looks for a token in the Authorization header, the
// session cookie, then the "token" query parameter. Browsers cannot set
// headers on WebSocket upgrades, hence the query fallback.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

// StaffFromRequest verifies the request credential and requires the staff
// role. A request carrying no token at all gets domain.ErrUnauthenticated.
func (i *Issuer) StaffFromRequest(r *http.Request) (*CustomClaims, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return nil, domain.ErrUnauthenticated
	}
	claims, err := i.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	if !claims.IsStaff() {
		return nil, fmt.Errorf("%w: %s has role %q", ErrNotStaff, claims.Username, claims.Role)
	}
	return claims, nil
}
