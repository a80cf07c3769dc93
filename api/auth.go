package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/warp/credit-engine/credit"
)

// Claims are the bearer token claims. The subject is the caller id.
type Claims struct {
	jwt.RegisteredClaims
	Roles []credit.Role `json:"roles"`
}

// Authenticator issues and checks HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	issuer string
}

func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// IssueToken signs a token for caller valid for ttl.
func (a *Authenticator) IssueToken(caller credit.Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.ID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: caller.Roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(a.secret)
}

// ParseToken verifies token and returns the caller it names.
func (a *Authenticator) ParseToken(token string) (credit.Caller, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	tok, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return credit.Caller{}, err
	}
	c, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return credit.Caller{}, errors.New("invalid token")
	}
	if c.Subject == "" {
		return credit.Caller{}, errors.New("token has no subject")
	}
	return credit.Caller{ID: c.Subject, Roles: c.Roles}, nil
}

// Middleware resolves the bearer token into a credit.Caller stored in the
// request context. Requests without a valid token get 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearer(r)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "Missing or malformed Authorization header", nil)
			return
		}
		caller, err := a.ParseToken(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(credit.WithCaller(r.Context(), caller)))
	})
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// BearerHeader formats token for the Authorization header.
func BearerHeader(token string) string {
	return fmt.Sprintf("Bearer %s", token)
}
