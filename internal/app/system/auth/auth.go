// internal/app/system/auth/auth.go
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

/*─────────────────────────────────────────────────────────────────────────────*
| Token constants                                                            |
*─────────────────────────────────────────────────────────────────────────────*/

// MinSecretLength is the shortest HMAC secret ValidateConfig accepts.
const MinSecretLength = 32

// DefaultTokenTTL is used by Issue when no TTL is given.
const DefaultTokenTTL = 12 * time.Hour

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

/*─────────────────────────────────────────────────────────────────────────────*
| Current-User helper                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

// User is the authenticated caller injected into r.Context().
// ID is the token subject; Name is optional display data.
type User struct {
	ID   string
	Name string
}

// Claims are the JWT claims the API understands.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the user & “found?” flag.
func CurrentUser(r *http.Request) (*User, bool) {
	u, ok := r.Context().Value(currentUserKey).(*User)
	return u, ok && u != nil && u.ID != ""
}

// WithTestUser injects a user into the request context.
// Handler tests use it in place of a signed token.
func WithTestUser(r *http.Request, u *User) *http.Request {
	return withUser(r, u)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Manager                                                                    |
*─────────────────────────────────────────────────────────────────────────────*/

// Manager verifies (and, for tooling and tests, issues) HS256 bearer tokens.
type Manager struct {
	secret []byte
	issuer string
	log    *zap.Logger
}

// NewManager builds a token manager. An empty issuer disables the iss check.
func NewManager(secret, issuer string, logger *zap.Logger) (*Manager, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is empty; provide ≥%d random chars", MinSecretLength)
	}
	if len(secret) < MinSecretLength {
		logger.Warn("jwt secret is short; 32+ chars recommended",
			zap.Int("length", len(secret)))
	}
	return &Manager{secret: []byte(secret), issuer: issuer, log: logger}, nil
}

// Issue signs a token whose subject is userID.
func (m *Manager) Issue(userID, name string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Parse validates a signed token and returns the user it names.
func (m *Manager) Parse(token string) (*User, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &User{ID: claims.Subject, Name: claims.Name}, nil
}

// LoadUser injects the bearer token's user into context when the request
// carries a valid one. Requests without a token pass through untouched.
// The access_token query parameter is accepted for websocket upgrades, which
// cannot set headers from a browser.
func (m *Manager) LoadUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		u, err := m.Parse(token)
		if err != nil {
			m.log.Debug("rejected bearer token",
				zap.String("path", r.URL.Path),
				zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, withUser(r, u))
	})
}

// RequireUser ensures there is a user in context (set by LoadUser).
// If not, the caller gets a 401 JSON error.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", `Bearer realm="stratacomm"`)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	})
}

// helpers

func withUser(r *http.Request, u *User) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

func bearerToken(r *http.Request) (string, error) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", ErrInvalidToken
		}
		return strings.TrimSpace(token), nil
	}
	if t := r.URL.Query().Get("access_token"); t != "" {
		return t, nil
	}
	return "", ErrMissingToken
}
