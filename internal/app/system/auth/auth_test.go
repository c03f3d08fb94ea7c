package auth_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/stratacomm/internal/app/system/auth"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const testSecret = "test-jwt-secret-must-be-32-chars-long"

func newTestManager(t *testing.T, issuer string) *auth.Manager {
	t.Helper()
	m, err := auth.NewManager(testSecret, issuer, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create token manager: %v", err)
	}
	return m
}

// echoUser writes the current user's ID, or "anon".
func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, ok := auth.CurrentUser(r); ok {
			w.Write([]byte(u.ID))
			return
		}
		w.Write([]byte("anon"))
	})
}

func TestNewManager_EmptySecret(t *testing.T) {
	if _, err := auth.NewManager("", "", zap.NewNop()); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestLoadUser(t *testing.T) {
	m := newTestManager(t, "stratacomm")
	good, err := m.Issue("u1", "User One", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	// Issue treats a non-positive TTL as the default, so expired tokens are built by hand.
	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "stratacomm",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte(testSecret))

	other := newTestManager(t, "someone-else")
	wrongIssuer, _ := other.Issue("u1", "", time.Hour)

	forged, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "stratacomm",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("a-completely-different-secret-value"))

	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"no token", "", "", "anon"},
		{"valid header", "Bearer " + good, "", "u1"},
		{"lowercase scheme", "bearer " + good, "", "u1"},
		{"query param", "", good, "u1"},
		{"expired", "Bearer " + expired, "", "anon"},
		{"wrong issuer", "Bearer " + wrongIssuer, "", "anon"},
		{"wrong secret", "Bearer " + forged, "", "anon"},
		{"basic scheme", "Basic dXNlcjpwYXNz", "", "anon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/api/messages"
			if tt.query != "" {
				target += "?access_token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			m.LoadUser(echoUser()).ServeHTTP(rec, req)
			if got := rec.Body.String(); got != tt.want {
				t.Errorf("user = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequireUser_NoUser_Returns401(t *testing.T) {
	handler := auth.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run without a user")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unauthorized") {
		t.Errorf("expected JSON error body, got %q", rec.Body.String())
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate header")
	}
}

func TestRequireUser_WithUser_Proceeds(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	req = auth.WithTestUser(req, &auth.User{ID: "u2", Name: "Test User"})
	rec := httptest.NewRecorder()

	auth.RequireUser(echoUser()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if rec.Body.String() != "u2" {
		t.Errorf("expected body u2, got %q", rec.Body.String())
	}
}

func TestCurrentUser_NoUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	user, ok := auth.CurrentUser(req)
	if ok {
		t.Error("expected ok to be false when no user in context")
	}
	if user != nil {
		t.Error("expected user to be nil when no user in context")
	}
}

func TestCurrentUser_EmptyIDIsAnonymous(t *testing.T) {
	req := auth.WithTestUser(httptest.NewRequest(http.MethodGet, "/", nil), &auth.User{})
	if _, ok := auth.CurrentUser(req); ok {
		t.Error("expected a user without an ID to be treated as anonymous")
	}
}
