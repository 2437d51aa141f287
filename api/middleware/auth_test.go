package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/rafflepot-backend/pkg/auth"
	"github.com/angelmondragon/rafflepot-backend/pkg/config"
	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "rafflepot", ExpirationMinutes: 60}

func testTokens(t *testing.T, cfg config.JWTConfig) *auth.Tokens {
	t.Helper()
	tokens, err := auth.NewTokens(cfg)
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}
	return tokens
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, userID uuid.UUID, role enums.UserRole) string {
	t.Helper()
	token, err := testTokens(t, cfg).Issue(auth.Principal{UserID: userID, Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testTokens(t, testJWT), nil)(okHandler())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testTokens(t, testJWT), nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsForeignIssuer(t *testing.T) {
	foreign := testJWT
	foreign.Issuer = "someone-else"
	token := mintTestToken(t, foreign, uuid.New(), enums.UserRoleUser)
	handler := Auth(testTokens(t, testJWT), nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthSeedsPrincipal(t *testing.T) {
	userID := uuid.New()
	token := mintTestToken(t, testJWT, userID, enums.UserRoleAdmin)

	var captured auth.Principal
	var found bool
	handler := Auth(testTokens(t, testJWT), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, found = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !found || captured.UserID != userID || captured.Role != enums.UserRoleAdmin {
		t.Fatalf("unexpected principal %+v (found=%v)", captured, found)
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(nil, enums.UserRoleAdmin)(okHandler())

	cases := []struct {
		name      string
		principal *auth.Principal
		want      int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"user", &auth.Principal{UserID: uuid.New(), Role: enums.UserRoleUser}, http.StatusForbidden},
		{"admin", &auth.Principal{UserID: uuid.New(), Role: enums.UserRoleAdmin}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/raffles/x/draw", nil)
			if tc.principal != nil {
				req = req.WithContext(WithPrincipal(req.Context(), *tc.principal))
			}
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)
			if resp.Code != tc.want {
				t.Fatalf("expected %d got %d", tc.want, resp.Code)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]bool{
		"Bearer abc":   true,
		"bearer  abc ": true,
		"abc":          false,
		"Basic abc":    false,
		"Bearer ":      false,
		"":             false,
	}
	for header, want := range cases {
		if _, ok := bearerToken(header); ok != want {
			t.Fatalf("bearerToken(%q) ok=%v, want %v", header, ok, want)
		}
	}
}

func TestAuthReportsExpiredReason(t *testing.T) {
	handler := Auth(expiredVerifier{}, nil)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer stale")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "token_expired") {
		t.Fatalf("expected token_expired reason in %s", resp.Body.String())
	}
}

type expiredVerifier struct{}

func (expiredVerifier) Verify(string) (auth.Principal, error) {
	return auth.Principal{}, fmt.Errorf("%w: exp in the past", auth.ErrTokenExpired)
}
