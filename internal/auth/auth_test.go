package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"live-quiz-service/internal/domain"
)

func TestIssueAndParse(t *testing.T) {
	svc := NewService("secret", "live-quiz", time.Hour)
	tok, err := svc.Issue("u1", "Alice", RoleParticipant)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := svc.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "u1" || claims.Name != "Alice" || claims.IsHost() {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParseRejectsBadTokens(t *testing.T) {
	svc := NewService("secret", "live-quiz", time.Hour)
	other := NewService("other", "live-quiz", time.Hour)
	foreign, _ := other.Issue("u1", "Alice", RoleHost)

	expired := NewService("secret", "live-quiz", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _ := expired.Issue("u1", "Alice", RoleHost)

	wrongIssuer, _ := NewService("secret", "someone-else", time.Hour).Issue("u1", "Alice", RoleHost)
	badRole, _ := svc.Issue("u1", "Alice", "admin")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Role: RoleHost, RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, tok := range map[string]string{
		"garbage":      "not-a-token",
		"foreign key":  foreign,
		"expired":      old,
		"issuer":       wrongIssuer,
		"unknown role": badRole,
		"alg none":     unsigned,
	} {
		if _, err := svc.Parse(tok); !errors.Is(err, domain.ErrInvalidToken) {
			t.Fatalf("%s: expected invalid token, got %v", name, err)
		}
	}
}

func TestMiddlewareRequiresHost(t *testing.T) {
	svc := NewService("secret", "", time.Hour)
	handler := svc.Middleware(RequireHost(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, _ := ClaimsFromContext(r.Context())
		_, _ = w.Write([]byte(c.Subject))
	})))

	host, _ := svc.Issue("h1", "Host", RoleHost)
	student, _ := svc.Issue("s1", "Student", RoleParticipant)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"participant", "Bearer " + student, http.StatusForbidden},
		{"host", "Bearer " + host, http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, rec.Code)
		}
	}
}

func TestTokenFromQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?token=abc&pin=123456", nil)
	if got := TokenFromRequest(req); got != "abc" {
		t.Fatalf("expected query token, got %q", got)
	}
}
