package httpapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestGenerateToken(t *testing.T) {
	token, expiresAt, err := GenerateToken("test-secret-key", "booth-1", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if token == "" {
		t.Error("token should not be empty")
	}
	if time.Until(expiresAt) < 50*time.Minute {
		t.Error("token should expire in about 1 hour")
	}

	parsed, err := jwt.ParseWithClaims(token, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret-key"), nil
	})
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}
	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok {
		t.Fatal("failed to get claims")
	}
	if claims.Operator != "booth-1" || claims.Subject != "booth-1" {
		t.Errorf("claims = %+v, want operator booth-1", claims)
	}
	if parsed.Method != jwt.SigningMethodHS256 {
		t.Errorf("method = %v, want HS256", parsed.Method.Alg())
	}
}

func TestGenerateTokenRequiresSecret(t *testing.T) {
	if _, _, err := GenerateToken("", "booth-1", time.Hour); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestWithAuthMiddleware(t *testing.T) {
	r := &Router{
		cfg: RouterConfig{
			JWTSecret: "test-secret-key",
			JWTExpiry: time.Hour,
		},
		logger: quietLogger(),
	}

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		op := getOperator(req.Context())
		if op == "" {
			t.Error("operator should be in context")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(op))
	})
	protected := r.withAuth(testHandler)

	valid, _, err := GenerateToken("test-secret-key", "booth-1", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	wrongKey, _, _ := GenerateToken("other-secret", "booth-1", time.Hour)
	expired, _, _ := GenerateToken("test-secret-key", "booth-1", -time.Minute)

	noExpiry := jwt.NewWithClaims(jwt.SigningMethodHS256, JWTClaims{Operator: "booth-1"})
	noExpiryString, _ := noExpiry.SignedString([]byte("test-secret-key"))

	noOperator := jwt.NewWithClaims(jwt.SigningMethodHS256, JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	noOperatorString, _ := noOperator.SignedString([]byte("test-secret-key"))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing authorization header", "", http.StatusUnauthorized},
		{"invalid authorization format", "InvalidFormat", http.StatusUnauthorized},
		{"invalid token", "Bearer invalid-token", http.StatusUnauthorized},
		{"wrong signing key", "Bearer " + wrongKey, http.StatusUnauthorized},
		{"expired token", "Bearer " + expired, http.StatusUnauthorized},
		{"token without expiry", "Bearer " + noExpiryString, http.StatusUnauthorized},
		{"token without operator", "Bearer " + noOperatorString, http.StatusUnauthorized},
		{"valid token", "Bearer " + valid, http.StatusOK},
		{"lowercase scheme", "bearer " + valid, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			protected(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusOK && rec.Body.String() != "booth-1" {
				t.Errorf("body = %q, want operator name", rec.Body.String())
			}
		})
	}
}

func TestWithAuthRejectsEmptySecret(t *testing.T) {
	r := &Router{cfg: RouterConfig{JWTSecret: ""}, logger: quietLogger()}

	called := false
	protected := r.withAuth(func(w http.ResponseWriter, req *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Operator:         "intruder",
	})
	forgedString, err := forged.SignedString([]byte{})
	if err != nil {
		t.Fatalf("sign with empty key: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Authorization", "Bearer "+forgedString)
	rec := httptest.NewRecorder()
	protected(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if called {
		t.Error("handler must not run when no secret is configured")
	}
}

func TestGetOperator(t *testing.T) {
	if op := getOperator(context.Background()); op != "" {
		t.Errorf("expected empty operator, got %q", op)
	}
	ctx := context.WithValue(context.Background(), operatorContextKey, "booth-2")
	if op := getOperator(ctx); op != "booth-2" {
		t.Errorf("operator = %q, want booth-2", op)
	}
}
