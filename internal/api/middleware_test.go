package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-signing-secret"

func signTestToken(t *testing.T, secret string, subject string, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("could not sign test token: %v", err)
	}
	return token
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantID     int64
	}{
		{
			name:       "valid_token",
			header:     "Bearer " + signTestToken(t, testSecret, "42", time.Now().Add(time.Hour)),
			wantStatus: http.StatusOK,
			wantID:     42,
		},
		{
			name:       "missing_header",
			header:     "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong_scheme",
			header:     "Basic abc123",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "expired_token",
			header:     "Bearer " + signTestToken(t, testSecret, "42", time.Now().Add(-time.Hour)),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong_secret",
			header:     "Bearer " + signTestToken(t, "other-secret", "42", time.Now().Add(time.Hour)),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "non_numeric_subject",
			header:     "Bearer " + signTestToken(t, testSecret, "not-an-id", time.Now().Add(time.Hour)),
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotID int64
			var sawContext bool
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotID, sawContext = GetAccountID(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/balance", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			AuthMiddleware(testSecret)(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if !sawContext {
					t.Fatal("expected account id in request context")
				}
				if gotID != tt.wantID {
					t.Fatalf("account id = %d, want %d", gotID, tt.wantID)
				}
			}
		})
	}
}
