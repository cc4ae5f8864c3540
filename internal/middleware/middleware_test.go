package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"

	"dashboards/internal/domain"
	"dashboards/internal/domain/models"
	"dashboards/internal/httputil"
)

type stubVerifier struct{}

func (stubVerifier) VerifyToken(token string) (*models.Claims, error) {
	if token != "good" {
		return nil, domain.ErrUnauthorized
	}
	return &models.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"}}, nil
}

func (stubVerifier) Close() error { return nil }

// echoUser writes the user id from the request context
var echoUser = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(httputil.Actor(r)))
})

func TestAuthMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := AuthMiddleware(stubVerifier{}, logger)(echoUser)

	tests := []struct {
		name       string
		method     string
		path       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid token", http.MethodGet, "/api/dashboards", "Bearer good", http.StatusOK, "alice"},
		{"missing header", http.MethodGet, "/api/dashboards", "", http.StatusUnauthorized, ""},
		{"wrong scheme", http.MethodGet, "/api/dashboards", "Basic good", http.StatusUnauthorized, ""},
		{"bad token", http.MethodGet, "/api/dashboards", "Bearer bad", http.StatusUnauthorized, ""},
		{"health is public", http.MethodGet, "/health", "", http.StatusOK, ""},
		{"published dashboards are public", http.MethodGet, "/public/dashboards/sales", "", http.StatusOK, ""},
		{"metrics is public", http.MethodGet, "/metrics", "", http.StatusOK, ""},
		{"health lookalike needs a token", http.MethodGet, "/healthz", "", http.StatusUnauthorized, ""},
		{"metrics lookalike needs a token", http.MethodGet, "/metrics-foo", "", http.StatusUnauthorized, ""},
		{"public without slash needs a token", http.MethodGet, "/publicity", "", http.StatusUnauthorized, ""},
		{"preflight", http.MethodOptions, "/api/dashboards", "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			} else {
				assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	h := DevAuthMiddleware("dev-user")(echoUser)

	req := httptest.NewRequest(http.MethodGet, "/api/dashboards", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "dev-user", rec.Body.String())

	req.Header.Set("X-User-ID", "bob")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "bob", rec.Body.String())
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dashboards", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}
