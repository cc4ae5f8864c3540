package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"dashboards/internal/auth"
	"dashboards/internal/httputil"
)

// publicPaths and publicPrefixes are served without a bearer token
var (
	publicPaths    = map[string]bool{"/health": true, "/metrics": true}
	publicPrefixes = []string{"/public/"}
)

func isPublic(path string) bool {
	if publicPaths[path] {
		return true
	}
	for _, p := range publicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// AuthMiddleware verifies the bearer token on every non-public route and puts
// the token subject into the request context as the acting user.
func AuthMiddleware(verifier auth.JWTVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				httputil.RespondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, err := verifier.VerifyToken(strings.TrimSpace(token))
			if err != nil {
				logger.Debug("authentication failed", "path", r.URL.Path, "error", err)
				httputil.RespondError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, httputil.WithActor(r, claims.GetUserID()))
		})
	}
}

// DevAuthMiddleware trusts the X-User-ID header and falls back to
// defaultUserID. Only for local development with AUTH_DISABLED=true.
func DevAuthMiddleware(defaultUserID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get("X-User-ID")
			if userID == "" {
				userID = defaultUserID
			}
			next.ServeHTTP(w, httputil.WithActor(r, userID))
		})
	}
}
