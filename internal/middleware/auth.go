package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/hemantsingh443/allchat-sub000/internal/auth"
	"github.com/hemantsingh443/allchat-sub000/internal/httputil"
)

// publicPrefixes are served without a bearer token.
var publicPrefixes = []string{
	"/api/guest/",
	"/api/share/",
}

var publicPaths = map[string]bool{
	"/health":     true,
	"/api/models": true,
}

// IsPublic reports whether r may skip authentication.
func IsPublic(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	if publicPaths[r.URL.Path] {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// Auth validates the bearer token and stores the user id in the request
// context. Public routes pass through untouched.
func Auth(verifier auth.JWTVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPublic(r) {
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
				logger.Debug("rejected token", "path", r.URL.Path, "error", err)
				httputil.RespondError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, httputil.WithUserID(r, claims.GetUserID()))
		})
	}
}
