package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/akshaychugh/betterreads/internal/logging"
)

type contextKey string

const userIDKey contextKey = "user_id"

// TokenVerifier validates a session token and returns the user it was
// issued for.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}

// RequireAuth guards a route subtree with bearer-token authentication.
// The token is taken from the Authorization header, falling back to the
// "token" cookie the web client sets.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				if c, err := r.Cookie("token"); err == nil {
					token = c.Value
				}
			}
			if token == "" {
				denyJSON(w, http.StatusUnauthorized, `{"error":"no token provided","code":"AUTH_MISSING_TOKEN"}`)
				return
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				logging.FromContext(r.Context()).Warn("auth: invalid token",
					"path", r.URL.Path,
					"error", err,
				)
				denyJSON(w, http.StatusForbidden, `{"error":"invalid token","code":"AUTH_INVALID_TOKEN"}`)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the authenticated user for a request handled below
// RequireAuth.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

func denyJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
