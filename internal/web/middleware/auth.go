package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const ownerKey contextKey = "owner_id"

// TokenVerifier validates a bearer token and yields the account id it
// was issued for.
type TokenVerifier interface {
	VerifyToken(token string) (uuid.UUID, error)
}

// RequireAuth rejects requests that lack a valid bearer token and
// stashes the owner id in the request context for handlers.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				unauthorized(w, "missing credentials")
				return
			}

			ownerID, err := verifier.VerifyToken(token)
			if err != nil {
				unauthorized(w, "invalid credentials")
				return
			}

			ctx := context.WithValue(r.Context(), ownerKey, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerID returns the authenticated account id, or uuid.Nil outside an
// authenticated route.
func OwnerID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(ownerKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// bearerToken pulls the token from the Authorization header, falling
// back to the "token" cookie set by browser clients.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := r.Cookie("token"); err == nil {
		return cookie.Value
	}
	return ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
