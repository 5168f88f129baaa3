package server

import (
	"context"
	"net/http"
)

// headerUserID carries the authenticated principal. Session issuance lives in
// the auth gateway in front of this service; by the time a request arrives
// here the header is trusted.
const headerUserID = "X-User-ID"

type principalKey struct{}

// requirePrincipal rejects requests without an authenticated principal and
// stashes the user id in the request context for handlers.
func requirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(headerUserID)
		if userID == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// principalFrom returns the authenticated user id, or "" when the route did
// not pass through requirePrincipal.
func principalFrom(ctx context.Context) string {
	v, _ := ctx.Value(principalKey{}).(string)
	return v
}
