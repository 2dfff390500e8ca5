package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/nadmax/bordo/internal/auth"
	"github.com/nadmax/bordo/internal/httputil"
)

type SessionResolver interface {
	Session(ctx context.Context, token string) (*auth.Session, error)
}

// BearerToken reads the session token from the Authorization header, falling back to
// the access_token query parameter that browsers use for WebSocket connections.
func BearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}

	return r.URL.Query().Get("access_token")
}

// RequireAuth rejects requests without a valid session and puts the session's user in
// the request context.
func RequireAuth(sessions SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				httputil.WriteJSONError(w, auth.ErrUnauthenticated.Error(), http.StatusUnauthorized)
				return
			}

			session, err := sessions.Session(r.Context(), token)
			if err != nil {
				if errors.Is(err, auth.ErrInvalidSession) {
					httputil.WriteJSONError(w, err.Error(), http.StatusUnauthorized)
					return
				}

				log.Printf("Failed to resolve session: %v", err)
				httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), session.User)))
		})
	}
}
