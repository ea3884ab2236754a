package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/arena-hub/arena-hub/internal/domain/session"
)

type contextKey string

const identityKey contextKey = "identity"

// requireAuth resolves the bearer credential through the identity
// verifier. Verification failures deny; the identity service is never
// failed open.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		ident, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "credential denied")
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), ident)))
	})
}

func withIdentity(ctx context.Context, ident *session.Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

func identityFromContext(ctx context.Context) *session.Identity {
	ident, _ := ctx.Value(identityKey).(*session.Identity)
	return ident
}

func extractToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	return ""
}
