package identity

import (
	"context"
	"net/http"
	"strings"
)

// TokenCookie is the cookie set after a successful OAuth callback.
const TokenCookie = "github_token"

type contextKey struct{}

// PrincipalFromContext returns the principal the auth middleware attached to
// the request.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

// WithPrincipal attaches a principal to the context. Exposed for handler
// tests.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// TokenFromRequest extracts the credential, preferring the Authorization
// header over the session cookie.
func TokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if c, err := r.Cookie(TokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// Middleware authenticates every request: it resolves the presented token to
// a principal and rejects requests without a valid one.
func Middleware(gateway *Gateway) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
				return
			}

			principal, err := gateway.ResolvePrincipal(r.Context(), token)
			if err != nil {
				http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}
