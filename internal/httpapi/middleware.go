// internal/httpapi's auth middleware generalizes the teacher's
// internal/middleware/jwt.go: same Authorization-header-or-query-param
// precedence and context-key injection, but validating an opaque bearer
// token against the Identity & Token Store instead of verifying a JWT.
package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/openrooms/orc/internal/apierr"
)

type contextKey string

const userIDKey contextKey = "orc_user_id"

// TokenValidator is the subset of identity.Store the auth middleware needs.
// Kept as an interface so httpapi has no direct dependency on the concrete
// identity store implementation (memory vs redisstore).
type TokenValidator interface {
	RequireUser(token string) (string, error)
}

type authMiddleware struct {
	validator TokenValidator
}

func newAuthMiddleware(v TokenValidator) *authMiddleware {
	return &authMiddleware{validator: v}
}

func (am *authMiddleware) handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, apierr.Unauthorized("missing bearer token"))
			return
		}
		userID, err := am.validator.RequireUser(token)
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if v, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return v
		}
	}
	return r.URL.Query().Get("token")
}

func userIDFrom(r *http.Request) string {
	uid, _ := r.Context().Value(userIDKey).(string)
	return uid
}
