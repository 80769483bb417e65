// ABOUTME: HTTP middleware for bearer token authentication on API endpoints
// ABOUTME: Resolves the token through the issuer and adds the account to context

package auth

import (
	"net/http"
	"strings"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// HTTPAuthMiddleware creates an HTTP middleware that resolves bearer tokens.
// It looks up the account and adds AuthContext to the request context using
// the same WithAuth/FromContext pattern the tool bridge uses for per-call
// credentials.
func HTTPAuthMiddleware(issuer *Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				writeAuthError(w, errMsg)
				return
			}

			account, err := issuer.Resolve(r.Context(), token)
			if err != nil {
				writeAuthError(w, "invalid token")
				return
			}

			authCtx := &AuthContext{
				AccountID:   account.ID,
				Address:     account.Address,
				DisplayName: account.DisplayName,
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, msg string) {
	http.Error(w, `{"error":"`+msg+`"}`, http.StatusUnauthorized)
}
