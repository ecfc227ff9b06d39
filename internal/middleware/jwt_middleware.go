package middleware

import (
	"context"
	"net/http"
	"strings"

	"ai_gateway/internal/auth"
	"ai_gateway/internal/utils"
)

// ContextKey defines the type for context keys to avoid conflicts
type ContextKey string

// ClaimsKey is the context key of the authenticated operator claims
const ClaimsKey ContextKey = "operatorClaims"

// OperatorJWTMiddleware validates operator tokens and enforces that the token
// holds at least one of requiredRoles (any role when none are given).
func OperatorJWTMiddleware(secret []byte, requiredRoles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := strings.TrimSpace(r.Header.Get("Authorization"))
			if tokenString == "" {
				utils.RespondWithErrorCode(w, http.StatusUnauthorized, "unauthorized", "Missing authentication token")
				return
			}
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")

			claims, err := auth.ValidateToken(tokenString, secret)
			if err != nil {
				utils.RespondWithErrorCode(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			if len(requiredRoles) > 0 {
				allowed := false
				for _, role := range requiredRoles {
					if claims.HasRole(role) {
						allowed = true
						break
					}
				}
				if !allowed {
					utils.RespondWithErrorCode(w, http.StatusForbidden, "forbidden", "Insufficient permissions")
					return
				}
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaims retrieves the operator claims from the request context
func GetClaims(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*auth.Claims)
	return claims, ok
}
