package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"medguard/internal/jwttoken"
)

// JWTValidator defines the interface for validating session tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*jwttoken.Claims, error)
}

// Context keys for storing authenticated principal information
type contextKeyAddress struct{}
type contextKeyRole struct{}

var (
	ContextKeyAddress = contextKeyAddress{}
	ContextKeyRole    = contextKeyRole{}
)

// GetAddress retrieves the authenticated wallet address from the context
func GetAddress(ctx context.Context) string {
	address, ok := ctx.Value(ContextKeyAddress).(string)
	if !ok {
		return ""
	}
	return address
}

// GetRole retrieves the authenticated principal's role from the context
func GetRole(ctx context.Context) string {
	role, ok := ctx.Value(ContextKeyRole).(string)
	if !ok {
		return ""
	}
	return role
}

func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			if token, ok := strings.CutPrefix(authHeader, bearerPrefix); ok {
				claims, err := validator.ValidateToken(token)
				if err != nil {
					ctx := r.Context()
					logger.WarnContext(ctx, "unauthorized access - invalid token",
						"error", err,
						"request_id", GetRequestID(ctx),
					)
					writeUnauthorized(w, "Invalid or expired token")
					return
				}

				ctx := r.Context()
				ctx = context.WithValue(ctx, ContextKeyAddress, claims.Address)
				ctx = context.WithValue(ctx, ContextKeyRole, claims.Role)

				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			ctx := r.Context()
			logger.WarnContext(ctx, "unauthorized access - missing token",
				"request_id", GetRequestID(ctx),
			)
			writeUnauthorized(w, "Missing or invalid Authorization header")
		})
	}
}

// RequireRole gates a route to principals holding one of the given
// roles. It must run after RequireAuth.
func RequireRole(logger *slog.Logger, roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := GetRole(r.Context())
			if _, ok := allowed[role]; !ok {
				logger.WarnContext(r.Context(), "forbidden - role not allowed",
					"role", role,
					"request_id", GetRequestID(r.Context()),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","error_description":"Role not permitted for this operation"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
