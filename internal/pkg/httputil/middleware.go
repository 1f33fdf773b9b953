package httputil

import (
	"context"
	"net/http"
	"strings"

	"github.com/bissquit/pizzeria/internal/domain"
	"github.com/bissquit/pizzeria/internal/pkg/ctxlog"
	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

// CORSMiddleware creates CORS middleware that handles preflight requests
// and adds appropriate CORS headers to responses.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	originsSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originsSet[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if originsSet[origin] || originsSet["*"] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LowercasePath makes chi route matching case-insensitive (/api/order/x/User/me
// routes like /api/order/x/user/me). Path parameters are read from the lowered
// path, so routes must only capture case-insensitive values (hex ids, numbers).
func LowercasePath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			path := r.URL.RawPath
			if path == "" {
				path = r.URL.Path
			}
			rctx.RoutePath = strings.ToLower(path)
		}
		next.ServeHTTP(w, r)
	})
}

type contextKey string

const principalKey contextKey = "principal"

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*domain.Principal, error)
}

// AuthMiddleware rejects requests without a valid bearer token and stores the
// token's principal in the request context.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				Failure(w, http.StatusUnauthorized, CodeUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				Failure(w, http.StatusUnauthorized, CodeUnauthorized, "invalid authorization header format")
				return
			}

			principal, err := validator.ValidateToken(r.Context(), parts[1])
			if err != nil {
				Failure(w, http.StatusUnauthorized, CodeUnauthorized, "invalid or expired token")
				return
			}

			ctx := ctxlog.With(WithPrincipal(r.Context(), principal), "user_id", principal.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole creates RBAC middleware; the token must carry role.
func RequireRole(role domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil {
				Failure(w, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
				return
			}

			if !principal.HasRole(role) {
				Failure(w, http.StatusForbidden, CodeForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit rejects requests with 429 once limiter is exhausted.
func RateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				Failure(w, http.StatusTooManyRequests, CodeTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithPrincipal stores principal in ctx.
func WithPrincipal(ctx context.Context, principal *domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// GetPrincipal extracts the authenticated principal from context.
func GetPrincipal(ctx context.Context) *domain.Principal {
	if p, ok := ctx.Value(principalKey).(*domain.Principal); ok {
		return p
	}
	return nil
}
