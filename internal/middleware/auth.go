// Package middleware contains HTTP middleware for the magicsocial API.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/magicsocial/internal/auth"
	"github.com/DukeRupert/magicsocial/internal/domain"
	"github.com/DukeRupert/magicsocial/internal/handler"
)

// =============================================================================
// Auth Middleware Configuration
// =============================================================================

// TokenVerifier identifies the user behind a request's bearer token.
// It returns auth.ErrNoToken when the request carries none.
type TokenVerifier interface {
	VerifyRequest(r *http.Request) (*domain.User, error)
}

// AuthMiddleware provides authentication middleware functionality.
//
// Create one instance and use its methods as middleware.
type AuthMiddleware struct {
	verifier TokenVerifier
	logger   *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
func NewAuthMiddleware(verifier TokenVerifier, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		logger:   logger,
	}
}

// =============================================================================
// WithUser Middleware
// =============================================================================

// WithUser is middleware that attempts to identify the user from the
// Authorization bearer token.
//
// It continues to the next handler regardless of authentication status. The
// user can be retrieved in handlers using:
//
//	user := auth.GetUser(r.Context())
//
// Flow:
//
//	Request -> WithUser -> Handler
//	           |
//	           +-> Read Authorization header
//	           +-> Verify token (if present)
//	           +-> Set user in context (if valid)
//	           +-> Call next handler (always)
func (m *AuthMiddleware) WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.verifier.VerifyRequest(r)
		if err != nil {
			if !errors.Is(err, auth.ErrNoToken) {
				m.logger.Debug("rejected access token", "error", err, "path", r.URL.Path)
			}
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetUser(r.Context(), user)))
	})
}

// =============================================================================
// RequireUser Middleware
// =============================================================================

// RequireUser is middleware that requires an authenticated user.
//
// IMPORTANT: This middleware must be used AFTER WithUser in the middleware chain.
//
//	Request -> WithUser -> RequireUser -> Handler
//	                       |
//	                       +-> If no user: 401 JSON
//	                       +-> If user exists: call next handler
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.GetUser(r.Context()) == nil {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	requireUser := Stack(authMw.WithUser, authMw.RequireUser)
//	mux.Handle("POST /api/generate", requireUser(generateHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// Ensure middleware functions have correct signature
var (
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).WithUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireUser
	_ TokenVerifier                   = (*auth.Verifier)(nil)
)
