package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// MetricsAuthMiddleware provides basic authentication for the metrics endpoint.
type MetricsAuthMiddleware struct {
	username string
	password string
	hashed   bool // password is a bcrypt hash
	enabled  bool
}

// NewMetricsAuthMiddleware creates a new metrics auth middleware.
// If both username and password are empty, authentication is disabled.
// The password may be given in plain text or as a bcrypt hash ("$2a$...").
func NewMetricsAuthMiddleware(username, password string) *MetricsAuthMiddleware {
	return &MetricsAuthMiddleware{
		username: username,
		password: password,
		hashed:   isBcryptHash(password),
		enabled:  username != "" || password != "",
	}
}

// Handler returns middleware that requires basic authentication.
func (m *MetricsAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next.ServeHTTP(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok {
			m.unauthorized(w)
			return
		}

		// Constant-time comparison for the username and plain passwords
		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(m.username)) == 1
		passMatch := m.checkPassword(pass)

		if !userMatch || !passMatch {
			m.unauthorized(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *MetricsAuthMiddleware) checkPassword(pass string) bool {
	if m.hashed {
		return bcrypt.CompareHashAndPassword([]byte(m.password), []byte(pass)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(pass), []byte(m.password)) == 1
}

// unauthorized sends a 401 response with WWW-Authenticate header.
func (m *MetricsAuthMiddleware) unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

func isBcryptHash(s string) bool {
	if len(s) != 60 {
		return false
	}
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
