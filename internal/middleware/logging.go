package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestID returns the request id stored by the logging middleware, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestLoggingMiddleware logs HTTP requests with timing and status information.
type RequestLoggingMiddleware struct {
	proxies *TrustedProxies
	logger  *slog.Logger
}

// NewRequestLoggingMiddleware creates a new request logging middleware.
func NewRequestLoggingMiddleware(proxies *TrustedProxies, logger *slog.Logger) *RequestLoggingMiddleware {
	return &RequestLoggingMiddleware{
		proxies: proxies,
		logger:  logger,
	}
}

// Handler returns middleware that tags each request with an id and logs it.
// An inbound X-Request-ID is reused when it looks sane.
func (m *RequestLoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(RequestIDHeader)
		if !validRequestID(reqID) {
			reqID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, reqID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID))

		// Skip logging for noisy endpoints
		if m.shouldSkip(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		attrs := []any{
			"request_id", reqID,
			"method", r.Method,
			"path", sanitizePath(r.URL.Path, r.URL.RawQuery),
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", m.proxies.ClientIP(r),
			"user_agent", r.UserAgent(),
		}

		switch {
		case wrapped.statusCode >= 500:
			m.logger.Error("request", attrs...)
		case wrapped.statusCode >= 400:
			m.logger.Warn("request", attrs...)
		default:
			m.logger.Info("request", attrs...)
		}
	})
}

func (m *RequestLoggingMiddleware) shouldSkip(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/metrics")
}

func validRequestID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, c := range id {
		if !(c == '-' || c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

var sensitiveParams = map[string]bool{
	"token":         true,
	"code":          true,
	"key":           true,
	"secret":        true,
	"password":      true,
	"api_key":       true,
	"apikey":        true,
	"access_token":  true,
	"refresh_token": true,
	"session_id":    true,
}

// sanitizePath removes sensitive query parameters from the path for logging.
func sanitizePath(path, rawQuery string) string {
	if rawQuery == "" {
		return path
	}

	var safeParts []string
	for _, part := range strings.Split(rawQuery, "&") {
		k, _, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		if sensitiveParams[strings.ToLower(k)] {
			safeParts = append(safeParts, k+"=[REDACTED]")
		} else {
			safeParts = append(safeParts, part)
		}
	}

	if len(safeParts) == 0 {
		return path
	}
	return path + "?" + strings.Join(safeParts, "&")
}
