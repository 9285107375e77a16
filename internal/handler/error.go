package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/magicsocial/internal/domain"
)

// ErrorResponse writes an error response to the client.
// It maps domain error codes to HTTP status codes and writes a JSON body.
// Internal details (op, wrapped errors) are logged but never returned.
func ErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var qe *domain.QuotaExceededError
	if errors.As(err, &qe) {
		QuotaExceededResponse(w, r, logger, qe)
		return
	}

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		ValidationErrorResponse(w, r, logger, err)
		return
	}

	// Extract structured info from error
	code := domain.ErrorCode(err)
	message := domain.ErrorMessage(err)
	op := domain.ErrorOp(err)

	status := ErrorCodeToHTTPStatus(code)

	logError(logger, r, err, code, op, status)

	writeJSONError(w, status, code, message)
}

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest // 400
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized // 401
	case domain.EFORBIDDEN:
		return http.StatusForbidden // 403
	case domain.ENOTFOUND:
		return http.StatusNotFound // 404
	case domain.ECONFLICT:
		return http.StatusConflict // 409
	case domain.ERATELIMIT, domain.EQUOTA:
		return http.StatusTooManyRequests // 429
	case domain.EINTERNAL, domain.EUPSTREAM:
		return http.StatusInternalServerError // 500
	case domain.ENOTIMPL:
		return http.StatusNotImplemented // 501
	default:
		return http.StatusInternalServerError // 500
	}
}

// QuotaExceededResponse writes the 429 body the client uses to render the
// upgrade prompt.
func QuotaExceededResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, qe *domain.QuotaExceededError) {
	logger.Info("client error",
		"code", domain.EQUOTA,
		"path", r.URL.Path,
		"method", r.Method,
		"status", http.StatusTooManyRequests,
		"plan", qe.Plan,
		"daily_limit", qe.DailyLimit,
	)

	writeJSON(w, http.StatusTooManyRequests, QuotaExceededBody{
		Error:      "Daily generation limit reached. Upgrade your plan to continue.",
		Remaining:  0,
		DailyLimit: qe.DailyLimit,
		Plan:       string(qe.Plan),
	})
}

// QuotaExceededBody is the JSON body of a 429 quota response.
type QuotaExceededBody struct {
	Error      string `json:"error"`
	Remaining  int64  `json:"remaining"`
	DailyLimit int    `json:"dailyLimit"`
	Plan       string `json:"plan"`
}

// ValidationErrorResponse writes validation errors (field-level) to the response.
func ValidationErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		// Not a validation error, fall back to standard error response
		ErrorResponse(w, r, logger, err)
		return
	}

	logger.Info("validation error",
		"op", ve.Op,
		"field_count", len(ve.Fields),
		"path", r.URL.Path,
	)

	var body JSONError
	body.Error.Code = domain.EINVALID
	body.Error.Message = "Validation failed"
	body.Error.Fields = ve.Fields
	writeJSON(w, http.StatusBadRequest, body)
}

// NotFoundResponse is a convenience wrapper for 404 errors.
func NotFoundResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	err := domain.Errorf(domain.ENOTFOUND, "", "The requested resource was not found")
	ErrorResponse(w, r, logger, err)
}

// UnauthorizedResponse is a convenience wrapper for 401 errors.
func UnauthorizedResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	err := domain.Errorf(domain.EUNAUTHORIZED, "", "Authentication required")
	ErrorResponse(w, r, logger, err)
}

// ForbiddenResponse is a convenience wrapper for 403 errors.
func ForbiddenResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	err := domain.Errorf(domain.EFORBIDDEN, "", "You don't have permission to access this resource")
	ErrorResponse(w, r, logger, err)
}

// InternalErrorResponse logs the error and returns a generic 500 response.
// The underlying error details are hidden from the user.
func InternalErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	wrappedErr := domain.Internal(err, "", "An unexpected error occurred")
	ErrorResponse(w, r, logger, wrappedErr)
}

// logError logs the error with appropriate level based on status code.
func logError(logger *slog.Logger, r *http.Request, err error, code, op string, status int) {
	attrs := []any{
		"error", err.Error(),
		"code", code,
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
	}

	if op != "" {
		attrs = append(attrs, "op", op)
	}

	// 5xx are server-side issues; 4xx are expected client errors.
	if status >= 500 {
		logger.Error("server error", attrs...)
	} else if status >= 400 {
		logger.Info("client error", attrs...)
	}
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	var body JSONError
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}

// writeJSON writes v as the JSON response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON decodes a JSON request body of at most maxBytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return domain.Wrap(err, domain.EINVALID, "handler.decode", "Invalid JSON body")
	}
	return nil
}

// JSONError is a typed response structure for API errors.
type JSONError struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields,omitempty"`
	} `json:"error"`
}
