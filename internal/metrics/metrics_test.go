package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/usage", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := Middleware(mux)

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "GET /api/usage", "418"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/usage?from=x", nil))
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "GET /api/usage", "418"))
	assert.Equal(t, before+1, after)

	beforeMiss := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/random/path", nil))
	assert.Equal(t, beforeMiss+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}

func TestQuotaDecision(t *testing.T) {
	before := testutil.ToFloat64(QuotaDecisionsTotal.WithLabelValues("denied", "free"))
	QuotaDecision(false, "free")
	assert.Equal(t, before+1, testutil.ToFloat64(QuotaDecisionsTotal.WithLabelValues("denied", "free")))
}

func TestGenerationCompleted(t *testing.T) {
	before := testutil.ToFloat64(AITokensTotal.WithLabelValues("output"))
	GenerationCompleted(time.Second, 10, 7)
	assert.Equal(t, before+7, testutil.ToFloat64(AITokensTotal.WithLabelValues("output")))
}
