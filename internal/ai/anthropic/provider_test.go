package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/magicsocial/internal/ai"
)

func messageBody(text string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"id":      "msg_1",
		"type":    "message",
		"role":    "assistant",
		"model":   DefaultModel,
		"content": []map[string]string{{"type": "text", "text": text}},
		"usage":   map[string]int{"input_tokens": 42, "output_tokens": 12},
	})
	return string(b)
}

func newTestProvider(t *testing.T, h http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	p, err := New(Config{
		APIKey:  "sk-ant-test",
		BaseURL: srv.URL + "/v1/messages",
		ProviderConfig: ai.ProviderConfig{
			MaxRetries:     3,
			RetryBaseDelay: time.Millisecond,
			RequestTimeout: 5 * time.Second,
		},
	}, nil)
	require.NoError(t, err)
	return p
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}

func TestGenerate(t *testing.T) {
	var got apiRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("x-api-key"))
		assert.Equal(t, APIVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(messageBody(`"Launch day. Go try it."`)))
	})

	userID := uuid.New()
	res, err := p.Generate(context.Background(), ai.GenerateParams{
		Context:  "our launch",
		Audience: "founders",
		UserID:   userID,
	})
	require.NoError(t, err)
	assert.Equal(t, "Launch day. Go try it.", res.Content)
	assert.Equal(t, DefaultModel, res.Usage.Model)
	assert.Equal(t, 42, res.Usage.InputTokens)
	assert.Equal(t, 12, res.Usage.OutputTokens)

	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, ai.DefaultMaxTokens, got.MaxTokens)
	assert.Equal(t, ai.SystemPrompt, got.System)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "our launch\n\nAudience: founders\n", got.Messages[0].Content)
	require.NotNil(t, got.Metadata)
	assert.Equal(t, userID.String(), got.Metadata.UserID)
}

func TestGenerate_ClampsTemperature(t *testing.T) {
	var got apiRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(messageBody("ok")))
	})

	_, err := p.Generate(context.Background(), ai.GenerateParams{Context: "x", Model: "claude-3-opus-latest", Temperature: 1.8})
	require.NoError(t, err)
	assert.Equal(t, "claude-3-opus-latest", got.Model)
	assert.InDelta(t, 1.0, got.Temperature, 0.0001)
}

func TestGenerate_RetriesOverloaded(t *testing.T) {
	var calls int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(529)
			w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
			return
		}
		w.Write([]byte(messageBody("third time")))
	})

	res, err := p.Generate(context.Background(), ai.GenerateParams{Context: "x"})
	require.NoError(t, err)
	assert.Equal(t, "third time", res.Content)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGenerate_Unauthorized(t *testing.T) {
	var calls int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	})

	_, err := p.Generate(context.Background(), ai.GenerateParams{Context: "x"})
	assert.ErrorIs(t, err, ai.EAIUnauthorized)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "non-retryable errors are not retried")
}

func TestGenerate_EmptyContent(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"msg_1","content":[],"usage":{}}`))
	})

	_, err := p.Generate(context.Background(), ai.GenerateParams{Context: "x"})
	assert.ErrorIs(t, err, ai.EAIEmptyResponse)
}

func TestMapHTTPError(t *testing.T) {
	assert.ErrorIs(t, mapHTTPError(http.StatusTooManyRequests, nil), ai.EAIRateLimit)
	assert.ErrorIs(t, mapHTTPError(529, nil), ai.EAIUnavailable)
	assert.ErrorIs(t, mapHTTPError(http.StatusForbidden, nil), ai.EAIUnauthorized)
	assert.ErrorIs(t, mapHTTPError(http.StatusRequestTimeout, nil), ai.EAITimeout)

	err := mapHTTPError(http.StatusBadRequest, []byte(`{"error":{"message":"max_tokens too large"}}`))
	assert.Contains(t, err.Error(), "max_tokens too large")
	assert.False(t, ai.IsRetryable(err))
}
