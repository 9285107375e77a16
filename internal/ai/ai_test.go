package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateParams_WithDefaults(t *testing.T) {
	p := GenerateParams{Context: "launch"}.WithDefaults()
	assert.Equal(t, DefaultModel, p.Model)
	assert.Equal(t, 500, p.MaxTokens)
	assert.InDelta(t, 0.7, p.Temperature, 0.0001)

	custom := GenerateParams{Model: "gpt-4o", MaxTokens: 120, Temperature: 1.2}.WithDefaults()
	assert.Equal(t, "gpt-4o", custom.Model)
	assert.Equal(t, 120, custom.MaxTokens)
	assert.InDelta(t, 1.2, custom.Temperature, 0.0001)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", EAIRateLimit, true},
		{"timeout", WrapError("generate", EAITimeout), true},
		{"unavailable", EAIUnavailable, true},
		{"unauthorized", EAIUnauthorized, false},
		{"content policy", EAIContentPolicy, false},
		{"other", errors.New("boom"), false},
		{"context canceled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError("x", nil))
	err := WrapError("generate", EAIRateLimit)
	assert.ErrorIs(t, err, EAIRateLimit)
	assert.Equal(t, "ai generate: ai provider rate limit exceeded", err.Error())
}
