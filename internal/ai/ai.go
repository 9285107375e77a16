package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generator defines the interface for short-form social post generation
type Generator interface {
	// Generate produces a single post from the user's context and style hints
	Generate(ctx context.Context, params GenerateParams) (*GenerateResult, error)
}

// Generation defaults
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 500
	DefaultTemperature = 0.7
)

// GenerateParams contains parameters for a generation request
type GenerateParams struct {
	Context     string    // What the post is about (required)
	Tone        string    // Optional tone hint
	Format      string    // Optional format instructions
	Audience    string    // Optional target audience
	Model       string    // Model name; DefaultModel when empty
	MaxTokens   int       // DefaultMaxTokens when zero
	Temperature float32   // DefaultTemperature when zero
	UserID      uuid.UUID // User ID for tracking
}

// WithDefaults returns a copy with zero values replaced by defaults
func (p GenerateParams) WithDefaults() GenerateParams {
	if p.Model == "" {
		p.Model = DefaultModel
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = DefaultMaxTokens
	}
	if p.Temperature == 0 {
		p.Temperature = DefaultTemperature
	}
	return p
}

// GenerateResult contains the generated text and usage
type GenerateResult struct {
	Content string
	Usage   UsageInfo
}

// UsageInfo tracks API usage for monitoring
type UsageInfo struct {
	Model        string        // AI model used
	InputTokens  int           // Tokens in the request
	OutputTokens int           // Tokens in the response
	Duration     time.Duration // Request duration
}

// ProviderConfig contains common configuration for AI providers
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for AI provider operations
var (
	// EAIRateLimit indicates the API rate limit has been exceeded
	EAIRateLimit = errors.New("ai provider rate limit exceeded")

	// EAIEmptyResponse indicates the provider returned no choices
	EAIEmptyResponse = errors.New("ai provider returned no content")

	// EAIContentPolicy indicates the prompt was rejected by the provider
	EAIContentPolicy = errors.New("prompt violates content policy")

	// EAITimeout indicates the request timed out
	EAITimeout = errors.New("ai request timed out")

	// EAIUnavailable indicates the AI service is temporarily unavailable
	EAIUnavailable = errors.New("ai service temporarily unavailable")

	// EAIUnauthorized indicates invalid API credentials
	EAIUnauthorized = errors.New("ai provider authentication failed")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, EAIRateLimit) ||
		errors.Is(err, EAITimeout) ||
		errors.Is(err, EAIUnavailable)
}

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}
