package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/DukeRupert/magicsocial/internal/ai"
)

// Config contains configuration for the OpenAI provider
type Config struct {
	APIKey         string
	BaseURL        string // Optional, for proxies and tests
	ProviderConfig ai.ProviderConfig
}

// Provider implements ai.Generator using OpenAI chat completions
type Provider struct {
	config Config
	client *goopenai.Client
	logger *slog.Logger
}

// New creates a new OpenAI provider
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	// Set defaults
	if config.ProviderConfig.MaxRetries == 0 {
		config.ProviderConfig.MaxRetries = 3
	}
	if config.ProviderConfig.RetryBaseDelay == 0 {
		config.ProviderConfig.RetryBaseDelay = 1 * time.Second
	}
	if config.ProviderConfig.RequestTimeout == 0 {
		config.ProviderConfig.RequestTimeout = 60 * time.Second
	}

	clientConfig := goopenai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{
		Timeout: config.ProviderConfig.RequestTimeout,
	}

	return &Provider{
		config: config,
		client: goopenai.NewClientWithConfig(clientConfig),
		logger: logger,
	}, nil
}

// Generate produces a post with a single chat completion
func (p *Provider) Generate(ctx context.Context, params ai.GenerateParams) (*ai.GenerateResult, error) {
	startTime := time.Now()
	params = params.WithDefaults()

	req := goopenai.ChatCompletionRequest{
		Model: params.Model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: ai.SystemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: ai.BuildUserPrompt(params)},
		},
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		User:        params.UserID.String(),
	}

	resp, err := p.executeWithRetry(ctx, req)
	if err != nil {
		return nil, ai.WrapError("generate", err)
	}

	if len(resp.Choices) == 0 {
		return nil, ai.WrapError("generate", ai.EAIEmptyResponse)
	}
	content := ai.CleanOutput(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, ai.WrapError("generate", ai.EAIEmptyResponse)
	}

	return &ai.GenerateResult{
		Content: content,
		Usage: ai.UsageInfo{
			Model:        params.Model,
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			Duration:     time.Since(startTime),
		},
	}, nil
}

// executeWithRetry executes a completion request with exponential backoff retry
func (p *Provider) executeWithRetry(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error) {
	var lastErr error

	for attempt := 1; attempt <= p.config.ProviderConfig.MaxRetries; attempt++ {
		resp, err := p.client.CreateChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}

		lastErr = mapError(err)

		// Only retry on retryable errors
		if !ai.IsRetryable(lastErr) {
			return goopenai.ChatCompletionResponse{}, lastErr
		}

		if attempt >= p.config.ProviderConfig.MaxRetries {
			break
		}

		// Calculate backoff delay (exponential: base * 2^(attempt-1))
		delay := p.config.ProviderConfig.RetryBaseDelay * time.Duration(1<<(attempt-1))
		if p.logger != nil {
			p.logger.Info("Retrying AI request", "attempt", attempt, "delay", delay, "error", lastErr)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return goopenai.ChatCompletionResponse{}, ctx.Err()
		}
	}

	return goopenai.ChatCompletionResponse{}, lastErr
}

// mapError maps client errors to the ai sentinel errors
func mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ai.EAITimeout
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	status := 0
	message := err.Error()

	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.Code == "content_policy_violation" {
			return fmt.Errorf("%w: %s", ai.EAIContentPolicy, apiErr.Message)
		}
		status = apiErr.HTTPStatusCode
		message = apiErr.Message
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		// Network errors are typically retryable
		return fmt.Errorf("%w: %v", ai.EAIUnavailable, err)
	}

	return mapHTTPError(status, message)
}

// mapHTTPError maps HTTP status codes to domain errors
func mapHTTPError(statusCode int, message string) error {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ai.EAIUnauthorized
	case http.StatusTooManyRequests:
		return ai.EAIRateLimit
	case http.StatusRequestTimeout:
		return ai.EAITimeout
	case http.StatusBadRequest:
		return fmt.Errorf("bad request: %s", message)
	case http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return ai.EAIUnavailable
	default:
		return fmt.Errorf("API error (status %d): %s", statusCode, message)
	}
}
