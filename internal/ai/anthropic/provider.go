package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/magicsocial/internal/ai"
)

const (
	// APIBaseURL is the base URL for the Anthropic Messages API
	APIBaseURL = "https://api.anthropic.com/v1/messages"

	// APIVersion is the Anthropic API version
	APIVersion = "2023-06-01"

	// DefaultModel is used when the request does not name a model
	DefaultModel = "claude-3-5-haiku-latest"

	// maxTemperature is the upper bound the Messages API accepts
	maxTemperature = 1.0
)

// Config contains configuration for the Anthropic provider
type Config struct {
	APIKey         string
	Model          string
	BaseURL        string // Optional, for proxies and tests
	ProviderConfig ai.ProviderConfig
}

// Provider implements ai.Generator using Anthropic's Messages API
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a new Anthropic provider
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	// Set defaults
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = APIBaseURL
	}
	if config.ProviderConfig.MaxRetries == 0 {
		config.ProviderConfig.MaxRetries = 3
	}
	if config.ProviderConfig.RetryBaseDelay == 0 {
		config.ProviderConfig.RetryBaseDelay = 1 * time.Second
	}
	if config.ProviderConfig.RequestTimeout == 0 {
		config.ProviderConfig.RequestTimeout = 60 * time.Second
	}

	return &Provider{
		config: config,
		client: &http.Client{
			Timeout: config.ProviderConfig.RequestTimeout,
		},
		logger: logger,
	}, nil
}

// Generate produces a post with a single Messages API call
func (p *Provider) Generate(ctx context.Context, params ai.GenerateParams) (*ai.GenerateResult, error) {
	startTime := time.Now()

	model := params.Model
	if model == "" {
		model = p.config.Model
	}
	params.Model = model
	params = params.WithDefaults()
	if params.Temperature > maxTemperature {
		params.Temperature = maxTemperature
	}

	body, err := json.Marshal(apiRequest{
		Model:       params.Model,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		System:      ai.SystemPrompt,
		Messages: []apiMessage{
			{Role: "user", Content: ai.BuildUserPrompt(params)},
		},
		Metadata: &apiMetadata{UserID: params.UserID.String()},
	})
	if err != nil {
		return nil, ai.WrapError("build request", err)
	}

	resp, err := p.executeWithRetry(ctx, body)
	if err != nil {
		return nil, ai.WrapError("generate", err)
	}

	var text string
	for _, c := range resp.Content {
		if c.Type == "text" {
			text = c.Text
			break
		}
	}
	content := ai.CleanOutput(text)
	if content == "" {
		return nil, ai.WrapError("generate", ai.EAIEmptyResponse)
	}

	return &ai.GenerateResult{
		Content: content,
		Usage: ai.UsageInfo{
			Model:        params.Model,
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			Duration:     time.Since(startTime),
		},
	}, nil
}

// executeWithRetry executes a request with exponential backoff retry.
// The body is resent on every attempt.
func (p *Provider) executeWithRetry(ctx context.Context, body []byte) (*apiResponse, error) {
	var lastErr error

	for attempt := 1; attempt <= p.config.ProviderConfig.MaxRetries; attempt++ {
		resp, err := p.executeRequest(ctx, body)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		// Only retry on retryable errors
		if !ai.IsRetryable(err) {
			return nil, err
		}

		if attempt >= p.config.ProviderConfig.MaxRetries {
			break
		}

		// Calculate backoff delay (exponential: base * 2^(attempt-1))
		delay := p.config.ProviderConfig.RetryBaseDelay * time.Duration(1<<(attempt-1))
		if p.logger != nil {
			p.logger.Info("Retrying AI request", "attempt", attempt, "delay", delay, "error", err)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// executeRequest executes a single HTTP request
func (p *Provider) executeRequest(ctx context.Context, body []byte) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", APIVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ai.EAITimeout
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		// Network errors are typically retryable
		return nil, fmt.Errorf("%w: %v", ai.EAIUnavailable, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(resp.StatusCode, bodyBytes)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &apiResp, nil
}

// mapHTTPError maps HTTP status codes to domain errors
func mapHTTPError(statusCode int, body []byte) error {
	var errResp apiErrorResponse
	_ = json.Unmarshal(body, &errResp)

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ai.EAIUnauthorized
	case http.StatusTooManyRequests:
		return ai.EAIRateLimit
	case http.StatusRequestTimeout:
		return ai.EAITimeout
	case http.StatusBadRequest:
		return fmt.Errorf("bad request: %s", errResp.Error.Message)
	case http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout, 529:
		// 529: overloaded
		return ai.EAIUnavailable
	default:
		return fmt.Errorf("API error (status %d): %s", statusCode, errResp.Error.Message)
	}
}

// API request/response types

type apiRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float32      `json:"temperature"`
	System      string       `json:"system"`
	Messages    []apiMessage `json:"messages"`
	Metadata    *apiMetadata `json:"metadata,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiMetadata struct {
	UserID string `json:"user_id"`
}

type apiResponse struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Content []apiContentOutput `json:"content"`
	Model   string             `json:"model"`
	Usage   apiUsage           `json:"usage"`
}

type apiContentOutput struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiErrorResponse struct {
	Type  string   `json:"type"`
	Error apiError `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
