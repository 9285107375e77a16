package mock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/magicsocial/internal/ai"
)

// Provider is a mock AI generator for testing and development
type Provider struct {
	logger *slog.Logger

	mu sync.Mutex

	// Configurable responses for testing
	GenerateResponse *ai.GenerateResult
	GenerateError    error

	// Call tracking for testing
	GenerateCalls int
	LastParams    ai.GenerateParams
}

// New creates a new mock AI provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// Generate returns a canned post built from the request context
func (p *Provider) Generate(ctx context.Context, params ai.GenerateParams) (*ai.GenerateResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.GenerateCalls++
	p.LastParams = params

	// If a custom response or error is set, use it
	if p.GenerateError != nil {
		return nil, p.GenerateError
	}
	if p.GenerateResponse != nil {
		return p.GenerateResponse, nil
	}

	params = params.WithDefaults()
	if p.logger != nil {
		p.logger.Debug("mock generation", "user_id", params.UserID, "model", params.Model)
	}

	return &ai.GenerateResult{
		Content: fmt.Sprintf("Big news: %s. More soon.", params.Context),
		Usage: ai.UsageInfo{
			Model:        params.Model,
			InputTokens:  42,
			OutputTokens: 12,
			Duration:     50 * time.Millisecond,
		},
	}, nil
}

// Calls returns the number of Generate calls so far
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.GenerateCalls
}

// Reset clears call counters and custom responses for testing
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GenerateCalls = 0
	p.LastParams = ai.GenerateParams{}
	p.GenerateResponse = nil
	p.GenerateError = nil
}
