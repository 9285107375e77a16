// Package handler contains HTTP handlers for the magicsocial API.
//
// This file implements the metered generation endpoint.
//
// Routes handled:
//   - POST /api/generate -> Generate
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DukeRupert/magicsocial/internal/ai"
	"github.com/DukeRupert/magicsocial/internal/auth"
	"github.com/DukeRupert/magicsocial/internal/domain"
	"github.com/DukeRupert/magicsocial/internal/metrics"
	"github.com/DukeRupert/magicsocial/internal/service"
)

// Request limits for POST /api/generate.
const (
	maxGenerateBody  = 16 << 10
	maxContextLength = 4000
	MaxTokensLimit   = 4000
	MaxTemperature   = 2.0
)

// GenerateRequest is the JSON body of POST /api/generate.
type GenerateRequest struct {
	Context            string   `json:"context"`
	Tone               string   `json:"tone,omitempty"`
	Audience           string   `json:"audience,omitempty"`
	FormatInstructions string   `json:"formatInstructions,omitempty"`
	Model              string   `json:"model,omitempty"`
	MaxTokens          *int     `json:"maxTokens,omitempty"`
	Temperature        *float32 `json:"temperature,omitempty"`
}

// GenerateResponse is the JSON body of a successful generation.
type GenerateResponse struct {
	Content string `json:"content"`
}

// GenerateConfig holds the generation handler settings.
type GenerateConfig struct {
	DefaultModel  string
	AllowedModels []string
	Timeout       time.Duration // Upper bound on one provider call; zero disables
}

// GenerateHandler handles metered content generation.
type GenerateHandler struct {
	quota     service.QuotaService
	generator ai.Generator
	config    GenerateConfig
	allowed   map[string]bool
	logger    *slog.Logger
}

// NewGenerateHandler creates a new GenerateHandler.
func NewGenerateHandler(quota service.QuotaService, generator ai.Generator, config GenerateConfig, logger *slog.Logger) *GenerateHandler {
	if config.DefaultModel == "" {
		config.DefaultModel = ai.DefaultModel
	}
	allowed := make(map[string]bool, len(config.AllowedModels)+1)
	allowed[config.DefaultModel] = true
	for _, m := range config.AllowedModels {
		if m = strings.TrimSpace(m); m != "" {
			allowed[m] = true
		}
	}

	return &GenerateHandler{
		quota:     quota,
		generator: generator,
		config:    config,
		allowed:   allowed,
		logger:    logger,
	}
}

// RegisterRoutes registers generation routes on the provided mux.
func (h *GenerateHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("POST /api/generate", requireUser(http.HandlerFunc(h.Generate)))
}

// Generate admits the request against the user's quota, calls the provider,
// and records one usage event on success.
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	const op = "handler.generate"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req GenerateRequest
	if err := decodeJSON(w, r, maxGenerateBody, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	params, err := h.validate(op, req)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	params.UserID = user.ID

	var result *ai.GenerateResult
	_, err = h.quota.Run(r.Context(), user.ID, params.Model, func(ctx context.Context) error {
		if h.config.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
			defer cancel()
		}

		res, genErr := h.generator.Generate(ctx, params)
		if genErr != nil {
			metrics.GenerationFailed()
			return generationError(op, genErr)
		}
		result = res
		return nil
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	metrics.GenerationCompleted(result.Usage.Duration, result.Usage.InputTokens, result.Usage.OutputTokens)
	h.logger.Info("content generated",
		"user_id", user.ID,
		"model", result.Usage.Model,
		"input_tokens", result.Usage.InputTokens,
		"output_tokens", result.Usage.OutputTokens,
		"duration_ms", result.Usage.Duration.Milliseconds(),
	)

	writeJSON(w, http.StatusOK, GenerateResponse{Content: result.Content})
}

// validate checks the request body and converts it into provider params.
func (h *GenerateHandler) validate(op string, req GenerateRequest) (ai.GenerateParams, error) {
	params := ai.GenerateParams{
		Context:  strings.TrimSpace(req.Context),
		Tone:     strings.TrimSpace(req.Tone),
		Format:   strings.TrimSpace(req.FormatInstructions),
		Audience: strings.TrimSpace(req.Audience),
		Model:    strings.TrimSpace(req.Model),
	}

	fields := map[string]string{}
	if params.Context == "" {
		fields["context"] = "Context is required"
	} else if len(params.Context) > maxContextLength {
		fields["context"] = "Context is too long"
	}
	if req.MaxTokens != nil {
		if *req.MaxTokens < 1 || *req.MaxTokens > MaxTokensLimit {
			fields["maxTokens"] = "maxTokens must be between 1 and 4000"
		} else {
			params.MaxTokens = *req.MaxTokens
		}
	}
	if req.Temperature != nil {
		// Zero means "use the default" downstream, so it cannot be asked for.
		if *req.Temperature <= 0 || *req.Temperature > MaxTemperature {
			fields["temperature"] = "temperature must be greater than 0 and at most 2"
		} else {
			params.Temperature = *req.Temperature
		}
	}
	if len(fields) > 0 {
		return params, &domain.ValidationError{Op: op, Fields: fields}
	}

	if params.Model == "" {
		params.Model = h.config.DefaultModel
	}
	if !h.allowed[params.Model] {
		return params, domain.Forbidden(op, "Model is not available")
	}

	return params.WithDefaults(), nil
}

// generationError maps a provider failure onto a domain error.
func generationError(op string, err error) error {
	switch {
	case errors.Is(err, ai.EAIContentPolicy):
		return domain.Wrap(err, domain.EINVALID, op, "The request was rejected by the content policy")
	case errors.Is(err, ai.EAITimeout), errors.Is(err, context.DeadlineExceeded):
		return domain.Upstream(err, op, "Content generation timed out")
	default:
		return domain.Upstream(err, op, "Failed to generate content")
	}
}
