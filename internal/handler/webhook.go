// Package handler contains HTTP handlers for the magicsocial API.
//
// This file implements the Stripe webhook handler for processing billing events.
//
// Route:
//   - POST /api/billing/webhook -> HandleStripeWebhook
//
// This route is PUBLIC (no auth middleware) because Stripe calls it directly.
// Authentication is via the Stripe webhook signature verification.
package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v79"

	"github.com/DukeRupert/magicsocial/internal/domain"
	"github.com/DukeRupert/magicsocial/internal/metrics"
	"github.com/DukeRupert/magicsocial/internal/service"
)

const (
	maxWebhookBody        = 65536
	DefaultWebhookTimeout = 10 * time.Second
)

// WebhookVerifier verifies a Stripe signature and decodes the event.
type WebhookVerifier interface {
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)
}

// WebhookResponse acknowledges a processed event.
type WebhookResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}

// WebhookHandler handles incoming webhook events from Stripe.
type WebhookHandler struct {
	verifier   WebhookVerifier
	reconciler service.ReconcilerService
	timeout    time.Duration
	logger     *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// verifier may be nil when Stripe is not configured.
func NewWebhookHandler(verifier WebhookVerifier, reconciler service.ReconcilerService, timeout time.Duration, logger *slog.Logger) *WebhookHandler {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	return &WebhookHandler{
		verifier:   verifier,
		reconciler: reconciler,
		timeout:    timeout,
		logger:     logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
// These routes are PUBLIC; Stripe authenticates with a signature.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/billing/webhook", h.HandleStripeWebhook)
}

// HandleStripeWebhook verifies and reconciles one Stripe event.
//
// A non-2xx response makes Stripe redeliver the event, so only events that
// were applied or deliberately ignored are acknowledged.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	const op = "handler.stripe_webhook"

	if h.verifier == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.ENOTIMPL, op, "Billing is not configured"))
		return
	}

	// Read body (limit to 64KB)
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Wrap(err, domain.EINVALID, op, "Failed to read request body"))
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	event, err := h.verifier.VerifyWebhookSignature(body, signature)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		metrics.WebhookProcessed("unknown", "rejected", 0)
		ErrorResponse(w, r, h.logger, domain.Wrap(err, domain.EINVALID, op, "Invalid webhook signature"))
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	start := time.Now()
	outcome, err := h.reconciler.Reconcile(ctx, event)
	if err != nil {
		metrics.WebhookProcessed(string(event.Type), "failed", time.Since(start))
		ErrorResponse(w, r, h.logger, err)
		return
	}
	metrics.WebhookProcessed(string(event.Type), string(outcome), time.Since(start))

	writeJSON(w, http.StatusOK, WebhookResponse{Received: true, Outcome: string(outcome)})
}
