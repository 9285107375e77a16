// Package handler contains HTTP handlers for the magicsocial API.
//
// This file implements self-service billing handlers backed by Stripe.
//
// Routes handled:
//   - GET  /api/billing/prices   -> Prices
//   - POST /api/billing/checkout -> CreateCheckout
//   - POST /api/billing/portal   -> OpenPortal
package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/magicsocial/internal/auth"
	"github.com/DukeRupert/magicsocial/internal/service"
)

const maxBillingBody = 4 << 10

// CheckoutRequest is the JSON body of POST /api/billing/checkout.
type CheckoutRequest struct {
	PriceID      string `json:"priceId"`
	RedirectPath string `json:"redirectPath,omitempty"`
}

// CheckoutResponse is returned after a checkout session is created.
type CheckoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// PortalRequest is the optional JSON body of POST /api/billing/portal.
type PortalRequest struct {
	RedirectPath string `json:"redirectPath,omitempty"`
}

// PortalResponse carries the customer portal URL.
type PortalResponse struct {
	URL string `json:"url"`
}

// PriceResponse is one entry of GET /api/billing/prices.
type PriceResponse struct {
	Plan        string `json:"plan"`
	PriceID     string `json:"priceId"`
	UnitAmount  int64  `json:"unitAmount"`
	Currency    string `json:"currency"`
	Interval    string `json:"interval"`
	ProductName string `json:"productName,omitempty"`
	Fallback    bool   `json:"fallback"`
}

// BillingHandler handles billing and subscription management HTTP requests.
type BillingHandler struct {
	billing service.BillingService
	logger  *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(billingService service.BillingService, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billing: billingService,
		logger:  logger,
	}
}

// RegisterRoutes registers billing routes on the provided mux.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /api/billing/prices", h.Prices)
	mux.Handle("POST /api/billing/checkout", requireUser(http.HandlerFunc(h.CreateCheckout)))
	mux.Handle("POST /api/billing/portal", requireUser(http.HandlerFunc(h.OpenPortal)))
}

// Prices lists the price of every paid tier.
func (h *BillingHandler) Prices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.billing.ListPrices(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := make([]PriceResponse, 0, len(prices))
	for _, p := range prices {
		resp = append(resp, PriceResponse{
			Plan:        string(p.Tier),
			PriceID:     p.PriceID,
			UnitAmount:  p.UnitAmount,
			Currency:    p.Currency,
			Interval:    p.Interval,
			ProductName: p.ProductName,
			Fallback:    p.Fallback,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateCheckout creates a Stripe Checkout session for the signed-in user.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req CheckoutRequest
	if err := decodeJSON(w, r, maxBillingBody, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	session, err := h.billing.CreateCheckout(r.Context(), user, req.PriceID, req.RedirectPath)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, CheckoutResponse{SessionID: session.ID, URL: session.URL})
}

// OpenPortal creates a Stripe Customer Portal session for the signed-in user.
func (h *BillingHandler) OpenPortal(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	// The body is optional.
	var req PortalRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, maxBillingBody, &req); err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
	}

	url, err := h.billing.CreatePortal(r.Context(), user, req.RedirectPath)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, PortalResponse{URL: url})
}
