// Package handler contains HTTP handlers for the magicsocial API.
//
// This file implements the read-only plan, quota and usage endpoints.
//
// Routes handled:
//   - GET /api/usage         -> Usage
//   - GET /api/entitlement   -> Entitlement
//   - GET /api/user-limits   -> Entitlement
//   - GET /api/subscription  -> Subscription
//   - GET /api/plans         -> Plans
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/magicsocial/internal/auth"
	"github.com/DukeRupert/magicsocial/internal/domain"
	"github.com/DukeRupert/magicsocial/internal/service"
)

// UsageResponse is the JSON body of GET /api/usage.
type UsageResponse struct {
	Count int64     `json:"count"`
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
}

// EntitlementResponse is the JSON body of GET /api/entitlement.
type EntitlementResponse struct {
	DailyLimit int    `json:"dailyLimit"`
	Usage      int64  `json:"usage"`
	Remaining  int64  `json:"remaining"`
	Plan       string `json:"plan"`
}

// SubscriptionResponse is the JSON body of GET /api/subscription.
type SubscriptionResponse struct {
	Plan              string     `json:"plan"`
	StripePriceID     *string    `json:"stripePriceId"`
	Status            string     `json:"status,omitempty"`
	CurrentPeriodEnd  *time.Time `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancelAtPeriodEnd"`
}

// PlanResponse is one entry of GET /api/plans.
type PlanResponse struct {
	Plan       string `json:"plan"`
	DailyLimit int    `json:"dailyLimit"`
}

// UsageHandler serves plan and quota state to the signed-in user.
type UsageHandler struct {
	entitlements service.EntitlementService
	catalog      domain.PlanCatalog
	logger       *slog.Logger
	now          func() time.Time
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(entitlements service.EntitlementService, catalog domain.PlanCatalog, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{
		entitlements: entitlements,
		catalog:      catalog,
		logger:       logger,
		now:          time.Now,
	}
}

// RegisterRoutes registers usage routes on the provided mux.
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /api/usage", requireUser(http.HandlerFunc(h.Usage)))
	mux.Handle("GET /api/entitlement", requireUser(http.HandlerFunc(h.Entitlement)))
	mux.Handle("GET /api/user-limits", requireUser(http.HandlerFunc(h.Entitlement)))
	mux.Handle("GET /api/subscription", requireUser(http.HandlerFunc(h.Subscription)))
	mux.HandleFunc("GET /api/plans", h.Plans)
}

// Usage counts the user's generations between from and to (RFC 3339).
// Both default to the last 24 hours.
func (h *UsageHandler) Usage(w http.ResponseWriter, r *http.Request) {
	const op = "handler.usage"

	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	now := h.now().UTC()
	from, err := parseTimeParam(r, "from", now.Add(-domain.UsageWindow))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Wrap(err, domain.EINVALID, op, "from must be an RFC 3339 timestamp"))
		return
	}
	to, err := parseTimeParam(r, "to", now)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Wrap(err, domain.EINVALID, op, "to must be an RFC 3339 timestamp"))
		return
	}

	count, err := h.entitlements.CountUsage(r.Context(), user.ID, from, to)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, UsageResponse{Count: count, From: from, To: to})
}

// Entitlement returns the user's plan, daily limit and remaining quota.
func (h *UsageHandler) Entitlement(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	ent, err := h.entitlements.Resolve(r.Context(), user.ID, h.now().UTC())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, EntitlementResponse{
		DailyLimit: ent.Quota,
		Usage:      ent.Used,
		Remaining:  ent.Remaining,
		Plan:       string(ent.Tier),
	})
}

// Subscription returns the user's current subscription. Users without one get
// the free plan and a null price id.
func (h *UsageHandler) Subscription(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	sub, err := h.entitlements.CurrentSubscription(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := SubscriptionResponse{Plan: string(domain.PlanFree)}
	if sub != nil {
		priceID := sub.PriceID
		resp.Plan = string(h.catalog.ResolveTier(sub.PriceID))
		resp.StripePriceID = &priceID
		resp.Status = string(sub.Status)
		resp.CurrentPeriodEnd = sub.CurrentPeriodEnd
		resp.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	}
	writeJSON(w, http.StatusOK, resp)
}

// Plans lists the daily limit of every tier.
func (h *UsageHandler) Plans(w http.ResponseWriter, r *http.Request) {
	quotas := h.catalog.Quotas()
	plans := make([]PlanResponse, 0, len(quotas))
	for _, tier := range []domain.PlanTier{domain.PlanFree, domain.PlanPro, domain.PlanUltimate} {
		plans = append(plans, PlanResponse{Plan: string(tier), DailyLimit: quotas[tier]})
	}
	writeJSON(w, http.StatusOK, plans)
}

func parseTimeParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
