// Package service contains the business logic layer.
//
// This file implements checkout, customer portal and price listing on top of
// the billing provider.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/DukeRupert/magicsocial/internal/billing"
	"github.com/DukeRupert/magicsocial/internal/domain"
	"github.com/DukeRupert/magicsocial/internal/repository"
)

// Redirect defaults for checkout and portal sessions.
const (
	DefaultCheckoutSuccessPath = "/dashboard?success=true"
	DefaultCheckoutCancelPath  = "/pricing?canceled=true"
	DefaultPortalReturnPath    = "/dashboard"

	pricesCacheKey = "plan_prices"
	pricesCacheTTL = 5 * time.Minute
)

// Fallback monthly amounts (EUR) shown when a price cannot be fetched.
var fallbackAmounts = map[domain.PlanTier]int64{
	domain.PlanPro:      5,
	domain.PlanUltimate: 25,
}

// PlanPrice is the displayed price of a paid tier.
type PlanPrice struct {
	Tier        domain.PlanTier
	PriceID     string
	UnitAmount  int64 // Minor units
	Currency    string
	Interval    string
	ProductName string
	Fallback    bool
}

// =============================================================================
// Interface Definition
// =============================================================================

// BillingService defines self-service subscription operations.
type BillingService interface {
	// CreateCheckout starts a subscription checkout for the user.
	// Returns ECONFLICT if the user already has an active or trialing subscription.
	CreateCheckout(ctx context.Context, user *domain.User, priceID, redirectPath string) (*billing.CheckoutSession, error)

	// CreatePortal opens the Stripe customer portal for the user.
	// Returns ENOTFOUND if the user has never been a Stripe customer.
	CreatePortal(ctx context.Context, user *domain.User, redirectPath string) (string, error)

	// ListPrices returns the price of every paid tier, cached.
	ListPrices(ctx context.Context) ([]PlanPrice, error)
}

// CustomerStore persists the user to Stripe customer link.
type CustomerStore interface {
	GetCustomerByUserID(ctx context.Context, userID uuid.UUID) (repository.BillingCustomer, error)
	UpsertCustomer(ctx context.Context, arg repository.UpsertCustomerParams) (repository.BillingCustomer, error)
}

// =============================================================================
// Implementation
// =============================================================================

type billingService struct {
	provider     billing.Provider
	customers    CustomerStore
	entitlements EntitlementService
	catalog      domain.PlanCatalog
	baseURL      string
	cache        *cache.Cache
	logger       *slog.Logger
}

// NewBillingService creates a new BillingService.
// baseURL is the public origin redirect paths are appended to. provider may be
// nil when Stripe is not configured; prices then fall back to fixed amounts.
func NewBillingService(provider billing.Provider, customers CustomerStore, entitlements EntitlementService, catalog domain.PlanCatalog, baseURL string, logger *slog.Logger) BillingService {
	return &billingService{
		provider:     provider,
		customers:    customers,
		entitlements: entitlements,
		catalog:      catalog,
		baseURL:      strings.TrimRight(baseURL, "/"),
		cache:        cache.New(pricesCacheTTL, 2*pricesCacheTTL),
		logger:       logger,
	}
}

// CreateCheckout starts a subscription checkout for the user.
func (s *billingService) CreateCheckout(ctx context.Context, user *domain.User, priceID, redirectPath string) (*billing.CheckoutSession, error) {
	const op = "billing.create_checkout"

	if s.provider == nil {
		return nil, domain.Errorf(domain.ENOTIMPL, op, "Billing is not configured")
	}

	priceID = strings.TrimSpace(priceID)
	if !s.catalog.HasPrice(priceID) {
		return nil, domain.Invalid(op, "Unknown price")
	}

	current, err := s.entitlements.CurrentSubscription(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return nil, domain.Conflict(op, "You already have an active subscription. Manage it from the customer portal.")
	}

	customerID, err := s.ensureCustomer(ctx, op, user)
	if err != nil {
		return nil, err
	}

	successPath := DefaultCheckoutSuccessPath
	if redirectPath != "" {
		if IsRelativePath(redirectPath) {
			successPath = redirectPath
		} else {
			s.logger.Warn("ignoring non-relative checkout redirect", "user_id", user.ID, "redirect", redirectPath)
		}
	}

	session, err := s.provider.CreateCheckoutSession(ctx, billing.CheckoutParams{
		UserID:     user.ID,
		CustomerID: customerID,
		PriceID:    priceID,
		SuccessURL: s.baseURL + successPath,
		CancelURL:  s.baseURL + DefaultCheckoutCancelPath,
	})
	if err != nil {
		return nil, domain.Upstream(err, op, "Failed to create checkout session")
	}

	s.logger.Info("checkout session created",
		"user_id", user.ID,
		"session_id", session.ID,
		"price_id", priceID,
	)
	return session, nil
}

// CreatePortal opens the Stripe customer portal for the user.
func (s *billingService) CreatePortal(ctx context.Context, user *domain.User, redirectPath string) (string, error) {
	const op = "billing.create_portal"

	if s.provider == nil {
		return "", domain.Errorf(domain.ENOTIMPL, op, "Billing is not configured")
	}

	c, err := s.customers.GetCustomerByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.NotFound(op, "billing customer", user.ID.String())
		}
		return "", domain.Internal(err, op, "failed to load billing customer")
	}

	returnPath := DefaultPortalReturnPath
	if redirectPath != "" && IsRelativePath(redirectPath) {
		returnPath = redirectPath
	}

	url, err := s.provider.CreatePortalSession(ctx, c.StripeCustomerID, s.baseURL+returnPath)
	if err != nil {
		return "", domain.Upstream(err, op, "Failed to open billing portal")
	}
	return url, nil
}

// ListPrices returns the price of every paid tier.
//
// Prices are fetched concurrently and cached for five minutes. A tier whose
// price is not configured or cannot be fetched gets a fallback amount.
func (s *billingService) ListPrices(ctx context.Context) ([]PlanPrice, error) {
	if cached, ok := s.cache.Get(pricesCacheKey); ok {
		return cached.([]PlanPrice), nil
	}

	tiers := []domain.PlanTier{domain.PlanPro, domain.PlanUltimate}
	prices := make([]PlanPrice, len(tiers))

	g, gctx := errgroup.WithContext(ctx)
	for i, tier := range tiers {
		g.Go(func() error {
			prices[i] = s.fetchPrice(gctx, tier)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.cache.Set(pricesCacheKey, prices, cache.DefaultExpiration)
	return prices, nil
}

func (s *billingService) fetchPrice(ctx context.Context, tier domain.PlanTier) PlanPrice {
	ids := s.catalog.PriceIDs(tier)
	if len(ids) == 0 || s.provider == nil {
		return fallbackPrice(tier)
	}

	p, err := s.provider.GetPrice(ctx, ids[0])
	if err != nil {
		s.logger.Warn("failed to fetch price, using fallback", "tier", tier, "price_id", ids[0], "error", err)
		return fallbackPrice(tier)
	}

	return PlanPrice{
		Tier:        tier,
		PriceID:     p.ID,
		UnitAmount:  p.UnitAmount,
		Currency:    p.Currency,
		Interval:    p.Interval,
		ProductName: p.ProductName,
	}
}

func fallbackPrice(tier domain.PlanTier) PlanPrice {
	return PlanPrice{
		Tier:       tier,
		PriceID:    "fallback_" + string(tier),
		UnitAmount: fallbackAmounts[tier] * 100,
		Currency:   "eur",
		Interval:   "month",
		Fallback:   true,
	}
}

// ensureCustomer returns the user's Stripe customer, creating it on first checkout.
func (s *billingService) ensureCustomer(ctx context.Context, op string, user *domain.User) (string, error) {
	c, err := s.customers.GetCustomerByUserID(ctx, user.ID)
	if err == nil && c.StripeCustomerID != "" {
		return c.StripeCustomerID, nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", domain.Internal(err, op, "failed to load billing customer")
	}

	customerID, err := s.provider.CreateCustomer(ctx, user.Email, user.ID)
	if err != nil {
		return "", domain.Upstream(err, op, "Failed to initialize billing")
	}

	if _, err := s.customers.UpsertCustomer(ctx, repository.UpsertCustomerParams{
		UserID:           user.ID,
		StripeCustomerID: customerID,
		Email:            user.Email,
	}); err != nil {
		return "", domain.Internal(err, op, "failed to save billing customer")
	}

	s.logger.Info("stripe customer created", "user_id", user.ID, "customer_id", customerID)
	return customerID, nil
}

// IsRelativePath reports whether p is a same-origin path such as "/dashboard".
func IsRelativePath(p string) bool {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
		return false
	}
	return !strings.Contains(p, "://") && !strings.Contains(p, `\`)
}
