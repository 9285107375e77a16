// Package billing provides Stripe billing integration for subscription management.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/DukeRupert/magicsocial/internal/domain"
)

// Metadata keys used to attribute Stripe objects to a user.
const (
	MetadataKeyUserID       = "user_id"
	MetadataKeyLegacyUserID = "supabase_user_id"
)

// Provider defines the interface for billing operations.
type Provider interface {
	// CreateCustomer creates a new Stripe customer tagged with the owning user.
	CreateCustomer(ctx context.Context, email string, userID uuid.UUID) (string, error)

	// CreateCheckoutSession creates a Stripe Checkout session for subscribing.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)

	// CreatePortalSession creates a Stripe Customer Portal session.
	// Returns the portal URL to redirect the user to.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)

	// GetSubscription retrieves a Stripe subscription by ID.
	GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)

	// GetPrice retrieves a Stripe price by ID.
	GetPrice(ctx context.Context, priceID string) (*Price, error)

	// VerifyWebhookSignature verifies the Stripe webhook signature and returns the event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)
}

// CheckoutParams describes a subscription checkout for one user.
type CheckoutParams struct {
	UserID     uuid.UUID
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the subset of a Stripe checkout session the client needs.
type CheckoutSession struct {
	ID  string
	URL string
}

// Price is a Stripe recurring price.
type Price struct {
	ID          string
	UnitAmount  int64 // Minor units
	Currency    string
	Interval    string
	ProductName string
}

// stripeProvider is the concrete implementation of Provider.
type stripeProvider struct {
	api           *client.API
	webhookSecret string
}

// NewStripeProvider creates a new Stripe billing provider.
//
// The secretKey is used to authenticate Stripe API calls.
// The webhookSecret is used to verify incoming webhook signatures.
func NewStripeProvider(secretKey, webhookSecret string) Provider {
	return &stripeProvider{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
	}
}

func (s *stripeProvider) CreateCustomer(ctx context.Context, email string, userID uuid.UUID) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Context = ctx
	params.AddMetadata(MetadataKeyUserID, userID.String())

	c, err := s.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return c.ID, nil
}

func (s *stripeProvider) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	userID := p.UserID.String()
	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(p.CustomerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:          stripe.String(p.SuccessURL),
		CancelURL:           stripe.String(p.CancelURL),
		ClientReferenceID:   stripe.String(userID),
		AllowPromotionCodes: stripe.Bool(true),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{MetadataKeyUserID: userID},
		},
	}
	params.Context = ctx
	params.AddMetadata(MetadataKeyUserID, userID)

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (s *stripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := s.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create portal session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := s.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe get subscription: %w", err)
	}
	return sub, nil
}

func (s *stripeProvider) GetPrice(ctx context.Context, priceID string) (*Price, error) {
	params := &stripe.PriceParams{}
	params.Context = ctx
	params.AddExpand("product")

	p, err := s.api.Prices.Get(priceID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe get price: %w", err)
	}

	price := &Price{
		ID:         p.ID,
		UnitAmount: p.UnitAmount,
		Currency:   string(p.Currency),
	}
	if p.Recurring != nil {
		price.Interval = string(p.Recurring.Interval)
	}
	if p.Product != nil {
		price.ProductName = p.Product.Name
	}
	return price, nil
}

func (s *stripeProvider) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", err)
	}
	return event, nil
}

// =============================================================================
// Normalization
// =============================================================================

// UserIDFromMetadata extracts the owning user from Stripe object metadata.
// The current key wins over the legacy key.
func UserIDFromMetadata(md map[string]string) (uuid.UUID, bool) {
	for _, key := range []string{MetadataKeyUserID, MetadataKeyLegacyUserID} {
		raw := strings.TrimSpace(md[key])
		if raw == "" {
			continue
		}
		if id, err := uuid.Parse(raw); err == nil && id != uuid.Nil {
			return id, true
		}
	}
	return uuid.Nil, false
}

// ToSubscriptionRecord converts a Stripe subscription into the canonical record.
//
// The plan is derived from the first item's price only while the status is
// entitling; every other status stores the free tier. UserID is taken from the
// subscription metadata and may be uuid.Nil when the subscription carries none.
func ToSubscriptionRecord(sub *stripe.Subscription, catalog domain.PlanCatalog) *domain.SubscriptionRecord {
	rec := &domain.SubscriptionRecord{
		SubscriptionID:     sub.ID,
		Status:             domain.SubscriptionStatus(sub.Status),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CanceledAt:         unixTime(sub.CanceledAt),
		CurrentPeriodStart: unixTime(sub.CurrentPeriodStart),
		CurrentPeriodEnd:   unixTime(sub.CurrentPeriodEnd),
		TrialStart:         unixTime(sub.TrialStart),
		TrialEnd:           unixTime(sub.TrialEnd),
		EndedAt:            unixTime(sub.EndedAt),
	}

	if sub.Customer != nil {
		rec.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		rec.PriceID = sub.Items.Data[0].Price.ID
	}
	if id, ok := UserIDFromMetadata(sub.Metadata); ok {
		rec.UserID = id
	}
	if len(sub.Metadata) > 0 {
		if raw, err := json.Marshal(sub.Metadata); err == nil {
			rec.Metadata = raw
		}
	}

	rec.Plan = PlanForStatus(rec.Status, rec.PriceID, catalog)
	return rec
}

// PlanForStatus returns the tier a record in the given status grants.
func PlanForStatus(status domain.SubscriptionStatus, priceID string, catalog domain.PlanCatalog) domain.PlanTier {
	if !status.IsEntitling() {
		return domain.PlanFree
	}
	return catalog.ResolveTier(priceID)
}

func unixTime(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
