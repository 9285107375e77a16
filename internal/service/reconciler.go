// Package service contains the business logic layer.
//
// This file implements the webhook reconciler, the only writer of the
// subscription mirror. Each Stripe event is mapped onto one idempotent upsert
// keyed by subscription id.
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"

	"github.com/DukeRupert/magicsocial/internal/billing"
	"github.com/DukeRupert/magicsocial/internal/domain"
	"github.com/DukeRupert/magicsocial/internal/repository"
)

// Stripe event types handled by the reconciler.
const (
	EventSubscriptionCreated   = "customer.subscription.created"
	EventSubscriptionUpdated   = "customer.subscription.updated"
	EventSubscriptionDeleted   = "customer.subscription.deleted"
	EventCheckoutCompleted     = "checkout.session.completed"
	EventInvoicePaymentSuccess = "invoice.payment_succeeded"
	EventInvoicePaymentFailed  = "invoice.payment_failed"
)

// Outcome is the result of reconciling one event.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeIgnored Outcome = "ignored"
)

// =============================================================================
// Interface Definition
// =============================================================================

// ReconcilerService applies verified Stripe events to the subscription store.
//
// An error means the event was not applied and the webhook should be retried:
// EINVALID for events that cannot be attributed to a user, EUPSTREAM when Stripe
// could not be reached, EINTERNAL for store failures.
type ReconcilerService interface {
	Reconcile(ctx context.Context, event stripe.Event) (Outcome, error)
}

// SubscriptionStore is the subscription store used by the reconciler.
type SubscriptionStore interface {
	GetSubscription(ctx context.Context, stripeSubscriptionID string) (repository.Subscription, error)
	GetLatestSubscriptionByCustomerID(ctx context.Context, stripeCustomerID string) (repository.Subscription, error)
	UpsertSubscription(ctx context.Context, arg repository.UpsertSubscriptionParams) (repository.Subscription, error)
}

// CustomerLookup resolves a Stripe customer to its owning user.
type CustomerLookup interface {
	GetCustomerByStripeID(ctx context.Context, stripeCustomerID string) (repository.BillingCustomer, error)
}

// WebhookEventLog records received events for auditing.
type WebhookEventLog interface {
	RecordWebhookEvent(ctx context.Context, arg repository.RecordWebhookEventParams) (int64, error)
	MarkWebhookEventProcessed(ctx context.Context, arg repository.MarkWebhookEventProcessedParams) error
}

// SubscriptionFetcher retrieves the authoritative subscription from Stripe.
type SubscriptionFetcher interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
}

// ReconcilerDeps groups the reconciler's collaborators.
type ReconcilerDeps struct {
	Subscriptions SubscriptionStore
	Customers     CustomerLookup
	Events        WebhookEventLog // Optional
	Stripe        SubscriptionFetcher
	Catalog       domain.PlanCatalog
	Logger        *slog.Logger
}

// =============================================================================
// Implementation
// =============================================================================

type reconcilerService struct {
	subscriptions SubscriptionStore
	customers     CustomerLookup
	events        WebhookEventLog
	stripe        SubscriptionFetcher
	catalog       domain.PlanCatalog
	logger        *slog.Logger
}

// NewReconcilerService creates a new ReconcilerService.
func NewReconcilerService(deps ReconcilerDeps) ReconcilerService {
	return &reconcilerService{
		subscriptions: deps.Subscriptions,
		customers:     deps.Customers,
		events:        deps.Events,
		stripe:        deps.Stripe,
		catalog:       deps.Catalog,
		logger:        deps.Logger,
	}
}

// identityHint carries a user id found outside the subscription itself.
type identityHint struct {
	userID uuid.UUID
	source string
}

// Reconcile applies one verified event.
func (s *reconcilerService) Reconcile(ctx context.Context, event stripe.Event) (Outcome, error) {
	eventType := string(event.Type)
	s.recordReceived(ctx, event.ID, eventType)

	outcome, err := s.dispatch(ctx, event)

	s.markProcessed(ctx, event.ID, err)
	if err != nil {
		s.logger.Warn("webhook event not applied",
			"event_id", event.ID,
			"type", eventType,
			"error", err,
		)
		return outcome, err
	}

	s.logger.Info("webhook event reconciled",
		"event_id", event.ID,
		"type", eventType,
		"outcome", outcome,
	)
	return outcome, nil
}

func (s *reconcilerService) dispatch(ctx context.Context, event stripe.Event) (Outcome, error) {
	switch string(event.Type) {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return s.handleSubscriptionChanged(ctx, event)
	case EventSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, event)
	case EventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case EventInvoicePaymentSuccess:
		return s.handlePaymentSucceeded(ctx, event)
	case EventInvoicePaymentFailed:
		return s.handlePaymentFailed(ctx, event)
	default:
		s.logger.Debug("unhandled webhook event type", "type", event.Type)
		return OutcomeIgnored, nil
	}
}

// =============================================================================
// Event handlers
// =============================================================================

func (s *reconcilerService) handleSubscriptionChanged(ctx context.Context, event stripe.Event) (Outcome, error) {
	const op = "reconciler.subscription_changed"

	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return OutcomeIgnored, domain.Wrap(err, domain.EINVALID, op, "malformed subscription payload")
	}

	rec := billing.ToSubscriptionRecord(&sub, s.catalog)
	return s.apply(ctx, op, rec, nil)
}

func (s *reconcilerService) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) (Outcome, error) {
	const op = "reconciler.subscription_deleted"

	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return OutcomeIgnored, domain.Wrap(err, domain.EINVALID, op, "malformed subscription payload")
	}

	rec := billing.ToSubscriptionRecord(&sub, s.catalog)
	rec.Status = domain.SubscriptionStatusCanceled
	if rec.EndedAt == nil {
		// Event time, so redeliveries write the same value.
		ended := time.Unix(event.Created, 0).UTC()
		rec.EndedAt = &ended
	}
	return s.apply(ctx, op, rec, nil)
}

func (s *reconcilerService) handleCheckoutCompleted(ctx context.Context, event stripe.Event) (Outcome, error) {
	const op = "reconciler.checkout_completed"

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return OutcomeIgnored, domain.Wrap(err, domain.EINVALID, op, "malformed checkout session payload")
	}

	if session.Mode != stripe.CheckoutSessionModeSubscription || session.Subscription == nil || session.Subscription.ID == "" {
		s.logger.Debug("checkout session is not a subscription checkout", "session_id", session.ID)
		return OutcomeIgnored, nil
	}

	sub, err := s.stripe.GetSubscription(ctx, session.Subscription.ID)
	if err != nil {
		return OutcomeIgnored, domain.Upstream(err, op, "failed to fetch subscription from Stripe")
	}

	var hints []identityHint
	if id, ok := billing.UserIDFromMetadata(session.Metadata); ok {
		hints = append(hints, identityHint{userID: id, source: "session_metadata"})
	}
	if id, err := uuid.Parse(session.ClientReferenceID); err == nil && id != uuid.Nil {
		hints = append(hints, identityHint{userID: id, source: "client_reference_id"})
	}

	rec := billing.ToSubscriptionRecord(sub, s.catalog)
	if rec.CustomerID == "" && session.Customer != nil {
		rec.CustomerID = session.Customer.ID
	}
	return s.apply(ctx, op, rec, hints)
}

func (s *reconcilerService) handlePaymentSucceeded(ctx context.Context, event stripe.Event) (Outcome, error) {
	const op = "reconciler.payment_succeeded"

	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return OutcomeIgnored, domain.Wrap(err, domain.EINVALID, op, "malformed invoice payload")
	}

	existing, err := s.findForInvoice(ctx, op, &invoice)
	if err != nil {
		return OutcomeIgnored, err
	}

	if existing == nil {
		// Unknown subscription: mirror it from Stripe so the first paid invoice
		// is enough to entitle the user.
		subID := invoiceSubscriptionID(&invoice)
		if subID == "" {
			return OutcomeIgnored, nil
		}
		sub, err := s.stripe.GetSubscription(ctx, subID)
		if err != nil {
			return OutcomeIgnored, domain.Upstream(err, op, "failed to fetch subscription from Stripe")
		}
		return s.apply(ctx, op, billing.ToSubscriptionRecord(sub, s.catalog), nil)
	}

	if !existing.Status.IsDelinquent() {
		return OutcomeIgnored, nil
	}

	existing.Status = domain.SubscriptionStatusActive
	return s.apply(ctx, op, existing, nil)
}

func (s *reconcilerService) handlePaymentFailed(ctx context.Context, event stripe.Event) (Outcome, error) {
	const op = "reconciler.payment_failed"

	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return OutcomeIgnored, domain.Wrap(err, domain.EINVALID, op, "malformed invoice payload")
	}

	existing, err := s.findForInvoice(ctx, op, &invoice)
	if err != nil {
		return OutcomeIgnored, err
	}
	if existing == nil {
		s.logger.Info("payment failed for unknown subscription",
			"invoice_id", invoice.ID,
			"subscription_id", invoiceSubscriptionID(&invoice),
		)
		return OutcomeIgnored, nil
	}
	if existing.Status.IsTerminal() {
		return OutcomeIgnored, nil
	}

	existing.Status = domain.SubscriptionStatusPastDue
	s.logger.Warn("payment failed", "user_id", existing.UserID, "subscription_id", existing.SubscriptionID)
	return s.apply(ctx, op, existing, nil)
}

// =============================================================================
// Helpers
// =============================================================================

// apply resolves ownership, enforces the terminal state, and upserts the record.
func (s *reconcilerService) apply(ctx context.Context, op string, rec *domain.SubscriptionRecord, hints []identityHint) (Outcome, error) {
	if rec.SubscriptionID == "" {
		return OutcomeIgnored, domain.Invalid(op, "event has no subscription id")
	}

	existing, err := s.loadSubscription(ctx, op, rec.SubscriptionID)
	if err != nil {
		return OutcomeIgnored, err
	}

	if existing != nil && existing.Status.IsTerminal() && !rec.Status.IsTerminal() {
		s.logger.Info("ignoring update to canceled subscription",
			"subscription_id", rec.SubscriptionID,
			"status", rec.Status,
		)
		return OutcomeIgnored, nil
	}

	if err := s.resolveOwner(ctx, op, rec, existing, hints); err != nil {
		return OutcomeIgnored, err
	}

	rec.Plan = billing.PlanForStatus(rec.Status, rec.PriceID, s.catalog)
	if err := rec.Validate(); err != nil {
		return OutcomeIgnored, err
	}

	_, err = s.subscriptions.UpsertSubscription(ctx, domainSubscriptionToUpsert(rec))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost a race with a cancellation; the store kept the canceled row.
			return OutcomeIgnored, nil
		}
		return OutcomeIgnored, domain.Internal(err, op, "failed to save subscription")
	}

	s.logger.Info("subscription reconciled",
		"user_id", rec.UserID,
		"subscription_id", rec.SubscriptionID,
		"status", rec.Status,
		"plan", rec.Plan,
	)
	return OutcomeApplied, nil
}

// resolveOwner fills rec.UserID from, in order: the subscription metadata, the
// checkout session, the stored record, and the customer store.
func (s *reconcilerService) resolveOwner(ctx context.Context, op string, rec *domain.SubscriptionRecord, existing *domain.SubscriptionRecord, hints []identityHint) error {
	if rec.UserID != uuid.Nil {
		return nil
	}

	for _, h := range hints {
		if h.userID != uuid.Nil {
			s.logger.Debug("subscription owner backfilled", "subscription_id", rec.SubscriptionID, "source", h.source)
			rec.UserID = h.userID
			return nil
		}
	}

	if existing != nil && existing.UserID != uuid.Nil {
		rec.UserID = existing.UserID
		return nil
	}

	if rec.CustomerID != "" && s.customers != nil {
		c, err := s.customers.GetCustomerByStripeID(ctx, rec.CustomerID)
		switch {
		case err == nil:
			rec.UserID = c.UserID
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return domain.Internal(err, op, "failed to look up customer")
		}
	}

	return domain.Invalid(op, "cannot attribute subscription "+rec.SubscriptionID+" to a user")
}

func (s *reconcilerService) loadSubscription(ctx context.Context, op, subscriptionID string) (*domain.SubscriptionRecord, error) {
	row, err := s.subscriptions.GetSubscription(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.Internal(err, op, "failed to load subscription")
	}
	return repoSubscriptionToDomain(row), nil
}

// findForInvoice locates the stored record an invoice refers to. An invoice that
// names a subscription only ever matches that subscription; the customer's latest
// record is used only when the invoice names none. It returns nil when nothing matches.
func (s *reconcilerService) findForInvoice(ctx context.Context, op string, invoice *stripe.Invoice) (*domain.SubscriptionRecord, error) {
	if subID := invoiceSubscriptionID(invoice); subID != "" {
		return s.loadSubscription(ctx, op, subID)
	}

	if invoice.Customer == nil || invoice.Customer.ID == "" {
		return nil, nil
	}

	row, err := s.subscriptions.GetLatestSubscriptionByCustomerID(ctx, invoice.Customer.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.Internal(err, op, "failed to load subscription by customer")
	}
	return repoSubscriptionToDomain(row), nil
}

func invoiceSubscriptionID(invoice *stripe.Invoice) string {
	if invoice.Subscription == nil {
		return ""
	}
	return invoice.Subscription.ID
}

func (s *reconcilerService) recordReceived(ctx context.Context, eventID, eventType string) {
	if s.events == nil || eventID == "" {
		return
	}
	n, err := s.events.RecordWebhookEvent(ctx, repository.RecordWebhookEventParams{
		StripeEventID: eventID,
		EventType:     eventType,
	})
	if err != nil {
		s.logger.Warn("failed to record webhook event", "event_id", eventID, "error", err)
		return
	}
	if n == 0 {
		s.logger.Debug("webhook event redelivered", "event_id", eventID, "type", eventType)
	}
}

func (s *reconcilerService) markProcessed(ctx context.Context, eventID string, procErr error) {
	if s.events == nil || eventID == "" {
		return
	}
	var msg sql.NullString
	if procErr != nil {
		msg = sql.NullString{String: procErr.Error(), Valid: true}
	}
	err := s.events.MarkWebhookEventProcessed(context.WithoutCancel(ctx), repository.MarkWebhookEventProcessedParams{
		StripeEventID: eventID,
		Error:         msg,
	})
	if err != nil {
		s.logger.Warn("failed to mark webhook event processed", "event_id", eventID, "error", err)
	}
}
