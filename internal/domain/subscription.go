package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus mirrors the Stripe subscription lifecycle status.
// Unknown statuses are stored verbatim.
type SubscriptionStatus string

const (
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
)

// EntitlingStatuses are the statuses that grant the subscription's tier.
var EntitlingStatuses = []SubscriptionStatus{
	SubscriptionStatusActive,
	SubscriptionStatusTrialing,
}

// IsEntitling returns true if the status grants the subscribed tier.
func (s SubscriptionStatus) IsEntitling() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

// IsTerminal returns true for statuses that can never be left.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCanceled
}

// IsDelinquent returns true when the subscription is waiting on a successful payment.
func (s SubscriptionStatus) IsDelinquent() bool {
	return s == SubscriptionStatusPastDue || s == SubscriptionStatusUnpaid
}

// SubscriptionRecord is the reconciled mirror of one Stripe subscription.
//
// Records are keyed by SubscriptionID and written only by the webhook reconciler.
// UserID is required: a record that cannot be attributed is never persisted.
type SubscriptionRecord struct {
	SubscriptionID     string
	UserID             uuid.UUID
	CustomerID         string
	PriceID            string
	Plan               PlanTier // Snapshot derived at reconcile time
	Status             SubscriptionStatus
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	TrialStart         *time.Time
	TrialEnd           *time.Time
	EndedAt            *time.Time
	Metadata           json.RawMessage
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Validate checks the fields required before a record may be persisted.
func (r *SubscriptionRecord) Validate() error {
	const op = "subscription.validate"
	if r.SubscriptionID == "" {
		return Invalid(op, "subscription id is required")
	}
	if r.UserID == uuid.Nil {
		return Invalid(op, "subscription "+r.SubscriptionID+" has no owning user")
	}
	if r.CustomerID == "" {
		return Invalid(op, "subscription "+r.SubscriptionID+" has no customer")
	}
	if r.Status == "" {
		return Invalid(op, "subscription "+r.SubscriptionID+" has no status")
	}
	return nil
}

// Customer links an authenticated user to their Stripe customer.
type Customer struct {
	UserID           uuid.UUID
	StripeCustomerID string
	Email            string
	CreatedAt        time.Time
}
