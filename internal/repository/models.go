package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type BillingCustomer struct {
	UserID           uuid.UUID `json:"user_id"`
	StripeCustomerID string    `json:"stripe_customer_id"`
	Email            string    `json:"email"`
	CreatedAt        time.Time `json:"created_at"`
}

type Subscription struct {
	StripeSubscriptionID string                `json:"stripe_subscription_id"`
	UserID               uuid.UUID             `json:"user_id"`
	StripeCustomerID     string                `json:"stripe_customer_id"`
	StripePriceID        string                `json:"stripe_price_id"`
	Plan                 string                `json:"plan"`
	Status               string                `json:"status"`
	CancelAtPeriodEnd    bool                  `json:"cancel_at_period_end"`
	CanceledAt           sql.NullTime          `json:"canceled_at"`
	CurrentPeriodStart   sql.NullTime          `json:"current_period_start"`
	CurrentPeriodEnd     sql.NullTime          `json:"current_period_end"`
	TrialStart           sql.NullTime          `json:"trial_start"`
	TrialEnd             sql.NullTime          `json:"trial_end"`
	EndedAt              sql.NullTime          `json:"ended_at"`
	Metadata             pqtype.NullRawMessage `json:"metadata"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

type UsageEvent struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

type WebhookEvent struct {
	StripeEventID string         `json:"stripe_event_id"`
	EventType     string         `json:"event_type"`
	ReceivedAt    time.Time      `json:"received_at"`
	ProcessedAt   sql.NullTime   `json:"processed_at"`
	Error         sql.NullString `json:"error"`
}
