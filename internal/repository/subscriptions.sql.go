// source: subscriptions.sql

package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

const subscriptionColumns = `stripe_subscription_id, user_id, stripe_customer_id, stripe_price_id, plan, status,
       cancel_at_period_end, canceled_at, current_period_start, current_period_end,
       trial_start, trial_end, ended_at, metadata, created_at, updated_at`

func scanSubscription(row interface{ Scan(...interface{}) error }) (Subscription, error) {
	var i Subscription
	err := row.Scan(
		&i.StripeSubscriptionID,
		&i.UserID,
		&i.StripeCustomerID,
		&i.StripePriceID,
		&i.Plan,
		&i.Status,
		&i.CancelAtPeriodEnd,
		&i.CanceledAt,
		&i.CurrentPeriodStart,
		&i.CurrentPeriodEnd,
		&i.TrialStart,
		&i.TrialEnd,
		&i.EndedAt,
		&i.Metadata,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getSubscription = `-- name: GetSubscription :one
SELECT ` + subscriptionColumns + `
FROM subscriptions
WHERE stripe_subscription_id = $1
`

func (q *Queries) GetSubscription(ctx context.Context, stripeSubscriptionID string) (Subscription, error) {
	return scanSubscription(q.db.QueryRowContext(ctx, getSubscription, stripeSubscriptionID))
}

const getLatestSubscriptionByCustomerID = `-- name: GetLatestSubscriptionByCustomerID :one
SELECT ` + subscriptionColumns + `
FROM subscriptions
WHERE stripe_customer_id = $1
ORDER BY updated_at DESC
LIMIT 1
`

func (q *Queries) GetLatestSubscriptionByCustomerID(ctx context.Context, stripeCustomerID string) (Subscription, error) {
	return scanSubscription(q.db.QueryRowContext(ctx, getLatestSubscriptionByCustomerID, stripeCustomerID))
}

const getCurrentSubscriptionForUser = `-- name: GetCurrentSubscriptionForUser :one
SELECT ` + subscriptionColumns + `
FROM subscriptions
WHERE user_id = $1
  AND status = ANY($2::text[])
ORDER BY current_period_end DESC NULLS LAST, created_at DESC
LIMIT 1
`

type GetCurrentSubscriptionForUserParams struct {
	UserID   uuid.UUID `json:"user_id"`
	Statuses []string  `json:"statuses"`
}

// GetCurrentSubscriptionForUser returns the user's subscription in one of the
// given statuses with the latest period end.
func (q *Queries) GetCurrentSubscriptionForUser(ctx context.Context, arg GetCurrentSubscriptionForUserParams) (Subscription, error) {
	return scanSubscription(q.db.QueryRowContext(ctx, getCurrentSubscriptionForUser, arg.UserID, pq.Array(arg.Statuses)))
}

// Canceled rows are never moved back to a live status; the conflict update is
// skipped and no row is returned.
const upsertSubscription = `-- name: UpsertSubscription :one
INSERT INTO subscriptions (
    stripe_subscription_id, user_id, stripe_customer_id, stripe_price_id, plan, status,
    cancel_at_period_end, canceled_at, current_period_start, current_period_end,
    trial_start, trial_end, ended_at, metadata
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
)
ON CONFLICT (stripe_subscription_id) DO UPDATE SET
    user_id = EXCLUDED.user_id,
    stripe_customer_id = EXCLUDED.stripe_customer_id,
    stripe_price_id = EXCLUDED.stripe_price_id,
    plan = EXCLUDED.plan,
    status = EXCLUDED.status,
    cancel_at_period_end = EXCLUDED.cancel_at_period_end,
    canceled_at = EXCLUDED.canceled_at,
    current_period_start = EXCLUDED.current_period_start,
    current_period_end = EXCLUDED.current_period_end,
    trial_start = EXCLUDED.trial_start,
    trial_end = EXCLUDED.trial_end,
    ended_at = EXCLUDED.ended_at,
    metadata = EXCLUDED.metadata,
    updated_at = NOW()
WHERE subscriptions.status <> 'canceled' OR EXCLUDED.status = 'canceled'
RETURNING ` + subscriptionColumns

type UpsertSubscriptionParams struct {
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
}

// UpsertSubscription inserts or replaces the row for a subscription id.
// It returns sql.ErrNoRows when the write was refused because the stored row is canceled.
func (q *Queries) UpsertSubscription(ctx context.Context, arg UpsertSubscriptionParams) (Subscription, error) {
	row := q.db.QueryRowContext(ctx, upsertSubscription,
		arg.StripeSubscriptionID,
		arg.UserID,
		arg.StripeCustomerID,
		arg.StripePriceID,
		arg.Plan,
		arg.Status,
		arg.CancelAtPeriodEnd,
		arg.CanceledAt,
		arg.CurrentPeriodStart,
		arg.CurrentPeriodEnd,
		arg.TrialStart,
		arg.TrialEnd,
		arg.EndedAt,
		arg.Metadata,
	)
	return scanSubscription(row)
}
