// source: customers.sql

package repository

import (
	"context"

	"github.com/google/uuid"
)

const getCustomerByUserID = `-- name: GetCustomerByUserID :one
SELECT user_id, stripe_customer_id, email, created_at
FROM billing_customers
WHERE user_id = $1
`

func (q *Queries) GetCustomerByUserID(ctx context.Context, userID uuid.UUID) (BillingCustomer, error) {
	row := q.db.QueryRowContext(ctx, getCustomerByUserID, userID)
	var i BillingCustomer
	err := row.Scan(
		&i.UserID,
		&i.StripeCustomerID,
		&i.Email,
		&i.CreatedAt,
	)
	return i, err
}

const getCustomerByStripeID = `-- name: GetCustomerByStripeID :one
SELECT user_id, stripe_customer_id, email, created_at
FROM billing_customers
WHERE stripe_customer_id = $1
`

func (q *Queries) GetCustomerByStripeID(ctx context.Context, stripeCustomerID string) (BillingCustomer, error) {
	row := q.db.QueryRowContext(ctx, getCustomerByStripeID, stripeCustomerID)
	var i BillingCustomer
	err := row.Scan(
		&i.UserID,
		&i.StripeCustomerID,
		&i.Email,
		&i.CreatedAt,
	)
	return i, err
}

const upsertCustomer = `-- name: UpsertCustomer :one
INSERT INTO billing_customers (user_id, stripe_customer_id, email)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET
    stripe_customer_id = EXCLUDED.stripe_customer_id,
    email = EXCLUDED.email
RETURNING user_id, stripe_customer_id, email, created_at
`

type UpsertCustomerParams struct {
	UserID           uuid.UUID `json:"user_id"`
	StripeCustomerID string    `json:"stripe_customer_id"`
	Email            string    `json:"email"`
}

func (q *Queries) UpsertCustomer(ctx context.Context, arg UpsertCustomerParams) (BillingCustomer, error) {
	row := q.db.QueryRowContext(ctx, upsertCustomer, arg.UserID, arg.StripeCustomerID, arg.Email)
	var i BillingCustomer
	err := row.Scan(
		&i.UserID,
		&i.StripeCustomerID,
		&i.Email,
		&i.CreatedAt,
	)
	return i, err
}
