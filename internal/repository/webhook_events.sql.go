// source: webhook_events.sql

package repository

import (
	"context"
	"database/sql"
)

const recordWebhookEvent = `-- name: RecordWebhookEvent :execrows
INSERT INTO webhook_events (stripe_event_id, event_type)
VALUES ($1, $2)
ON CONFLICT (stripe_event_id) DO NOTHING
`

type RecordWebhookEventParams struct {
	StripeEventID string `json:"stripe_event_id"`
	EventType     string `json:"event_type"`
}

// RecordWebhookEvent returns the number of rows inserted: 0 for a redelivery.
func (q *Queries) RecordWebhookEvent(ctx context.Context, arg RecordWebhookEventParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, recordWebhookEvent, arg.StripeEventID, arg.EventType)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const markWebhookEventProcessed = `-- name: MarkWebhookEventProcessed :exec
UPDATE webhook_events
SET processed_at = NOW(), error = $2
WHERE stripe_event_id = $1
`

type MarkWebhookEventProcessedParams struct {
	StripeEventID string         `json:"stripe_event_id"`
	Error         sql.NullString `json:"error"`
}

func (q *Queries) MarkWebhookEventProcessed(ctx context.Context, arg MarkWebhookEventProcessedParams) error {
	_, err := q.db.ExecContext(ctx, markWebhookEventProcessed, arg.StripeEventID, arg.Error)
	return err
}
