// source: usage.sql

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const countUsageEvents = `-- name: CountUsageEvents :one
SELECT COUNT(*) FROM usage_events
WHERE user_id = $1
  AND created_at >= $2
  AND created_at <= $3
`

type CountUsageEventsParams struct {
	UserID uuid.UUID `json:"user_id"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
}

// CountUsageEvents counts events in the closed interval [From, To].
func (q *Queries) CountUsageEvents(ctx context.Context, arg CountUsageEventsParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countUsageEvents, arg.UserID, arg.From, arg.To)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const createUsageEvent = `-- name: CreateUsageEvent :exec
INSERT INTO usage_events (id, user_id, model, created_at)
VALUES ($1, $2, $3, $4)
`

type CreateUsageEventParams struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

func (q *Queries) CreateUsageEvent(ctx context.Context, arg CreateUsageEventParams) error {
	_, err := q.db.ExecContext(ctx, createUsageEvent,
		arg.ID,
		arg.UserID,
		arg.Model,
		arg.CreatedAt,
	)
	return err
}
