package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var subscriptionRowColumns = []string{
	"stripe_subscription_id", "user_id", "stripe_customer_id", "stripe_price_id", "plan", "status",
	"cancel_at_period_end", "canceled_at", "current_period_start", "current_period_end",
	"trial_start", "trial_end", "ended_at", "metadata", "created_at", "updated_at",
}

func newMock(t *testing.T) (*Queries, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestCountUsageEvents(t *testing.T) {
	q, mock := newMock(t)
	ctx := context.Background()

	userID := uuid.New()
	to := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	from := to.Add(-24 * time.Hour)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM usage_events").
		WithArgs(userID, from, to).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(4)))

	count, err := q.CountUsageEvents(ctx, CountUsageEventsParams{UserID: userID, From: from, To: to})
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountUsageEvents_InclusiveBounds(t *testing.T) {
	assert.Contains(t, countUsageEvents, "created_at >= $2")
	assert.Contains(t, countUsageEvents, "created_at <= $3")
}

func TestCreateUsageEvent(t *testing.T) {
	q, mock := newMock(t)

	arg := CreateUsageEventParams{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Model:     "gpt-4o-mini",
		CreatedAt: time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO usage_events").
		WithArgs(arg.ID, arg.UserID, arg.Model, arg.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, q.CreateUsageEvent(context.Background(), arg))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSubscription(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	periodEnd := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	arg := UpsertSubscriptionParams{
		StripeSubscriptionID: "sub_123",
		UserID:               userID,
		StripeCustomerID:     "cus_123",
		StripePriceID:        "price_pro",
		Plan:                 "pro",
		Status:               "active",
		CurrentPeriodEnd:     sql.NullTime{Time: periodEnd, Valid: true},
		Metadata:             pqtype.NullRawMessage{RawMessage: json.RawMessage(`{"user_id":"x"}`), Valid: true},
	}

	t.Run("writes the row", func(t *testing.T) {
		q, mock := newMock(t)

		rows := sqlmock.NewRows(subscriptionRowColumns).AddRow(
			"sub_123", userID.String(), "cus_123", "price_pro", "pro", "active",
			false, nil, nil, periodEnd, nil, nil, nil, []byte(`{"user_id":"x"}`), now, now,
		)
		mock.ExpectQuery("INSERT INTO subscriptions").
			WithArgs(
				"sub_123", userID, "cus_123", "price_pro", "pro", "active",
				false, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			).
			WillReturnRows(rows)

		sub, err := q.UpsertSubscription(ctx, arg)
		require.NoError(t, err)
		assert.Equal(t, "sub_123", sub.StripeSubscriptionID)
		assert.Equal(t, userID, sub.UserID)
		assert.Equal(t, "active", sub.Status)
		assert.True(t, sub.CurrentPeriodEnd.Valid)
		assert.False(t, sub.CanceledAt.Valid)
		assert.True(t, sub.Metadata.Valid)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("refused for canceled row", func(t *testing.T) {
		q, mock := newMock(t)

		mock.ExpectQuery("INSERT INTO subscriptions").
			WillReturnRows(sqlmock.NewRows(subscriptionRowColumns))

		_, err := q.UpsertSubscription(ctx, arg)
		assert.ErrorIs(t, err, sql.ErrNoRows)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpsertSubscription_CanceledIsTerminal(t *testing.T) {
	assert.Contains(t, upsertSubscription, "ON CONFLICT (stripe_subscription_id) DO UPDATE")
	assert.Contains(t, upsertSubscription, "WHERE subscriptions.status <> 'canceled' OR EXCLUDED.status = 'canceled'")
}

func TestGetCurrentSubscriptionForUser(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now().UTC()

	t.Run("found", func(t *testing.T) {
		q, mock := newMock(t)

		rows := sqlmock.NewRows(subscriptionRowColumns).AddRow(
			"sub_1", userID.String(), "cus_1", "price_ult", "ultimate", "trialing",
			true, nil, now, now.Add(24*time.Hour), now, now.Add(24*time.Hour), nil, nil, now, now,
		)
		mock.ExpectQuery("SELECT (.+) FROM subscriptions").
			WithArgs(userID, sqlmock.AnyArg()).
			WillReturnRows(rows)

		sub, err := q.GetCurrentSubscriptionForUser(ctx, GetCurrentSubscriptionForUserParams{
			UserID:   userID,
			Statuses: []string{"active", "trialing"},
		})
		require.NoError(t, err)
		assert.Equal(t, "price_ult", sub.StripePriceID)
		assert.True(t, sub.CancelAtPeriodEnd)
		assert.False(t, sub.Metadata.Valid)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("none", func(t *testing.T) {
		q, mock := newMock(t)

		mock.ExpectQuery("SELECT (.+) FROM subscriptions").
			WithArgs(userID, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(subscriptionRowColumns))

		_, err := q.GetCurrentSubscriptionForUser(ctx, GetCurrentSubscriptionForUserParams{
			UserID:   userID,
			Statuses: []string{"active", "trialing"},
		})
		assert.ErrorIs(t, err, sql.ErrNoRows)
	})

	t.Run("ordering", func(t *testing.T) {
		assert.Contains(t, getCurrentSubscriptionForUser, "ORDER BY current_period_end DESC NULLS LAST, created_at DESC")
	})
}

func TestCustomers(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	now := time.Now().UTC()

	t.Run("upsert", func(t *testing.T) {
		q, mock := newMock(t)
		mock.ExpectQuery("INSERT INTO billing_customers").
			WithArgs(userID, "cus_9", "a@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "stripe_customer_id", "email", "created_at"}).
				AddRow(userID.String(), "cus_9", "a@example.com", now))

		c, err := q.UpsertCustomer(ctx, UpsertCustomerParams{UserID: userID, StripeCustomerID: "cus_9", Email: "a@example.com"})
		require.NoError(t, err)
		assert.Equal(t, "cus_9", c.StripeCustomerID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lookup by stripe id", func(t *testing.T) {
		q, mock := newMock(t)
		mock.ExpectQuery("SELECT (.+) FROM billing_customers").
			WithArgs("cus_9").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "stripe_customer_id", "email", "created_at"}).
				AddRow(userID.String(), "cus_9", "", now))

		c, err := q.GetCustomerByStripeID(ctx, "cus_9")
		require.NoError(t, err)
		assert.Equal(t, userID, c.UserID)
	})
}

func TestRecordWebhookEvent(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		affected int64
	}{
		{"first delivery", 1},
		{"redelivery", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, mock := newMock(t)
			mock.ExpectExec("INSERT INTO webhook_events").
				WithArgs("evt_1", "customer.subscription.updated").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			n, err := q.RecordWebhookEvent(ctx, RecordWebhookEventParams{
				StripeEventID: "evt_1",
				EventType:     "customer.subscription.updated",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.affected, n)
		})
	}
}

func TestMarkWebhookEventProcessed(t *testing.T) {
	q, mock := newMock(t)
	mock.ExpectExec("UPDATE webhook_events").
		WithArgs("evt_1", sql.NullString{String: "boom", Valid: true}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := q.MarkWebhookEventProcessed(context.Background(), MarkWebhookEventProcessedParams{
		StripeEventID: "evt_1",
		Error:         sql.NullString{String: "boom", Valid: true},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
