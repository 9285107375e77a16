package service

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/sqlc-dev/pqtype"

	"github.com/DukeRupert/magicsocial/internal/domain"
	"github.com/DukeRupert/magicsocial/internal/repository"
)

// repoSubscriptionToDomain converts a repository.Subscription to a domain.SubscriptionRecord.
func repoSubscriptionToDomain(s repository.Subscription) *domain.SubscriptionRecord {
	rec := &domain.SubscriptionRecord{
		SubscriptionID:     s.StripeSubscriptionID,
		UserID:             s.UserID,
		CustomerID:         s.StripeCustomerID,
		PriceID:            s.StripePriceID,
		Plan:               domain.ParsePlanTier(s.Plan),
		Status:             domain.SubscriptionStatus(s.Status),
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		CanceledAt:         fromNullTime(s.CanceledAt),
		CurrentPeriodStart: fromNullTime(s.CurrentPeriodStart),
		CurrentPeriodEnd:   fromNullTime(s.CurrentPeriodEnd),
		TrialStart:         fromNullTime(s.TrialStart),
		TrialEnd:           fromNullTime(s.TrialEnd),
		EndedAt:            fromNullTime(s.EndedAt),
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
	if s.Metadata.Valid {
		rec.Metadata = json.RawMessage(s.Metadata.RawMessage)
	}
	return rec
}

// domainSubscriptionToUpsert converts a record into upsert parameters.
func domainSubscriptionToUpsert(rec *domain.SubscriptionRecord) repository.UpsertSubscriptionParams {
	return repository.UpsertSubscriptionParams{
		StripeSubscriptionID: rec.SubscriptionID,
		UserID:               rec.UserID,
		StripeCustomerID:     rec.CustomerID,
		StripePriceID:        rec.PriceID,
		Plan:                 string(rec.Plan),
		Status:               string(rec.Status),
		CancelAtPeriodEnd:    rec.CancelAtPeriodEnd,
		CanceledAt:           toNullTime(rec.CanceledAt),
		CurrentPeriodStart:   toNullTime(rec.CurrentPeriodStart),
		CurrentPeriodEnd:     toNullTime(rec.CurrentPeriodEnd),
		TrialStart:           toNullTime(rec.TrialStart),
		TrialEnd:             toNullTime(rec.TrialEnd),
		EndedAt:              toNullTime(rec.EndedAt),
		Metadata:             toNullRawMessage(rec.Metadata),
	}
}

func repoCustomerToDomain(c repository.BillingCustomer) *domain.Customer {
	return &domain.Customer{
		UserID:           c.UserID,
		StripeCustomerID: c.StripeCustomerID,
		Email:            c.Email,
		CreatedAt:        c.CreatedAt,
	}
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func toNullRawMessage(raw json.RawMessage) pqtype.NullRawMessage {
	if len(raw) == 0 {
		return pqtype.NullRawMessage{}
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}
}
