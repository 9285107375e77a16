// Package service contains the business logic layer.
//
// This file implements the entitlement resolver, which turns the reconciled
// subscription mirror and the usage ledger into a user's plan and remaining quota.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/magicsocial/internal/domain"
	"github.com/DukeRupert/magicsocial/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// EntitlementService resolves plan and quota state. It never writes.
type EntitlementService interface {
	// Resolve returns the user's tier, quota and usage in the window ending at now.
	Resolve(ctx context.Context, userID uuid.UUID, now time.Time) (*domain.Entitlement, error)

	// CurrentSubscription returns the user's active or trialing subscription, or nil.
	CurrentSubscription(ctx context.Context, userID uuid.UUID) (*domain.SubscriptionRecord, error)

	// CountUsage counts usage events in the closed interval [from, to].
	CountUsage(ctx context.Context, userID uuid.UUID, from, to time.Time) (int64, error)
}

// SubscriptionReader is the read side of the subscription store used by the resolver.
type SubscriptionReader interface {
	GetCurrentSubscriptionForUser(ctx context.Context, arg repository.GetCurrentSubscriptionForUserParams) (repository.Subscription, error)
}

// UsageCounter counts usage ledger events.
type UsageCounter interface {
	CountUsageEvents(ctx context.Context, arg repository.CountUsageEventsParams) (int64, error)
}

// =============================================================================
// Implementation
// =============================================================================

type entitlementService struct {
	subscriptions SubscriptionReader
	usage         UsageCounter
	catalog       domain.PlanCatalog
	logger        *slog.Logger
}

// NewEntitlementService creates a new EntitlementService.
func NewEntitlementService(subscriptions SubscriptionReader, usage UsageCounter, catalog domain.PlanCatalog, logger *slog.Logger) EntitlementService {
	return &entitlementService{
		subscriptions: subscriptions,
		usage:         usage,
		catalog:       catalog,
		logger:        logger,
	}
}

// Resolve returns the user's tier, quota and usage in the window ending at now.
func (s *entitlementService) Resolve(ctx context.Context, userID uuid.UUID, now time.Time) (*domain.Entitlement, error) {
	const op = "entitlement.resolve"

	sub, err := s.CurrentSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	tier := domain.PlanFree
	if sub != nil {
		tier = s.catalog.ResolveTier(sub.PriceID)
		if tier == domain.PlanFree {
			s.logger.Warn("entitling subscription has unmapped price",
				"user_id", userID,
				"subscription_id", sub.SubscriptionID,
				"price_id", sub.PriceID,
			)
		}
	}
	quota := s.catalog.ResolveQuota(tier)

	used, err := s.usage.CountUsageEvents(ctx, repository.CountUsageEventsParams{
		UserID: userID,
		From:   now.Add(-domain.UsageWindow),
		To:     now,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to count usage")
	}

	remaining := int64(quota) - used
	if remaining < 0 {
		remaining = 0
	}

	return &domain.Entitlement{
		Tier:      tier,
		Quota:     quota,
		Used:      used,
		Remaining: remaining,
	}, nil
}

// CurrentSubscription returns the user's active or trialing subscription, or nil.
func (s *entitlementService) CurrentSubscription(ctx context.Context, userID uuid.UUID) (*domain.SubscriptionRecord, error) {
	const op = "entitlement.current_subscription"

	statuses := make([]string, 0, len(domain.EntitlingStatuses))
	for _, st := range domain.EntitlingStatuses {
		statuses = append(statuses, string(st))
	}

	row, err := s.subscriptions.GetCurrentSubscriptionForUser(ctx, repository.GetCurrentSubscriptionForUserParams{
		UserID:   userID,
		Statuses: statuses,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.Internal(err, op, "failed to load subscription")
	}
	return repoSubscriptionToDomain(row), nil
}

// CountUsage counts usage events in the closed interval [from, to].
func (s *entitlementService) CountUsage(ctx context.Context, userID uuid.UUID, from, to time.Time) (int64, error) {
	const op = "entitlement.count_usage"

	if from.After(to) {
		return 0, domain.Invalid(op, "from must not be after to")
	}

	count, err := s.usage.CountUsageEvents(ctx, repository.CountUsageEventsParams{
		UserID: userID,
		From:   from,
		To:     to,
	})
	if err != nil {
		return 0, domain.Internal(err, op, "failed to count usage")
	}
	return count, nil
}
