// Package service contains the business logic layer.
//
// This file implements the quota gate that admits or denies metered
// generations against the user's sliding 24 hour window.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/magicsocial/internal/domain"
	"github.com/DukeRupert/magicsocial/internal/metrics"
	"github.com/DukeRupert/magicsocial/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// QuotaService defines operations for checking and consuming generation quota.
//
// Admission and recording are separate steps, so two concurrent requests may both
// be admitted with one unit remaining. The limit is soft by a small margin.
type QuotaService interface {
	// Admit checks the user's remaining quota. A denial is not an error.
	Admit(ctx context.Context, userID uuid.UUID) (*domain.Decision, error)

	// Record appends one usage event for a completed generation.
	Record(ctx context.Context, userID uuid.UUID, model string) error

	// Run admits, calls fn, and records usage only if fn succeeds.
	// A denial returns *domain.QuotaExceededError and fn is not called.
	Run(ctx context.Context, userID uuid.UUID, model string, fn func(ctx context.Context) error) (*domain.Decision, error)
}

// UsageRecorder appends usage ledger events.
type UsageRecorder interface {
	CreateUsageEvent(ctx context.Context, arg repository.CreateUsageEventParams) error
}

// =============================================================================
// Implementation
// =============================================================================

type quotaService struct {
	entitlements EntitlementService
	usage        UsageRecorder
	logger       *slog.Logger
	now          func() time.Time
}

// NewQuotaService creates a new QuotaService.
func NewQuotaService(entitlements EntitlementService, usage UsageRecorder, logger *slog.Logger) QuotaService {
	return &quotaService{
		entitlements: entitlements,
		usage:        usage,
		logger:       logger,
		now:          time.Now,
	}
}

// Admit checks the user's remaining quota.
func (s *quotaService) Admit(ctx context.Context, userID uuid.UUID) (*domain.Decision, error) {
	ent, err := s.entitlements.Resolve(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, err
	}

	if ent.Exhausted() {
		metrics.QuotaDecision(false, string(ent.Tier))
		s.logger.Info("Generation quota exceeded",
			"user_id", userID,
			"tier", ent.Tier,
			"used", ent.Used,
			"limit", ent.Quota,
		)
		return domain.Deny(domain.DenyReasonQuotaExceeded, ent), nil
	}

	metrics.QuotaDecision(true, string(ent.Tier))
	return domain.Allow(ent), nil
}

// Record appends one usage event for a completed generation.
func (s *quotaService) Record(ctx context.Context, userID uuid.UUID, model string) error {
	const op = "quota.record"

	err := s.usage.CreateUsageEvent(ctx, repository.CreateUsageEventParams{
		ID:        uuid.New(),
		UserID:    userID,
		Model:     model,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return domain.Internal(err, op, "failed to record usage")
	}
	return nil
}

// Run admits, calls fn, and records usage only if fn succeeds.
//
// A failure to record after fn succeeded is logged and counted but not returned:
// the caller already holds the result and the user is not charged for it.
func (s *quotaService) Run(ctx context.Context, userID uuid.UUID, model string, fn func(ctx context.Context) error) (*domain.Decision, error) {
	const op = "quota.run"

	decision, err := s.Admit(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return decision, domain.QuotaExceeded(op, decision.Entitlement)
	}

	if err := fn(ctx); err != nil {
		return decision, err
	}

	// The request context may already be done once the response is ready.
	recordCtx := context.WithoutCancel(ctx)
	if err := s.Record(recordCtx, userID, model); err != nil {
		metrics.UsageRecordFailed()
		s.logger.Error("failed to record usage after successful generation",
			"error", err,
			"user_id", userID,
			"model", model,
		)
		return decision, nil
	}

	decision.Entitlement.Used++
	if decision.Entitlement.Remaining > 0 {
		decision.Entitlement.Remaining--
	}
	return decision, nil
}
