package domain

import "time"

// UsageWindow is the length of the sliding window the daily quota is evaluated over.
const UsageWindow = 24 * time.Hour

// Entitlement is a user's resolved plan and quota state at one instant.
type Entitlement struct {
	Tier      PlanTier
	Quota     int
	Used      int64
	Remaining int64
}

// Exhausted returns true when no quota remains.
func (e *Entitlement) Exhausted() bool {
	return e.Remaining <= 0
}

// DenyReasonQuotaExceeded is the reason attached to a quota denial.
const DenyReasonQuotaExceeded = "quota exceeded"

// Decision is the outcome of a quota gate check.
type Decision struct {
	Allowed     bool
	Reason      string // Set when Allowed is false
	Entitlement *Entitlement
}

// Allow creates an admitting decision.
func Allow(e *Entitlement) *Decision {
	return &Decision{Allowed: true, Entitlement: e}
}

// Deny creates a rejecting decision.
func Deny(reason string, e *Entitlement) *Decision {
	return &Decision{Allowed: false, Reason: reason, Entitlement: e}
}
