// Package domain contains core business types and interfaces.
//
// This file defines the quota exceeded error returned by the quota gate.
package domain

import "fmt"

// QuotaExceededError reports a denied generation. It carries the values the
// client needs to render the upgrade prompt.
type QuotaExceededError struct {
	Op         string
	Plan       PlanTier
	DailyLimit int
	Used       int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s: daily quota of %d exceeded on %s plan", e.Op, e.DailyLimit, e.Plan)
}

// QuotaExceeded creates a quota exceeded error from a denied entitlement.
func QuotaExceeded(op string, e *Entitlement) *QuotaExceededError {
	return &QuotaExceededError{
		Op:         op,
		Plan:       e.Tier,
		DailyLimit: e.Quota,
		Used:       e.Used,
	}
}
