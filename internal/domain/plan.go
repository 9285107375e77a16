// Package domain contains core business types and interfaces.
//
// This file defines plan tiers and the plan catalog that maps Stripe price IDs
// to tiers and tiers to daily generation quotas.
package domain

import (
	"sort"
	"strings"
)

// PlanTier is the internal entitlement level governing the daily quota.
type PlanTier string

const (
	PlanFree     PlanTier = "free"
	PlanPro      PlanTier = "pro"
	PlanUltimate PlanTier = "ultimate"
)

// Default daily quotas per tier.
const (
	DefaultFreeQuota     = 5
	DefaultProQuota      = 150
	DefaultUltimateQuota = 1500
)

// Valid reports whether the tier is one of the known tiers.
func (t PlanTier) Valid() bool {
	switch t {
	case PlanFree, PlanPro, PlanUltimate:
		return true
	default:
		return false
	}
}

// ParsePlanTier normalizes a tier name. Unknown names resolve to free.
func ParsePlanTier(s string) PlanTier {
	t := PlanTier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return PlanFree
	}
	return t
}

// PlanCatalog maps price IDs to tiers and tiers to daily quotas.
//
// A catalog is built once at start-up and never mutated. Both lookups are total:
// they never fail and fall back to the free tier.
type PlanCatalog struct {
	priceToTier map[string]PlanTier
	tierQuota   map[PlanTier]int
}

// NewPlanCatalog builds a catalog from the given tables. The maps are copied.
// Tiers missing from quotas get the default quota for that tier.
func NewPlanCatalog(prices map[string]PlanTier, quotas map[PlanTier]int) PlanCatalog {
	c := PlanCatalog{
		priceToTier: make(map[string]PlanTier, len(prices)),
		tierQuota: map[PlanTier]int{
			PlanFree:     DefaultFreeQuota,
			PlanPro:      DefaultProQuota,
			PlanUltimate: DefaultUltimateQuota,
		},
	}
	for priceID, tier := range prices {
		priceID = strings.TrimSpace(priceID)
		if priceID == "" || !tier.Valid() {
			continue
		}
		c.priceToTier[priceID] = tier
	}
	for tier, quota := range quotas {
		if !tier.Valid() || quota < 0 {
			continue
		}
		c.tierQuota[tier] = quota
	}
	return c
}

// ResolveTier returns the tier for a price ID. Empty or unmapped IDs resolve to free.
func (c PlanCatalog) ResolveTier(priceID string) PlanTier {
	if priceID == "" {
		return PlanFree
	}
	if tier, ok := c.priceToTier[priceID]; ok {
		return tier
	}
	return PlanFree
}

// ResolveQuota returns the daily quota for a tier, defaulting to the free quota.
func (c PlanCatalog) ResolveQuota(tier PlanTier) int {
	if quota, ok := c.tierQuota[tier]; ok {
		return quota
	}
	if quota, ok := c.tierQuota[PlanFree]; ok {
		return quota
	}
	return DefaultFreeQuota
}

// Quotas returns a copy of the tier -> quota table.
func (c PlanCatalog) Quotas() map[PlanTier]int {
	out := make(map[PlanTier]int, len(c.tierQuota))
	for tier, quota := range c.tierQuota {
		out[tier] = quota
	}
	return out
}

// PriceIDs returns the price IDs mapped to the given tier.
func (c PlanCatalog) PriceIDs(tier PlanTier) []string {
	var ids []string
	for id, t := range c.priceToTier {
		if t == tier {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// HasPrice reports whether the price ID is sold by this service.
func (c PlanCatalog) HasPrice(priceID string) bool {
	_, ok := c.priceToTier[priceID]
	return ok
}
