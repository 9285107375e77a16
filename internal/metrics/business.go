package metrics

import "time"

// QuotaDecision records an admit or deny from the quota gate
func QuotaDecision(allowed bool, plan string) {
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	QuotaDecisionsTotal.WithLabelValues(decision, plan).Inc()
}

// UsageRecordFailed records a generation that succeeded but was not counted
func UsageRecordFailed() {
	UsageRecordFailuresTotal.Inc()
}

// WebhookProcessed records the outcome of one webhook event
func WebhookProcessed(eventType, outcome string, duration time.Duration) {
	WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
	WebhookDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

// GenerationCompleted records a successful generation and its token usage
func GenerationCompleted(duration time.Duration, inputTokens, outputTokens int) {
	GenerationsTotal.WithLabelValues("success").Inc()
	GenerationDuration.Observe(duration.Seconds())
	AITokensTotal.WithLabelValues("input").Add(float64(inputTokens))
	AITokensTotal.WithLabelValues("output").Add(float64(outputTokens))
}

// GenerationFailed records a failed call to the AI provider
func GenerationFailed() {
	GenerationsTotal.WithLabelValues("failed").Inc()
}
