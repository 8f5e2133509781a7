package model

import "time"

// PromotionCandidate is a mined counterparty pattern proposed as a new
// deterministic rule. It becomes a Rule version only if it clears the
// support and precision thresholds.
type PromotionCandidate struct {
	MinedAt      time.Time
	TenantID     string
	Counterparty string
	Account      string
	Support      int
	Precision    float64
	Accepted     bool
}
