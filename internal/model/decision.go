// Package model defines the core domain models used throughout the engine.
package model

import "time"

// ReasonCode explains why a decision landed on its confidence and
// method. This is the primary audit signal shown to reviewers.
type ReasonCode string

// Decision reason constants.
const (
	ReasonRuleMatch      ReasonCode = "rule_match"
	ReasonMLConfident    ReasonCode = "ml_confident"
	ReasonLLMValidated   ReasonCode = "llm_validated"
	ReasonBelowThreshold ReasonCode = "below_threshold"
	ReasonColdStart      ReasonCode = "cold_start"
	ReasonBudgetFallback ReasonCode = "budget_fallback"
	ReasonAnomaly        ReasonCode = "anomaly"
	ReasonRuleConflict   ReasonCode = "rule_conflict"
)

// ReviewStatus tracks what happened to a decision after it was made.
type ReviewStatus string

// Review status constants.
const (
	ReviewPending    ReviewStatus = "pending"
	ReviewAutoPosted ReviewStatus = "auto_posted"
	ReviewApproved   ReviewStatus = "approved"
	ReviewRejected   ReviewStatus = "rejected"
)

// Decision is the blended output for one transaction. Decisions are
// immutable once written; only the review status changes afterwards.
type Decision struct {
	DecidedAt      time.Time
	ID             string
	TransactionID  string
	TenantID       string
	Account        string
	Reason         ReasonCode
	Status         ReviewStatus
	ModelVersion   string
	Candidates     []Candidate
	RuleSetVersion int
	Confidence     float64
	AutoPost       bool
}

// Posted reports whether the decision reached the ledger, either
// automatically or through human approval. Only posted decisions feed
// the rule promotion loop.
func (d *Decision) Posted() bool {
	return d.Status == ReviewAutoPosted || d.Status == ReviewApproved
}
