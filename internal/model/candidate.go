package model

import "time"

// Method identifies which stage of the cascade produced a candidate.
type Method string

// Classification method constants.
const (
	MethodRule Method = "rule"
	MethodML   Method = "ml"
	MethodLLM  Method = "llm"
)

// Candidate is one method's opinion about a transaction. A Decision
// records every candidate that contributed so reviewers can see the
// full evidence trail.
type Candidate struct {
	Method      Method        `json:"method"`
	Account     string        `json:"account"`
	Rationale   string        `json:"rationale,omitempty"`
	RuleID      int64         `json:"rule_id,omitempty"`
	RuleVersion int           `json:"rule_version,omitempty"`
	RawScore    float64       `json:"raw_score"`
	Confidence  float64       `json:"confidence"`
	Latency     time.Duration `json:"latency,omitempty"`
}
