package model

import (
	"strings"
	"time"
)

// RuleSource indicates who promoted a rule version.
type RuleSource string

// Rule source constants.
const (
	RuleSourceHuman     RuleSource = "human"
	RuleSourcePromotion RuleSource = "promotion"
)

// Rule is one version of a deterministic counterparty/pattern to account
// mapping. Rules are append-only: an edit creates a new version rather
// than mutating history, so any past decision can name the exact version
// it was made under.
type Rule struct {
	PromotedAt time.Time
	Pattern    string
	Account    string
	TenantID   string
	PromotedBy RuleSource
	ID         int64
	Version    int
	Support    int
	Precision  float64
	IsRegex    bool
	Active     bool
}

// Specificity orders rules for first-match-wins evaluation. Exact
// counterparty rules always beat pattern rules; among patterns, a longer
// pattern is considered more specific.
func (r *Rule) Specificity() int {
	if !r.IsRegex {
		return 1 << 20
	}
	return len(r.Pattern)
}

// MatchesExact reports whether the rule is an exact rule matching the
// given counterparty (case-insensitive).
func (r *Rule) MatchesExact(counterparty string) bool {
	if r.IsRegex || counterparty == "" {
		return false
	}
	return strings.EqualFold(r.Pattern, counterparty)
}
