package rules

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/finchbooks/finch/internal/feature"
	"github.com/finchbooks/finch/internal/model"
)

// MatchResult is the outcome of evaluating a transaction against the
// active rule set. A transaction with no matching rule yields a zero
// result, never an error.
type MatchResult struct {
	Candidate *model.Candidate
	// Conflict is set when two rules of equal specificity and equal
	// precision disagree on the target account. The blender routes
	// conflicts to human review.
	Conflict        bool
	ConflictAccount string
}

// Matched reports whether any rule applied.
func (r MatchResult) Matched() bool {
	return r.Candidate != nil
}

// Matcher evaluates the ordered rule set against transactions.
// Compiled regex patterns are cached per rule version.
type Matcher struct {
	store    *Store
	mu       sync.Mutex
	compiled map[string]*regexp.Regexp
}

// NewMatcher creates a matcher backed by the given store.
func NewMatcher(store *Store) *Matcher {
	return &Matcher{
		store:    store,
		compiled: make(map[string]*regexp.Regexp),
	}
}

// Match evaluates a transaction against the active rules. Exact
// counterparty rules are evaluated before pattern rules; the store
// keeps rules in that order, so the first hit wins. The rule's
// historical precision becomes the candidate's confidence, letting
// low-precision legacy rules contribute a calibrated signal instead of
// a fixed constant.
func (m *Matcher) Match(_ context.Context, txn model.Transaction) (MatchResult, error) {
	ordered, version := m.store.Snapshot()
	counterparty := feature.NormalizeCounterparty(txn.Counterparty)

	started := time.Now()
	var first *model.Rule
	for i := range ordered {
		rule := &ordered[i]
		if !rule.Active || rule.TenantID != txn.TenantID {
			continue
		}
		if !m.ruleApplies(rule, txn, counterparty) {
			continue
		}

		if first == nil {
			first = rule
			continue
		}

		// A later rule can only conflict while it ties the winner on
		// both specificity and precision; anything below that lost the
		// tie-break legitimately.
		if rule.Specificity() == first.Specificity() &&
			rule.Precision == first.Precision &&
			rule.Account != first.Account {
			return MatchResult{
				Candidate:       m.candidate(first, version, started),
				Conflict:        true,
				ConflictAccount: rule.Account,
			}, nil
		}
		break
	}

	if first == nil {
		return MatchResult{}, nil
	}
	return MatchResult{Candidate: m.candidate(first, version, started)}, nil
}

func (m *Matcher) candidate(rule *model.Rule, version int, started time.Time) *model.Candidate {
	kind := "exact"
	if rule.IsRegex {
		kind = "pattern"
	}
	return &model.Candidate{
		Method:      model.MethodRule,
		Account:     rule.Account,
		RawScore:    rule.Precision,
		Confidence:  rule.Precision,
		Latency:     time.Since(started),
		RuleID:      rule.ID,
		RuleVersion: rule.Version,
		Rationale: fmt.Sprintf("%s rule %d v%d matched %q (precision %.2f over %d observations)",
			kind, rule.ID, rule.Version, rule.Pattern, rule.Precision, rule.Support),
	}
}

func (m *Matcher) ruleApplies(rule *model.Rule, txn model.Transaction, counterparty string) bool {
	if !rule.IsRegex {
		return rule.MatchesExact(counterparty)
	}

	re := m.pattern(rule)
	if re == nil {
		return false
	}
	if counterparty != "" && re.MatchString(counterparty) {
		return true
	}
	return re.MatchString(feature.NormalizeCounterparty(txn.Description))
}

func (m *Matcher) pattern(rule *model.Rule) *regexp.Regexp {
	key := fmt.Sprintf("%d:%d", rule.ID, rule.Version)

	m.mu.Lock()
	defer m.mu.Unlock()

	if re, ok := m.compiled[key]; ok {
		return re
	}
	re, err := regexp.Compile("(?i)" + rule.Pattern)
	if err != nil {
		// Invalid patterns are rejected at append time; a stale one
		// simply never matches.
		m.compiled[key] = nil
		return nil
	}
	m.compiled[key] = re
	return re
}
