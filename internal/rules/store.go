// Package rules implements the versioned deterministic rule store and
// the first-match-wins rule matcher.
package rules

import (
	"sort"
	"sync"

	"github.com/finchbooks/finch/internal/model"
)

// Store holds the active rule set for one tenant. The set is
// append-only: edits and promotions add new versions, and the
// classification path only ever reads an immutable snapshot. The store
// version increments with every append so decisions can record exactly
// which rule set they were made under.
type Store struct {
	mu      sync.RWMutex
	rules   []model.Rule
	version int
}

// NewStore creates a store from an initial rule set loaded from
// persistence.
func NewStore(rules []model.Rule, version int) *Store {
	s := &Store{
		rules:   make([]model.Rule, len(rules)),
		version: version,
	}
	copy(s.rules, rules)
	s.sortLocked()
	return s
}

// Snapshot returns the active rules in evaluation order along with the
// rule set version. The returned slice must not be modified.
func (s *Store) Snapshot() ([]model.Rule, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rules, s.version
}

// Version returns the current rule set version.
func (s *Store) Version() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Append adds newly promoted or edited rule versions and returns the
// new rule set version. Earlier versions of a rule are deactivated in
// the snapshot, never removed from persistence.
func (s *Store) Append(rules ...model.Rule) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]model.Rule, 0, len(s.rules)+len(rules))
	for _, existing := range s.rules {
		superseded := false
		for _, r := range rules {
			if r.ID == existing.ID && r.Version > existing.Version {
				superseded = true
				break
			}
		}
		if !superseded {
			next = append(next, existing)
		}
	}
	next = append(next, rules...)

	s.rules = next
	s.version++
	s.sortLocked()
	return s.version
}

// Replace swaps in a freshly loaded rule set, typically after the
// promotion job appended rules through persistence.
func (s *Store) Replace(rules []model.Rule, version int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = make([]model.Rule, len(rules))
	copy(s.rules, rules)
	s.version = version
	s.sortLocked()
}

// sortLocked orders rules for evaluation: specificity descending, then
// historical precision descending, then most recently promoted first.
func (s *Store) sortLocked() {
	sort.SliceStable(s.rules, func(i, j int) bool {
		a, b := &s.rules[i], &s.rules[j]
		if a.Specificity() != b.Specificity() {
			return a.Specificity() > b.Specificity()
		}
		if a.Precision != b.Precision {
			return a.Precision > b.Precision
		}
		return a.PromotedAt.After(b.PromotedAt)
	})
}
