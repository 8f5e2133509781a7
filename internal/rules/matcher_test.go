package rules

import (
	"context"
	"testing"
	"time"

	"github.com/finchbooks/finch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeRule(id int64, pattern string, regex bool, account string, precision float64) model.Rule {
	return model.Rule{
		ID:         id,
		Version:    1,
		TenantID:   "acme",
		Pattern:    pattern,
		IsRegex:    regex,
		Account:    account,
		Precision:  precision,
		Support:    50,
		Active:     true,
		PromotedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		PromotedBy: model.RuleSourceHuman,
	}
}

func TestMatcher_ExactBeatsPattern(t *testing.T) {
	store := NewStore([]model.Rule{
		activeRule(1, `amazon.*`, true, "Shopping", 0.99),
		activeRule(2, "Amazon Marketplace", false, "Office Supplies", 0.90),
	}, 1)
	m := NewMatcher(store)

	result, err := m.Match(context.Background(), model.Transaction{
		TenantID:     "acme",
		Counterparty: "Amazon Marketplace",
		Description:  "AMZN MKTP US",
	})
	require.NoError(t, err)
	require.True(t, result.Matched())

	// The exact rule wins despite the pattern rule's higher precision.
	assert.Equal(t, "Office Supplies", result.Candidate.Account)
	assert.Equal(t, int64(2), result.Candidate.RuleID)
	assert.InDelta(t, 0.90, result.Candidate.Confidence, 1e-9)
	assert.False(t, result.Conflict)
}

func TestMatcher_ConfidenceIsRulePrecision(t *testing.T) {
	store := NewStore([]model.Rule{
		activeRule(1, "Old Vendor Inc", false, "Utilities", 0.62),
	}, 1)
	m := NewMatcher(store)

	result, err := m.Match(context.Background(), model.Transaction{
		TenantID:     "acme",
		Counterparty: "OLD VENDOR INC",
	})
	require.NoError(t, err)
	require.True(t, result.Matched())
	assert.InDelta(t, 0.62, result.Candidate.Confidence, 1e-9)
	assert.Equal(t, model.MethodRule, result.Candidate.Method)
}

func TestMatcher_PrecisionTieBreaksEqualSpecificity(t *testing.T) {
	low := activeRule(1, `star.{4}s`, true, "Dining", 0.70)
	high := activeRule(2, `.{3}bucks`, true, "Coffee", 0.95)
	store := NewStore([]model.Rule{low, high}, 1)
	m := NewMatcher(store)

	result, err := m.Match(context.Background(), model.Transaction{
		TenantID:    "acme",
		Description: "STARBUCKS STORE 1234",
	})
	require.NoError(t, err)
	require.True(t, result.Matched())
	assert.Equal(t, "Coffee", result.Candidate.Account)
	assert.False(t, result.Conflict)
}

func TestMatcher_RecencyBreaksFullTie(t *testing.T) {
	older := activeRule(1, "acme supplies", false, "Office Supplies", 0.90)
	newer := activeRule(2, "acme supplies", false, "Office Supplies", 0.90)
	newer.PromotedAt = older.PromotedAt.Add(24 * time.Hour)
	store := NewStore([]model.Rule{older, newer}, 1)
	m := NewMatcher(store)

	result, err := m.Match(context.Background(), model.Transaction{
		TenantID:     "acme",
		Counterparty: "Acme Supplies",
	})
	require.NoError(t, err)
	require.True(t, result.Matched())
	assert.Equal(t, int64(2), result.Candidate.RuleID)
}

func TestMatcher_ConflictOnEqualRules(t *testing.T) {
	a := activeRule(1, "globex corp", false, "Consulting", 0.90)
	b := activeRule(2, "globex corp", false, "Software", 0.90)
	b.PromotedAt = a.PromotedAt.Add(-time.Hour)
	store := NewStore([]model.Rule{a, b}, 1)
	m := NewMatcher(store)

	result, err := m.Match(context.Background(), model.Transaction{
		TenantID:     "acme",
		Counterparty: "Globex Corp",
	})
	require.NoError(t, err)
	require.True(t, result.Matched())
	assert.True(t, result.Conflict)
	assert.Equal(t, "Consulting", result.Candidate.Account)
	assert.Equal(t, "Software", result.ConflictAccount)
}

func TestMatcher_NoMatchIsNotAnError(t *testing.T) {
	store := NewStore(nil, 1)
	m := NewMatcher(store)

	result, err := m.Match(context.Background(), model.Transaction{
		TenantID:     "acme",
		Counterparty: "Never Seen Before LLC",
	})
	require.NoError(t, err)
	assert.False(t, result.Matched())
}

func TestMatcher_IgnoresInactiveAndForeignTenantRules(t *testing.T) {
	inactive := activeRule(1, "globex corp", false, "Consulting", 0.95)
	inactive.Active = false
	foreign := activeRule(2, "globex corp", false, "Consulting", 0.95)
	foreign.TenantID = "other"
	store := NewStore([]model.Rule{inactive, foreign}, 1)
	m := NewMatcher(store)

	result, err := m.Match(context.Background(), model.Transaction{
		TenantID:     "acme",
		Counterparty: "Globex Corp",
	})
	require.NoError(t, err)
	assert.False(t, result.Matched())
}

func TestStore_AppendBumpsVersionAndSupersedes(t *testing.T) {
	v1 := activeRule(1, "globex corp", false, "Consulting", 0.80)
	store := NewStore([]model.Rule{v1}, 1)

	v2 := v1
	v2.Version = 2
	v2.Account = "Software"
	newVersion := store.Append(v2)

	assert.Equal(t, 2, newVersion)
	rules, version := store.Snapshot()
	assert.Equal(t, 2, version)
	require.Len(t, rules, 1)
	assert.Equal(t, 2, rules[0].Version)
	assert.Equal(t, "Software", rules[0].Account)
}
