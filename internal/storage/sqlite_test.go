package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finchbooks/finch/internal/common"
	"github.com/finchbooks/finch/internal/model"
	"github.com/finchbooks/finch/internal/service"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "finch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func txn(id, counterparty string, amount float64, date time.Time) model.Transaction {
	return model.Transaction{
		ID:           id,
		TenantID:     "acme",
		Date:         date,
		Description:  counterparty + " card payment",
		Counterparty: counterparty,
		Amount:       amount,
		Currency:     "USD",
	}
}

func decision(id, txnID string, status model.ReviewStatus) *model.Decision {
	return &model.Decision{
		ID:             id,
		TransactionID:  txnID,
		TenantID:       "acme",
		Account:        "expenses:software",
		Confidence:     0.97,
		Reason:         model.ReasonRuleMatch,
		Status:         status,
		AutoPost:       status == model.ReviewAutoPosted,
		ModelVersion:   "tfidf-abc123",
		RuleSetVersion: 3,
		DecidedAt:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		Candidates: []model.Candidate{{
			Method:     model.MethodRule,
			Account:    "expenses:software",
			Confidence: 0.97,
			RuleID:     4,
		}},
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestSaveTransactionsIdempotent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	batch := []model.Transaction{
		txn("txn-1", "GitHub", -21, date),
		txn("txn-2", "AWS", -124, date.AddDate(0, 0, 1)),
	}
	require.NoError(t, s.SaveTransactions(ctx, batch))
	// Re-importing the same feed must not duplicate anything.
	require.NoError(t, s.SaveTransactions(ctx, batch))

	got, err := s.GetTransactionsToClassify(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "txn-1", got[0].ID)
	assert.Equal(t, "GitHub", got[0].Counterparty)
	assert.InDelta(t, -21, got[0].Amount, 1e-9)
}

func TestGetTransactionsToClassifyExcludesDecided(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveTransactions(ctx, []model.Transaction{
		txn("txn-1", "GitHub", -21, date),
		txn("txn-2", "AWS", -124, date),
	}))
	require.NoError(t, s.SaveDecision(ctx, decision("dec-1", "txn-1", model.ReviewAutoPosted)))

	got, err := s.GetTransactionsToClassify(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "txn-2", got[0].ID)
}

func TestGetTransactionsByPeriod(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTransactions(ctx, []model.Transaction{
		txn("txn-1", "GitHub", -21, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)),
		txn("txn-2", "AWS", -124, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)),
		txn("txn-3", "Linear", -8, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)),
	}))

	got, err := s.GetTransactionsByPeriod(ctx, "acme",
		time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "txn-2", got[0].ID)
}

func TestDecisionRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveTransactions(ctx, []model.Transaction{txn("txn-1", "GitHub", -21, date)}))

	_, err := s.GetDecision(ctx, "txn-1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	want := decision("dec-1", "txn-1", model.ReviewPending)
	require.NoError(t, s.SaveDecision(ctx, want))

	got, err := s.GetDecision(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Account, got.Account)
	assert.Equal(t, want.Reason, got.Reason)
	assert.Equal(t, want.RuleSetVersion, got.RuleSetVersion)
	require.Len(t, got.Candidates, 1)
	assert.Equal(t, int64(4), got.Candidates[0].RuleID)

	// Re-deciding replaces the row for the same transaction.
	redone := decision("dec-2", "txn-1", model.ReviewAutoPosted)
	redone.RuleSetVersion = 4
	require.NoError(t, s.SaveDecision(ctx, redone))

	got, err = s.GetDecision(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, "dec-2", got.ID)
	assert.Equal(t, 4, got.RuleSetVersion)
}

func TestUpdateDecisionStatus(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveTransactions(ctx, []model.Transaction{txn("txn-1", "GitHub", -21, date)}))
	require.NoError(t, s.SaveDecision(ctx, decision("dec-1", "txn-1", model.ReviewPending)))

	require.NoError(t, s.UpdateDecisionStatus(ctx, "dec-1", model.ReviewApproved))
	got, err := s.GetDecision(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, model.ReviewApproved, got.Status)

	err = s.UpdateDecisionStatus(ctx, "missing", model.ReviewApproved)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetDecisionsFilter(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveTransactions(ctx, []model.Transaction{
		txn("txn-1", "GitHub", -21, date),
		txn("txn-2", "AWS", -124, date),
	}))
	require.NoError(t, s.SaveDecision(ctx, decision("dec-1", "txn-1", model.ReviewApproved)))
	require.NoError(t, s.SaveDecision(ctx, decision("dec-2", "txn-2", model.ReviewRejected)))

	approved, err := s.GetDecisions(ctx, "acme", service.DecisionFilter{
		Statuses: []model.ReviewStatus{model.ReviewApproved},
	})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "dec-1", approved[0].ID)

	all, err := s.GetDecisions(ctx, "acme", service.DecisionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAppendRulesVersioning(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	version, err := s.AppendRules(ctx, "acme", []model.Rule{{
		Pattern:    "github",
		Account:    "expenses:software",
		Precision:  0.98,
		Support:    40,
		Active:     true,
		PromotedAt: now,
		PromotedBy: "promotion",
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	rules, got, err := s.GetActiveRules(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, got)
	require.Len(t, rules, 1)
	assert.Equal(t, int64(1), rules[0].ID)
	assert.Equal(t, 1, rules[0].Version)

	// A new version of the same rule supersedes the old one.
	version, err = s.AppendRules(ctx, "acme", []model.Rule{{
		ID:         rules[0].ID,
		Version:    2,
		Pattern:    "github",
		Account:    "expenses:subscriptions",
		Precision:  0.95,
		Support:    55,
		Active:     true,
		PromotedAt: now.AddDate(0, 1, 0),
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	rules, _, err = s.GetActiveRules(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 2, rules[0].Version)
	assert.Equal(t, "expenses:subscriptions", rules[0].Account)
}

func TestAppendRulesRejectsBadRegex(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.AppendRules(context.Background(), "acme", []model.Rule{{
		Pattern:    "github(",
		IsRegex:    true,
		Account:    "expenses:software",
		Active:     true,
		PromotedAt: time.Now(),
	}})
	require.Error(t, err)
}

func TestTenantRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.GetTenant(ctx, "acme")
	assert.ErrorIs(t, err, common.ErrNotFound)

	want := &model.Tenant{
		ID:                "acme",
		Name:              "Acme Corp",
		AutoPostEnabled:   true,
		LLMCallsPerMinute: 10,
		LLMDailyBudgetUSD: 5,
	}
	require.NoError(t, s.SaveTenant(ctx, want))

	got, err := s.GetTenant(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	want.AutoPostEnabled = false
	require.NoError(t, s.SaveTenant(ctx, want))
	got, err = s.GetTenant(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, got.AutoPostEnabled)
}

func TestGetCounterpartyHistory(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveTransactions(ctx, []model.Transaction{
		txn("txn-1", "GitHub", -21, date),
		txn("txn-2", "GitHub", -21, date.AddDate(0, 1, 0)),
		txn("txn-3", "GitHub", -42, date.AddDate(0, 2, 0)),
	}))
	require.NoError(t, s.SaveDecision(ctx, decision("dec-1", "txn-1", model.ReviewApproved)))
	require.NoError(t, s.SaveDecision(ctx, decision("dec-2", "txn-2", model.ReviewAutoPosted)))
	// Rejected decisions carry no account signal.
	require.NoError(t, s.SaveDecision(ctx, decision("dec-3", "txn-3", model.ReviewRejected)))

	hist, err := s.GetCounterpartyHistory(ctx, "acme", "github")
	require.NoError(t, err)
	assert.Equal(t, 2, hist.Observations)
	assert.Equal(t, map[string]int{"expenses:software": 2}, hist.Accounts)
	assert.Len(t, hist.Amounts, 2)

	account, count := hist.ConsistentAccount()
	assert.Equal(t, "expenses:software", account)
	assert.Equal(t, 2, count)
}

func TestDriftSnapshotRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveDriftSnapshot(ctx, &model.DriftSnapshot{
		TenantID:       "acme",
		Metric:         model.DriftMetricCounterparty,
		Value:          0.34,
		Threshold:      0.2,
		Triggered:      true,
		ReferenceStart: now.AddDate(0, 0, -104),
		ReferenceEnd:   now.AddDate(0, 0, -14),
		WindowStart:    now.AddDate(0, 0, -14),
		WindowEnd:      now,
		ComputedAt:     now,
	}))

	snaps, err := s.GetDriftSnapshots(ctx, "acme", 10)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, model.DriftMetricCounterparty, snaps[0].Metric)
	assert.True(t, snaps[0].Triggered)
	assert.InDelta(t, 0.34, snaps[0].Value, 1e-9)
}

func TestSavePromotionCandidates(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.SavePromotionCandidates(context.Background(), []model.PromotionCandidate{
		{TenantID: "acme", Counterparty: "github", Account: "expenses:software", Support: 8, Precision: 1.0, Accepted: true, MinedAt: time.Now()},
		{TenantID: "acme", Counterparty: "cafe luna", Account: "expenses:meals", Support: 2, Precision: 0.8, MinedAt: time.Now()},
	}))
	require.NoError(t, s.SavePromotionCandidates(context.Background(), nil))
}
