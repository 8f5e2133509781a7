package promote

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finchbooks/finch/internal/model"
	"github.com/finchbooks/finch/internal/service"
)

type fakeStorage struct {
	decisions  []model.Decision
	txns       []model.Transaction
	rules      []model.Rule
	tenant     model.Tenant
	candidates []model.PromotionCandidate
	appended   []model.Rule
}

func (f *fakeStorage) GetDecisions(context.Context, string, service.DecisionFilter) ([]model.Decision, error) {
	return f.decisions, nil
}

func (f *fakeStorage) GetTransactionsByPeriod(context.Context, string, time.Time, time.Time) ([]model.Transaction, error) {
	return f.txns, nil
}

func (f *fakeStorage) GetActiveRules(context.Context, string) ([]model.Rule, int, error) {
	return f.rules, 1, nil
}

func (f *fakeStorage) AppendRules(_ context.Context, _ string, rules []model.Rule) (int, error) {
	f.appended = append(f.appended, rules...)
	return 2, nil
}

func (f *fakeStorage) SavePromotionCandidates(_ context.Context, candidates []model.PromotionCandidate) error {
	f.candidates = append(f.candidates, candidates...)
	return nil
}

func (f *fakeStorage) GetTenant(context.Context, string) (*model.Tenant, error) {
	t := f.tenant
	return &t, nil
}

// seed adds n reviewed decisions for one counterparty, the first
// `rejected` of them rejected and the rest approved on the account.
func (f *fakeStorage) seed(counterparty, account string, n, rejected int) {
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-%d", counterparty, i)
		f.txns = append(f.txns, model.Transaction{
			ID:           id,
			Counterparty: counterparty,
		})
		status := model.ReviewApproved
		if i < rejected {
			status = model.ReviewRejected
		}
		f.decisions = append(f.decisions, model.Decision{
			TransactionID: id,
			Account:       account,
			Status:        status,
		})
	}
}

func TestRunPromotesConsistentCounterparty(t *testing.T) {
	storage := &fakeStorage{tenant: model.Tenant{ID: "acme", AutoActivateRules: true}}
	storage.seed("GitHub", "expenses:software", 8, 0)

	promoted, err := NewEngine(storage, DefaultConfig()).Run(context.Background(), "acme", time.Now())
	require.NoError(t, err)
	require.Len(t, promoted, 1)

	rule := promoted[0]
	assert.Equal(t, "github", rule.Pattern)
	assert.Equal(t, "expenses:software", rule.Account)
	assert.Equal(t, 8, rule.Support)
	assert.InDelta(t, 1.0, rule.Precision, 1e-9)
	assert.True(t, rule.Active)
	assert.False(t, rule.IsRegex)
	assert.Equal(t, storage.appended, promoted)

	require.Len(t, storage.candidates, 1)
	assert.True(t, storage.candidates[0].Accepted)
}

func TestRunRespectsSupportThreshold(t *testing.T) {
	storage := &fakeStorage{tenant: model.Tenant{ID: "acme"}}
	storage.seed("GitHub", "expenses:software", 3, 0)

	promoted, err := NewEngine(storage, DefaultConfig()).Run(context.Background(), "acme", time.Now())
	require.NoError(t, err)
	assert.Empty(t, promoted)

	require.Len(t, storage.candidates, 1)
	assert.False(t, storage.candidates[0].Accepted)
	assert.Equal(t, 3, storage.candidates[0].Support)
}

func TestRunRejectionsLowerPrecision(t *testing.T) {
	storage := &fakeStorage{tenant: model.Tenant{ID: "acme"}}
	storage.seed("GitHub", "expenses:software", 10, 2)

	promoted, err := NewEngine(storage, DefaultConfig()).Run(context.Background(), "acme", time.Now())
	require.NoError(t, err)
	assert.Empty(t, promoted)

	require.Len(t, storage.candidates, 1)
	c := storage.candidates[0]
	assert.InDelta(t, 0.8, c.Precision, 1e-9)
	assert.False(t, c.Accepted)
}

func TestRunSkipsCoveredCounterparties(t *testing.T) {
	storage := &fakeStorage{
		tenant: model.Tenant{ID: "acme"},
		rules: []model.Rule{{
			Pattern: "GitHub",
			Account: "expenses:software",
			Active:  true,
		}},
	}
	storage.seed("GitHub", "expenses:software", 8, 0)

	promoted, err := NewEngine(storage, DefaultConfig()).Run(context.Background(), "acme", time.Now())
	require.NoError(t, err)
	assert.Empty(t, promoted)
	assert.Empty(t, storage.candidates)
}

func TestRunInactiveWhenAutoActivateOff(t *testing.T) {
	storage := &fakeStorage{tenant: model.Tenant{ID: "acme", AutoActivateRules: false}}
	storage.seed("GitHub", "expenses:software", 8, 0)

	promoted, err := NewEngine(storage, DefaultConfig()).Run(context.Background(), "acme", time.Now())
	require.NoError(t, err)
	require.Len(t, promoted, 1)
	assert.False(t, promoted[0].Active)
}

func TestRunNoDecisionsNoWork(t *testing.T) {
	storage := &fakeStorage{tenant: model.Tenant{ID: "acme"}}

	promoted, err := NewEngine(storage, DefaultConfig()).Run(context.Background(), "acme", time.Now())
	require.NoError(t, err)
	assert.Empty(t, promoted)
	assert.Empty(t, storage.candidates)
}
