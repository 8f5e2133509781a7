package llm

import (
	"context"
	"testing"
	"time"

	"github.com/finchbooks/finch/internal/common"
	"github.com/finchbooks/finch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubValidator returns scripted results and counts calls.
type stubValidator struct {
	opinion Opinion
	errs    []error
	calls   int
}

func (s *stubValidator) Validate(_ context.Context, _ model.Transaction, _ []string) (Opinion, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return Opinion{}, err
		}
	}
	return s.opinion, nil
}

func testTenant() model.Tenant {
	return model.Tenant{
		ID:                "acme",
		LLMCallsPerMinute: 100,
		LLMDailyBudgetUSD: 5.00,
	}
}

func testTxn(id string) model.Transaction {
	return model.Transaction{
		ID:          id,
		TenantID:    "acme",
		Date:        time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		Description: "AMZN MKTP US*" + id,
		Amount:      -45.99,
		Currency:    "USD",
	}
}

var testAccounts = []string{"Shopping", "Office Supplies"}

func newTestGuard(v Validator) *Guard {
	g := NewGuard(v, Config{
		CostPerCallUSD: 0.01,
		Cooldown:       time.Hour,
		MaxRetries:     3,
		RetryDelay:     time.Millisecond,
		Timeout:        time.Second,
	})
	return g
}

func TestGuard_PassesThroughOpinion(t *testing.T) {
	stub := &stubValidator{opinion: Opinion{Account: "Shopping", Confidence: 0.8, Rationale: "marketplace purchase"}}
	g := newTestGuard(stub)
	defer g.Close()

	opinion, err := g.Validate(context.Background(), testTenant(), testTxn("t1"), testAccounts)
	require.NoError(t, err)
	assert.Equal(t, "Shopping", opinion.Account)
	assert.Equal(t, 1, stub.calls)
}

func TestGuard_CacheAvoidsRepeatCalls(t *testing.T) {
	stub := &stubValidator{opinion: Opinion{Account: "Shopping", Confidence: 0.8}}
	g := newTestGuard(stub)
	defer g.Close()

	txn := testTxn("t1")
	_, err := g.Validate(context.Background(), testTenant(), txn, testAccounts)
	require.NoError(t, err)
	_, err = g.Validate(context.Background(), testTenant(), txn, testAccounts)
	require.NoError(t, err)

	assert.Equal(t, 1, stub.calls)
}

func TestGuard_ZeroBudgetShortCircuits(t *testing.T) {
	stub := &stubValidator{opinion: Opinion{Account: "Shopping", Confidence: 0.8}}
	g := newTestGuard(stub)
	defer g.Close()

	tenant := testTenant()
	tenant.LLMDailyBudgetUSD = 0

	_, err := g.Validate(context.Background(), tenant, testTxn("t1"), testAccounts)
	assert.ErrorIs(t, err, common.ErrBudgetExhausted)
	assert.Equal(t, 0, stub.calls)
}

func TestGuard_BudgetExhaustionOpensBreaker(t *testing.T) {
	stub := &stubValidator{opinion: Opinion{Account: "Shopping", Confidence: 0.8}}
	g := newTestGuard(stub)
	defer g.Close()

	tenant := testTenant()
	tenant.LLMDailyBudgetUSD = 0.025 // two calls worth

	_, err := g.Validate(context.Background(), tenant, testTxn("t1"), testAccounts)
	require.NoError(t, err)
	_, err = g.Validate(context.Background(), tenant, testTxn("t2"), testAccounts)
	require.NoError(t, err)

	// Budget spent; breaker is open and the validator is not called.
	_, err = g.Validate(context.Background(), tenant, testTxn("t3"), testAccounts)
	assert.ErrorIs(t, err, common.ErrBudgetExhausted)
	assert.Equal(t, 2, stub.calls)
}

func TestGuard_RateBudgetDeclinesWithoutBlocking(t *testing.T) {
	stub := &stubValidator{opinion: Opinion{Account: "Shopping", Confidence: 0.8}}
	g := newTestGuard(stub)
	defer g.Close()

	tenant := testTenant()
	tenant.LLMCallsPerMinute = 1

	_, err := g.Validate(context.Background(), tenant, testTxn("t1"), testAccounts)
	require.NoError(t, err)

	start := time.Now()
	_, err = g.Validate(context.Background(), tenant, testTxn("t2"), testAccounts)
	assert.ErrorIs(t, err, common.ErrRateLimit)
	assert.Less(t, time.Since(start), time.Second, "rate guard must not block the pipeline")
	assert.Equal(t, 1, stub.calls)
}

func TestGuard_TransientFailureRetries(t *testing.T) {
	stub := &stubValidator{
		opinion: Opinion{Account: "Shopping", Confidence: 0.8},
		errs:    []error{&apiError{status: 503, body: "overloaded"}, nil},
	}
	g := newTestGuard(stub)
	defer g.Close()

	opinion, err := g.Validate(context.Background(), testTenant(), testTxn("t1"), testAccounts)
	require.NoError(t, err)
	assert.Equal(t, "Shopping", opinion.Account)
	assert.Equal(t, 2, stub.calls)
}

func TestGuard_ClientErrorDoesNotRetry(t *testing.T) {
	stub := &stubValidator{
		errs: []error{&apiError{status: 400, body: "bad request"}},
	}
	g := newTestGuard(stub)
	defer g.Close()

	_, err := g.Validate(context.Background(), testTenant(), testTxn("t1"), testAccounts)
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrBudgetExhausted)
	assert.Equal(t, 1, stub.calls)
}
