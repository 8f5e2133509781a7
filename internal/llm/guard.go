package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/finchbooks/finch/internal/common"
	"github.com/finchbooks/finch/internal/model"
)

// Guard wraps a Validator with the three independent safety guards:
// per-tenant rate budget, per-tenant daily spend budget with a circuit
// breaker, and timeout handling. Every guard degrades to "no opinion"
// for the caller; none of them fail a transaction.
type Guard struct {
	validator Validator
	cache     *opinionCache
	limiters  *limiterPool
	budgets   *budgetTracker
	timeout   time.Duration
	retryOpts common.RetryOptions
}

// NewGuard wraps the given validator.
func NewGuard(validator Validator, cfg Config) *Guard {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	retryOpts := common.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = 500 * time.Millisecond
	}

	return &Guard{
		validator: validator,
		cache:     newOpinionCache(cfg.CacheTTL),
		limiters:  newLimiterPool(nil),
		budgets:   newBudgetTracker(cfg.CostPerCallUSD, cfg.Cooldown, nil),
		timeout:   timeout,
		retryOpts: retryOpts,
	}
}

// Validate consults the LLM for one transaction. Errors are sentinels
// the blender maps to reason codes: ErrBudgetExhausted and ErrRateLimit
// mean the budget guard declined the call; any other error means the
// upstream was unavailable. Neither is ever a transaction failure.
func (g *Guard) Validate(ctx context.Context, tenant model.Tenant, txn model.Transaction, accounts []string) (Opinion, error) {
	if opinion, found := g.cache.get(txn.GenerateHash()); found {
		slog.Debug("validator cache hit", "transaction_id", txn.ID)
		return opinion, nil
	}

	if !g.limiters.get(tenant.ID, tenant.LLMCallsPerMinute).tryAcquire() {
		slog.Debug("validator rate budget exceeded",
			"transaction_id", txn.ID,
			"tenant_id", tenant.ID)
		return Opinion{}, common.ErrRateLimit
	}

	if err := g.budgets.allow(tenant); err != nil {
		slog.Debug("validator spend budget exhausted",
			"transaction_id", txn.ID,
			"tenant_id", tenant.ID,
			"spent_usd", g.budgets.spent(tenant.ID))
		return Opinion{}, err
	}

	var opinion Opinion
	err := common.WithRetry(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		result, callErr := g.validator.Validate(callCtx, txn, accounts)
		if callErr != nil {
			return &common.RetryableError{Err: callErr, Retryable: retryable(callErr)}
		}
		opinion = result
		return nil
	}, g.retryOpts)

	// The call left the building, so it counts against the budget even
	// when it ultimately failed.
	g.budgets.record(tenant)

	if err != nil {
		return Opinion{}, fmt.Errorf("validation unavailable: %w", err)
	}

	g.cache.set(txn.GenerateHash(), opinion)
	slog.Info("validator opinion",
		"transaction_id", txn.ID,
		"account", opinion.Account,
		"confidence", opinion.Confidence)
	return opinion, nil
}

// Close releases cache resources.
func (g *Guard) Close() {
	g.cache.Close()
}

// retryable classifies a call failure: timeouts and 5xx are transient,
// a 4xx is a rejection and falls back immediately.
func retryable(err error) bool {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.transient()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
