// Package promote mines reviewed decisions for counterparties the
// system keeps classifying the same way and promotes them into
// deterministic rules, shrinking ML and LLM spend over time.
package promote

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/finchbooks/finch/internal/feature"
	"github.com/finchbooks/finch/internal/model"
	"github.com/finchbooks/finch/internal/service"
)

// Storage is the slice of persistence the promotion engine needs.
type Storage interface {
	GetDecisions(ctx context.Context, tenantID string, filter service.DecisionFilter) ([]model.Decision, error)
	GetTransactionsByPeriod(ctx context.Context, tenantID string, start, end time.Time) ([]model.Transaction, error)
	GetActiveRules(ctx context.Context, tenantID string) ([]model.Rule, int, error)
	AppendRules(ctx context.Context, tenantID string, rules []model.Rule) (int, error)
	SavePromotionCandidates(ctx context.Context, candidates []model.PromotionCandidate) error
	GetTenant(ctx context.Context, id string) (*model.Tenant, error)
}

// Config tunes the promotion thresholds.
type Config struct {
	// MinSupport is the number of consistently reviewed decisions a
	// counterparty needs before a rule is proposed.
	MinSupport int

	// MinPrecision is the share of the counterparty's reviewed decisions
	// that must agree on one account.
	MinPrecision float64

	// LookbackDays sizes the mining window.
	LookbackDays int
}

// DefaultConfig returns the default promotion configuration.
func DefaultConfig() Config {
	return Config{
		MinSupport:   5,
		MinPrecision: 0.95,
		LookbackDays: 90,
	}
}

// Engine mines and promotes rules for one tenant at a time.
type Engine struct {
	storage Storage
	config  Config
}

// NewEngine creates a promotion engine.
func NewEngine(storage Storage, config Config) *Engine {
	return &Engine{storage: storage, config: config}
}

// evidence accumulates reviewed outcomes for one counterparty.
type evidence struct {
	accounts map[string]int
	total    int
}

// Run mines the tenant's reviewed decisions and appends a new rule
// version for every counterparty that clears the thresholds. It returns
// the promoted rules; the caller reloads its live rule store from
// persistence afterwards.
func (e *Engine) Run(ctx context.Context, tenantID string, now time.Time) ([]model.Rule, error) {
	start := now.AddDate(0, 0, -e.config.LookbackDays)

	decisions, err := e.storage.GetDecisions(ctx, tenantID, service.DecisionFilter{
		Start: start,
		End:   now,
		Statuses: []model.ReviewStatus{
			model.ReviewApproved,
			model.ReviewAutoPosted,
			model.ReviewRejected,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load decisions: %w", err)
	}
	if len(decisions) == 0 {
		return nil, nil
	}

	txns, err := e.storage.GetTransactionsByPeriod(ctx, tenantID, start, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	counterpartyByTxn := make(map[string]string, len(txns))
	for _, txn := range txns {
		counterpartyByTxn[txn.ID] = feature.NormalizeCounterparty(txn.Counterparty)
	}

	mined := make(map[string]*evidence)
	for i := range decisions {
		d := &decisions[i]
		counterparty := counterpartyByTxn[d.TransactionID]
		if counterparty == "" {
			continue
		}
		ev, ok := mined[counterparty]
		if !ok {
			ev = &evidence{accounts: make(map[string]int)}
			mined[counterparty] = ev
		}
		ev.total++
		// A rejected decision counts against precision but supports no
		// account; the reviewer said the engine was wrong here.
		if d.Posted() {
			ev.accounts[d.Account]++
		}
	}

	covered, err := e.coveredCounterparties(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	tenant, err := e.storage.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}

	candidates := e.mineCandidates(tenantID, mined, covered, now)
	if len(candidates) == 0 {
		return nil, nil
	}
	if err := e.storage.SavePromotionCandidates(ctx, candidates); err != nil {
		return nil, fmt.Errorf("failed to save promotion candidates: %w", err)
	}

	var promoted []model.Rule
	for _, c := range candidates {
		if !c.Accepted {
			continue
		}
		promoted = append(promoted, model.Rule{
			Version:    1,
			TenantID:   tenantID,
			Pattern:    c.Counterparty,
			Account:    c.Account,
			Precision:  c.Precision,
			Support:    c.Support,
			Active:     tenant.AutoActivateRules,
			PromotedAt: now,
			PromotedBy: model.RuleSourcePromotion,
		})
	}
	if len(promoted) == 0 {
		return nil, nil
	}

	version, err := e.storage.AppendRules(ctx, tenantID, promoted)
	if err != nil {
		return nil, fmt.Errorf("failed to append promoted rules: %w", err)
	}

	slog.Info("rules promoted",
		"tenant_id", tenantID,
		"count", len(promoted),
		"rule_set_version", version,
		"auto_activated", tenant.AutoActivateRules)
	return promoted, nil
}

// mineCandidates turns accumulated evidence into candidates, accepted
// or not, in deterministic order.
func (e *Engine) mineCandidates(tenantID string, mined map[string]*evidence, covered map[string]bool, now time.Time) []model.PromotionCandidate {
	names := make([]string, 0, len(mined))
	for name := range mined {
		names = append(names, name)
	}
	sort.Strings(names)

	var candidates []model.PromotionCandidate
	for _, name := range names {
		if covered[name] {
			continue
		}
		ev := mined[name]

		var account string
		var support int
		for acct, n := range ev.accounts {
			if n > support || (n == support && acct < account) {
				account = acct
				support = n
			}
		}
		if support == 0 {
			continue
		}

		precision := float64(support) / float64(ev.total)
		candidates = append(candidates, model.PromotionCandidate{
			MinedAt:      now,
			TenantID:     tenantID,
			Counterparty: name,
			Account:      account,
			Support:      support,
			Precision:    precision,
			Accepted:     support >= e.config.MinSupport && precision >= e.config.MinPrecision,
		})
	}
	return candidates
}

func (e *Engine) coveredCounterparties(ctx context.Context, tenantID string) (map[string]bool, error) {
	active, _, err := e.storage.GetActiveRules(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active rules: %w", err)
	}
	covered := make(map[string]bool, len(active))
	for _, r := range active {
		if !r.IsRegex {
			covered[feature.NormalizeCounterparty(r.Pattern)] = true
		}
	}
	return covered, nil
}
