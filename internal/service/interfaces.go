// Package service defines the interfaces between the engine and its
// collaborators, chiefly the persistence layer.
package service

import (
	"context"
	"time"

	"github.com/finchbooks/finch/internal/model"
)

// CounterpartyHistory summarizes what a tenant has previously seen for
// one counterparty. It drives the cold-start and anomaly policies.
type CounterpartyHistory struct {
	Accounts     map[string]int
	Amounts      []float64
	Observations int
}

// ConsistentAccount returns the account most of the history agrees on
// and how many observations back it.
func (h *CounterpartyHistory) ConsistentAccount() (string, int) {
	var best string
	var count int
	for account, n := range h.Accounts {
		if n > count {
			best = account
			count = n
		}
	}
	return best, count
}

// DecisionFilter narrows decision queries for the batch jobs.
type DecisionFilter struct {
	Start    time.Time
	End      time.Time
	Statuses []model.ReviewStatus
}

// Storage defines the contract for the persistence layer. Writes from
// the classification path are limited to decisions; rule writes happen
// only through promotion or explicit human edits, each producing a new
// version.
type Storage interface {
	// Transaction operations
	SaveTransactions(ctx context.Context, txns []model.Transaction) error
	GetTransactionsToClassify(ctx context.Context, tenantID string) ([]model.Transaction, error)
	GetTransactionsByPeriod(ctx context.Context, tenantID string, start, end time.Time) ([]model.Transaction, error)

	// Decision operations
	SaveDecision(ctx context.Context, decision *model.Decision) error
	GetDecision(ctx context.Context, transactionID string) (*model.Decision, error)
	GetDecisions(ctx context.Context, tenantID string, filter DecisionFilter) ([]model.Decision, error)
	UpdateDecisionStatus(ctx context.Context, decisionID string, status model.ReviewStatus) error

	// Rule operations (append-only by version)
	GetActiveRules(ctx context.Context, tenantID string) ([]model.Rule, int, error)
	AppendRules(ctx context.Context, tenantID string, rules []model.Rule) (int, error)

	// Tenant operations
	GetTenant(ctx context.Context, id string) (*model.Tenant, error)
	SaveTenant(ctx context.Context, tenant *model.Tenant) error
	ListTenants(ctx context.Context) ([]model.Tenant, error)

	// History used by cold-start and anomaly policies
	GetCounterpartyHistory(ctx context.Context, tenantID, counterparty string) (*CounterpartyHistory, error)

	// Batch job outputs
	SaveDriftSnapshot(ctx context.Context, snapshot *model.DriftSnapshot) error
	SavePromotionCandidates(ctx context.Context, candidates []model.PromotionCandidate) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}
