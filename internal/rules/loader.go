package rules

import (
	"context"
	"fmt"

	"github.com/finchbooks/finch/internal/model"
)

// Source is the slice of persistence the loader reads.
type Source interface {
	ListTenants(ctx context.Context) ([]model.Tenant, error)
	GetActiveRules(ctx context.Context, tenantID string) ([]model.Rule, int, error)
}

// Load builds a store from every tenant's active rules. The store
// version is the sum of the per-tenant versions, so any tenant's rule
// change invalidates stored decisions made under the old combined set.
func Load(ctx context.Context, src Source) (*Store, error) {
	all, version, err := gather(ctx, src)
	if err != nil {
		return nil, err
	}
	return NewStore(all, version), nil
}

// Reload refreshes an existing store in place, typically after the
// promotion job wrote new rule versions.
func Reload(ctx context.Context, src Source, store *Store) error {
	all, version, err := gather(ctx, src)
	if err != nil {
		return err
	}
	store.Replace(all, version)
	return nil
}

func gather(ctx context.Context, src Source) ([]model.Rule, int, error) {
	tenants, err := src.ListTenants(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tenants: %w", err)
	}

	var all []model.Rule
	var version int
	for _, tenant := range tenants {
		rules, v, err := src.GetActiveRules(ctx, tenant.ID)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to load rules for tenant %s: %w", tenant.ID, err)
		}
		all = append(all, rules...)
		version += v
	}
	return all, version, nil
}
