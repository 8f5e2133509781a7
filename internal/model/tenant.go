package model

// Tenant holds the per-tenant settings the engine consults on every
// classification. Auto-posting is disabled by default; a tenant must
// opt in explicitly.
type Tenant struct {
	ID                string
	Name              string
	AutoPostEnabled   bool
	AutoActivateRules bool // promotion proposals activate without human acceptance
	LLMCallsPerMinute int
	LLMDailyBudgetUSD float64
}

// DefaultTenant returns the settings used when a transaction arrives
// for a tenant the store has never seen. Everything that could post to
// a ledger or spend money stays off.
func DefaultTenant(id string) Tenant {
	return Tenant{
		ID:                id,
		AutoPostEnabled:   false,
		AutoActivateRules: false,
		LLMCallsPerMinute: 10,
		LLMDailyBudgetUSD: 0,
	}
}
