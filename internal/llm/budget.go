package llm

import (
	"sync"
	"time"

	"github.com/finchbooks/finch/internal/common"
	"github.com/finchbooks/finch/internal/model"
)

// budgetTracker enforces each tenant's daily spend budget. Once a
// tenant exceeds its budget the breaker opens for a cooldown window and
// all calls short-circuit to "no opinion".
type budgetTracker struct {
	now         func() time.Time
	day         time.Time
	spend       map[string]float64
	openUntil   map[string]time.Time
	costPerCall float64
	cooldown    time.Duration
	mu          sync.Mutex
}

func newBudgetTracker(costPerCall float64, cooldown time.Duration, now func() time.Time) *budgetTracker {
	if costPerCall <= 0 {
		costPerCall = 0.01
	}
	if cooldown <= 0 {
		cooldown = time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &budgetTracker{
		spend:       make(map[string]float64),
		openUntil:   make(map[string]time.Time),
		costPerCall: costPerCall,
		cooldown:    cooldown,
		now:         now,
		day:         now().Truncate(24 * time.Hour),
	}
}

// allow reports whether the tenant may spend one more call. Tenants
// with no configured budget never call the LLM.
func (b *budgetTracker) allow(tenant model.Tenant) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.rolloverLocked(now)

	if tenant.LLMDailyBudgetUSD <= 0 {
		return common.ErrBudgetExhausted
	}
	if until, open := b.openUntil[tenant.ID]; open {
		if now.Before(until) {
			return common.ErrBudgetExhausted
		}
		delete(b.openUntil, tenant.ID)
	}
	if b.spend[tenant.ID]+b.costPerCall > tenant.LLMDailyBudgetUSD {
		b.openUntil[tenant.ID] = now.Add(b.cooldown)
		return common.ErrBudgetExhausted
	}
	return nil
}

// record charges one call against the tenant and opens the breaker the
// moment the budget is gone.
func (b *budgetTracker) record(tenant model.Tenant) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.rolloverLocked(now)

	b.spend[tenant.ID] += b.costPerCall
	if b.spend[tenant.ID] >= tenant.LLMDailyBudgetUSD {
		b.openUntil[tenant.ID] = now.Add(b.cooldown)
	}
}

// spent returns the tenant's spend so far today.
func (b *budgetTracker) spent(tenantID string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked(b.now())
	return b.spend[tenantID]
}

// rolloverLocked resets daily spend when the calendar day changes. The
// breaker cooldown is independent of the day boundary.
func (b *budgetTracker) rolloverLocked(now time.Time) {
	day := now.Truncate(24 * time.Hour)
	if day.After(b.day) {
		b.day = day
		b.spend = make(map[string]float64)
	}
}
