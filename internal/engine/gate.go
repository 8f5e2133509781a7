package engine

import (
	"github.com/finchbooks/finch/internal/common"
	"github.com/finchbooks/finch/internal/model"
)

// AutoPost is the binary safety gate. It is a pure function of the
// final confidence and the tenant's opt-in flag, independent of which
// method produced the score.
func AutoPost(confidence, threshold float64, tenant model.Tenant) bool {
	return confidence >= threshold && tenant.AutoPostEnabled
}

// VerifyGate re-checks the gate invariant on a finished decision before
// it is persisted. A violation here means a bug upstream, not a tunable
// behavior; it halts processing.
func VerifyGate(d *model.Decision, threshold float64, tenant model.Tenant) error {
	if !d.AutoPost {
		return nil
	}
	if d.Confidence < threshold {
		return common.SafetyViolation(
			"decision %s for transaction %s would auto-post at confidence %.4f below threshold %.4f",
			d.ID, d.TransactionID, d.Confidence, threshold)
	}
	if !tenant.AutoPostEnabled {
		return common.SafetyViolation(
			"decision %s for transaction %s would auto-post for tenant %s with auto-post disabled",
			d.ID, d.TransactionID, tenant.ID)
	}
	return nil
}
