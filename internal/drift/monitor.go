package drift

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/finchbooks/finch/internal/feature"
	"github.com/finchbooks/finch/internal/model"
)

// Storage is the slice of persistence the monitor needs.
type Storage interface {
	GetTransactionsByPeriod(ctx context.Context, tenantID string, start, end time.Time) ([]model.Transaction, error)
	SaveDriftSnapshot(ctx context.Context, snapshot *model.DriftSnapshot) error
}

// Config tunes the drift comparison windows and trigger threshold.
type Config struct {
	// Threshold is the PSI above which drift is flagged. 0.2 is the
	// conventional "significant shift" line.
	Threshold float64

	// ReferenceDays and WindowDays size the two comparison windows. The
	// reference window ends where the current window starts.
	ReferenceDays int
	WindowDays    int

	// MinSamples is the smallest window worth comparing; tiny windows
	// produce noisy indexes.
	MinSamples int
}

// DefaultConfig returns the default drift monitor configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:     0.2,
		ReferenceDays: 90,
		WindowDays:    14,
		MinSamples:    30,
	}
}

// Monitor computes periodic drift snapshots per tenant.
type Monitor struct {
	storage Storage
	config  Config
}

// NewMonitor creates a drift monitor.
func NewMonitor(storage Storage, config Config) *Monitor {
	return &Monitor{storage: storage, config: config}
}

// Run compares the tenant's current window against the reference window
// and persists one snapshot per metric. A window too small to compare
// is skipped, not an error.
func (m *Monitor) Run(ctx context.Context, tenantID string, now time.Time) ([]model.DriftSnapshot, error) {
	windowStart := now.AddDate(0, 0, -m.config.WindowDays)
	refStart := windowStart.AddDate(0, 0, -m.config.ReferenceDays)

	reference, err := m.storage.GetTransactionsByPeriod(ctx, tenantID, refStart, windowStart)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference window: %w", err)
	}
	current, err := m.storage.GetTransactionsByPeriod(ctx, tenantID, windowStart, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load current window: %w", err)
	}

	if len(reference) < m.config.MinSamples || len(current) < m.config.MinSamples {
		slog.Debug("skipping drift check, window too small",
			"tenant_id", tenantID,
			"reference", len(reference),
			"current", len(current),
			"min", m.config.MinSamples)
		return nil, nil
	}

	snapshots := []model.DriftSnapshot{
		m.snapshot(tenantID, model.DriftMetricCounterparty, counterpartyPSI(reference, current), refStart, windowStart, now),
		m.snapshot(tenantID, model.DriftMetricAmount, amountPSI(reference, current), refStart, windowStart, now),
	}

	for i := range snapshots {
		s := &snapshots[i]
		if err := m.storage.SaveDriftSnapshot(ctx, s); err != nil {
			return nil, fmt.Errorf("failed to save drift snapshot: %w", err)
		}
		if s.Triggered {
			slog.Warn("drift detected",
				"tenant_id", tenantID,
				"metric", s.Metric,
				"psi", s.Value,
				"threshold", s.Threshold,
				"current_mean_amount", meanAmount(current))
		}
	}
	return snapshots, nil
}

func (m *Monitor) snapshot(tenantID, metric string, value float64, refStart, windowStart, now time.Time) model.DriftSnapshot {
	return model.DriftSnapshot{
		ComputedAt:     now,
		ReferenceStart: refStart,
		ReferenceEnd:   windowStart,
		WindowStart:    windowStart,
		WindowEnd:      now,
		TenantID:       tenantID,
		Metric:         metric,
		Value:          value,
		Threshold:      m.config.Threshold,
		Triggered:      value > m.config.Threshold,
	}
}

func counterpartyPSI(reference, current []model.Transaction) float64 {
	ref, cur := poolTail(counterpartyCounts(reference), counterpartyCounts(current))
	return psi(distribution(ref), distribution(cur))
}

func amountPSI(reference, current []model.Transaction) float64 {
	return psi(distribution(amountCounts(reference)), distribution(amountCounts(current)))
}

func counterpartyCounts(txns []model.Transaction) map[string]int {
	counts := make(map[string]int)
	for _, txn := range txns {
		key := feature.NormalizeCounterparty(txn.Counterparty)
		if key == "" {
			key = "__unknown__"
		}
		counts[key]++
	}
	return counts
}

func amountCounts(txns []model.Transaction) map[string]int {
	counts := make(map[string]int)
	for _, txn := range txns {
		counts[feature.AmountBucket(txn.Amount)]++
	}
	return counts
}

func meanAmount(txns []model.Transaction) float64 {
	amounts := make(stats.Float64Data, len(txns))
	for i, txn := range txns {
		amounts[i] = txn.Amount
	}
	mean, err := stats.Mean(amounts)
	if err != nil {
		return 0
	}
	return mean
}
