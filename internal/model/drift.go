package model

import "time"

// DriftSnapshot records one comparison between a reference window and a
// current window of a tenant's transaction distribution. Snapshots are
// read-only once written.
type DriftSnapshot struct {
	ComputedAt     time.Time
	ReferenceStart time.Time
	ReferenceEnd   time.Time
	WindowStart    time.Time
	WindowEnd      time.Time
	TenantID       string
	Metric         string
	Value          float64
	Threshold      float64
	Triggered      bool
}

// Drift metric names.
const (
	DriftMetricCounterparty = "psi_counterparty"
	DriftMetricAmount       = "psi_amount"
)
