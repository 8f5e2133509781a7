package engine

import (
	"fmt"

	"github.com/finchbooks/finch/internal/common"
)

// Weights are the blend weights applied when multiple candidates
// coexist inside the ambiguous band. They are relative; the blender
// renormalizes over whichever candidates are actually present.
type Weights struct {
	Rule float64
	ML   float64
	LLM  float64
}

// Config centralizes every threshold and blend constant the decision
// blender consults. It is passed in explicitly at construction; nothing
// reads global state.
type Config struct {
	// AutoPostThreshold is the hard gate below which nothing posts
	// automatically, regardless of method.
	AutoPostThreshold float64

	// AmbiguousLow/AmbiguousHigh bound the band in which the LLM
	// fallback validator is consulted. Below the band the decision goes
	// straight to review; above it the ML opinion stands on its own.
	AmbiguousLow  float64
	AmbiguousHigh float64

	// MinMargin is the smallest acceptable gap between the top two ML
	// accounts. A near-tie routes to the ambiguous path even when the
	// top confidence is high.
	MinMargin float64

	// ColdStartMin is the number of consistently-labeled observations a
	// counterparty needs before automated confidence is trusted.
	// ColdStartFloor caps the confidence of cold-start decisions.
	ColdStartMin   int
	ColdStartFloor float64

	// AnomalyZScore flags amounts far outside a counterparty's history;
	// AnomalyMinHistory is the smallest history worth testing against.
	AnomalyZScore     float64
	AnomalyMinHistory int

	Weights Weights

	// Accounts is the chart of accounts offered to the LLM validator
	// when no trained model can supply one.
	Accounts []string

	// Batch processing bounds.
	BatchWorkers      int
	TenantConcurrency int64
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		AutoPostThreshold: 0.90,
		AmbiguousLow:      0.45,
		AmbiguousHigh:     0.85,
		MinMargin:         0.10,
		ColdStartMin:      3,
		ColdStartFloor:    0.30,
		AnomalyZScore:     3.5,
		AnomalyMinHistory: 5,
		Weights:           Weights{Rule: 0.55, ML: 0.35, LLM: 0.10},
		BatchWorkers:      8,
		TenantConcurrency: 2,
	}
}

// Validate rejects configurations that would undermine the gate.
func (c Config) Validate() error {
	if c.AutoPostThreshold <= 0 || c.AutoPostThreshold > 1 {
		return fmt.Errorf("%w: auto-post threshold %.2f out of (0,1]", common.ErrInvalidConfig, c.AutoPostThreshold)
	}
	if c.AmbiguousLow < 0 || c.AmbiguousHigh <= c.AmbiguousLow || c.AmbiguousHigh > 1 {
		return fmt.Errorf("%w: ambiguous band [%.2f,%.2f) is not a valid interval", common.ErrInvalidConfig, c.AmbiguousLow, c.AmbiguousHigh)
	}
	if c.AmbiguousHigh >= c.AutoPostThreshold {
		// A budget fallback caps confidence at the band's top; the cap
		// must stay below the gate or a declined LLM call could post.
		return fmt.Errorf("%w: ambiguous band top %.2f must stay below auto-post threshold %.2f", common.ErrInvalidConfig, c.AmbiguousHigh, c.AutoPostThreshold)
	}
	if c.Weights.Rule <= 0 || c.Weights.ML <= 0 || c.Weights.LLM <= 0 {
		return fmt.Errorf("%w: blend weights must be positive", common.ErrInvalidConfig)
	}
	if c.ColdStartMin < 1 {
		return fmt.Errorf("%w: cold-start minimum must be at least 1", common.ErrInvalidConfig)
	}
	if c.ColdStartFloor >= c.AutoPostThreshold {
		return fmt.Errorf("%w: cold-start floor %.2f must stay below auto-post threshold", common.ErrInvalidConfig, c.ColdStartFloor)
	}
	if c.BatchWorkers < 1 || c.TenantConcurrency < 1 {
		return fmt.Errorf("%w: batch concurrency bounds must be at least 1", common.ErrInvalidConfig)
	}
	return nil
}
