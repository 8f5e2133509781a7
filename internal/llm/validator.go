// Package llm implements the fallback validator stage: an LLM consulted
// only when rule and statistical confidence land in the ambiguous band,
// behind rate, spend, and availability guards.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/finchbooks/finch/internal/model"
)

// Opinion is the validator's suggestion for one transaction. The
// rationale is a short human-readable string kept for audit.
type Opinion struct {
	Account    string
	Rationale  string
	Confidence float64
}

// Validator is the capability interface for LLM fallback validation.
// Exactly one implementation is selected at startup via configuration.
type Validator interface {
	Validate(ctx context.Context, txn model.Transaction, accounts []string) (Opinion, error)
}

// Config holds configuration for the validator and its guards.
type Config struct {
	Provider       string
	APIKey         string
	Model          string
	Temperature    float64
	MaxTokens      int
	Timeout        time.Duration
	CostPerCallUSD float64
	Cooldown       time.Duration
	CacheTTL       time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
}

// NewValidator creates the provider client named by the configuration.
func NewValidator(cfg Config) (Validator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "anthropic":
		return newAnthropicValidator(cfg)
	case "openai":
		return newOpenAIValidator(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// apiError carries the HTTP status so the guard can separate transient
// failures (retry) from rejections (fall back immediately).
type apiError struct {
	body   string
	status int
}

func (e *apiError) Error() string {
	return fmt.Sprintf("LLM API error (status %d): %s", e.status, e.body)
}

// transient reports whether the failure is worth retrying.
func (e *apiError) transient() bool {
	return e.status >= 500 || e.status == 429
}
