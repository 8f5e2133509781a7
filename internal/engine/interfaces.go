package engine

import (
	"context"

	"github.com/finchbooks/finch/internal/feature"
	"github.com/finchbooks/finch/internal/llm"
	"github.com/finchbooks/finch/internal/ml"
	"github.com/finchbooks/finch/internal/model"
)

// Classifier is the statistical stage of the cascade. *ml.Classifier
// implements it; tests substitute scripted predictions.
type Classifier interface {
	Classify(v feature.Vector) (ml.Prediction, bool)
	Accounts() []string
	Version() string
}

// FallbackValidator is the guarded LLM stage consulted only inside the
// ambiguous band. *llm.Guard implements it.
type FallbackValidator interface {
	Validate(ctx context.Context, tenant model.Tenant, txn model.Transaction, accounts []string) (llm.Opinion, error)
}
