// Package engine implements the cascading decision blender that turns
// rule, statistical, and LLM opinions into one auditable Decision.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"

	"github.com/finchbooks/finch/internal/calibrate"
	"github.com/finchbooks/finch/internal/common"
	"github.com/finchbooks/finch/internal/feature"
	"github.com/finchbooks/finch/internal/ml"
	"github.com/finchbooks/finch/internal/model"
	"github.com/finchbooks/finch/internal/rules"
	"github.com/finchbooks/finch/internal/service"
)

// Engine orchestrates the per-transaction classification pipeline:
// features, rules, statistical classifier, calibration, LLM fallback,
// blending, and the auto-post gate.
type Engine struct {
	storage    service.Storage
	ruleStore  *rules.Store
	matcher    *rules.Matcher
	classifier Classifier
	calibrator *calibrate.Calibrator
	validator  FallbackValidator
	config     Config
}

// New creates an engine. The validator may be nil, in which case the
// ambiguous band degrades directly to human review.
func New(storage service.Storage, ruleStore *rules.Store, classifier Classifier, calibrator *calibrate.Calibrator, validator FallbackValidator, config Config) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		storage:    storage,
		ruleStore:  ruleStore,
		matcher:    rules.NewMatcher(ruleStore),
		classifier: classifier,
		calibrator: calibrator,
		validator:  validator,
		config:     config,
	}, nil
}

// outcome is the blender's verdict before the gate is applied.
type outcome struct {
	account    string
	reason     model.ReasonCode
	candidates []model.Candidate
	confidence float64
}

// Classify runs the full pipeline for one transaction and returns an
// immutable Decision. Re-submitting a transaction id under unchanged
// rule and model versions returns the stored decision unchanged.
func (e *Engine) Classify(ctx context.Context, txn model.Transaction) (*model.Decision, error) {
	ruleVersion := e.ruleStore.Version()
	modelVersion := e.classifier.Version()

	existing, err := e.storage.GetDecision(ctx, txn.ID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for existing decision: %w", err)
	}
	if existing != nil && existing.RuleSetVersion == ruleVersion && existing.ModelVersion == modelVersion {
		slog.Debug("returning existing decision",
			"transaction_id", txn.ID,
			"decision_id", existing.ID)
		return existing, nil
	}

	tenant, err := e.tenant(ctx, txn.TenantID)
	if err != nil {
		return nil, err
	}

	result, err := e.evaluate(ctx, tenant, txn)
	if err != nil {
		return nil, err
	}

	decision := &model.Decision{
		ID:             uuid.New().String(),
		TransactionID:  txn.ID,
		TenantID:       txn.TenantID,
		Account:        result.account,
		Confidence:     result.confidence,
		Reason:         result.reason,
		Candidates:     result.candidates,
		RuleSetVersion: ruleVersion,
		ModelVersion:   modelVersion,
		DecidedAt:      time.Now(),
	}

	decision.AutoPost = AutoPost(decision.Confidence, e.config.AutoPostThreshold, tenant)
	decision.Status = model.ReviewPending
	if decision.AutoPost {
		decision.Status = model.ReviewAutoPosted
	}

	if err := VerifyGate(decision, e.config.AutoPostThreshold, tenant); err != nil {
		return nil, err
	}

	if err := e.storage.SaveDecision(ctx, decision); err != nil {
		return nil, fmt.Errorf("failed to save decision: %w", err)
	}

	slog.Info("transaction classified",
		"transaction_id", txn.ID,
		"tenant_id", txn.TenantID,
		"account", decision.Account,
		"confidence", decision.Confidence,
		"reason", decision.Reason,
		"auto_post", decision.AutoPost)

	return decision, nil
}

// evaluate runs the cascade: rules first, then the calibrated
// statistical classifier, with the LLM consulted only inside the
// ambiguous band.
func (e *Engine) evaluate(ctx context.Context, tenant model.Tenant, txn model.Transaction) (outcome, error) {
	match, err := e.matcher.Match(ctx, txn)
	if err != nil {
		return outcome{}, fmt.Errorf("rule matching failed: %w", err)
	}

	if match.Conflict {
		cand := *match.Candidate
		return outcome{
			account:    cand.Account,
			confidence: math.Min(cand.Confidence, e.config.AmbiguousLow),
			reason:     model.ReasonRuleConflict,
			candidates: []model.Candidate{cand},
		}, nil
	}

	var ruleCand *model.Candidate
	if match.Matched() {
		ruleCand = match.Candidate
		// A high-precision rule wins outright; this is the cheap, fully
		// explainable fast path.
		if ruleCand.Confidence >= e.config.AmbiguousHigh {
			return outcome{
				account:    ruleCand.Account,
				confidence: ruleCand.Confidence,
				reason:     model.ReasonRuleMatch,
				candidates: []model.Candidate{*ruleCand},
			}, nil
		}
	}

	hist, err := e.history(ctx, txn)
	if err != nil {
		return outcome{}, err
	}

	vector := feature.Extract(txn)
	pred, ok := e.classifier.Classify(vector)
	if !ok {
		return e.withoutModel(ctx, tenant, txn, hist, ruleCand), nil
	}

	started := time.Now()
	calibrated := e.calibrator.Apply(pred.Confidence)
	top := pred.Top()
	mlCand := model.Candidate{
		Method:     model.MethodML,
		Account:    top.Account,
		RawScore:   pred.Confidence,
		Confidence: calibrated,
		Latency:    time.Since(started),
		Rationale:  mlRationale(pred, vector),
	}

	// Ambiguous-input policy: a counterparty without enough consistent
	// history is never trusted, no matter what the raw score says.
	if ruleCand == nil && e.coldStart(txn, hist) {
		return outcome{
			account:    top.Account,
			confidence: math.Min(calibrated, e.config.ColdStartFloor),
			reason:     model.ReasonColdStart,
			candidates: []model.Candidate{mlCand},
		}, nil
	}

	if e.anomalous(txn, hist) {
		return outcome{
			account:    top.Account,
			confidence: math.Min(calibrated, e.config.AmbiguousLow),
			reason:     model.ReasonAnomaly,
			candidates: []model.Candidate{mlCand},
		}, nil
	}

	if ruleCand != nil {
		return e.blendRuleAndML(ctx, tenant, txn, *ruleCand, mlCand)
	}

	switch {
	case calibrated >= e.config.AmbiguousHigh && pred.Margin >= e.config.MinMargin:
		return outcome{
			account:    top.Account,
			confidence: calibrated,
			reason:     model.ReasonMLConfident,
			candidates: []model.Candidate{mlCand},
		}, nil
	case calibrated < e.config.AmbiguousLow:
		return outcome{
			account:    top.Account,
			confidence: calibrated,
			reason:     model.ReasonBelowThreshold,
			candidates: []model.Candidate{mlCand},
		}, nil
	default:
		contribs := []contribution{{weight: e.config.Weights.ML, confidence: calibrated}}
		return e.ambiguous(ctx, tenant, txn, top.Account, calibrated, contribs, []model.Candidate{mlCand}), nil
	}
}

// blendRuleAndML handles a low-precision rule match alongside an ML
// opinion. Agreement blends the two; disagreement is a conflict routed
// to review.
func (e *Engine) blendRuleAndML(ctx context.Context, tenant model.Tenant, txn model.Transaction, ruleCand, mlCand model.Candidate) (outcome, error) {
	cands := []model.Candidate{ruleCand, mlCand}

	if ruleCand.Account != mlCand.Account {
		return outcome{
			account:    ruleCand.Account,
			confidence: math.Min(math.Min(ruleCand.Confidence, mlCand.Confidence), e.config.AmbiguousLow),
			reason:     model.ReasonRuleConflict,
			candidates: cands,
		}, nil
	}

	contribs := []contribution{
		{weight: e.config.Weights.Rule, confidence: ruleCand.Confidence},
		{weight: e.config.Weights.ML, confidence: mlCand.Confidence},
	}
	blended := blend(contribs)

	switch {
	case blended >= e.config.AmbiguousHigh:
		return outcome{
			account:    ruleCand.Account,
			confidence: blended,
			reason:     model.ReasonRuleMatch,
			candidates: cands,
		}, nil
	case blended < e.config.AmbiguousLow:
		return outcome{
			account:    ruleCand.Account,
			confidence: blended,
			reason:     model.ReasonBelowThreshold,
			candidates: cands,
		}, nil
	default:
		return e.ambiguous(ctx, tenant, txn, ruleCand.Account, blended, contribs, cands), nil
	}
}

// withoutModel is the degraded path when no trained model is loaded:
// rule alone if one matched, cold-start if the counterparty is new,
// otherwise straight to the LLM or human review.
func (e *Engine) withoutModel(ctx context.Context, tenant model.Tenant, txn model.Transaction, hist *service.CounterpartyHistory, ruleCand *model.Candidate) outcome {
	if ruleCand != nil {
		return outcome{
			account:    ruleCand.Account,
			confidence: ruleCand.Confidence,
			reason:     model.ReasonRuleMatch,
			candidates: []model.Candidate{*ruleCand},
		}
	}

	if e.coldStart(txn, hist) {
		account, _ := hist.ConsistentAccount()
		return outcome{
			account:    account,
			confidence: 0,
			reason:     model.ReasonColdStart,
			candidates: nil,
		}
	}

	// Warm counterparty but no model: the LLM stands alone, and its
	// opinion stays capped below the gate.
	return e.ambiguous(ctx, tenant, txn, "", 0, nil, nil)
}

// contribution is one candidate's share of a weighted blend.
type contribution struct {
	weight     float64
	confidence float64
}

// blend renormalizes the configured weights over the candidates that
// are actually present.
func blend(contribs []contribution) float64 {
	var sum, total float64
	for _, c := range contribs {
		sum += c.weight * c.confidence
		total += c.weight
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// ambiguous consults the guarded LLM validator. Every guard failure
// degrades to a lower-confidence decision; nothing here errors a
// transaction. The fallback confidence is capped at the top of the
// ambiguous band so a declined or unavailable call can never post.
func (e *Engine) ambiguous(ctx context.Context, tenant model.Tenant, txn model.Transaction, account string, baseConf float64, contribs []contribution, cands []model.Candidate) outcome {
	capped := math.Min(baseConf, e.config.AmbiguousHigh)

	if e.validator == nil {
		return outcome{account: account, confidence: capped, reason: model.ReasonBelowThreshold, candidates: cands}
	}

	accounts := e.classifier.Accounts()
	if len(accounts) == 0 {
		accounts = e.config.Accounts
	}

	started := time.Now()
	opinion, err := e.validator.Validate(ctx, tenant, txn, accounts)
	if err != nil {
		if errors.Is(err, common.ErrBudgetExhausted) || errors.Is(err, common.ErrRateLimit) {
			slog.Debug("LLM budget declined, falling back",
				"transaction_id", txn.ID,
				"tenant_id", tenant.ID)
			return outcome{account: account, confidence: capped, reason: model.ReasonBudgetFallback, candidates: cands}
		}
		slog.Warn("LLM validator unavailable, falling back",
			"transaction_id", txn.ID,
			"error", err)
		return outcome{account: account, confidence: capped, reason: model.ReasonBelowThreshold, candidates: cands}
	}

	llmCand := model.Candidate{
		Method:     model.MethodLLM,
		Account:    opinion.Account,
		RawScore:   opinion.Confidence,
		Confidence: opinion.Confidence,
		Latency:    time.Since(started),
		Rationale:  opinion.Rationale,
	}
	cands = append(cands, llmCand)

	if account == "" {
		// No upstream opinion at all: the LLM stands alone, capped
		// below the gate.
		return outcome{
			account:    opinion.Account,
			confidence: math.Min(opinion.Confidence, e.config.AmbiguousHigh),
			reason:     model.ReasonLLMValidated,
			candidates: cands,
		}
	}

	if opinion.Account != account {
		// Methods disagree: genuine ambiguity, force review.
		return outcome{
			account:    account,
			confidence: math.Min(baseConf, e.config.AmbiguousLow),
			reason:     model.ReasonBelowThreshold,
			candidates: cands,
		}
	}

	contribs = append(contribs, contribution{weight: e.config.Weights.LLM, confidence: opinion.Confidence})
	return outcome{
		account:    account,
		confidence: blend(contribs),
		reason:     model.ReasonLLMValidated,
		candidates: cands,
	}
}

// coldStart reports whether the counterparty lacks the minimum history
// to trust automated confidence. An empty counterparty is always cold.
func (e *Engine) coldStart(txn model.Transaction, hist *service.CounterpartyHistory) bool {
	if txn.Counterparty == "" {
		return true
	}
	_, consistent := hist.ConsistentAccount()
	return consistent < e.config.ColdStartMin
}

// anomalous flags amounts far outside the counterparty's history.
func (e *Engine) anomalous(txn model.Transaction, hist *service.CounterpartyHistory) bool {
	if len(hist.Amounts) < e.config.AnomalyMinHistory {
		return false
	}
	mean, err := stats.Mean(stats.Float64Data(hist.Amounts))
	if err != nil {
		return false
	}
	stddev, err := stats.StandardDeviationSample(stats.Float64Data(hist.Amounts))
	if err != nil || stddev == 0 {
		return false
	}
	z := math.Abs(txn.Amount-mean) / stddev
	return z > e.config.AnomalyZScore
}

func (e *Engine) tenant(ctx context.Context, tenantID string) (model.Tenant, error) {
	tenant, err := e.storage.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			// Unknown tenants get the locked-down defaults.
			return model.DefaultTenant(tenantID), nil
		}
		return model.Tenant{}, fmt.Errorf("failed to load tenant %s: %w", tenantID, err)
	}
	return *tenant, nil
}

func (e *Engine) history(ctx context.Context, txn model.Transaction) (*service.CounterpartyHistory, error) {
	if txn.Counterparty == "" {
		return &service.CounterpartyHistory{Accounts: map[string]int{}}, nil
	}
	hist, err := e.storage.GetCounterpartyHistory(ctx, txn.TenantID, feature.NormalizeCounterparty(txn.Counterparty))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return &service.CounterpartyHistory{Accounts: map[string]int{}}, nil
		}
		return nil, fmt.Errorf("failed to load counterparty history: %w", err)
	}
	return hist, nil
}

func mlRationale(pred ml.Prediction, vector feature.Vector) string {
	top := pred.Top()
	msg := fmt.Sprintf("top account %q p=%.3f margin=%.3f (%s)", top.Account, top.Probability, pred.Margin, vector.String())
	if len(pred.Rankings) > 1 {
		msg += fmt.Sprintf("; runner-up %q p=%.3f", pred.Rankings[1].Account, pred.Rankings[1].Probability)
	}
	return msg
}
