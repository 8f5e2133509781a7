package ml

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/finchbooks/finch/internal/calibrate"
	"github.com/finchbooks/finch/internal/feature"
	"github.com/finchbooks/finch/internal/model"
	"github.com/finchbooks/finch/internal/service"
)

// TrainingStore is the slice of persistence the trainer reads.
type TrainingStore interface {
	GetDecisions(ctx context.Context, tenantID string, filter service.DecisionFilter) ([]model.Decision, error)
	GetTransactionsByPeriod(ctx context.Context, tenantID string, start, end time.Time) ([]model.Transaction, error)
}

// TrainerConfig sizes the training window.
type TrainerConfig struct {
	// LookbackDays bounds how far back reviewed decisions are mined.
	LookbackDays int

	// MinSamples is the smallest labeled set worth training on.
	MinSamples int
}

// DefaultTrainerConfig returns the default training configuration.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		LookbackDays: 365,
		MinSamples:   20,
	}
}

// Trainer refits the classifier and the confidence calibrator from
// reviewed decisions. Reviewed labels are the only ground truth the
// system has; pending decisions never feed training.
type Trainer struct {
	store      TrainingStore
	classifier *Classifier
	calibrator *calibrate.Calibrator
	config     TrainerConfig
}

// NewTrainer creates a trainer that refits the given classifier and
// calibrator in place.
func NewTrainer(store TrainingStore, classifier *Classifier, calibrator *calibrate.Calibrator, config TrainerConfig) *Trainer {
	return &Trainer{
		store:      store,
		classifier: classifier,
		calibrator: calibrator,
		config:     config,
	}
}

// Run retrains from one tenant's reviewed history. Too little data is a
// skip, not an error; the previous model stays live either way.
func (t *Trainer) Run(ctx context.Context, tenantID string, now time.Time) error {
	start := now.AddDate(0, 0, -t.config.LookbackDays)

	decisions, err := t.store.GetDecisions(ctx, tenantID, service.DecisionFilter{
		Start: start,
		End:   now,
		Statuses: []model.ReviewStatus{
			model.ReviewApproved,
			model.ReviewAutoPosted,
			model.ReviewRejected,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to load training decisions: %w", err)
	}

	txns, err := t.store.GetTransactionsByPeriod(ctx, tenantID, start, now)
	if err != nil {
		return fmt.Errorf("failed to load training transactions: %w", err)
	}
	byID := make(map[string]*model.Transaction, len(txns))
	for i := range txns {
		byID[txns[i].ID] = &txns[i]
	}

	var samples []Sample
	var points []calibrate.Point
	for i := range decisions {
		d := &decisions[i]
		txn, ok := byID[d.TransactionID]
		if !ok {
			continue
		}

		if d.Posted() {
			samples = append(samples, Sample{
				Account: d.Account,
				Terms:   feature.Extract(*txn).Terms(),
			})
		}

		// Every reviewed decision with an ML candidate is a held-out
		// calibration observation: did the raw score pan out?
		for _, c := range d.Candidates {
			if c.Method != model.MethodML {
				continue
			}
			points = append(points, calibrate.Point{
				Raw:     c.RawScore,
				Correct: d.Posted() && c.Account == d.Account,
			})
			break
		}
	}

	if len(samples) < t.config.MinSamples {
		slog.Debug("skipping training, not enough reviewed samples",
			"tenant_id", tenantID,
			"samples", len(samples),
			"min", t.config.MinSamples)
		return nil
	}

	if err := t.classifier.Train(samples); err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	if len(points) >= calibrate.MinPoints {
		fitted, err := calibrate.Fit(points)
		if err != nil {
			return fmt.Errorf("calibration fit failed: %w", err)
		}
		t.calibrator.Replace(fitted)
	}

	slog.Info("model retrained",
		"tenant_id", tenantID,
		"samples", len(samples),
		"calibration_points", len(points),
		"model_version", t.classifier.Version())
	return nil
}
