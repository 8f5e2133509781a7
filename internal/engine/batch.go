package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/finchbooks/finch/internal/common"
	"github.com/finchbooks/finch/internal/model"
)

// BatchResult summarizes one batch run.
type BatchResult struct {
	Decisions  []*model.Decision
	AutoPosted int
	Review     int
	Failed     int
}

// ProgressFunc receives (done, total) as transactions complete.
type ProgressFunc func(done, total int)

// ClassifyBatch classifies a slice of transactions concurrently.
// Overall parallelism is bounded by BatchWorkers and per-tenant
// parallelism by TenantConcurrency, so one noisy tenant cannot starve
// the others' LLM budgets. Individual failures are logged and counted;
// only a gate violation aborts the batch.
func (e *Engine) ClassifyBatch(ctx context.Context, txns []model.Transaction, progress ProgressFunc) (*BatchResult, error) {
	result := &BatchResult{Decisions: make([]*model.Decision, 0, len(txns))}
	if len(txns) == 0 {
		return result, nil
	}

	tenantSems := make(map[string]*semaphore.Weighted)
	for _, txn := range txns {
		if _, ok := tenantSems[txn.TenantID]; !ok {
			tenantSems[txn.TenantID] = semaphore.NewWeighted(e.config.TenantConcurrency)
		}
	}

	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.BatchWorkers)

	for _, txn := range txns {
		txn := txn
		sem := tenantSems[txn.TenantID]
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			decision, err := e.Classify(gctx, txn)

			mu.Lock()
			defer mu.Unlock()
			done++
			if progress != nil {
				progress(done, len(txns))
			}

			if err != nil {
				if errors.Is(err, common.ErrSafetyViolation) {
					return fmt.Errorf("aborting batch: %w", err)
				}
				slog.Error("failed to classify transaction",
					"transaction_id", txn.ID,
					"tenant_id", txn.TenantID,
					"error", err)
				result.Failed++
				return nil
			}

			result.Decisions = append(result.Decisions, decision)
			if decision.AutoPost {
				result.AutoPosted++
			} else {
				result.Review++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Info("batch classification complete",
		"total", len(txns),
		"auto_posted", result.AutoPosted,
		"review", result.Review,
		"failed", result.Failed)

	return result, nil
}
