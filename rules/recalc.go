package rules

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/miethe/dealbrain/internal/logger"
)

// ListingSource supplies listings for bulk recalculation. Implementations
// must fully materialize each context (CPU/GPU/RAM/storage attributes
// included) before returning it; evaluation performs no I/O of its own.
type ListingSource interface {
	ListingIDs(ctx context.Context) ([]string, error)
	Load(ctx context.Context, id string) (Context, error)
}

// PriceWriter persists one listing's adjusted price. Implementations own
// the per-listing write serialization (optimistic version check or row
// lock); the recalculator never writes the same listing twice in one run.
type PriceWriter interface {
	WriteAdjustedPrice(ctx context.Context, listingID string, price float64) error
}

// RecalcReport summarizes one bulk recalculation run
type RecalcReport struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Clamped   int `json:"clamped"`
}

// Recalculator re-evaluates every listing against a ruleset snapshot.
//
// Each listing's evaluation is an independent pure function with no shared
// mutable state, so the work fans out across workers with no coordination
// beyond the final per-listing write-back. Runs are idempotent and
// restartable: an interrupted run re-executed from scratch produces the
// same final prices, because nothing accumulates across runs.
type Recalculator struct {
	engine  *Engine
	source  ListingSource
	sink    PriceWriter
	workers int
}

// NewRecalculator creates a recalculator; workers <= 0 means one per CPU
func NewRecalculator(engine *Engine, source ListingSource, sink PriceWriter, workers int) *Recalculator {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Recalculator{engine: engine, source: source, sink: sink, workers: workers}
}

// Run evaluates every listing against the snapshot and writes back prices.
// Individual listing failures are counted and logged, not fatal; only
// context cancellation aborts the run.
func (r *Recalculator) Run(ctx context.Context, snapshot *Ruleset) (*RecalcReport, error) {
	ids, err := r.source.ListingIDs(ctx)
	if err != nil {
		return nil, err
	}

	var processed, failed, clamped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			listing, err := r.source.Load(gctx, id)
			if err != nil {
				logger.Warn("failed to load listing for recalculation", "listing_id", id, "error", err)
				failed.Add(1)
				return nil
			}

			eval := r.engine.Evaluate(snapshot, listing)

			if err := r.sink.WriteAdjustedPrice(gctx, id, eval.AdjustedPrice); err != nil {
				logger.Warn("failed to write adjusted price", "listing_id", id, "error", err)
				failed.Add(1)
				return nil
			}

			processed.Add(1)
			if eval.Clamped {
				clamped.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &RecalcReport{
		Processed: int(processed.Load()),
		Failed:    int(failed.Load()),
		Clamped:   int(clamped.Load()),
	}

	logger.Info("bulk recalculation complete",
		"listings", len(ids), "processed", report.Processed,
		"failed", report.Failed, "clamped", report.Clamped)
	return report, nil
}
