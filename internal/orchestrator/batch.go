package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/listingwatch/internal/metrics"
	"github.com/JakeFAU/listingwatch/internal/scraper"
)

// RunBatch processes sources in order with the configured delay between
// them. Cancellation through state or ctx stops the batch before the next
// source; the source in flight is allowed to finish. A nil state is replaced
// with a fresh one.
func (o *Orchestrator) RunBatch(ctx context.Context, sources []scraper.Source, force bool, state *RunState) Summary {
	if state == nil {
		state = NewRunState("", force)
	}
	started := o.clock.Now()
	state.begin(len(sources), started)
	metrics.BatchStarted()
	logger := o.logger.With(zap.String("batch_id", state.Snapshot().ID))
	logger.Info("batch started", zap.Int("sources", len(sources)), zap.Bool("force", force))

	for i, src := range sources {
		if o.stopRequested(ctx, state) {
			break
		}
		if i > 0 {
			o.pauser.Pause(ctx, state.done(), o.cfg.Delay)
			if o.stopRequested(ctx, state) {
				break
			}
		}
		state.setCurrent(src.Name)
		// Cancellation of ctx is only honored between sources.
		out := o.ProcessSource(context.WithoutCancel(ctx), src, force)
		state.record(out)
	}

	finished := o.clock.Now()
	metrics.BatchFinished(finished.Sub(started))
	summary := state.finish(finished)
	logger.Info("batch finished",
		zap.Int("progress", summary.Progress),
		zap.Int("total", summary.Total),
		zap.Int("changed", summary.Changed),
		zap.Int("unchanged", summary.Unchanged),
		zap.Int("failed", summary.Failed),
		zap.Int("new_records", summary.NewRecords),
		zap.Bool("canceled", summary.Canceled))
	return summary
}

func (o *Orchestrator) stopRequested(ctx context.Context, state *RunState) bool {
	if state.Canceled() {
		return true
	}
	if ctx.Err() != nil {
		state.Cancel()
		return true
	}
	return false
}
