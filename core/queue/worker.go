package queue

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Worker polls Drain at a fixed interval and reclaims stuck PROCESSING
// records on a slower cadence (spec §4.8).
type Worker struct {
	drain          *Drain
	pollInterval   time.Duration
	reclaimEvery   int
	reclaimCutoff  time.Duration
	logger         *zap.Logger
}

// NewWorker creates a Worker. reclaimEvery is the number of ticks between
// stuck-record reclaim sweeps (reclaim is cheap but need not run every tick).
func NewWorker(drain *Drain, pollInterval time.Duration, reclaimEvery int, reclaimCutoff time.Duration, logger *zap.Logger) *Worker {
	if reclaimEvery < 1 {
		reclaimEvery = 1
	}
	return &Worker{drain: drain, pollInterval: pollInterval, reclaimEvery: reclaimEvery, reclaimCutoff: reclaimCutoff, logger: logger.Named("queue-worker")}
}

// Run blocks, polling until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("queue worker started", zap.Duration("poll_interval", w.pollInterval))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("queue worker shutting down")
			return ctx.Err()
		case <-ticker.C:
			tick++
			if n, err := w.drain.Tick(ctx); err != nil {
				w.logger.Error("queue tick failed", zap.Error(err))
			} else if n > 0 {
				w.logger.Debug("queue tick processed", zap.Int("count", n))
			}
			if tick%w.reclaimEvery == 0 {
				if n, err := w.drain.ReclaimStuck(ctx, w.reclaimCutoff); err != nil {
					w.logger.Error("queue reclaim failed", zap.Error(err))
				} else if n > 0 {
					w.logger.Warn("reclaimed stuck queued messages", zap.Int("count", n))
				}
			}
		}
	}
}
