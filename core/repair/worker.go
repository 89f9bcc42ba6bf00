package repair

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Worker polls the repair engine at a fixed interval, processing due
// repairs and sweeping timed-out ones. Grounded on the same ticker-loop
// shape used by the queued-message worker (spec §4.7/§4.8).
type Worker struct {
	engine       *Engine
	pollInterval time.Duration
	batchSize    int
	logger       *zap.Logger
}

// NewWorker creates a Worker that drives engine at pollInterval.
func NewWorker(engine *Engine, pollInterval time.Duration, batchSize int, logger *zap.Logger) *Worker {
	return &Worker{engine: engine, pollInterval: pollInterval, batchSize: batchSize, logger: logger.Named("repair-worker")}
}

// Run blocks, polling until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("repair worker started", zap.Duration("poll_interval", w.pollInterval))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("repair worker shutting down")
			return ctx.Err()
		case <-ticker.C:
			if n, err := w.engine.ProcessBatch(ctx, "", w.batchSize); err != nil {
				w.logger.Error("repair batch processing failed", zap.Error(err))
			} else if n > 0 {
				w.logger.Debug("repair batch processed", zap.Int("count", n))
			}
			if n, err := w.engine.Sweep(ctx); err != nil {
				w.logger.Error("repair sweep failed", zap.Error(err))
			} else if n > 0 {
				w.logger.Debug("repair sweep completed", zap.Int("count", n))
			}
		}
	}
}
