package worker

import (
	"context"
	"sync"
	"time"

	"github.com/secmon-lab/ackbot/pkg/domain/model"
	"github.com/secmon-lab/ackbot/pkg/utils/errutil"
	"github.com/secmon-lab/ackbot/pkg/utils/logging"
)

// DefaultSweepInterval is how often the worker sweeps the retry queue
const DefaultSweepInterval = 5 * time.Minute

// SweepFunc runs one sweep of the retry queue
type SweepFunc func(ctx context.Context) (*model.SweepResult, error)

// SweepWorker periodically sweeps the retry queue inside the serving process.
//
// Architecture assumptions:
// - Evaluations are serialized per message within one process only
// - When several instances run, prefer a single external trigger of /hooks/check instead
type SweepWorker struct {
	sweep    SweepFunc
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewSweepWorker creates a new worker calling sweep every interval
func NewSweepWorker(sweep SweepFunc, interval time.Duration) *SweepWorker {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &SweepWorker{
		sweep:    sweep,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background sweep loop. The first sweep runs immediately without blocking
// the caller.
func (w *SweepWorker) Start(ctx context.Context) error {
	logging.Default().Info("sweep worker starting", "interval", w.interval.String())

	go w.run(ctx)

	return nil
}

// Stop signals the worker to stop and waits for the running sweep to finish
func (w *SweepWorker) Stop() {
	w.stopOnce.Do(func() {
		logging.Default().Info("sweep worker stopping")
		close(w.stopCh)
	})
	<-w.doneCh
	logging.Default().Info("sweep worker stopped")
}

func (w *SweepWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runOnce(ctx)

		case <-w.stopCh:
			logging.Default().Info("sweep worker received stop signal")
			return

		case <-ctx.Done():
			logging.Default().Info("sweep worker context cancelled")
			return
		}
	}
}

// runOnce keeps the loop alive on failure; the next tick retries
func (w *SweepWorker) runOnce(ctx context.Context) {
	startTime := time.Now()

	result, err := w.sweep(ctx)
	if err != nil {
		_ = errutil.Handle(ctx, err, "sweep failed (will retry next interval)")
		return
	}

	logging.Default().Info("sweep completed",
		"sweep_id", result.SweepID,
		"complete", len(result.Complete),
		"incomplete", len(result.Incomplete),
		"failed", len(result.Failed),
		"expired", len(result.Expired),
		"duration", time.Since(startTime).String())
}
