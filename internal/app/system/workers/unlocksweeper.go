// internal/app/system/workers/unlocksweeper.go
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/dikshahub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Sweeper clears lapsed manual unlocks. *scheduling.Engine satisfies it.
type Sweeper interface {
	SweepLapsedUnlocks(ctx context.Context) (int, error)
}

// UnlockSweeper is a background worker that clears manual unlock windows
// once they have expired. Lock state is always recomputed on read, so the
// sweeper only tidies stored state and emits relock events.
type UnlockSweeper struct {
	engine   Sweeper
	log      *zap.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewUnlockSweeper creates a new unlock sweeper.
//
// Parameters:
//   - engine: the scheduling engine (or anything that can sweep)
//   - logger: zap logger for logging
//   - interval: how often to sweep (e.g., 1 minute)
func NewUnlockSweeper(engine Sweeper, logger *zap.Logger, interval time.Duration) *UnlockSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnlockSweeper{
		engine:   engine,
		log:      logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (w *UnlockSweeper) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("unlock sweeper started", zap.Duration("interval", w.interval))
}

// Stop signals the worker to stop and waits for it to finish. Safe to call
// more than once.
func (w *UnlockSweeper) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.wg.Wait()
		w.log.Info("unlock sweeper stopped")
	})
}

func (w *UnlockSweeper) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.Sweep()
		}
	}
}

// Sweep runs one pass and returns how many containers were relocked.
func (w *UnlockSweeper) Sweep() int {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Sweep())
	defer cancel()

	count, err := w.engine.SweepLapsedUnlocks(ctx)
	if err != nil {
		w.log.Error("failed to sweep lapsed unlocks", zap.Error(err))
		return 0
	}
	if count > 0 {
		w.log.Info("relocked containers", zap.Int("count", count))
	}
	return count
}
