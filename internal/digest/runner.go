package digest

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Runner invokes digest cycles on a fixed interval.
type Runner struct {
	dispatcher *Dispatcher
	interval   time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRunner creates a digest runner.
func NewRunner(dispatcher *Dispatcher, interval time.Duration) *Runner {
	return &Runner{
		dispatcher: dispatcher,
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
}

// Start launches the cycle loop. The first cycle runs immediately.
func (r *Runner) Start(ctx context.Context) {
	slog.Info("starting digest runner", "interval", r.interval)

	r.wg.Add(1)
	go r.run(ctx)
}

// Stop waits for an in-flight cycle to finish and stops the loop.
func (r *Runner) Stop() {
	close(r.stopCh)
	r.wg.Wait()
	slog.Info("digest runner stopped")
}

func (r *Runner) run(ctx context.Context) {
	defer r.wg.Done()

	r.cycle(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.cycle(ctx)
		}
	}
}

func (r *Runner) cycle(ctx context.Context) {
	if _, err := r.dispatcher.RunCycle(ctx, time.Now().UTC()); err != nil {
		slog.Error("digest cycle failed", "error", err)
	}
}
