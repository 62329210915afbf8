// Package retention removes old queue entries so the match queue does
// not grow without bound.
package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eventscout/eventscout/internal/matchqueue"
	"github.com/eventscout/eventscout/internal/pkg/ctxlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sweptEntries = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "eventscout",
	Subsystem: "retention",
	Name:      "swept_entries_total",
	Help:      "Total number of queue entries removed by retention sweeps.",
})

// Config contains retention sweeper configuration.
type Config struct {
	// Horizon is how long queue entries are kept, measured from the
	// time they were queued. Sent and unsent entries age out alike.
	Horizon time.Duration
	// Interval is how often the sweep runs.
	Interval time.Duration
}

// DefaultConfig returns default retention configuration.
func DefaultConfig() Config {
	return Config{
		Horizon:  30 * 24 * time.Hour,
		Interval: 6 * time.Hour,
	}
}

// Sweeper periodically deletes queue entries queued before the
// retention horizon.
type Sweeper struct {
	config Config
	repo   matchqueue.Repository

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSweeper creates a retention sweeper.
func NewSweeper(config Config, repo matchqueue.Repository) *Sweeper {
	if config.Horizon <= 0 {
		config.Horizon = DefaultConfig().Horizon
	}
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	return &Sweeper{
		config: config,
		repo:   repo,
		stopCh: make(chan struct{}),
	}
}

// Sweep deletes every entry queued before now minus the horizon and
// returns how many were removed. It is safe to run concurrently with
// enqueues and digest sends.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.config.Horizon)

	deleted, err := s.repo.DeleteQueuedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete queue entries before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	sweptEntries.Add(float64(deleted))
	return deleted, nil
}

// Start launches the periodic sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop signals the loop to exit and waits for it.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	logger := ctxlog.FromContext(ctx)
	logger.Info("retention sweeper started",
		"horizon", s.config.Horizon.String(),
		"interval", s.config.Interval.String(),
	)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("retention sweeper stopped: context cancelled")
			return
		case <-s.stopCh:
			logger.Info("retention sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)

	deleted, err := s.Sweep(ctx, time.Now().UTC())
	if err != nil {
		logger.Error("retention sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		logger.Info("retention sweep removed entries", "deleted", deleted)
	}
}
