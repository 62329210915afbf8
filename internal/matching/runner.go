// Package matching scores freshly scraped events against active
// subscriptions and queues the ones that clear the threshold.
package matching

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eventscout/eventscout/internal/domain"
	"github.com/eventscout/eventscout/internal/events"
	"github.com/eventscout/eventscout/internal/matchqueue"
	"github.com/eventscout/eventscout/internal/pkg/ctxlog"
	"github.com/eventscout/eventscout/internal/schedule"
	"github.com/eventscout/eventscout/internal/scorer"
)

// Config contains matching pass configuration.
type Config struct {
	// Interval is how often a matching pass runs.
	Interval time.Duration
	// FreshnessWindow bounds how far back scraped events are pulled
	// on each pass. It should comfortably exceed Interval so no event
	// slips between passes.
	FreshnessWindow time.Duration
	// MinScore is the lowest score that still queues a match.
	MinScore float64
}

// DefaultConfig returns default matching configuration.
func DefaultConfig() Config {
	return Config{
		Interval:        15 * time.Minute,
		FreshnessWindow: time.Hour,
		MinScore:        0.35,
	}
}

// Report aggregates the outcome of one matching pass.
type Report struct {
	Subscriptions int
	Events        int
	Scored        int
	Queued        int
	BelowMin      int
	ScoreFailures int
}

// Runner executes periodic matching passes.
type Runner struct {
	config    Config
	schedules *schedule.Manager
	events    events.Repository
	scorer    scorer.Scorer
	queue     *matchqueue.Manager

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRunner creates a matching runner.
func NewRunner(config Config, schedules *schedule.Manager, eventsRepo events.Repository, sc scorer.Scorer, queue *matchqueue.Manager) *Runner {
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.FreshnessWindow <= 0 {
		config.FreshnessWindow = defaults.FreshnessWindow
	}
	return &Runner{
		config:    config,
		schedules: schedules,
		events:    eventsRepo,
		scorer:    sc,
		queue:     queue,
		stopCh:    make(chan struct{}),
	}
}

// RunPass scores every fresh event against every active subscription.
// Scoring failures skip that pairing and count in the report; they
// never abort the pass. Re-running a pass over the same events is
// harmless because the queue only upgrades scores.
func (r *Runner) RunPass(ctx context.Context, now time.Time) (*Report, error) {
	logger := ctxlog.FromContext(ctx)

	subs, err := r.schedules.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}

	report := &Report{Subscriptions: len(subs)}
	if len(subs) == 0 {
		return report, nil
	}

	fresh, err := r.events.ListScrapedSince(ctx, now.Add(-r.config.FreshnessWindow))
	if err != nil {
		return nil, fmt.Errorf("list fresh events: %w", err)
	}

	report.Events = len(fresh)
	if len(fresh) == 0 {
		return report, nil
	}

	for _, sub := range subs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		r.matchSubscription(ctx, sub, fresh, now, report)
	}

	logger.Info("matching pass finished",
		"subscriptions", report.Subscriptions,
		"events", report.Events,
		"queued", report.Queued,
		"below_min", report.BelowMin,
		"score_failures", report.ScoreFailures,
	)

	return report, nil
}

func (r *Runner) matchSubscription(ctx context.Context, sub domain.Subscription, fresh []domain.Event, now time.Time, report *Report) {
	logger := ctxlog.FromContext(ctx).With("subscription_id", sub.ID)

	queued := 0
	for _, event := range fresh {
		result, err := r.scorer.Score(ctx, sub.Prompt, event)
		if err != nil {
			logger.Warn("scoring failed, skipping pairing", "event_id", event.ID, "error", err)
			report.ScoreFailures++
			continue
		}
		report.Scored++

		if result.Score < r.config.MinScore {
			report.BelowMin++
			continue
		}

		if _, err := r.queue.EnqueueOrUpdate(ctx, sub.ID, event.ID, result.Score, result.MatchType); err != nil {
			logger.Error("failed to queue match", "event_id", event.ID, "error", err)
			report.ScoreFailures++
			continue
		}
		queued++
	}
	report.Queued += queued

	// A subscription that has never been sent anything gets its first
	// digest window the moment it has something queued.
	if queued > 0 {
		if err := r.schedules.EnsureScheduled(ctx, &sub, now); err != nil {
			logger.Error("failed to init digest schedule", "error", err)
		}
	}
}

// Start launches the periodic matching loop.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.run(ctx)
}

// Stop signals the loop to exit and waits for it.
func (r *Runner) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context) {
	defer r.wg.Done()

	logger := ctxlog.FromContext(ctx)
	logger.Info("matching runner started",
		"interval", r.config.Interval.String(),
		"freshness_window", r.config.FreshnessWindow.String(),
		"min_score", r.config.MinScore,
	)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.pass(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("matching runner stopped: context cancelled")
			return
		case <-r.stopCh:
			logger.Info("matching runner stopped")
			return
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

func (r *Runner) pass(ctx context.Context) {
	if _, err := r.RunPass(ctx, time.Now().UTC()); err != nil {
		ctxlog.FromContext(ctx).Error("matching pass failed", "error", err)
	}
}
