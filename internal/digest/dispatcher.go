// Package digest assembles and dispatches batched notification emails
// for due subscriptions.
package digest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eventscout/eventscout/internal/domain"
	"github.com/eventscout/eventscout/internal/matchqueue"
	"github.com/eventscout/eventscout/internal/pkg/ctxlog"
	"github.com/eventscout/eventscout/internal/schedule"
)

// ErrDigestDropped is returned by a Mailer that disposed of a digest
// instead of delivering it, typically because sending is disabled. The
// dispatcher still marks the entries sent and advances the schedule so
// the queue does not grow, but reports the drop separately from sends.
var ErrDigestDropped = errors.New("digest dropped without delivery")

// Mailer delivers one digest. A send is all-or-nothing per
// subscription: any error other than ErrDigestDropped means nothing
// was delivered.
type Mailer interface {
	Send(ctx context.Context, sub domain.Subscription, matches []matchqueue.Match) error
}

// Config contains dispatcher configuration.
type Config struct {
	// Concurrency bounds how many subscriptions are processed in
	// parallel within one cycle, to respect mailer rate limits.
	Concurrency int
	// MailerTimeout bounds each individual mailer call.
	MailerTimeout time.Duration
}

// DefaultConfig returns default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:   4,
		MailerTimeout: 30 * time.Second,
	}
}

// Dispatcher runs digest cycles: for every due subscription it pulls
// unsent matches, mails them best-score-first, marks them sent and
// advances the schedule.
type Dispatcher struct {
	config    Config
	schedules *schedule.Manager
	queue     *matchqueue.Manager
	mailer    Mailer
}

// NewDispatcher creates a digest dispatcher.
func NewDispatcher(config Config, schedules *schedule.Manager, queue *matchqueue.Manager, mailer Mailer) *Dispatcher {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &Dispatcher{
		config:    config,
		schedules: schedules,
		queue:     queue,
		mailer:    mailer,
	}
}

// RunCycle processes every due subscription once. Subscriptions are
// independent units of work: a failure in one is recorded in the report
// and never aborts the others. The returned error covers only the due
// lookup itself.
func (d *Dispatcher) RunCycle(ctx context.Context, now time.Time) (*Report, error) {
	start := time.Now()
	logger := ctxlog.FromContext(ctx)

	due, err := d.schedules.FindDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("find due subscriptions: %w", err)
	}

	report := &Report{}
	if len(due) == 0 {
		return report, nil
	}

	logger.Info("digest cycle started", "due_subscriptions", len(due))

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, d.config.Concurrency)
	)

	for _, sub := range due {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(sub domain.Subscription) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := d.processSubscription(ctx, sub, now)

			mu.Lock()
			defer mu.Unlock()
			report.Processed++
			switch {
			case outcome.failure != nil:
				report.Failures = append(report.Failures, *outcome.failure)
			case outcome.dropped:
				report.DigestsDropped++
			case outcome.events == 0:
				report.EmptyDigests++
			default:
				report.DigestsSent++
				report.EventsIncluded += outcome.events
			}
		}(sub)
	}

	wg.Wait()

	recordCycle(report, time.Since(start))
	logger.Info("digest cycle finished",
		"processed", report.Processed,
		"sent", report.DigestsSent,
		"empty", report.EmptyDigests,
		"dropped", report.DigestsDropped,
		"events", report.EventsIncluded,
		"failures", len(report.Failures),
	)

	return report, nil
}

type subOutcome struct {
	events  int
	dropped bool
	failure *Failure
}

// processSubscription handles one due subscription. MarkSent runs
// before Reschedule; if the process dies between them the subscription
// stays due, the next cycle finds no unsent matches and reschedules
// without mailing, so events are never lost and never re-sent after a
// successful MarkSent.
func (d *Dispatcher) processSubscription(ctx context.Context, sub domain.Subscription, now time.Time) subOutcome {
	ctx = ctxlog.With(ctx, "subscription_id", sub.ID)
	logger := ctxlog.FromContext(ctx)

	matches, err := d.queue.ListForSubscription(ctx, sub.ID, false)
	if err != nil {
		logger.Error("failed to list unsent matches", "error", err)
		return subOutcome{failure: &Failure{SubscriptionID: sub.ID, Stage: "list", Err: err}}
	}

	// An empty digest is not an error: advance the window without
	// touching the mailer.
	if len(matches) == 0 {
		if _, err := d.schedules.Reschedule(ctx, &sub, now); err != nil {
			logger.Error("failed to reschedule empty digest", "error", err)
			return subOutcome{failure: &Failure{SubscriptionID: sub.ID, Stage: "reschedule", Err: err}}
		}
		return subOutcome{}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.config.MailerTimeout)
	defer cancel()

	sendStart := time.Now()
	err = d.mailer.Send(sendCtx, sub, matches)
	sendDuration.Observe(time.Since(sendStart).Seconds())

	dropped := false
	if err != nil {
		if !errors.Is(err, ErrDigestDropped) {
			// Nothing is marked sent and the schedule is untouched: the
			// subscription stays due and the same unsent set is retried
			// next cycle.
			logger.Warn("mailer send failed, digest will be retried",
				"events", len(matches),
				"error", err,
			)
			return subOutcome{failure: &Failure{SubscriptionID: sub.ID, Stage: "send", Err: err}}
		}
		// The mailer disposed of the digest without delivering it.
		// Mark sent and advance anyway so the queue cannot grow
		// unbounded while sending is off, and report the drop.
		dropped = true
	}

	eventIDs := make([]string, len(matches))
	for i, m := range matches {
		eventIDs[i] = m.Entry.EventID
	}

	if err := d.queue.MarkSent(ctx, sub.ID, eventIDs); err != nil {
		logger.Error("failed to mark entries sent after delivery", "error", err)
		return subOutcome{failure: &Failure{SubscriptionID: sub.ID, Stage: "mark_sent", Err: err}}
	}

	if _, err := d.schedules.Reschedule(ctx, &sub, now); err != nil {
		logger.Error("failed to reschedule after delivery", "error", err)
		return subOutcome{failure: &Failure{SubscriptionID: sub.ID, Stage: "reschedule", Err: err}}
	}

	if dropped {
		logger.Warn("digest dropped without delivery", "events", len(matches))
		return subOutcome{dropped: true}
	}

	logger.Info("digest sent", "events", len(matches))
	return subOutcome{events: len(matches)}
}
