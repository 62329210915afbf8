package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eventscout/eventscout/internal/domain"
)

// Manager decides which subscriptions are due and advances their
// schedules after a digest completes.
type Manager struct {
	repo Repository
}

// NewManager creates a schedule manager.
func NewManager(repo Repository) *Manager {
	return &Manager{repo: repo}
}

// FindDue returns the subscriptions eligible for a digest at now:
// active, scheduled, and past their next-send time. Subscriptions that
// were never scheduled are skipped, not treated as due.
func (m *Manager) FindDue(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	subs, err := m.repo.FindDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("find due subscriptions: %w", err)
	}
	return subs, nil
}

// Reschedule advances the subscription's window: next send at
// now + frequency, last sent at now. Both fields are written in one
// statement, and repeating the call with a slightly later now after a
// crash is harmless.
func (m *Manager) Reschedule(ctx context.Context, sub *domain.Subscription, now time.Time) (time.Time, error) {
	next := now.Add(sub.Frequency())
	if err := m.repo.SetSchedule(ctx, sub.ID, now, next); err != nil {
		return time.Time{}, fmt.Errorf("reschedule subscription: %w", err)
	}

	slog.Debug("subscription rescheduled",
		"subscription_id", sub.ID,
		"next_scheduled_at", next,
	)
	return next, nil
}

// EnsureScheduled gives a never-scheduled subscription its first
// next-send time, one frequency interval from now. Subscriptions that
// already carry a schedule are left untouched.
func (m *Manager) EnsureScheduled(ctx context.Context, sub *domain.Subscription, now time.Time) error {
	if sub.NextScheduledAt != nil {
		return nil
	}

	next := now.Add(sub.Frequency())
	written, err := m.repo.InitSchedule(ctx, sub.ID, next)
	if err != nil {
		return fmt.Errorf("init schedule: %w", err)
	}
	if written {
		slog.Info("subscription entered digest rotation",
			"subscription_id", sub.ID,
			"next_scheduled_at", next,
		)
	}
	return nil
}

// GetByID returns one subscription.
func (m *Manager) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	sub, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// ListActive returns all active subscriptions, for the matching pass.
func (m *Manager) ListActive(ctx context.Context) ([]domain.Subscription, error) {
	subs, err := m.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	return subs, nil
}
