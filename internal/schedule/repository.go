// Package schedule tracks per-subscription digest timing: which
// subscriptions are due now and when each one goes due next.
package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/eventscout/eventscout/internal/domain"
)

// Repository errors.
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Repository defines subscription scheduling data access.
type Repository interface {
	// FindDue returns active subscriptions whose next_scheduled_at is
	// set and has arrived. Null schedules are never selected.
	FindDue(ctx context.Context, now time.Time) ([]domain.Subscription, error)

	// ListActive returns all active subscriptions.
	ListActive(ctx context.Context) ([]domain.Subscription, error)

	// GetByID returns one subscription.
	GetByID(ctx context.Context, id string) (*domain.Subscription, error)

	// SetSchedule persists last_sent_at and next_scheduled_at together.
	SetSchedule(ctx context.Context, id string, lastSent time.Time, next time.Time) error

	// InitSchedule sets next_scheduled_at only when it is currently
	// null. Returns true when a schedule was written.
	InitSchedule(ctx context.Context, id string, next time.Time) (bool, error)
}
