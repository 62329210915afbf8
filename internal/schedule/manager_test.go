package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/eventscout/eventscout/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepository implements Repository in memory.
type memRepository struct {
	subs map[string]*domain.Subscription
}

func newMemRepository() *memRepository {
	return &memRepository{subs: make(map[string]*domain.Subscription)}
}

func (m *memRepository) add(sub domain.Subscription) {
	clone := sub
	m.subs[sub.ID] = &clone
}

func (m *memRepository) FindDue(_ context.Context, now time.Time) ([]domain.Subscription, error) {
	due := make([]domain.Subscription, 0)
	for _, sub := range m.subs {
		if sub.IsActive && sub.NextScheduledAt != nil && !sub.NextScheduledAt.After(now) {
			due = append(due, *sub)
		}
	}
	return due, nil
}

func (m *memRepository) ListActive(_ context.Context) ([]domain.Subscription, error) {
	active := make([]domain.Subscription, 0)
	for _, sub := range m.subs {
		if sub.IsActive {
			active = append(active, *sub)
		}
	}
	return active, nil
}

func (m *memRepository) GetByID(_ context.Context, id string) (*domain.Subscription, error) {
	sub, ok := m.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	clone := *sub
	return &clone, nil
}

func (m *memRepository) SetSchedule(_ context.Context, id string, lastSent time.Time, next time.Time) error {
	sub, ok := m.subs[id]
	if !ok {
		return ErrSubscriptionNotFound
	}
	ls, n := lastSent, next
	sub.LastSentAt = &ls
	sub.NextScheduledAt = &n
	return nil
}

func (m *memRepository) InitSchedule(_ context.Context, id string, next time.Time) (bool, error) {
	sub, ok := m.subs[id]
	if !ok {
		return false, ErrSubscriptionNotFound
	}
	if sub.NextScheduledAt != nil {
		return false, nil
	}
	n := next
	sub.NextScheduledAt = &n
	return true, nil
}

func ts(t time.Time) *time.Time { return &t }

func TestManager_FindDue_Selection(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	repo := newMemRepository()
	repo.add(domain.Subscription{ID: "past", IsActive: true, NextScheduledAt: ts(now.Add(-time.Hour))})
	repo.add(domain.Subscription{ID: "exactly-now", IsActive: true, NextScheduledAt: ts(now)})
	repo.add(domain.Subscription{ID: "future", IsActive: true, NextScheduledAt: ts(now.Add(time.Hour))})
	repo.add(domain.Subscription{ID: "never-scheduled", IsActive: true})
	repo.add(domain.Subscription{ID: "inactive", IsActive: false, NextScheduledAt: ts(now.Add(-time.Hour))})

	due, err := NewManager(repo).FindDue(ctx, now)
	require.NoError(t, err)

	ids := make([]string, 0, len(due))
	for _, sub := range due {
		ids = append(ids, sub.ID)
	}
	assert.ElementsMatch(t, []string{"past", "exactly-now"}, ids)
}

func TestManager_Reschedule(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	repo := newMemRepository()
	repo.add(domain.Subscription{ID: "sub-1", IsActive: true, FrequencyHours: 6, NextScheduledAt: ts(now)})

	sub, err := repo.GetByID(ctx, "sub-1")
	require.NoError(t, err)

	next, err := NewManager(repo).Reschedule(ctx, sub, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(6*time.Hour), next)

	stored := repo.subs["sub-1"]
	assert.Equal(t, now, *stored.LastSentAt)
	assert.Equal(t, next, *stored.NextScheduledAt)
}

func TestManager_Reschedule_DefaultFrequency(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	repo := newMemRepository()
	repo.add(domain.Subscription{ID: "sub-1", IsActive: true}) // FrequencyHours unset

	sub, err := repo.GetByID(ctx, "sub-1")
	require.NoError(t, err)

	next, err := NewManager(repo).Reschedule(ctx, sub, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(24*time.Hour), next)
}

func TestManager_Reschedule_RepeatIsSafe(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	repo := newMemRepository()
	repo.add(domain.Subscription{ID: "sub-1", IsActive: true, FrequencyHours: 24, NextScheduledAt: ts(now)})
	mgr := NewManager(repo)

	sub, err := repo.GetByID(ctx, "sub-1")
	require.NoError(t, err)

	_, err = mgr.Reschedule(ctx, sub, now)
	require.NoError(t, err)

	// A crashed cycle repeats the reschedule with a slightly later now.
	later := now.Add(30 * time.Second)
	next, err := mgr.Reschedule(ctx, sub, later)
	require.NoError(t, err)

	assert.Equal(t, later.Add(24*time.Hour), next)
	assert.Equal(t, later, *repo.subs["sub-1"].LastSentAt)
}

func TestManager_EnsureScheduled(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	repo := newMemRepository()
	repo.add(domain.Subscription{ID: "fresh", IsActive: true, FrequencyHours: 12})
	existing := now.Add(3 * time.Hour)
	repo.add(domain.Subscription{ID: "scheduled", IsActive: true, NextScheduledAt: &existing})
	mgr := NewManager(repo)

	fresh, err := repo.GetByID(ctx, "fresh")
	require.NoError(t, err)
	require.NoError(t, mgr.EnsureScheduled(ctx, fresh, now))
	assert.Equal(t, now.Add(12*time.Hour), *repo.subs["fresh"].NextScheduledAt)

	// An already-scheduled subscription is left alone.
	scheduled, err := repo.GetByID(ctx, "scheduled")
	require.NoError(t, err)
	require.NoError(t, mgr.EnsureScheduled(ctx, scheduled, now))
	assert.Equal(t, existing, *repo.subs["scheduled"].NextScheduledAt)
}
