//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/eventscout/eventscout/internal/schedule"
	schedulepostgres "github.com/eventscout/eventscout/internal/schedule/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScheduleManager() *schedule.Manager {
	return schedule.NewManager(schedulepostgres.NewRepository(testDB))
}

func TestSchedule_FindDue(t *testing.T) {
	truncateAll(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	userID := seedUser(t, "find-due@example.com")
	dueID := seedSubscription(t, userID, "due", withNextScheduledAt(now.Add(-time.Minute)))
	seedSubscription(t, userID, "future", withNextScheduledAt(now.Add(time.Hour)))
	seedSubscription(t, userID, "never scheduled")
	seedSubscription(t, userID, "inactive",
		withNextScheduledAt(now.Add(-time.Minute)), inactive())

	due, err := newScheduleManager().FindDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, dueID, due[0].ID)
}

func TestSchedule_RescheduleAdvancesByFrequency(t *testing.T) {
	truncateAll(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	userID := seedUser(t, "reschedule@example.com")
	subID := seedSubscription(t, userID, "weekly digest",
		withFrequency(168), withNextScheduledAt(now))

	schedules := newScheduleManager()
	sub, err := schedules.GetByID(ctx, subID)
	require.NoError(t, err)

	next, err := schedules.Reschedule(ctx, sub, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(168*time.Hour), next)

	reloaded, err := schedules.GetByID(ctx, subID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.NextScheduledAt)
	assert.True(t, reloaded.NextScheduledAt.Equal(next))
	require.NotNil(t, reloaded.LastSentAt)
	assert.True(t, reloaded.LastSentAt.Equal(now))
}

func TestSchedule_InitScheduleOnlyOnce(t *testing.T) {
	truncateAll(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	userID := seedUser(t, "init@example.com")
	subID := seedSubscription(t, userID, "fresh subscription")

	schedules := newScheduleManager()
	sub, err := schedules.GetByID(ctx, subID)
	require.NoError(t, err)

	require.NoError(t, schedules.EnsureScheduled(ctx, sub, now))

	first, err := schedules.GetByID(ctx, subID)
	require.NoError(t, err)
	require.NotNil(t, first.NextScheduledAt)

	// A later call never moves an existing schedule.
	require.NoError(t, schedules.EnsureScheduled(ctx, first, now.Add(time.Hour)))

	second, err := schedules.GetByID(ctx, subID)
	require.NoError(t, err)
	assert.True(t, second.NextScheduledAt.Equal(*first.NextScheduledAt))
}

func TestSchedule_GetByIDNotFound(t *testing.T) {
	truncateAll(t)

	_, err := newScheduleManager().GetByID(context.Background(),
		"00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, schedule.ErrSubscriptionNotFound)
}
