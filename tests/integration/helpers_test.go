//go:build integration

package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/eventscout/eventscout/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// truncateAll wipes every table between tests.
func truncateAll(t *testing.T) {
	t.Helper()
	_, err := testDB.Exec(context.Background(),
		`TRUNCATE queue_entries, events, subscriptions, users CASCADE`)
	require.NoError(t, err)
}

func seedUser(t *testing.T, email string) string {
	t.Helper()
	var id string
	err := testDB.QueryRow(context.Background(),
		`INSERT INTO users (email) VALUES ($1) RETURNING id`, email).Scan(&id)
	require.NoError(t, err)
	return id
}

type subscriptionOption func(*domain.Subscription)

func withFrequency(hours int) subscriptionOption {
	return func(sub *domain.Subscription) { sub.FrequencyHours = hours }
}

func withNextScheduledAt(at time.Time) subscriptionOption {
	return func(sub *domain.Subscription) { sub.NextScheduledAt = &at }
}

func inactive() subscriptionOption {
	return func(sub *domain.Subscription) { sub.IsActive = false }
}

func seedSubscription(t *testing.T, userID, prompt string, opts ...subscriptionOption) string {
	t.Helper()

	sub := domain.Subscription{
		UserID:         userID,
		Prompt:         prompt,
		IsActive:       true,
		FrequencyHours: domain.DefaultFrequencyHours,
	}
	for _, opt := range opts {
		opt(&sub)
	}

	var id string
	err := testDB.QueryRow(context.Background(), `
		INSERT INTO subscriptions (user_id, prompt, is_active, frequency_hours, next_scheduled_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, sub.UserID, sub.Prompt, sub.IsActive, sub.FrequencyHours, sub.NextScheduledAt).Scan(&id)
	require.NoError(t, err)
	return id
}

func seedEvent(t *testing.T, title string, scrapedAt time.Time) string {
	t.Helper()
	var id string
	err := testDB.QueryRow(context.Background(), `
		INSERT INTO events (title, description, url, starts_at, last_scraped_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, title, title+" description", fmt.Sprintf("https://events.example.com/%s", uuid.NewString()),
		scrapedAt.Add(7*24*time.Hour), scrapedAt).Scan(&id)
	require.NoError(t, err)
	return id
}

func deleteEvent(t *testing.T, eventID string) {
	t.Helper()
	_, err := testDB.Exec(context.Background(), `DELETE FROM events WHERE id = $1`, eventID)
	require.NoError(t, err)
}

func queueEntryState(t *testing.T, subscriptionID, eventID string) (score float64, sent bool) {
	t.Helper()
	err := testDB.QueryRow(context.Background(), `
		SELECT match_score, sent FROM queue_entries
		WHERE subscription_id = $1 AND event_id = $2
	`, subscriptionID, eventID).Scan(&score, &sent)
	require.NoError(t, err)
	return score, sent
}
