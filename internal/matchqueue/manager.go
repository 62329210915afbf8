package matchqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eventscout/eventscout/internal/domain"
	"github.com/google/uuid"
)

// Manager applies the enqueue/update/dedup policy on top of the queue
// repository.
type Manager struct {
	repo Repository
	now  func() time.Time
}

// NewManager creates a queue manager.
func NewManager(repo Repository) *Manager {
	return &Manager{repo: repo, now: time.Now}
}

// EnqueueOrUpdate records a scored match. At most one entry exists per
// (subscription, event) pair; a later submission wins only when its
// score is strictly greater than the stored one. A tie or a weaker
// score leaves the incumbent untouched, including its QueuedAt, so
// retention cleanup is never delayed by repeated weak matches.
func (m *Manager) EnqueueOrUpdate(ctx context.Context, subscriptionID, eventID string, score float64, matchType domain.MatchType) (string, error) {
	if subscriptionID == "" || eventID == "" {
		return "", ErrEmptyMatchKey
	}
	if score < 0 || score > 1 {
		return "", fmt.Errorf("%w: %v", ErrInvalidScore, score)
	}

	entry := &domain.QueueEntry{
		ID:             uuid.New().String(),
		SubscriptionID: subscriptionID,
		EventID:        eventID,
		MatchScore:     score,
		MatchType:      matchType,
		QueuedAt:       m.now().UTC(),
	}

	id, written, err := m.repo.Upsert(ctx, entry)
	if err != nil {
		return "", fmt.Errorf("upsert queue entry: %w", err)
	}

	recordUpsert(written)
	if written {
		slog.Debug("match queued",
			"subscription_id", subscriptionID,
			"event_id", eventID,
			"score", score,
			"match_type", matchType,
		)
	}

	return id, nil
}

// ListForSubscription returns the subscription's matches joined to
// their events, best score first. Entries whose event was deleted are
// dropped from the result, never surfaced as errors.
func (m *Manager) ListForSubscription(ctx context.Context, subscriptionID string, includeSent bool) ([]Match, error) {
	matches, err := m.repo.ListForSubscription(ctx, subscriptionID, includeSent)
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	return matches, nil
}

// MarkSent flips the entries for the given events to sent. Idempotent:
// entries that are missing or already sent are silently skipped.
func (m *Manager) MarkSent(ctx context.Context, subscriptionID string, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}

	changed, err := m.repo.MarkSent(ctx, subscriptionID, eventIDs, m.now().UTC())
	if err != nil {
		return fmt.Errorf("mark entries sent: %w", err)
	}

	recordMarkedSent(changed)
	return nil
}

// Stats returns queue summary counts.
func (m *Manager) Stats(ctx context.Context) (*QueueStats, error) {
	stats, err := m.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return stats, nil
}
