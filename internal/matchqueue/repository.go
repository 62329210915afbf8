// Package matchqueue maintains the per-subscription queue of matched
// events: one entry per (subscription, event) pair, deduplicated under
// a monotonic-best-score policy.
package matchqueue

import (
	"context"
	"time"

	"github.com/eventscout/eventscout/internal/domain"
)

// Match pairs a queue entry with the event it references. Listings only
// ever produce matches whose event still exists.
type Match struct {
	Entry domain.QueueEntry
	Event domain.Event
}

// QueueStats holds summary counts for operational visibility.
type QueueStats struct {
	Total  int64 `json:"total"`
	Unsent int64 `json:"unsent"`
	Sent   int64 `json:"sent"`
}

// Repository defines the durable queue operations.
type Repository interface {
	// Upsert atomically inserts the entry or, when a row for the
	// (subscription, event) pair already exists, updates it only if
	// entry.MatchScore is strictly greater than the stored score.
	// Returns the id of the surviving row and whether a write happened.
	Upsert(ctx context.Context, entry *domain.QueueEntry) (string, bool, error)

	// ListForSubscription returns entries joined to their events,
	// ordered by score descending with entry id ascending as the
	// tiebreak. Entries whose event no longer exists are omitted.
	ListForSubscription(ctx context.Context, subscriptionID string, includeSent bool) ([]Match, error)

	// MarkSent flips sent=false entries for the given events to
	// sent=true with the provided timestamp. Missing or already-sent
	// entries are ignored; returns the number of rows changed.
	MarkSent(ctx context.Context, subscriptionID string, eventIDs []string, sentAt time.Time) (int64, error)

	// DeleteQueuedBefore removes every entry queued before cutoff,
	// regardless of sent state. Returns the number of rows deleted.
	DeleteQueuedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Stats returns total/unsent/sent counts across all subscriptions.
	Stats(ctx context.Context) (*QueueStats, error)
}
