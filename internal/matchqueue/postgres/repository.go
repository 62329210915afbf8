// Package postgres provides the PostgreSQL implementation of the match
// queue repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eventscout/eventscout/internal/domain"
	"github.com/eventscout/eventscout/internal/matchqueue"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements matchqueue.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Upsert inserts the entry or improves the existing row for the same
// (subscription, event) pair. The conditional ON CONFLICT update is a
// single atomic statement, so concurrent submissions for the same pair
// cannot lose the best score. When the incumbent wins, a follow-up
// select fetches its id; if a concurrent delete (retention or cascade)
// removes the row between the two statements, the whole upsert is
// retried and the insert then lands on the vacated pair.
func (r *Repository) Upsert(ctx context.Context, entry *domain.QueueEntry) (string, bool, error) {
	query := `
		INSERT INTO queue_entries (id, subscription_id, event_id, match_score, match_type, queued_at, sent)
		VALUES ($1, $2, $3, $4, $5, $6, false)
		ON CONFLICT (subscription_id, event_id) DO UPDATE
		SET match_score = EXCLUDED.match_score,
		    match_type  = EXCLUDED.match_type,
		    queued_at   = EXCLUDED.queued_at
		WHERE queue_entries.match_score < EXCLUDED.match_score
		RETURNING id
	`
	existingQuery := `SELECT id FROM queue_entries WHERE subscription_id = $1 AND event_id = $2`

	const maxAttempts = 3

	var id string
	for attempt := 1; ; attempt++ {
		err := r.db.QueryRow(ctx, query,
			entry.ID,
			entry.SubscriptionID,
			entry.EventID,
			entry.MatchScore,
			entry.MatchType,
			entry.QueuedAt,
		).Scan(&id)

		if err == nil {
			return id, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", false, fmt.Errorf("upsert entry: %w", err)
		}

		// Conflict with an equal-or-better incumbent: the statement
		// wrote nothing, return the existing row's id.
		err = r.db.QueryRow(ctx, existingQuery, entry.SubscriptionID, entry.EventID).Scan(&id)
		if err == nil {
			return id, false, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", false, fmt.Errorf("get incumbent entry: %w", err)
		}
		if attempt >= maxAttempts {
			return "", false, fmt.Errorf("upsert entry: incumbent vanished %d times", attempt)
		}
	}
}

// ListForSubscription returns entries joined to their events, ordered
// by score descending then entry id ascending. The inner join silently
// drops entries whose event was deleted.
func (r *Repository) ListForSubscription(ctx context.Context, subscriptionID string, includeSent bool) ([]matchqueue.Match, error) {
	query := `
		SELECT
			q.id, q.subscription_id, q.event_id, q.match_score, q.match_type,
			q.queued_at, q.sent, q.sent_at,
			e.id, e.title, e.description, e.url, e.starts_at, e.image_url,
			e.embedding, e.last_scraped_at, e.created_at
		FROM queue_entries q
		JOIN events e ON e.id = q.event_id
		WHERE q.subscription_id = $1
		  AND ($2 OR q.sent = false)
		ORDER BY q.match_score DESC, q.id ASC
	`
	rows, err := r.db.Query(ctx, query, subscriptionID, includeSent)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	matches := make([]matchqueue.Match, 0)
	for rows.Next() {
		var m matchqueue.Match
		err := rows.Scan(
			&m.Entry.ID,
			&m.Entry.SubscriptionID,
			&m.Entry.EventID,
			&m.Entry.MatchScore,
			&m.Entry.MatchType,
			&m.Entry.QueuedAt,
			&m.Entry.Sent,
			&m.Entry.SentAt,
			&m.Event.ID,
			&m.Event.Title,
			&m.Event.Description,
			&m.Event.URL,
			&m.Event.StartsAt,
			&m.Event.ImageURL,
			&m.Event.Embedding,
			&m.Event.LastScrapedAt,
			&m.Event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	return matches, nil
}

// MarkSent flips unsent entries for the given events to sent.
func (r *Repository) MarkSent(ctx context.Context, subscriptionID string, eventIDs []string, sentAt time.Time) (int64, error) {
	if len(eventIDs) == 0 {
		return 0, nil
	}

	query := `
		UPDATE queue_entries
		SET sent = true, sent_at = $3
		WHERE subscription_id = $1
		  AND event_id = ANY($2::uuid[])
		  AND sent = false
	`
	result, err := r.db.Exec(ctx, query, subscriptionID, eventIDs, sentAt)
	if err != nil {
		return 0, fmt.Errorf("mark sent: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeleteQueuedBefore removes entries queued before cutoff regardless of
// sent state.
func (r *Repository) DeleteQueuedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM queue_entries WHERE queued_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old entries: %w", err)
	}
	return result.RowsAffected(), nil
}

// Stats returns total/unsent/sent entry counts.
func (r *Repository) Stats(ctx context.Context) (*matchqueue.QueueStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE sent = false),
			COUNT(*) FILTER (WHERE sent = true)
		FROM queue_entries
	`
	var stats matchqueue.QueueStats
	if err := r.db.QueryRow(ctx, query).Scan(&stats.Total, &stats.Unsent, &stats.Sent); err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return &stats, nil
}
